package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ideaforge/internal/config"
)

var (
	proxyURL string
	cfgFile  string
)

var rootCmd = &cobra.Command{
	Use:   "ideaforge",
	Short: "IdeaForge suggests AI assistant use cases for a job description.",
	Long: `Describe your job and IdeaForge asks a Replicate-hosted model for concrete
ways an AI assistant can help, grouped into categories with ready-to-use prompts.
Run "ideaforge serve" for the web page or "ideaforge generate" in the terminal.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.InitConfig(cfgFile)
	},
	Run: func(cmd *cobra.Command, args []string) {
		// Default action when no subcommand is given
		cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI '%s'\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&proxyURL, "proxy", "", "HTTP proxy to use for outbound requests (e.g. http://127.0.0.1:7890)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default is ~/.config/ideaforge/config.yaml)")
}

func main() {
	Execute()
}
