package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"ideaforge/internal/config"
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login [token]",
	Short: "Store your Replicate API token.",
	Long: `Saves a Replicate API token to the config file. The token is read from
standard input when it is not given as an argument.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var token string
		if len(args) == 1 {
			token = strings.TrimSpace(args[0])
		} else {
			fmt.Print("Replicate API token: ")
			t, err := readToken(cmd.InOrStdin())
			if err != nil {
				fmt.Printf("Error reading token: %v\n", err)
				return
			}
			token = t
		}
		if token == "" {
			fmt.Println("No token given.")
			return
		}

		if err := config.SaveToken(token); err != nil {
			fmt.Printf("Error saving token: %v\n", err)
			return
		}
		fmt.Printf("Token saved to %s.\n", config.ConfigFile())
	},
}

func readToken(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
