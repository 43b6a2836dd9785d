package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ideaforge/internal/config"
	"ideaforge/internal/server"
	"ideaforge/internal/web"
)

var (
	port  int
	theme string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web page and the Replicate relay.",
	Long: `Starts a local web server with the search page, the /api/replicate relay that
attaches the server-held token, and the recommendation and history APIs.`,
	Run: func(cmd *cobra.Command, args []string) {
		s := config.Load()
		if cmd.Flags().Changed("port") {
			s.Server.Port = port
		}
		if cmd.Flags().Changed("theme") {
			s.Theme = theme
		}

		if config.LegacyClientToken() {
			log.Printf("config: %s is set but never used; the relay reads %s", config.EnvLegacyClient, config.EnvToken)
		}
		if config.Token() == "" {
			log.Printf("config: no Replicate token configured, /api/replicate will answer 500 until one is set")
		}

		page, err := web.New(s.Theme)
		if err != nil {
			fmt.Printf("Error preparing page: %v\n", err)
			return
		}
		relay, err := newRelay(s)
		if err != nil {
			fmt.Printf("Error creating relay: %v\n", err)
			return
		}

		opts := server.Options{
			Relay:           relay,
			Page:            page,
			TokenConfigured: func() bool { return config.Token() != "" },
			AllowedOrigins:  s.Server.AllowedOrigins,
		}
		store := openHistory(s)
		if store != nil {
			defer store.Close()
			opts.History = store
		}
		rec, err := newRecommender(s, "", relay, store)
		if err != nil {
			fmt.Printf("Error creating recommender: %v\n", err)
			return
		}
		opts.Recommender = rec

		srv := server.New(fmt.Sprintf(":%d", s.Server.Port), server.NewHandler(opts))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			if err != nil {
				fmt.Printf("Error starting server: %v\n", err)
			}
			return
		case <-ctx.Done():
		}

		fmt.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&port, "port", "p", 3000, "Port to run the server on")
	serveCmd.Flags().StringVar(&theme, "theme", web.DefaultTheme, "Page theme (midnight, pastel, classic)")
}
