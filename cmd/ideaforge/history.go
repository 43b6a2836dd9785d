package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ideaforge/internal/config"
	"ideaforge/internal/db"
)

var limit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past recommendation runs.",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := db.Open(config.Load().History.DSN)
		if err != nil {
			fmt.Printf("Error opening history: %v\n", err)
			return
		}
		defer store.Close()

		records, err := store.List(context.Background(), limit)
		if err != nil {
			fmt.Printf("Error reading history: %v\n", err)
			return
		}
		if len(records) == 0 {
			fmt.Println("No history yet.")
			return
		}

		out := cmd.OutOrStdout()
		for _, r := range records {
			status := "ok"
			if r.Problem != "" {
				status = r.Problem
			}
			if r.Fallback {
				status += ", fallback"
			}
			fmt.Fprintf(out, "%s  %s  [%s]  %s\n", r.ID, r.CreatedAt.Local().Format(time.DateTime), status, r.Description)
		}
	},
}

// historyShowCmd represents the history show command
var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print one recommendation run in full.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := db.Open(config.Load().History.DSN)
		if err != nil {
			fmt.Printf("Error opening history: %v\n", err)
			return
		}
		defer store.Close()

		r, err := store.Get(context.Background(), args[0])
		if errors.Is(err, db.ErrNotFound) {
			fmt.Printf("No history record with ID %s.\n", args[0])
			return
		}
		if err != nil {
			fmt.Printf("Error reading history: %v\n", err)
			return
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Description: %s\n", r.Description)
		fmt.Fprintf(out, "Created: %s\n", r.CreatedAt.Local().Format(time.DateTime))
		if r.Problem != "" {
			fmt.Fprintf(out, "Problem: %s\n", r.Problem)
		}
		if r.RawOutput != "" {
			fmt.Fprintf(out, "Raw model output:\n%s\n", indent(r.RawOutput, "  "))
		}
		printCategories(out, r.Categories)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of records to list (0 for all)")
}
