package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ideaforge/internal/ai"
	"ideaforge/internal/config"
	"ideaforge/internal/prediction"
)

var (
	endpoint     string
	moreCategory string
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate [job description]",
	Short: "Generate AI assistant ideas for a job description.",
	Long: `Runs one prediction for the given job description and prints the resulting
categories. Without --endpoint the relay runs in process with the local token.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		description := strings.Join(args, " ")
		rec, closeFn, err := cliRecommender()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		defer closeFn()

		fmt.Printf("Generating ideas for: \"%s\"\n", description)
		res, err := rec.Recommend(progressContext(), description)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Println()

		out := cmd.OutOrStdout()
		printProblem(out, res.Problem)
		if res.Fallback {
			fmt.Fprintln(out, "Showing fallback recommendations.")
		}
		if res.Cached {
			fmt.Fprintln(out, "(cached)")
		}
		if len(res.Categories) == 0 {
			fmt.Fprintln(out, "No recommendations.")
			return
		}
		printCategories(out, res.Categories)
		if res.HistoryID != "" {
			fmt.Fprintf(out, "Saved as %s\n", res.HistoryID)
		}
	},
}

// moreCmd represents the more command
var moreCmd = &cobra.Command{
	Use:   "more [job description]",
	Short: "Generate additional ideas within one category.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		description := strings.Join(args, " ")
		rec, closeFn, err := cliRecommender()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		defer closeFn()

		fmt.Printf("Generating more ideas for %q...\n", moreCategory)
		res, err := rec.More(progressContext(), moreCategory, description)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Println()

		out := cmd.OutOrStdout()
		printProblem(out, res.Problem)
		printApplications(out, res.Applications)
		fmt.Fprintf(out, "----------------------------------------\n")
	},
}

func cliRecommender() (*ai.Recommender, func(), error) {
	s := config.Load()
	relay, err := newRelay(s)
	if err != nil {
		return nil, nil, err
	}
	if endpoint == "" && config.Token() == "" {
		return nil, nil, fmt.Errorf("no Replicate token configured; run 'ideaforge login' or set %s", config.EnvToken)
	}
	store := openHistory(s)
	rec, err := newRecommender(s, endpoint, relay, store)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, nil, err
	}
	return rec, func() {
		if store != nil {
			store.Close()
		}
	}, nil
}

// progressContext prints poll progress on stderr.
func progressContext() context.Context {
	return prediction.WithProgress(context.Background(), func(p prediction.Progress) {
		fmt.Fprintf(os.Stderr, "\rprediction %s: %s (poll %d)   ", p.PredictionID, p.Status, p.Attempt)
	})
}

func init() {
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(moreCmd)
	for _, c := range []*cobra.Command{generateCmd, moreCmd} {
		c.Flags().StringVar(&endpoint, "endpoint", "", "Relay URL of a running server (e.g. http://localhost:3000/api/replicate)")
	}
	moreCmd.Flags().StringVar(&moreCategory, "category", "", "Category to extend")
	moreCmd.MarkFlagRequired("category")
}
