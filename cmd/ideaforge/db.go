package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ideaforge/internal/config"
	"ideaforge/internal/db"
)

// dbCmd represents the base command for database operations.
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the local history database.",
}

// resetCmd represents the command to reset the database.
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the local sqlite history file.",
	Run: func(cmd *cobra.Command, args []string) {
		dbPath := config.Load().History.DSN
		if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
			fmt.Println("History is stored in postgres; reset only removes local sqlite files.")
			return
		}
		if dbPath == "" {
			p, err := db.DefaultPath()
			if err != nil {
				fmt.Printf("Error locating database: %v\n", err)
				return
			}
			dbPath = p
		}

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			fmt.Println("Database file does not exist. Nothing to do.")
			return
		}

		fmt.Printf("Are you sure you want to delete the database file at %s? [y/N]: ", dbPath)
		var response string
		fmt.Scanln(&response)

		if response == "y" || response == "Y" {
			if err := os.Remove(dbPath); err != nil {
				fmt.Printf("Error deleting database file: %v\n", err)
				return
			}
			fmt.Println("Database file successfully deleted.")
		} else {
			fmt.Println("Reset cancelled.")
		}
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(resetCmd)
}
