package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhubert/handoff/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [id]",
	Short: "List journaled interactions, or show one by id",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.NewStore("")
		if err != nil {
			return err
		}

		if len(args) == 1 {
			entry, err := store.Get(args[0])
			if err != nil {
				return err
			}
			md, err := os.ReadFile(filepath.Join(entry.Dir, "entry.md"))
			if err != nil {
				return err
			}
			fmt.Print(string(md))
			return nil
		}

		entries, err := store.List(historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No history yet.")
			return nil
		}
		for _, e := range entries {
			summary := e.UserInput
			if summary == "" && len(e.Selected) > 0 {
				summary = "Selected: " + strings.Join(e.Selected, ", ")
			}
			if len(summary) > 60 {
				summary = summary[:57] + "..."
			}
			summary = strings.ReplaceAll(summary, "\n", " ")
			fmt.Printf("%s  %s  %s\n", e.ID, e.Timestamp.Format(time.RFC3339), summary)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum entries to list, 0 for all")
	rootCmd.AddCommand(historyCmd)
}
