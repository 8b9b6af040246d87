package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhubert/handoff/interaction"
	"github.com/zhubert/handoff/logger"
	"github.com/zhubert/handoff/process"
)

var (
	cleanupDryRun bool
	cleanupLogs   bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Kill orphaned UI dialogs and clear stale state",
	Long: "Find UI dialog processes whose server is gone, kill them, and remove " +
		"the stale pending-task record left behind by a crashed server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		// The current pending task, if its record survives, is not an orphan.
		known := make(map[string]bool)
		store := interaction.NewStore("")
		if task, ok := anyPending(store); ok {
			known[task] = true
		}

		orphans, err := process.FindOrphanedUIProcesses(known)
		if err != nil {
			return fmt.Errorf("failed to scan for UI processes: %w", err)
		}
		if len(orphans) == 0 {
			fmt.Println("No orphaned UI processes found.")
		}
		for _, p := range orphans {
			if cleanupDryRun {
				fmt.Printf("Would kill pid %d (task %s)\n", p.PID, p.TaskID)
				continue
			}
			if err := process.KillProcess(p.PID); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to kill pid %d: %v\n", p.PID, err)
				continue
			}
			fmt.Printf("Killed pid %d (task %s)\n", p.PID, p.TaskID)
		}

		if !cleanupDryRun && len(known) == 0 {
			if err := os.Remove(store.RecordPath()); err == nil {
				fmt.Println("Removed stale pending-task record.")
			}
		}

		if cleanupLogs && !cleanupDryRun {
			if n, err := logger.ClearLogs(); err == nil && n > 0 {
				fmt.Printf("Removed %d log file(s).\n", n)
			}
		}
		return nil
	},
}

// anyPending returns the id of the recoverable pending task, if one exists.
func anyPending(store *interaction.Store) (string, bool) {
	existing, _ := store.Reconcile(process.IsAlive)
	if existing == nil {
		return "", false
	}
	return existing.ID, true
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "report what would be cleaned without doing it")
	cleanupCmd.Flags().BoolVar(&cleanupLogs, "logs", false, "also remove server and UI log files")
	rootCmd.AddCommand(cleanupCmd)
}
