// Command handoff is an MCP server that lets an agent hand a question to the
// human at the desk: it opens a native dialog, returns immediately, and hands
// the answer back when the human gets to it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhubert/handoff/history"
	"github.com/zhubert/handoff/interaction"
	"github.com/zhubert/handoff/logger"
	"github.com/zhubert/handoff/mcp"
	"github.com/zhubert/handoff/process"
	"github.com/zhubert/handoff/ui"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:     "handoff",
	Short:   "Human-in-the-loop MCP server",
	Long:    "handoff serves MCP tools that pause an agent, show the human a native dialog, and resume with the answer.",
	Version: mcp.Version,
	// No subcommand means stdio serving, which is how MCP clients invoke us.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logger.SetDebug(debug)
	}
	rootCmd.SilenceUsage = true
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// buildServer assembles the coordinator and MCP server from real parts.
func buildServer() (*mcp.Server, error) {
	hist, err := history.NewStore("")
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	store := interaction.NewStore("")
	launcher := ui.NewLauncher(nil)
	coord := interaction.NewCoordinator(store, launcher, process.Prober{},
		interaction.WithHistory(hist),
	)
	return mcp.NewServer(coord), nil
}

func main() {
	ctx, cancel := signalContext()
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}
