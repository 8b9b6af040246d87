package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhubert/handoff/logger"
	"github.com/zhubert/handoff/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over stdio",
	Long:  "Serve MCP over stdio. This is the default when handoff is run with no subcommand.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe sets up file-only logging (stdout belongs to the MCP transport)
// and serves until the client disconnects or we get a signal.
func runServe(ctx context.Context) error {
	logPath, err := logger.DefaultLogPath()
	if err != nil {
		return fmt.Errorf("failed to resolve log path: %w", err)
	}
	if err := logger.Init(logPath); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	srv, err := buildServer()
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

var httpPort int

var httpCmd = &cobra.Command{
	Use:   "http",
	Short: "Serve MCP over streamable HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		logPath, err := logger.DefaultLogPath()
		if err != nil {
			return fmt.Errorf("failed to resolve log path: %w", err)
		}
		// HTTP mode owns the terminal, so log to console as well.
		if err := logger.InitConsole(os.Stderr, logPath); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		srv, err := buildServer()
		if err != nil {
			return err
		}
		return srv.ServeHTTP(cmd.Context(), fmt.Sprintf("127.0.0.1:%d", httpPort))
	},
}

func init() {
	httpCmd.Flags().IntVar(&httpPort, "port", mcp.DefaultHTTPPort, "port to listen on")
	rootCmd.AddCommand(httpCmd)
}
