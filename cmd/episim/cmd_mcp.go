package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/episim/internal/logging"
	"github.com/nvandessel/episim/internal/mcp"
	"github.com/nvandessel/episim/internal/metrics"
	"github.com/nvandessel/episim/internal/store"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve episim tools over MCP on stdio",
		Long: `Run an MCP (Model Context Protocol) server on stdin/stdout.

Tools: episim_run, episim_compare, episim_history, episim_channel.
Resources: episim://channels.

Runs are saved to history like CLI runs. Tool calls are appended to
~/.episim/audit.jsonl. Logs go to stderr.

Example client configuration:
  {"mcpServers": {"episim": {"command": "episim", "args": ["mcp-server"]}}}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			// stdout carries the protocol.
			logger := logging.NewLogger(cfg.Logging.Level, os.Stderr)

			auditDir, err := store.GlobalEpisimPath()
			if err != nil {
				return err
			}
			eventDir := cfg.Logging.Dir
			if eventDir == "" {
				eventDir = auditDir
			}
			events := logging.NewEventLogger(eventDir, cfg.Logging.Level)
			defer events.Close()

			srv, err := mcp.NewServer(&mcp.Config{
				Name:     "episim",
				Version:  version,
				Settings: cfg,
				AuditDir: auditDir,
				Logger:   logger,
				Events:   events,
				Metrics:  metrics.New(),
			})
			if err != nil {
				return fmt.Errorf("failed to start MCP server: %w", err)
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return srv.Run(ctx)
		},
	}
}
