// Package mcp provides an MCP (Model Context Protocol) server for episim.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/episim/internal/config"
	"github.com/nvandessel/episim/internal/logging"
	"github.com/nvandessel/episim/internal/metrics"
	"github.com/nvandessel/episim/internal/ratelimit"
	"github.com/nvandessel/episim/internal/runner"
	"github.com/nvandessel/episim/internal/store"
)

// Server wraps the MCP SDK server and provides the episim tools.
type Server struct {
	server   *sdk.Server
	runner   *runner.Runner
	store    store.RunStore
	settings *config.Config
	audit    *AuditLogger
	limiters ratelimit.ToolLimiters
	logger   *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "episim")
	Version string // Server version

	// Settings is the loaded episim configuration; nil uses defaults.
	Settings *config.Config

	// Store receives every run. When nil the server opens the SQLite
	// history named by Settings, or an in-memory store if history is
	// disabled.
	Store store.RunStore

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string

	Logger  *slog.Logger
	Events  *logging.EventLogger
	Metrics *metrics.Metrics
}

// NewServer creates a new MCP server with the episim tools.
func NewServer(cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	runStore := cfg.Store
	if runStore == nil {
		var err error
		if runStore, err = OpenStore(settings); err != nil {
			return nil, err
		}
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:   mcpServer,
		store:    runStore,
		settings: settings,
		limiters: ratelimit.NewToolLimiters(),
		logger:   logger,
		runner: runner.New(settings,
			runner.WithStore(runStore),
			runner.WithLogger(logger),
			runner.WithEventLogger(cfg.Events),
			runner.WithMetrics(cfg.Metrics),
		),
	}
	if cfg.AuditDir != "" {
		s.audit = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()
	s.registerResources()
	return s, nil
}

// OpenStore opens the run history named by settings.
func OpenStore(settings *config.Config) (store.RunStore, error) {
	if settings.Storage.Disabled {
		return store.NewInMemoryRunStore(), nil
	}
	dbPath, err := store.DefaultDBPath(settings.Storage.Dir)
	if err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteRunStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return st, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio")
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	s.Close()
	return err
}

// Close closes the run store and the audit log.
func (s *Server) Close() error {
	auditErr := s.audit.Close()
	if err := s.store.Close(); err != nil {
		return err
	}
	return auditErr
}
