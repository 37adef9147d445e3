// Package mcp implements the MCP (Model Context Protocol) server for
// applockctl. Tools are read-or-restrict only: an agent can inspect lock
// state and engage the lock, but no tool path can unlock the app or
// touch the brute-force counters.
package mcp

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/applockctl/internal/config"
	"github.com/forest6511/applockctl/pkg/applock"
	"github.com/forest6511/applockctl/pkg/audit"
	"github.com/forest6511/applockctl/pkg/autolock"
)

// Server represents the MCP server for applockctl.
type Server struct {
	server  *mcp.Server
	manager *applock.Manager
	sched   *autolock.Scheduler
	ownsMgr bool
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// StateDir is the lock state directory. If empty, defaults to
	// APPLOCKCTL_DIR or ~/.applockctl.
	StateDir string

	// Manager overrides the lock manager, mainly for tests. When set,
	// the server does not close it.
	Manager *applock.Manager
}

// NewServer creates a new MCP server instance.
func NewServer(opts *ServerOptions) (*Server, error) {
	if opts == nil {
		opts = &ServerOptions{}
	}

	manager := opts.Manager
	ownsMgr := false
	if manager == nil {
		dir := opts.StateDir
		if dir == "" {
			var err error
			dir, err = config.DefaultDir()
			if err != nil {
				return nil, err
			}
		}

		cfg, err := config.LoadOrDefault(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}

		mgrOpts := []applock.Option{applock.WithSource(audit.SourceMCP)}
		if cfg.Audit.Enabled {
			mgrOpts = append(mgrOpts, applock.WithAuditLogger(audit.NewLogger(filepath.Join(dir, "audit"))))
		}

		manager, err = applock.New(dir, mgrOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open lock state: %w", err)
		}
		if err := manager.Initialize(); err != nil {
			manager.Close()
			return nil, fmt.Errorf("failed to initialize lock state: %w", err)
		}
		ownsMgr = true
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "applockctl",
			Version: "0.1.0",
		},
		nil,
	)

	s := &Server{
		server:  mcpServer,
		manager: manager,
		sched:   autolock.New(manager),
		ownsMgr: ownsMgr,
	}
	s.registerTools()
	return s, nil
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	// applock_status - Report the current lock snapshot (no secrets)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "applock_status",
		Description: "Report the current app lock state: enabled, lock type, locked, attempt counter and any active cooldown. Never returns credential material.",
	}, s.handleStatus)

	// applock_lock - Engage the lock screen
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "applock_lock",
		Description: "Engage the app lock immediately. Mode 'reauthenticate' requests a one-off identity check instead of an ambient lock. There is no corresponding unlock tool.",
	}, s.handleLock)
}

// Run starts the MCP server using stdio transport. While serving, the
// idle watcher locks the surface after the configured delay; tool calls
// count as activity.
func (s *Server) Run(ctx context.Context) error {
	s.sched.Start(ctx)
	defer s.sched.Stop()

	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close releases the lock state when the server owns it.
func (s *Server) Close() error {
	if s.ownsMgr {
		return s.manager.Close()
	}
	return nil
}
