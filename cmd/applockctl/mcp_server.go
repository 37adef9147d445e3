package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forest6511/applockctl/internal/mcp"
)

// mcpServerCmd starts the MCP server for AI coding assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the MCP server for AI coding assistant integration",
	Long: `Start the MCP server that lets AI coding assistants observe and engage
the app lock over stdio transport.

Available tools:
  - applock_status: Report lock state, attempt counter and cooldown
  - applock_lock:   Engage the lock (optionally in reauthenticate mode)

There is deliberately no unlock tool: an agent can restrict access but
never widen it.

Example MCP configuration (~/.claude.json):
  {
    "mcpServers": {
      "applockctl": {
        "type": "stdio",
        "command": "/path/to/applockctl",
        "args": ["mcp-server"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer()
	},
}

func runMCPServer() error {
	server, err := mcp.NewServer(&mcp.ServerOptions{StateDir: stateDir})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		cancel()
	}()

	if err := server.Run(ctx); err != nil {
		// Don't report context canceled as an error
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
