package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/forest6511/applockctl/internal/config"
	"github.com/forest6511/applockctl/pkg/applock"
	"github.com/forest6511/applockctl/pkg/audit"
	"github.com/forest6511/applockctl/pkg/syncbus"
)

var (
	stateDir string
	settings *config.Config
	manager  *applock.Manager
	bus      syncbus.Bus
)

var rootCmd = &cobra.Command{
	Use:   "applockctl",
	Short: "applockctl manages the app lock for this install",
	Long: `Manage the app lock: PIN, password or device-lock setup, unlock
attempts with brute-force protection, auto-lock timing and the
tamper-evident audit log.

State lives in ~/.applockctl (override with APPLOCKCTL_DIR). Lock and
unlock events are broadcast to other running surfaces sharing the same
state directory.`,
	SilenceUsage: true,
	// PersistentPreRunE runs before the root command and all subcommands.
	// This opens the lock state and wires the ambient pieces.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		stateDir, err = config.DefaultDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(stateDir, 0700); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}

		settings, err = config.LoadOrDefault(stateDir)
		if err != nil {
			return err
		}

		opts := []applock.Option{applock.WithSource(audit.SourceCLI)}
		if settings.Audit.Enabled {
			opts = append(opts, applock.WithAuditLogger(auditLogger()))
		}
		if settings.Sync.Enabled {
			b, err := syncbus.OpenFile(stateDir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: cross-surface sync unavailable: %v\n", err)
			} else {
				bus = b
				opts = append(opts, applock.WithBus(b))
			}
		}

		manager, err = applock.New(stateDir, opts...)
		if err != nil {
			return err
		}
		return manager.Initialize()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if manager != nil {
			_ = manager.Close()
		}
		if bus != nil {
			_ = bus.Close()
		}
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(autoLockCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(mcpServerCmd)
}

// readPassphrase reads a secret from stdin without echo when attached
// to a terminal, falling back to line input for piped use.
func readPassphrase(prompt string) ([]byte, error) {
	fmt.Print(prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return nil, fmt.Errorf("failed to read passphrase: %w", err)
		}
		return b, nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return []byte(line), nil
}

// readConfirmedPassphrase prompts twice and requires both entries to
// match.
func readConfirmedPassphrase(prompt, confirmPrompt string) ([]byte, error) {
	first, err := readPassphrase(prompt)
	if err != nil {
		return nil, err
	}
	second, err := readPassphrase(confirmPrompt)
	if err != nil {
		return nil, err
	}
	if string(first) != string(second) {
		return nil, fmt.Errorf("entries do not match")
	}
	return first, nil
}
