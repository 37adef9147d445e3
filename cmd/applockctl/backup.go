package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forest6511/applockctl/pkg/backup"
	"github.com/forest6511/applockctl/pkg/kdf"
)

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}

var backupCmd = &cobra.Command{
	Use:   "backup <file>",
	Short: "Export the app lock state to an encrypted file",
	Long: `Export the lock configuration and credential material to an
encrypted file, for transferring to another install. The file is
protected by a password independent of the lock itself.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readConfirmedPassphrase("Backup password: ", "Confirm backup password: ")
		if err != nil {
			return err
		}
		defer kdf.SecureWipe(password)

		f, err := os.OpenFile(args[0], os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			return fmt.Errorf("failed to create backup file: %w", err)
		}
		defer f.Close()

		if err := backup.Export(cmd.Context(), stateDir, password, f); err != nil {
			os.Remove(args[0])
			return err
		}
		fmt.Printf("Backup written to %s\n", args[0])
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Restore app lock state from an encrypted backup",
	Long: `Replace the current lock state with the contents of a backup file.
Existing configuration and credential material are overwritten.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassphrase("Backup password: ")
		if err != nil {
			return err
		}
		defer kdf.SecureWipe(password)

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open backup file: %w", err)
		}
		defer f.Close()

		result, err := backup.Restore(cmd.Context(), stateDir, password, f)
		if err != nil {
			return err
		}
		fmt.Printf("Restored %d config and %d secret entries (backup from %s).\n",
			result.ConfigRestored, result.SecretsRestored,
			result.CreatedAt.Local().Format("2006-01-02 15:04"))
		fmt.Println("Restart running surfaces to pick up the restored state.")
		return nil
	},
}
