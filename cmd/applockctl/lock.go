package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var lockReauthenticate bool

func init() {
	lockCmd.Flags().BoolVar(&lockReauthenticate, "reauthenticate", false,
		"Request a one-off identity check instead of an ambient lock")
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Lock the app now",
	Long: `Engage the lock on every running surface sharing this state
directory. With --reauthenticate the lock screen asks for a one-off
identity check before a sensitive action.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !manager.Snapshot().Enabled {
			return fmt.Errorf("app lock is not enabled; run 'applockctl setup' first")
		}

		if lockReauthenticate {
			manager.Reauthenticate()
		} else {
			manager.Lock()
		}
		fmt.Println("Locked.")
		return nil
	},
}
