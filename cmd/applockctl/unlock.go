package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/applockctl/internal/cli"
	"github.com/forest6511/applockctl/pkg/applock"
	"github.com/forest6511/applockctl/pkg/kdf"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Attempt to unlock the app",
	RunE: func(cmd *cobra.Command, args []string) error {
		st := manager.Snapshot()
		if !st.Enabled {
			fmt.Println("App lock is not enabled.")
			return nil
		}

		if st.LockType == applock.LockTypeDevice {
			return runDeviceUnlock(cmd)
		}

		prompt := "Enter PIN: "
		if st.LockType == applock.LockTypePassword {
			prompt = "Enter password: "
		}
		passphrase, err := readPassphrase(prompt)
		if err != nil {
			return err
		}
		defer kdf.SecureWipe(passphrase)

		switch outcome := manager.AttemptUnlock(cmd.Context(), passphrase); outcome {
		case applock.OutcomeSuccess:
			fmt.Println("Unlocked.")
			return nil
		case applock.OutcomeCooldown:
			st := manager.Snapshot()
			return fmt.Errorf("too many failed attempts; try again in %s",
				cli.FormatRemaining(st.CooldownExpiresAt, time.Now()))
		case applock.OutcomeLogout:
			return fmt.Errorf("attempt limit reached; sign in to your account again to continue")
		default:
			st := manager.Snapshot()
			remaining := applock.LogoutThreshold - st.InvalidAttemptCount
			return fmt.Errorf("incorrect %s (%d attempts remaining)", st.LockType, remaining)
		}
	},
}

func runDeviceUnlock(cmd *cobra.Command) error {
	err := manager.AttemptDeviceUnlock(cmd.Context())
	if err != nil {
		var dlErr *applock.DeviceLockError
		if errors.As(err, &dlErr) {
			switch dlErr.Reason {
			case applock.DeviceLockNotSupported:
				return fmt.Errorf("no platform authenticator available on this surface")
			case applock.DeviceLockPromptFailed:
				return fmt.Errorf("identity check was cancelled or failed")
			}
		}
		return err
	}
	fmt.Println("Unlocked.")
	return nil
}
