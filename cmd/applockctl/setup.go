package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/applockctl/pkg/applock"
	"github.com/forest6511/applockctl/pkg/kdf"
	"github.com/forest6511/applockctl/pkg/security"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure the app lock method",
}

func init() {
	setupCmd.AddCommand(setupPINCmd)
	setupCmd.AddCommand(setupPasswordCmd)
	setupCmd.AddCommand(setupDeviceCmd)
}

var setupPINCmd = &cobra.Command{
	Use:   "pin",
	Short: "Protect the app with a numeric PIN",
	RunE: func(cmd *cobra.Command, args []string) error {
		pin, err := readConfirmedPassphrase("Enter PIN: ", "Confirm PIN: ")
		if err != nil {
			return err
		}
		defer kdf.SecureWipe(pin)

		if err := applock.ValidatePIN(string(pin)); err != nil {
			return err
		}
		if rating := security.RatePIN(string(pin)); rating == security.StrengthWeak {
			fmt.Println("Warning: this PIN is easy to guess. Consider 6+ non-sequential digits.")
		}

		if err := manager.SetupPIN(cmd.Context(), pin); err != nil {
			return err
		}
		fmt.Println("App lock enabled with a PIN.")
		return nil
	},
}

var setupPasswordCmd = &cobra.Command{
	Use:   "password",
	Short: "Protect the app with a password",
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readConfirmedPassphrase("Enter password: ", "Confirm password: ")
		if err != nil {
			return err
		}
		defer kdf.SecureWipe(password)

		if err := applock.ValidatePassword(string(password)); err != nil {
			return err
		}
		fmt.Printf("Password strength: %s\n", security.RatePassword(string(password)))

		if err := manager.SetupPassword(cmd.Context(), password); err != nil {
			return err
		}
		fmt.Println("App lock enabled with a password.")
		return nil
	},
}

var setupDeviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Protect the app with the platform authenticator",
	Long: `Use the platform authenticator (Touch ID, Windows Hello, polkit) as
the unlock method. Fails with a clear reason when no authenticator is
available; choose a PIN or password instead in that case.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := manager.SetupDeviceLock(cmd.Context())
		if err != nil {
			var dlErr *applock.DeviceLockError
			if errors.As(err, &dlErr) {
				switch dlErr.Reason {
				case applock.DeviceLockNotSupported:
					return fmt.Errorf("no platform authenticator available (%s); use 'setup pin' or 'setup password'", dlErr.Capability.Reason)
				case applock.DeviceLockPromptFailed:
					return fmt.Errorf("identity check was cancelled or failed")
				}
			}
			return err
		}
		fmt.Println("App lock enabled with the platform authenticator.")
		return nil
	},
}
