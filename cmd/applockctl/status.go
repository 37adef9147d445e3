package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/applockctl/internal/cli"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current app lock state",
	RunE: func(cmd *cobra.Command, args []string) error {
		st := manager.Snapshot()

		fmt.Printf("App lock:        %s\n", cli.OnOff(st.Enabled))
		if !st.Enabled {
			return nil
		}

		fmt.Printf("Lock type:       %s\n", st.LockType)
		fmt.Printf("Locked:          %v\n", st.IsLocked)
		if st.IsLocked {
			fmt.Printf("Screen mode:     %s\n", st.LockScreenMode)
		}
		fmt.Printf("Failed attempts: %d\n", st.InvalidAttemptCount)
		if st.CooldownExpiresAt > 0 && st.CooldownExpiresAt > time.Now().UnixMilli() {
			fmt.Printf("Cooldown until:  %s (%s remaining)\n",
				cli.FormatEpochMs(st.CooldownExpiresAt),
				cli.FormatRemaining(st.CooldownExpiresAt, time.Now()))
		}
		if st.AutoLockTimeMs > 0 {
			fmt.Printf("Auto-lock after: %s idle\n",
				cli.FormatDuration(time.Duration(st.AutoLockTimeMs)*time.Millisecond))
		} else {
			fmt.Printf("Auto-lock:       on background\n")
		}
		return nil
	},
}
