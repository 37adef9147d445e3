package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/applockctl/internal/cli"
)

var autoLockCmd = &cobra.Command{
	Use:   "autolock <delay>",
	Short: "Set the idle delay before auto-lock",
	Long: `Set how long a surface may sit idle before it locks itself.
Accepts a Go duration ("5m", "90s") or plain milliseconds. A delay of 0
locks immediately when the app goes to the background.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ms, err := parseDelay(args[0])
		if err != nil {
			return err
		}

		if err := manager.SetAutoLockTime(cmd.Context(), ms); err != nil {
			return err
		}
		if ms == 0 {
			fmt.Println("Auto-lock set to: immediately on background.")
		} else {
			fmt.Printf("Auto-lock set to: %s idle.\n",
				cli.FormatDuration(time.Duration(ms)*time.Millisecond))
		}
		return nil
	},
}

// parseDelay accepts "5m"-style durations or raw milliseconds.
func parseDelay(s string) (int64, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("delay must not be negative")
		}
		return ms, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid delay %q: use a duration like 5m or milliseconds", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("delay must not be negative")
	}
	return d.Milliseconds(), nil
}
