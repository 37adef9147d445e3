package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn the app lock off",
	Long: `Disable the app lock and delete all stored credential material and
brute-force counters. The auto-lock delay setting is kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := manager.Disable(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("App lock disabled.")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear all app lock state for this install",
	Long: `Clear every persisted app lock value, as happens on account logout.
Afterwards the install behaves as if the lock was never configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := manager.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("App lock state cleared.")
		return nil
	},
}
