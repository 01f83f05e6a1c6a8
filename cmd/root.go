package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "crowsnest",
	Short: "Crow's Nest security event engine",
	Long: `crowsnest scores security events, detects multi-event attack
patterns over sliding windows, and executes automated containment:
blocking, quarantine, rate limiting and escalation.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults plus CROWSNEST_* environment)")
}
