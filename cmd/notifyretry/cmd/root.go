package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "notifyretry",
	Short: "Retry scheduler for the notification delivery ledger",
	Long: `notifyretry scans the notification log for failed entries with a due
retry time and re-dispatches them through the configured channel clients.

Intended for one-shot runs from cron or an operator shell; the API server
runs the same scheduler continuously.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}
