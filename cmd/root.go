package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "billing-service",
	Short: "Subscription billing and payment reconciliation service",
	Long:  "Billing service: plan checkout, provider webhooks, payment reconciliation, expiration sweeps and employee quotas.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
