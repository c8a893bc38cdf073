package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath = "./config/aa.yaml"
	rootCmd    = &cobra.Command{
		Use:   "aa-sdk",
		Short: "ERC-4337 account abstraction CLI",
		Long: `Build, sponsor, send and track ERC-4337 user operations
from a smart account described in a config file.

Such as "aa-sdk address" or "aa-sdk send --to 0x... --data 0x..." and so on
`,
		SilenceUsage: true,
	}
)

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/aa.yaml", "Path to config file")
}
