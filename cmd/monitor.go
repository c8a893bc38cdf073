package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/aa-sdk/core/chainio/aa"
	"github.com/AvaProtocol/aa-sdk/metrics"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Serve prometheus metrics",
	Long: `Serve the SDK and node metrics on metrics_address until interrupted.

EntryPoint deposits of the addresses listed under watch_deposits are read at
scrape time and the smart account itself is always included.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()
		if rt.eigenMetrics == nil {
			return fmt.Errorf("metrics_address is not configured")
		}

		addrs := rt.cfg.WatchDeposits
		if addrs == nil {
			addrs = map[string]common.Address{}
		}
		if sender, err := rt.account.Address(ctx); err == nil {
			addrs["account"] = sender
		}
		if rt.paymaster != nil {
			addrs["paymaster"] = rt.paymaster.Address()
		}

		entrypoint := aa.NewEntryPoint(rt.account.EntryPoint(), rt.chain)
		if err := rt.reg.Register(metrics.NewDepositCollector(entrypoint, rt.cfg.Logger, addrs)); err != nil {
			return err
		}

		rt.cfg.Logger.Info("serving metrics", "address", rt.cfg.MetricsAddress, "watched", len(addrs))
		errC := rt.eigenMetrics.Start(ctx, rt.reg)
		select {
		case <-ctx.Done():
			return nil
		case err := <-errC:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}
