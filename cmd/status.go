package cmd

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/aa-sdk/core/config"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/gas"
	"github.com/AvaProtocol/aa-sdk/pkg/timekeeper"
)

var (
	statusWait    time.Duration
	statusOnchain bool

	statusCmd = &cobra.Command{
		Use:   "status <userOpHash>",
		Short: "Display the status of a user operation",
		Long: `Ask the bundler for a user operation and its receipt. With --onchain the
EntryPoint UserOperationEvent logs are searched instead, which also works
for operations sent through another bundler.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hashBytes := common.FromHex(args[0])
			if len(hashBytes) != common.HashLength {
				return fmt.Errorf("%q is not a 32 byte hash", args[0])
			}
			hash := common.BytesToHash(hashBytes)

			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			out := cmd.OutOrStdout()

			if statusOnchain {
				if statusWait > 0 {
					if _, err := rt.account.UserOpReceipt(ctx, hash, timekeeper.Policy{Timeout: statusWait, Interval: rt.cfg.Poll.Interval}); err != nil {
						return err
					}
				}
				ev, err := rt.account.FindUserOperationEvent(ctx, hash)
				if err != nil {
					return err
				}
				if ev == nil {
					fmt.Fprintln(out, "status:     not found")
					return nil
				}
				rt.recordIncluded(hash, ev.TxHash, ev.Success, ev.ActualGasUsed)
				fmt.Fprintln(out, "status:     included")
				fmt.Fprintf(out, "txHash:     %s\n", ev.TxHash.Hex())
				fmt.Fprintf(out, "success:    %t\n", ev.Success)
				fmt.Fprintf(out, "gasCost:    %s ETH\n", gas.FormatEther(ev.ActualGasCost))
				return nil
			}

			op, err := rt.bundler.GetUserOperationByHash(ctx, hash)
			if err != nil {
				return err
			}
			if op == nil {
				fmt.Fprintln(out, "status:     unknown to bundler")
				return nil
			}
			if !op.Included() {
				fmt.Fprintln(out, "status:     pending")
				return nil
			}

			receipt, err := rt.bundler.GetUserOperationReceipt(ctx, hash)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "status:     included")
			fmt.Fprintf(out, "txHash:     %s\n", op.TransactionHash.Hex())
			if url := config.TxURL(rt.chainID, op.TransactionHash.Hex()); url != "" {
				fmt.Fprintf(out, "explorer:   %s\n", url)
			}
			if receipt != nil {
				rt.recordIncluded(hash, *op.TransactionHash, receipt.Success, receipt.ActualGasUsed.ToInt())
				fmt.Fprintf(out, "success:    %t\n", receipt.Success)
				if receipt.ActualGasCost != nil {
					fmt.Fprintf(out, "gasCost:    %s ETH\n", gas.FormatEther(receipt.ActualGasCost.ToInt()))
				}
				if receipt.Reason != "" {
					fmt.Fprintf(out, "reason:     %s\n", receipt.Reason)
				}
			}
			return nil
		},
	}
)

func init() {
	statusCmd.Flags().BoolVar(&statusOnchain, "onchain", false, "search EntryPoint logs instead of asking the bundler")
	statusCmd.Flags().DurationVar(&statusWait, "wait", 0, "with --onchain, keep polling for this long")
	rootCmd.AddCommand(statusCmd)
}
