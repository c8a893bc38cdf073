package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/gas"
)

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the smart account address",
	Long:  `Resolve the (possibly counterfactual) smart account address of the configured owner and report whether it is deployed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		addr, err := rt.account.Address(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "account:    %s\n", addr.Hex())
		fmt.Fprintf(out, "kind:       %s\n", rt.account.Kind())
		fmt.Fprintf(out, "owner:      %s\n", rt.cfg.Owner.Address().Hex())
		fmt.Fprintf(out, "entrypoint: %s\n", rt.account.EntryPoint().Hex())
		fmt.Fprintf(out, "deployed:   %t\n", !rt.account.CheckAccountPhantom(ctx))
		if rt.paymaster != nil {
			fmt.Fprintf(out, "paymaster:  %s\n", rt.paymaster.Address().Hex())
			if deposit, err := rt.paymaster.Deposit(ctx); err == nil {
				fmt.Fprintf(out, "deposit:    %s ETH\n", gas.FormatEther(deposit))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addressCmd)
}
