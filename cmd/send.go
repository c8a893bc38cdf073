package cmd

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/aa-sdk/core/config"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/gas"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/preset"
)

var (
	sendTo     string
	sendValue  string
	sendData   string
	sendABI    string
	sendMethod string
	sendArgs   []string
	sendWait   bool
	sendDryRun bool

	sendCmd = &cobra.Command{
		Use:   "send",
		Short: "Build, sign and send a user operation",
		Long: `Build a user operation calling --to with --data (or --abi/--method/--args),
sponsor it when a paymaster is configured, send it to the bundler and
optionally wait for the receipt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			intent, err := sendIntent()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			intent = rt.defaultTransactionDetails(intent)
			out := cmd.OutOrStdout()

			if sendDryRun {
				op, err := rt.client.Builder.Build(ctx, intent)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(op)
			}

			if !sendWait {
				res, err := rt.client.Send(ctx, intent)
				if err != nil {
					return err
				}
				rt.recordSubmitted(intent, res)
				fmt.Fprintf(out, "userOpHash: %s\n", res.UserOpHash.Hex())
				fmt.Fprintf(out, "maxCost:    %s ETH\n", gas.FormatEther(gas.MaxCost(res.UserOp)))
				return nil
			}

			res, receipt, err := rt.client.SendAndWait(ctx, intent)
			if res != nil {
				rt.recordSubmitted(intent, res)
				fmt.Fprintf(out, "userOpHash: %s\n", res.UserOpHash.Hex())
			}
			if err != nil {
				return err
			}
			rt.recordIncluded(res.UserOpHash, receipt.Receipt.TransactionHash, receipt.Success, receipt.ActualGasUsed.ToInt())
			tx := receipt.Receipt.TransactionHash.Hex()
			fmt.Fprintf(out, "success:    %t\n", receipt.Success)
			fmt.Fprintf(out, "txHash:     %s\n", tx)
			if url := config.TxURL(rt.chainID, tx); url != "" {
				fmt.Fprintf(out, "explorer:   %s\n", url)
			}
			return nil
		},
	}
)

// sendIntent turns the flags into TransactionDetails.
func sendIntent() (*preset.TransactionDetails, error) {
	if !common.IsHexAddress(sendTo) {
		return nil, fmt.Errorf("--to must be an address, got %q", sendTo)
	}
	target := common.HexToAddress(sendTo)

	var value *big.Int
	if sendValue != "" {
		v, ok := new(big.Int).SetString(sendValue, 0)
		if !ok {
			return nil, fmt.Errorf("--value must be an integer amount of wei, got %q", sendValue)
		}
		value = v
	}

	if sendMethod != "" {
		return preset.ContractCallFromStrings(target, sendABI, sendMethod, value, sendArgs)
	}

	var data []byte
	if sendData != "" {
		d, err := hexutil.Decode(sendData)
		if err != nil {
			return nil, fmt.Errorf("--data: %w", err)
		}
		data = d
	}
	return &preset.TransactionDetails{Target: &target, Value: value, Data: data}, nil
}

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "call target")
	sendCmd.Flags().StringVar(&sendValue, "value", "", "wei to send along")
	sendCmd.Flags().StringVar(&sendData, "data", "", "0x call data")
	sendCmd.Flags().StringVar(&sendABI, "abi", "", "JSON ABI used with --method")
	sendCmd.Flags().StringVar(&sendMethod, "method", "", "method to encode instead of --data")
	sendCmd.Flags().StringArrayVar(&sendArgs, "arg", nil, "method argument, repeat in order")
	sendCmd.Flags().BoolVar(&sendWait, "wait", true, "wait for the receipt")
	sendCmd.Flags().BoolVar(&sendDryRun, "dry-run", false, "print the signed operation without sending it")
	_ = sendCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(sendCmd)
}
