package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/aa-sdk/core/chainio/aa"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/gas"
	"github.com/AvaProtocol/aa-sdk/pkg/erc4337/userop"
)

var (
	hashFile       string
	hashChainID    int64
	hashEntryPoint string

	hashCmd = &cobra.Command{
		Use:   "hash",
		Short: "Compute the userOpHash of a JSON user operation",
		Long: `Read a v0.7 user operation in its JSON-RPC form from --file (or stdin)
and print its userOpHash, packed fields and maximum cost. No RPC is needed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if hashFile != "" && hashFile != "-" {
				f, err := os.Open(hashFile)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			var op userop.UserOperation
			if err := json.NewDecoder(r).Decode(&op); err != nil {
				return fmt.Errorf("cannot decode user operation: %w", err)
			}

			entryPoint := aa.EntrypointAddress
			if hashEntryPoint != "" {
				if !common.IsHexAddress(hashEntryPoint) {
					return fmt.Errorf("invalid entrypoint address %q", hashEntryPoint)
				}
				entryPoint = common.HexToAddress(hashEntryPoint)
			}

			packed, err := userop.Pack(&op)
			if err != nil {
				return err
			}
			hash, err := userop.HashPacked(packed, entryPoint, big.NewInt(hashChainID))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "userOpHash:         %s\n", hash.Hex())
			fmt.Fprintf(out, "initCode:           %s\n", hexutil.Encode(packed.InitCode))
			fmt.Fprintf(out, "accountGasLimits:   %s\n", hexutil.Encode(packed.AccountGasLimits[:]))
			fmt.Fprintf(out, "gasFees:            %s\n", hexutil.Encode(packed.GasFees[:]))
			fmt.Fprintf(out, "paymasterAndData:   %s\n", hexutil.Encode(packed.PaymasterAndData))
			fmt.Fprintf(out, "maxCost (ETH):      %s\n", gas.FormatEther(gas.MaxCost(&op)))
			return nil
		},
	}
)

func init() {
	hashCmd.Flags().StringVarP(&hashFile, "file", "f", "", "JSON user operation, - for stdin")
	hashCmd.Flags().Int64Var(&hashChainID, "chain-id", 11155111, "chain id the operation targets")
	hashCmd.Flags().StringVar(&hashEntryPoint, "entrypoint", "", "EntryPoint address (default v0.7)")
	rootCmd.AddCommand(hashCmd)
}
