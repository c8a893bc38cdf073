package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/aa-sdk/core/chainio/signer"
)

var (
	authDomain    string
	authTimestamp int64
	authKey       string

	authSignCmd = &cobra.Command{
		Use:   "auth-sign",
		Short: "Sign the account backend login message",
		Long: `Sign lowercase("domain:timestamp:publicKey") with EIP-191 and print the
JSON payload expected by the account backend login endpoint`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var s *signer.PrivateKeySigner
			var err error
			if authKey != "" {
				s, err = signer.FromPrivateKeyHex(authKey)
			} else {
				s, err = ownerFromConfig()
			}
			if err != nil {
				return err
			}

			ts := authTimestamp
			if ts == 0 {
				ts = time.Now().Unix()
			}
			sig, err := signer.SignAuthMessage(s, authDomain, ts, s.PublicKeyHex())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				*signer.AuthSignature
				PublicKey string `json:"publicKey"`
				Address   string `json:"address"`
			}{sig, s.PublicKeyHex(), s.Address().Hex()})
		},
	}
)

func ownerFromConfig() (*signer.PrivateKeySigner, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cfg.Owner, nil
}

func init() {
	authSignCmd.Flags().StringVar(&authDomain, "domain", "", "login domain")
	authSignCmd.Flags().Int64Var(&authTimestamp, "timestamp", 0, "unix seconds, defaults to now")
	authSignCmd.Flags().StringVar(&authKey, "key", "", "private key hex, defaults to the configured owner")
	_ = authSignCmd.MarkFlagRequired("domain")
	rootCmd.AddCommand(authSignCmd)
}
