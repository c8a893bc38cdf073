package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/aa-sdk/storage/schema"
)

var (
	historyPending bool

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List user operations recorded in the local journal",
		Long: `List the user operations this machine sent from the configured account,
newest first. Requires journal_path in the config file. Entries without a
receipt can be refreshed with "status <userOpHash>".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.journal == nil {
				return fmt.Errorf("journal_path is not configured")
			}

			sender, err := rt.account.Address(ctx)
			if err != nil {
				return err
			}
			list := rt.journal.List
			if historyPending {
				list = rt.journal.Pending
			}
			records, err := list(sender)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SUBMITTED\tNONCE\tUSEROPHASH\tSTATUS\tTXHASH")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					time.Unix(rec.SubmittedAt, 0).UTC().Format(time.RFC3339),
					rec.Nonce, rec.UserOpHash, recordStatus(rec), rec.TxHash)
			}
			return w.Flush()
		},
	}
)

func recordStatus(rec *schema.UserOpRecord) string {
	switch {
	case rec.Success == nil:
		return "pending"
	case *rec.Success:
		return "success"
	default:
		return "reverted"
	}
}

func init() {
	historyCmd.Flags().BoolVar(&historyPending, "pending", false, "only operations without a receipt")
	rootCmd.AddCommand(historyCmd)
}
