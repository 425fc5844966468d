package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zodiacbot/zodiacbot/internal/config"
	"github.com/zodiacbot/zodiacbot/internal/oracle"
	"github.com/zodiacbot/zodiacbot/pkg/httpkit"
)

// reconcileCmd replays the checkout return leg for a payment whose user
// never came back to the success page.
func reconcileCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <payment-id>",
		Short: "Activate the subscription behind a paid checkout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, httpkit.NewLogger(cfg.Log.Verbose))
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); err == nil {
					err = cerr
				}
			}()

			sub, err := a.billing.Reconcile(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", args[0], err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sub)
		},
	}
}

func cardsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "cards",
		Short: "Print the card meanings catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(oracle.Meanings)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CARD\tUPRIGHT\tREVERSED")
			for _, m := range oracle.Meanings {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Name, m.Positive, m.Negative)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
