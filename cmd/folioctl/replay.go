package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"folio.org/internal/workflow"
)

func newReplayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <document-id>",
		Short: "Print a document's ledger and check it against the stored status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			ctx, cancel := opts.context(cmd.Context())
			defer cancel()
			return replay(ctx, cmd, store, args[0])
		},
	}
}

func replay(ctx context.Context, cmd *cobra.Command, store workflow.Store, documentID string) error {
	history, err := store.History(ctx, documentID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tFROM\tTO\tACTOR\tAT\tREASON")
	for _, rec := range history {
		from := string(rec.FromStatus)
		if from == "" {
			from = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", rec.Sequence, from, rec.ToStatus,
			rec.ActorID, rec.Timestamp.Format(time.RFC3339), rec.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	engine, err := workflow.NewEngine(store)
	if err != nil {
		return err
	}
	status, err := engine.Verify(ctx, documentID)
	if err != nil {
		return fmt.Errorf("ledger inconsistent: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "consistent: %s\n", status)
	return nil
}
