package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"folio.org/internal/migrate"
	"folio.org/internal/obs"
	"folio.org/internal/store/pg"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect the embedded schema migrations",
	}

	run := func(name string, fn func(cmd *cobra.Command, mgr *migrate.Manager) error) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: name + " schema migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				store, err := opts.openStore()
				if err != nil {
					return err
				}
				defer store.Close()
				mgr, err := migrate.NewManager(store.DB(), pg.Migrations(), pg.Seeds())
				if err != nil {
					return err
				}
				if err := fn(cmd, mgr); err != nil {
					return fmt.Errorf("migrate %s: %w", name, err)
				}
				l := obs.Component("folioctl")
				l.Info().Str("command", "migrate "+name).Msg("done")
				return nil
			},
		}
	}

	up := run("up", func(cmd *cobra.Command, mgr *migrate.Manager) error {
		ctx, cancel := opts.context(cmd.Context())
		defer cancel()
		return mgr.Up(ctx)
	})
	up.Short = "Apply pending migrations"

	down := run("down", func(cmd *cobra.Command, mgr *migrate.Manager) error {
		ctx, cancel := opts.context(cmd.Context())
		defer cancel()
		return mgr.Down(ctx)
	})
	down.Short = "Roll back the latest migration"

	seed := run("seed", func(cmd *cobra.Command, mgr *migrate.Manager) error {
		ctx, cancel := opts.context(cmd.Context())
		defer cancel()
		return mgr.Seed(ctx)
	})
	seed.Short = "Load demo documents"

	status := run("status", func(cmd *cobra.Command, mgr *migrate.Manager) error {
		ctx, cancel := opts.context(cmd.Context())
		defer cancel()
		history, err := mgr.Status(ctx)
		if err != nil {
			return err
		}
		pending, err := mgr.Pending(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, item := range history {
			fmt.Fprintln(out, "applied", item)
		}
		for _, item := range pending {
			fmt.Fprintln(out, "pending", item)
		}
		return nil
	})
	status.Short = "List applied and pending migrations"

	cmd.AddCommand(up, down, seed, status)
	return cmd
}
