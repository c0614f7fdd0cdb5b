package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"folio.org/internal/config"
	"folio.org/internal/obs"
	"folio.org/internal/store/pg"
)

type rootOptions struct {
	cfg     config.Config
	dsn     string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "folioctl",
		Short:        "Administer the folio document workflow service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.cfg = cfg
			if opts.dsn == "" {
				opts.dsn = cfg.PostgresDSN
			}
			obs.Configure(cmd.ErrOrStderr(), cfg.LogLevel, true)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (defaults to FOLIO_PG_DSN)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "deadline for database work")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newTokenCmd(opts),
		newReplayCmd(opts),
	)
	return cmd
}

func (o *rootOptions) openStore() (*pg.Store, error) {
	if o.dsn == "" {
		return nil, errors.New("missing DSN: provide --dsn or FOLIO_PG_DSN")
	}
	return pg.Open(o.dsn)
}

func (o *rootOptions) context(parent context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, o.timeout)
}
