package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"folio.org/internal/auth"
	"folio.org/internal/workflow"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		actorID string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with FOLIO_AUTH_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.cfg.AuthSecret == "" {
				return errors.New("FOLIO_AUTH_SECRET is not set")
			}
			r, ok := workflow.ParseRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			if strings.TrimSpace(actorID) == "" {
				return errors.New("--actor is required")
			}
			signer, err := auth.NewSigner(opts.cfg.AuthSecret)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = opts.cfg.TokenTTL
			}
			token, expiresAt, err := signer.GenerateToken(workflow.Actor{ID: strings.TrimSpace(actorID), Role: r}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id placed in the subject claim")
	cmd.Flags().StringVar(&role, "role", string(workflow.RoleStudent), "student, faculty, librarian or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to FOLIO_TOKEN_TTL)")
	return cmd
}
