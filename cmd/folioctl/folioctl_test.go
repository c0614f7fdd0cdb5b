package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"folio.org/internal/auth"
	"folio.org/internal/workflow"
)

const ctlSecret = "folioctl-test-secret-0123456789"

func TestTokenCommandMintsVerifiableToken(t *testing.T) {
	t.Setenv("FOLIO_AUTH_SECRET", ctlSecret)
	t.Setenv("FOLIO_CONFIG", "")

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"token", "--actor", "L1", "--role", "librarian", "--ttl", "5m"})
	if err := root.Execute(); err != nil {
		t.Fatalf("token: %v", err)
	}

	signer, err := auth.NewSigner(ctlSecret)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := signer.ParseAndValidate(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("minted token does not validate: %v", err)
	}
	if got := claims.Actor(); got.ID != "L1" || got.Role != workflow.RoleLibrarian {
		t.Fatalf("unexpected actor %+v", got)
	}
	if !strings.Contains(errOut.String(), "expires") {
		t.Fatalf("expected expiry on stderr, got %q", errOut.String())
	}
}

func TestTokenCommandRejectsUnknownRole(t *testing.T) {
	t.Setenv("FOLIO_AUTH_SECRET", ctlSecret)
	t.Setenv("FOLIO_CONFIG", "")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"token", "--actor", "X", "--role", "dean"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestMigrateRequiresDSN(t *testing.T) {
	t.Setenv("FOLIO_PG_DSN", "")
	t.Setenv("FOLIO_CONFIG", "")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"migrate", "status"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "missing DSN") {
		t.Fatalf("expected missing DSN error, got %v", err)
	}
}

func TestReplayPrintsLedger(t *testing.T) {
	ctx := context.Background()
	store := workflow.NewInMemory()
	engine, err := workflow.NewEngine(store)
	if err != nil {
		t.Fatal(err)
	}
	adviser := workflow.Actor{ID: "F1", Role: workflow.RoleFaculty}
	doc, err := engine.RegisterDocument(ctx, workflow.Actor{ID: "S1", Role: workflow.RoleStudent}, "", "F1", "Thesis")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.RequestTransition(ctx, workflow.TransitionRequest{
		DocumentID:     doc.ID,
		Target:         workflow.StatusUnderReview,
		Actor:          adviser,
		ExpectedStatus: workflow.StatusPending,
	}); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	if err := replay(ctx, cmd, store, doc.ID); err != nil {
		t.Fatalf("replay: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "under_review") || !strings.Contains(text, "consistent: under_review") {
		t.Fatalf("unexpected output:\n%s", text)
	}
}
