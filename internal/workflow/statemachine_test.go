package workflow

import (
	"errors"
	"testing"
)

func TestValidEdgeTable(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusUnderReview, true},
		{StatusPending, StatusApproved, false},
		{StatusUnderReview, StatusApproved, true},
		{StatusUnderReview, StatusPublished, true},
		{StatusUnderReview, StatusNeedsRevision, true},
		{StatusUnderReview, StatusRejected, true},
		{StatusUnderReview, StatusCuration, false},
		{StatusNeedsRevision, StatusPending, true},
		{StatusNeedsRevision, StatusUnderReview, true},
		{StatusApproved, StatusCuration, true},
		{StatusApproved, StatusPublished, false},
		{StatusCuration, StatusReadyForPublication, true},
		{StatusReadyForPublication, StatusPublished, true},
		{StatusPublished, StatusRejected, false},
		{StatusRejected, StatusPending, false},
		{StatusPending, StatusPending, false},
	}
	for _, tc := range cases {
		if got := ValidEdge(tc.from, tc.to); got != tc.want {
			t.Fatalf("ValidEdge(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestEveryNonTerminalStateCanBeRejected(t *testing.T) {
	for _, s := range Statuses {
		got := ValidEdge(s, StatusRejected)
		if s.Terminal() && got {
			t.Fatalf("terminal %s must have no outgoing edges", s)
		}
		if !s.Terminal() && !got {
			t.Fatalf("%s -> rejected should be allowed", s)
		}
	}
}

func TestTerminalStatesHaveNoTargets(t *testing.T) {
	if got := Targets(StatusPublished); len(got) != 0 {
		t.Fatalf("published has targets %v", got)
	}
	if got := Targets(StatusRejected); len(got) != 0 {
		t.Fatalf("rejected has targets %v", got)
	}
	if got := Targets(StatusApproved); len(got) != 2 {
		t.Fatalf("approved targets = %v, want curation and rejected", got)
	}
}

func TestValidateEdgeError(t *testing.T) {
	err := ValidateEdge(StatusPending, StatusPublished)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if KindOf(err) != KindInvalidTransition {
		t.Fatalf("unexpected kind %s", KindOf(err))
	}
}

func TestReplay(t *testing.T) {
	history := []TransitionRecord{
		{FromStatus: StatusPending, ToStatus: StatusUnderReview},
		{FromStatus: StatusUnderReview, ToStatus: StatusNeedsRevision},
		{FromStatus: StatusNeedsRevision, ToStatus: StatusPending},
		{FromStatus: StatusPending, ToStatus: StatusUnderReview},
		{FromStatus: StatusUnderReview, ToStatus: StatusApproved},
		{FromStatus: StatusApproved, ToStatus: StatusCuration},
	}
	got, err := Replay(history)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if got != StatusCuration {
		t.Fatalf("Replay = %s, want curation", got)
	}

	if got, err := Replay(nil); err != nil || got != StatusPending {
		t.Fatalf("empty replay = %s, %v", got, err)
	}

	withCreation := append([]TransitionRecord{{ToStatus: StatusPending}}, history[:1]...)
	if got, err := Replay(withCreation); err != nil || got != StatusUnderReview {
		t.Fatalf("replay with creation entry = %s, %v", got, err)
	}
}

func TestReplayDetectsBrokenLedger(t *testing.T) {
	gap := []TransitionRecord{
		{FromStatus: StatusPending, ToStatus: StatusUnderReview},
		{FromStatus: StatusApproved, ToStatus: StatusCuration},
	}
	if _, err := Replay(gap); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for gap, got %v", err)
	}

	missingFrom := []TransitionRecord{
		{FromStatus: StatusPending, ToStatus: StatusUnderReview},
		{ToStatus: StatusApproved},
	}
	if _, err := Replay(missingFrom); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for record without from status, got %v", err)
	}

	bad := []TransitionRecord{
		{FromStatus: StatusPending, ToStatus: StatusPublished},
	}
	if _, err := Replay(bad); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for bad edge, got %v", err)
	}
}
