package workflow

import "context"

// DecideFunc inspects a snapshot taken inside the store transaction and
// returns the plan to apply. Returning an error aborts with no writes.
type DecideFunc func(Snapshot) (Plan, error)

// Store is the persistence gateway. Implementations wrap infrastructure
// failures in ErrPersistence and report missing rows as ErrNotFound.
type Store interface {
	CreateDocument(ctx context.Context, doc Document) (Document, error)
	GetDocument(ctx context.Context, id string) (Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error)
	History(ctx context.Context, documentID string) ([]TransitionRecord, error)

	// Transition runs decide and applies its plan as one atomic unit. The
	// status write is a compare-and-set on Plan.ExpectedStatus; losing the
	// race yields ErrConflict.
	Transition(ctx context.Context, documentID string, decide DecideFunc) (TransitionRecord, error)

	CreateRevisionRequest(ctx context.Context, req RevisionRequest) (RevisionRequest, error)
	GetRevisionRequest(ctx context.Context, id string) (RevisionRequest, error)
	ListRevisionRequests(ctx context.Context, documentID string) ([]RevisionRequest, error)
	// StartRevisionRequest moves a pending request to in_progress.
	StartRevisionRequest(ctx context.Context, id string) (RevisionRequest, error)

	AddCurationNote(ctx context.Context, note CurationNote) (CurationNote, error)
	ResolveCurationNote(ctx context.Context, id string) error
	ListCurationNotes(ctx context.Context, documentID string, unresolvedOnly bool) ([]CurationNote, error)

	CountByStatus(ctx context.Context, scope Scope) (map[Status]int, error)
}
