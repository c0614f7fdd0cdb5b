package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Event is handed to the notifier after a transition commits.
type Event struct {
	Record    TransitionRecord `json:"record"`
	OwnerID   string           `json:"owner_id"`
	AdviserID string           `json:"adviser_id"`
	ActorRole Role             `json:"actor_role"`
}

// Notifier receives committed transitions. Implementations must not block;
// failures are logged and never affect the transition outcome.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// Notifiers fans one event out to several sinks. Every sink is called even
// when an earlier one fails.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, evt Event) error {
	var errs []error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Observer is told the outcome of every transition attempt.
type Observer func(from, to Status, outcome string)

// Engine is the single entry point for workflow mutations.
type Engine struct {
	store    Store
	notifier Notifier
	observe  Observer
	log      zerolog.Logger
	now      func() time.Time
}

// Option configures Engine.
type Option func(*Engine)

// WithNotifier installs a post-commit notification sink.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithObserver installs a transition outcome hook, used for metrics.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observe = o }
}

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an Engine over store.
func NewEngine(store Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("workflow store is required")
	}
	e := &Engine{
		store: store,
		log:   zerolog.Nop(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// TransitionRequest carries the inputs of RequestTransition.
type TransitionRequest struct {
	DocumentID string
	Target     Status
	Actor      Actor
	// ExpectedStatus is the optimistic concurrency token: the status the
	// caller last observed.
	ExpectedStatus Status
	Reason         string
	Comments       string
}

// RequestTransition performs one atomic status change and appends its record.
// Any error leaves the document and its ledger untouched.
func (e *Engine) RequestTransition(ctx context.Context, req TransitionRequest) (TransitionRecord, error) {
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	req.Reason = strings.TrimSpace(req.Reason)
	req.Comments = strings.TrimSpace(req.Comments)

	var (
		from  Status
		owner string
		adv   string
	)
	rec, err := func() (TransitionRecord, error) {
		if req.DocumentID == "" {
			return TransitionRecord{}, fmt.Errorf("%w: document_id is required", ErrValidation)
		}
		target, ok := ParseStatus(string(req.Target))
		if !ok {
			return TransitionRecord{}, fmt.Errorf("%w: unknown target status %q", ErrInvalidTransition, req.Target)
		}
		expected, ok := ParseStatus(string(req.ExpectedStatus))
		if !ok {
			return TransitionRecord{}, fmt.Errorf("%w: expected_status is required", ErrValidation)
		}
		req.Target, req.ExpectedStatus = target, expected
		return e.store.Transition(ctx, req.DocumentID, func(snap Snapshot) (Plan, error) {
			doc := snap.Document
			from, owner, adv = doc.Status, doc.OwnerID, doc.AdviserID
			return e.decide(req, snap)
		})
	}()

	outcome := "ok"
	if err != nil {
		outcome = KindOf(err)
	}
	if e.observe != nil {
		e.observe(from, req.Target, outcome)
	}
	if err != nil {
		e.log.Debug().Err(err).
			Str("document_id", req.DocumentID).
			Str("actor_id", req.Actor.ID).
			Str("target", string(req.Target)).
			Str("kind", outcome).
			Msg("transition refused")
		return TransitionRecord{}, err
	}

	e.log.Info().
		Str("document_id", rec.DocumentID).
		Str("from", string(rec.FromStatus)).
		Str("to", string(rec.ToStatus)).
		Str("actor_id", rec.ActorID).
		Uint64("sequence", rec.Sequence).
		Bool("skips_curation", rec.FromStatus == StatusUnderReview && rec.ToStatus == StatusPublished).
		Msg("transition committed")
	e.notify(ctx, Event{Record: rec, OwnerID: owner, AdviserID: adv, ActorRole: req.Actor.Role})
	return rec, nil
}

// decide runs the ordered checks against a snapshot read inside the store
// transaction: concurrency token, authorization, graph edge, then gates.
func (e *Engine) decide(req TransitionRequest, snap Snapshot) (Plan, error) {
	doc := snap.Document
	if doc.Status != req.ExpectedStatus {
		return Plan{}, fmt.Errorf("%w: document %s is %s, caller expected %s",
			ErrConflict, doc.ID, doc.Status, req.ExpectedStatus)
	}
	if err := Authorize(req.Actor, doc, req.Target).Err(); err != nil {
		return Plan{}, err
	}
	if err := ValidateEdge(doc.Status, req.Target); err != nil {
		return Plan{}, err
	}
	if req.Target == StatusNeedsRevision && req.Reason == "" {
		return Plan{}, fmt.Errorf("%w: reason is required when requesting revision", ErrValidation)
	}
	if req.Target == StatusReadyForPublication && snap.UnresolvedNotes > 0 {
		return Plan{}, fmt.Errorf("%w: unresolved curation notes (%d)", ErrValidation, snap.UnresolvedNotes)
	}

	now := e.now()
	plan := Plan{
		ExpectedStatus: doc.Status,
		Record: TransitionRecord{
			ID:         newID(),
			DocumentID: doc.ID,
			Sequence:   snap.NextSequence,
			FromStatus: doc.Status,
			ToStatus:   req.Target,
			ActorID:    req.Actor.ID,
			Reason:     req.Reason,
			Comments:   req.Comments,
			Timestamp:  now,
		},
		CompleteRevisions: req.Target == StatusUnderReview,
	}
	if req.Target == StatusPublished {
		plan.PublishedAt = &now
	}
	return plan, nil
}

func (e *Engine) notify(ctx context.Context, evt Event) {
	if e.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Str("document_id", evt.Record.DocumentID).Msg("notifier panicked")
		}
	}()
	if err := e.notifier.Notify(ctx, evt); err != nil {
		e.log.Warn().Err(err).Str("document_id", evt.Record.DocumentID).Msg("notify failed")
	}
}

// RegisterDocument creates a pending document. It is the seam used by the
// external submission path; staff may register on behalf of a student.
func (e *Engine) RegisterDocument(ctx context.Context, actor Actor, ownerID, adviserID, title string) (Document, error) {
	ownerID = strings.TrimSpace(ownerID)
	adviserID = strings.TrimSpace(adviserID)
	if ownerID == "" {
		ownerID = actor.ID
	}
	if ownerID == "" || adviserID == "" {
		return Document{}, fmt.Errorf("%w: owner_id and adviser_id are required", ErrValidation)
	}
	if !actor.Role.Staff() && actor.ID != ownerID {
		return Document{}, fmt.Errorf("%w: only the author or library staff may register a document", ErrUnauthorized)
	}
	now := e.now()
	return e.store.CreateDocument(ctx, Document{
		ID:        newID(),
		Title:     strings.TrimSpace(title),
		Status:    StatusPending,
		OwnerID:   ownerID,
		AdviserID: adviserID,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// GetDocument returns a document the actor may see.
func (e *Engine) GetDocument(ctx context.Context, actor Actor, id string) (Document, error) {
	if err := checkActor(actor); err != nil {
		return Document{}, err
	}
	doc, err := e.store.GetDocument(ctx, strings.TrimSpace(id))
	if err != nil {
		return Document{}, err
	}
	if !ScopeFor(actor).Allows(doc) {
		return Document{}, fmt.Errorf("%w: document %s is outside your scope", ErrUnauthorized, doc.ID)
	}
	return doc, nil
}

// GetHistory returns the ordered ledger for a document.
func (e *Engine) GetHistory(ctx context.Context, actor Actor, documentID string) ([]TransitionRecord, error) {
	if _, err := e.GetDocument(ctx, actor, documentID); err != nil {
		return nil, err
	}
	return e.store.History(ctx, strings.TrimSpace(documentID))
}

// ListDocuments pages through the documents visible to actor.
func (e *Engine) ListDocuments(ctx context.Context, actor Actor, status Status, limit, offset int) ([]Document, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if status != "" {
		if _, ok := ParseStatus(string(status)); !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
		}
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return e.store.ListDocuments(ctx, DocumentFilter{
		Scope:  ScopeFor(actor),
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
}

// Verify replays a document's ledger and checks it against the cached status.
func (e *Engine) Verify(ctx context.Context, documentID string) (Status, error) {
	doc, err := e.store.GetDocument(ctx, documentID)
	if err != nil {
		return "", err
	}
	history, err := e.store.History(ctx, documentID)
	if err != nil {
		return "", err
	}
	replayed, err := Replay(history)
	if err != nil {
		return replayed, err
	}
	if replayed != doc.Status {
		return replayed, fmt.Errorf("%w: ledger replays to %s but document is %s",
			ErrConflict, replayed, doc.Status)
	}
	return replayed, nil
}

func checkActor(actor Actor) error {
	if actor.ID == "" {
		return fmt.Errorf("%w: anonymous actor", ErrUnauthorized)
	}
	if _, ok := ParseRole(string(actor.Role)); !ok {
		return fmt.Errorf("%w: unknown role %q", ErrUnauthorized, actor.Role)
	}
	return nil
}
