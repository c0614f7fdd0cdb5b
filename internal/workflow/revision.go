package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RevisionInput describes a new revision request.
type RevisionInput struct {
	DocumentID           string
	RequestedBy          string
	RequestedFrom        string
	Reason               string
	SpecificRequirements string
	Deadline             *time.Time
}

// CreateRevisionRequest records what the author must change. Callers invoke it
// right after a successful under_review -> needs_revision transition; the
// document status is not re-checked here. RequestedFrom defaults to the owner.
func (e *Engine) CreateRevisionRequest(ctx context.Context, in RevisionInput) (RevisionRequest, error) {
	in.DocumentID = strings.TrimSpace(in.DocumentID)
	in.RequestedBy = strings.TrimSpace(in.RequestedBy)
	in.RequestedFrom = strings.TrimSpace(in.RequestedFrom)
	in.Reason = strings.TrimSpace(in.Reason)
	if in.DocumentID == "" || in.RequestedBy == "" {
		return RevisionRequest{}, fmt.Errorf("%w: document_id and requested_by are required", ErrValidation)
	}
	if in.Reason == "" {
		return RevisionRequest{}, fmt.Errorf("%w: reason is required", ErrValidation)
	}
	if in.RequestedFrom == "" {
		doc, err := e.store.GetDocument(ctx, in.DocumentID)
		if err != nil {
			return RevisionRequest{}, err
		}
		in.RequestedFrom = doc.OwnerID
	}
	now := e.now()
	if err := e.CheckRevisionDeadline(in.Deadline); err != nil {
		return RevisionRequest{}, err
	}
	if in.Deadline != nil {
		d := in.Deadline.UTC()
		in.Deadline = &d
	}
	req, err := e.store.CreateRevisionRequest(ctx, RevisionRequest{
		ID:                   newID(),
		DocumentID:           in.DocumentID,
		RequestedBy:          in.RequestedBy,
		RequestedFrom:        in.RequestedFrom,
		Reason:               in.Reason,
		SpecificRequirements: strings.TrimSpace(in.SpecificRequirements),
		Deadline:             in.Deadline,
		Status:               RevisionPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	})
	if err != nil {
		return RevisionRequest{}, err
	}
	return e.present(req), nil
}

// CheckRevisionDeadline rejects a deadline that is not in the future. Callers
// run it before the needs_revision transition so a bad deadline never leaves
// a document awaiting revision without a request.
func (e *Engine) CheckRevisionDeadline(deadline *time.Time) error {
	if deadline != nil && !deadline.After(e.now()) {
		return fmt.Errorf("%w: deadline must be in the future", ErrValidation)
	}
	return nil
}

// FileRevisionRequest records a request for a document already in
// needs_revision that has none open, e.g. when creation after the transition
// failed. Only actors who may send the document to needs_revision may file.
func (e *Engine) FileRevisionRequest(ctx context.Context, actor Actor, in RevisionInput) (RevisionRequest, error) {
	doc, err := e.GetDocument(ctx, actor, in.DocumentID)
	if err != nil {
		return RevisionRequest{}, err
	}
	reviewed := doc
	reviewed.Status = StatusUnderReview
	if err := Authorize(actor, reviewed, StatusNeedsRevision).Err(); err != nil {
		return RevisionRequest{}, err
	}
	if doc.Status != StatusNeedsRevision {
		return RevisionRequest{}, fmt.Errorf("%w: document %s is %s, not %s",
			ErrInvalidTransition, doc.ID, doc.Status, StatusNeedsRevision)
	}
	existing, err := e.store.ListRevisionRequests(ctx, doc.ID)
	if err != nil {
		return RevisionRequest{}, err
	}
	for _, r := range existing {
		if r.Open() {
			return RevisionRequest{}, fmt.Errorf("%w: revision request %s is still open", ErrConflict, r.ID)
		}
	}
	in.DocumentID = doc.ID
	in.RequestedBy = actor.ID
	in.RequestedFrom = doc.OwnerID
	return e.CreateRevisionRequest(ctx, in)
}

// StartRevision marks a pending request in_progress. Only the author the
// request was addressed to may start it.
func (e *Engine) StartRevision(ctx context.Context, actor Actor, requestID string) (RevisionRequest, error) {
	req, err := e.store.GetRevisionRequest(ctx, strings.TrimSpace(requestID))
	if err != nil {
		return RevisionRequest{}, err
	}
	if req.RequestedFrom != actor.ID {
		return RevisionRequest{}, fmt.Errorf("%w: revision request %s is addressed to another author", ErrUnauthorized, req.ID)
	}
	if req.Status != RevisionPending {
		return RevisionRequest{}, fmt.Errorf("%w: revision request %s is %s", ErrInvalidTransition, req.ID, req.Status)
	}
	req, err = e.store.StartRevisionRequest(ctx, req.ID)
	if err != nil {
		return RevisionRequest{}, err
	}
	return e.present(req), nil
}

// ListRevisionRequests returns a document's requests with overdue computed
// against the current time.
func (e *Engine) ListRevisionRequests(ctx context.Context, actor Actor, documentID string) ([]RevisionRequest, error) {
	if _, err := e.GetDocument(ctx, actor, documentID); err != nil {
		return nil, err
	}
	reqs, err := e.store.ListRevisionRequests(ctx, strings.TrimSpace(documentID))
	if err != nil {
		return nil, err
	}
	for i := range reqs {
		reqs[i] = e.present(reqs[i])
	}
	return reqs, nil
}

func (e *Engine) present(req RevisionRequest) RevisionRequest {
	req.Status = req.EffectiveStatus(e.now())
	return req
}
