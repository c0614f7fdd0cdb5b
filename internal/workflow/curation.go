package workflow

import (
	"context"
	"fmt"
	"strings"
)

const maxNoteLength = 4000

// AddCurationNote appends an unresolved note. The document must exist; its
// status is not constrained.
func (e *Engine) AddCurationNote(ctx context.Context, actor Actor, documentID string, noteType NoteType, text string) (CurationNote, error) {
	if !actor.Role.Staff() {
		return CurationNote{}, fmt.Errorf("%w: only library staff may add curation notes", ErrUnauthorized)
	}
	documentID = strings.TrimSpace(documentID)
	text = strings.TrimSpace(text)
	if documentID == "" {
		return CurationNote{}, fmt.Errorf("%w: document_id is required", ErrValidation)
	}
	if _, ok := ParseNoteType(string(noteType)); !ok {
		return CurationNote{}, fmt.Errorf("%w: unknown note type %q", ErrValidation, noteType)
	}
	if text == "" {
		return CurationNote{}, fmt.Errorf("%w: note text is required", ErrValidation)
	}
	if len(text) > maxNoteLength {
		return CurationNote{}, fmt.Errorf("%w: note text exceeds %d bytes", ErrValidation, maxNoteLength)
	}
	return e.store.AddCurationNote(ctx, CurationNote{
		ID:         newID(),
		DocumentID: documentID,
		CuratorID:  actor.ID,
		NoteType:   noteType,
		Text:       text,
		CreatedAt:  e.now(),
	})
}

// ResolveCurationNote marks a note resolved. Resolving twice is a no-op.
func (e *Engine) ResolveCurationNote(ctx context.Context, actor Actor, noteID string) error {
	if !actor.Role.Staff() {
		return fmt.Errorf("%w: only library staff may resolve curation notes", ErrUnauthorized)
	}
	noteID = strings.TrimSpace(noteID)
	if noteID == "" {
		return fmt.Errorf("%w: note id is required", ErrValidation)
	}
	return e.store.ResolveCurationNote(ctx, noteID)
}

// ListCurationNotes returns the notes of a document in creation order.
func (e *Engine) ListCurationNotes(ctx context.Context, actor Actor, documentID string, unresolvedOnly bool) ([]CurationNote, error) {
	if _, err := e.GetDocument(ctx, actor, documentID); err != nil {
		return nil, err
	}
	return e.store.ListCurationNotes(ctx, strings.TrimSpace(documentID), unresolvedOnly)
}
