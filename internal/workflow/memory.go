package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety. A single
// mutex serializes writers, which gives every Transition the isolation the
// PostgreSQL store gets from row locks.
type InMemory struct {
	mu        sync.RWMutex
	docs      map[string]*Document
	order     []string // document ids in creation order
	ledger    map[string][]TransitionRecord
	revisions map[string]*RevisionRequest
	revOrder  []string
	notes     map[string]*CurationNote
	noteOrder []string
	now       func() time.Time
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		docs:      make(map[string]*Document),
		ledger:    make(map[string][]TransitionRecord),
		revisions: make(map[string]*RevisionRequest),
		notes:     make(map[string]*CurationNote),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemory) CreateDocument(ctx context.Context, doc Document) (Document, error) {
	if doc.ID == "" {
		doc.ID = newID()
	}
	if doc.Status == "" {
		doc.Status = StatusPending
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; ok {
		return Document{}, fmt.Errorf("%w: document %s already exists", ErrConflict, doc.ID)
	}
	d := doc
	s.docs[doc.ID] = &d
	s.order = append(s.order, doc.ID)
	return copyDocument(&d), nil
}

func (s *InMemory) GetDocument(ctx context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return copyDocument(doc), nil
}

func (s *InMemory) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Document
	skipped := 0
	for _, id := range s.order {
		doc := s.docs[id]
		if !filter.Scope.Allows(*doc) {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		res = append(res, copyDocument(doc))
		if filter.Limit > 0 && len(res) >= filter.Limit {
			break
		}
	}
	return res, nil
}

func (s *InMemory) History(ctx context.Context, documentID string) ([]TransitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.docs[documentID]; !ok {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, documentID)
	}
	out := make([]TransitionRecord, len(s.ledger[documentID]))
	copy(out, s.ledger[documentID])
	return out, nil
}

func (s *InMemory) Transition(ctx context.Context, documentID string, decide DecideFunc) (TransitionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[documentID]
	if !ok {
		return TransitionRecord{}, fmt.Errorf("%w: document %s", ErrNotFound, documentID)
	}
	unresolved := 0
	for _, n := range s.notes {
		if n.DocumentID == documentID && !n.Resolved {
			unresolved++
		}
	}
	plan, err := decide(Snapshot{
		Document:        copyDocument(doc),
		UnresolvedNotes: unresolved,
		NextSequence:    uint64(len(s.ledger[documentID])) + 1,
	})
	if err != nil {
		return TransitionRecord{}, err
	}
	if doc.Status != plan.ExpectedStatus {
		return TransitionRecord{}, fmt.Errorf("%w: document %s changed concurrently", ErrConflict, documentID)
	}

	// Apply mutation
	rec := plan.Record
	doc.Status = rec.ToStatus
	doc.UpdatedAt = rec.Timestamp
	if plan.PublishedAt != nil {
		t := *plan.PublishedAt
		doc.PublishedAt = &t
	}
	s.ledger[documentID] = append(s.ledger[documentID], rec)
	if plan.CompleteRevisions {
		for _, r := range s.revisions {
			if r.DocumentID == documentID && r.Open() {
				t := rec.Timestamp
				r.Status = RevisionCompleted
				r.UpdatedAt = t
				r.CompletedAt = &t
			}
		}
	}
	return rec, nil
}

func (s *InMemory) CreateRevisionRequest(ctx context.Context, req RevisionRequest) (RevisionRequest, error) {
	if req.ID == "" {
		req.ID = newID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[req.DocumentID]; !ok {
		return RevisionRequest{}, fmt.Errorf("%w: document %s", ErrNotFound, req.DocumentID)
	}
	r := req
	s.revisions[r.ID] = &r
	s.revOrder = append(s.revOrder, r.ID)
	return copyRevision(&r), nil
}

func (s *InMemory) GetRevisionRequest(ctx context.Context, id string) (RevisionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.revisions[id]
	if !ok {
		return RevisionRequest{}, fmt.Errorf("%w: revision request %s", ErrNotFound, id)
	}
	return copyRevision(r), nil
}

func (s *InMemory) ListRevisionRequests(ctx context.Context, documentID string) ([]RevisionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []RevisionRequest
	for _, id := range s.revOrder {
		if r := s.revisions[id]; r.DocumentID == documentID {
			res = append(res, copyRevision(r))
		}
	}
	return res, nil
}

func (s *InMemory) StartRevisionRequest(ctx context.Context, id string) (RevisionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.revisions[id]
	if !ok {
		return RevisionRequest{}, fmt.Errorf("%w: revision request %s", ErrNotFound, id)
	}
	if r.Status != RevisionPending {
		return RevisionRequest{}, fmt.Errorf("%w: revision request %s is %s", ErrConflict, id, r.Status)
	}
	r.Status = RevisionInProgress
	r.UpdatedAt = s.now()
	return copyRevision(r), nil
}

func (s *InMemory) AddCurationNote(ctx context.Context, note CurationNote) (CurationNote, error) {
	if note.ID == "" {
		note.ID = newID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[note.DocumentID]; !ok {
		return CurationNote{}, fmt.Errorf("%w: document %s", ErrNotFound, note.DocumentID)
	}
	n := note
	n.Resolved = false
	n.ResolvedAt = nil
	s.notes[n.ID] = &n
	s.noteOrder = append(s.noteOrder, n.ID)
	return copyNote(&n), nil
}

func (s *InMemory) ResolveCurationNote(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return fmt.Errorf("%w: curation note %s", ErrNotFound, id)
	}
	if n.Resolved {
		return nil
	}
	t := s.now()
	n.Resolved = true
	n.ResolvedAt = &t
	return nil
}

func (s *InMemory) ListCurationNotes(ctx context.Context, documentID string, unresolvedOnly bool) ([]CurationNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []CurationNote
	for _, id := range s.noteOrder {
		n := s.notes[id]
		if n.DocumentID != documentID || (unresolvedOnly && n.Resolved) {
			continue
		}
		res = append(res, copyNote(n))
	}
	return res, nil
}

func (s *InMemory) CountByStatus(ctx context.Context, scope Scope) (map[Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[Status]int)
	for _, doc := range s.docs {
		if scope.Allows(*doc) {
			counts[doc.Status]++
		}
	}
	return counts, nil
}

func copyDocument(d *Document) Document {
	out := *d
	if d.PublishedAt != nil {
		t := *d.PublishedAt
		out.PublishedAt = &t
	}
	return out
}

func copyRevision(r *RevisionRequest) RevisionRequest {
	out := *r
	if r.Deadline != nil {
		t := *r.Deadline
		out.Deadline = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

func copyNote(n *CurationNote) CurationNote {
	out := *n
	if n.ResolvedAt != nil {
		t := *n.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}
