package workflow

import (
	"strings"
	"time"

	"folio.org/internal/ids"
)

// Status is a document workflow state.
type Status string

const (
	StatusPending             Status = "pending"
	StatusUnderReview         Status = "under_review"
	StatusNeedsRevision       Status = "needs_revision"
	StatusApproved            Status = "approved"
	StatusCuration            Status = "curation"
	StatusReadyForPublication Status = "ready_for_publication"
	StatusPublished           Status = "published"
	StatusRejected            Status = "rejected"
)

// Statuses lists every workflow state in pipeline order.
var Statuses = []Status{
	StatusPending,
	StatusUnderReview,
	StatusNeedsRevision,
	StatusApproved,
	StatusCuration,
	StatusReadyForPublication,
	StatusPublished,
	StatusRejected,
}

// ParseStatus normalizes raw input into a known Status.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Statuses {
		if s == known {
			return s, true
		}
	}
	return "", false
}

// Terminal reports whether no edge leaves s.
func (s Status) Terminal() bool {
	return s == StatusPublished || s == StatusRejected
}

// Role is the actor role supplied by the identity provider.
type Role string

const (
	RoleStudent   Role = "student"
	RoleFaculty   Role = "faculty"
	RoleLibrarian Role = "librarian"
	RoleAdmin     Role = "admin"
)

// ParseRole normalizes raw input into a known Role.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch r {
	case RoleStudent, RoleFaculty, RoleLibrarian, RoleAdmin:
		return r, true
	}
	return "", false
}

// Staff reports whether the role sees every document.
func (r Role) Staff() bool { return r == RoleLibrarian || r == RoleAdmin }

// Actor is an authenticated caller. Read-only from the engine's perspective.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Document is one submission. Status is a cache of the newest TransitionRecord.
type Document struct {
	ID          string     `json:"id"`
	Title       string     `json:"title,omitempty"`
	Status      Status     `json:"status"`
	OwnerID     string     `json:"owner_id"`
	AdviserID   string     `json:"adviser_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// TransitionRecord is one immutable ledger row. FromStatus is empty for the initial entry.
type TransitionRecord struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Sequence   uint64    `json:"sequence"` // per-document, starts at 1
	FromStatus Status    `json:"from_status,omitempty"`
	ToStatus   Status    `json:"to_status"`
	ActorID    string    `json:"actor_id"`
	Reason     string    `json:"reason,omitempty"`
	Comments   string    `json:"comments,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// RevisionStatus tracks a revision request.
type RevisionStatus string

const (
	RevisionPending    RevisionStatus = "pending"
	RevisionInProgress RevisionStatus = "in_progress"
	RevisionCompleted  RevisionStatus = "completed"
	RevisionOverdue    RevisionStatus = "overdue"
)

// RevisionRequest asks the author to rework a document sent back from review.
type RevisionRequest struct {
	ID                   string         `json:"id"`
	DocumentID           string         `json:"document_id"`
	RequestedBy          string         `json:"requested_by"`
	RequestedFrom        string         `json:"requested_from"`
	Reason               string         `json:"reason"`
	SpecificRequirements string         `json:"specific_requirements,omitempty"`
	Deadline             *time.Time     `json:"deadline,omitempty"`
	Status               RevisionStatus `json:"status"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
}

// EffectiveStatus reports the stored status, or overdue when an open request
// has passed its deadline.
func (r RevisionRequest) EffectiveStatus(now time.Time) RevisionStatus {
	if r.Open() && r.Deadline != nil && now.After(*r.Deadline) {
		return RevisionOverdue
	}
	return r.Status
}

// Open reports whether the request still awaits the author.
func (r RevisionRequest) Open() bool {
	return r.Status == RevisionPending || r.Status == RevisionInProgress
}

// NoteType classifies a curation note.
type NoteType string

const (
	NoteMetadata      NoteType = "metadata"
	NoteContent       NoteType = "content"
	NoteFormatting    NoteType = "formatting"
	NoteAccessibility NoteType = "accessibility"
	NoteFinalCheck    NoteType = "final_check"
)

// ParseNoteType normalizes raw input into a known NoteType.
func ParseNoteType(raw string) (NoteType, bool) {
	t := NoteType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case NoteMetadata, NoteContent, NoteFormatting, NoteAccessibility, NoteFinalCheck:
		return t, true
	}
	return "", false
}

// CurationNote is an annotation left by library staff during curation.
type CurationNote struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"document_id"`
	CuratorID  string     `json:"curator_id"`
	NoteType   NoteType   `json:"note_type"`
	Text       string     `json:"text"`
	Resolved   bool       `json:"resolved"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Scope restricts reads to what an actor may see.
type Scope struct {
	OwnerID   string
	AdviserID string
}

// ScopeFor derives the read scope for an actor's role.
func ScopeFor(actor Actor) Scope {
	switch actor.Role {
	case RoleStudent:
		return Scope{OwnerID: actor.ID}
	case RoleFaculty:
		return Scope{AdviserID: actor.ID}
	default:
		return Scope{}
	}
}

// Allows reports whether doc falls inside the scope.
func (s Scope) Allows(doc Document) bool {
	if s.OwnerID != "" && doc.OwnerID != s.OwnerID {
		return false
	}
	if s.AdviserID != "" && doc.AdviserID != s.AdviserID {
		return false
	}
	return true
}

// DocumentFilter selects documents for listing.
type DocumentFilter struct {
	Scope  Scope
	Status Status // empty matches all
	Limit  int
	Offset int
}

// Plan is the write set produced by a successful transition decision.
type Plan struct {
	Record         TransitionRecord
	ExpectedStatus Status
	PublishedAt    *time.Time
	// CompleteRevisions closes open revision requests in the same transaction.
	CompleteRevisions bool
}

// Snapshot is what the store hands to a decision inside the transaction.
type Snapshot struct {
	Document        Document
	UnresolvedNotes int
	NextSequence    uint64
}

func newID() string {
	return ids.New()
}
