package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"folio.org/internal/workflow"
)

const revisionColumns = `id, document_id, requested_by, requested_from, reason,
	coalesce(specific_requirements, ''), deadline, status, created_at, updated_at, completed_at`

func scanRevision(row rowScanner) (workflow.RevisionRequest, error) {
	var (
		r                   workflow.RevisionRequest
		status              string
		deadline, completed sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.DocumentID, &r.RequestedBy, &r.RequestedFrom, &r.Reason,
		&r.SpecificRequirements, &deadline, &status, &r.CreatedAt, &r.UpdatedAt, &completed); err != nil {
		return workflow.RevisionRequest{}, err
	}
	r.Status = workflow.RevisionStatus(status)
	if deadline.Valid {
		t := deadline.Time.UTC()
		r.Deadline = &t
	}
	if completed.Valid {
		t := completed.Time.UTC()
		r.CompletedAt = &t
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func (s *Store) CreateRevisionRequest(ctx context.Context, req workflow.RevisionRequest) (workflow.RevisionRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into revision_requests (id, document_id, requested_by, requested_from, reason,
			specific_requirements, deadline, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		returning `+revisionColumns,
		req.ID, req.DocumentID, req.RequestedBy, req.RequestedFrom, req.Reason,
		nullIfEmpty(req.SpecificRequirements), nullTime(req.Deadline), string(req.Status),
		req.CreatedAt, req.UpdatedAt)
	created, err := scanRevision(row)
	if err != nil {
		return workflow.RevisionRequest{}, mapErr(err)
	}
	return created, nil
}

func (s *Store) GetRevisionRequest(ctx context.Context, id string) (workflow.RevisionRequest, error) {
	r, err := scanRevision(s.db.QueryRowContext(ctx,
		`select `+revisionColumns+` from revision_requests where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.RevisionRequest{}, fmt.Errorf("%w: revision request %s", workflow.ErrNotFound, id)
	}
	if err != nil {
		return workflow.RevisionRequest{}, mapErr(err)
	}
	return r, nil
}

func (s *Store) ListRevisionRequests(ctx context.Context, documentID string) ([]workflow.RevisionRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+revisionColumns+`
		from revision_requests
		where document_id = $1
		order by created_at asc, id asc
	`, documentID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var res []workflow.RevisionRequest
	for rows.Next() {
		r, err := scanRevision(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		res = append(res, r)
	}
	return res, mapErr(rows.Err())
}

func (s *Store) StartRevisionRequest(ctx context.Context, id string) (workflow.RevisionRequest, error) {
	r, err := scanRevision(s.db.QueryRowContext(ctx, `
		update revision_requests
		set status = 'in_progress', updated_at = $2
		where id = $1 and status = 'pending'
		returning `+revisionColumns, id, s.now()))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetRevisionRequest(ctx, id); getErr != nil {
			return workflow.RevisionRequest{}, getErr
		}
		return workflow.RevisionRequest{}, fmt.Errorf("%w: revision request %s is no longer pending", workflow.ErrConflict, id)
	}
	if err != nil {
		return workflow.RevisionRequest{}, mapErr(err)
	}
	return r, nil
}

// AddCurationNote takes the document row lock so a note cannot slip in
// between the gate check and the status write of a concurrent transition.
func (s *Store) AddCurationNote(ctx context.Context, note workflow.CurationNote) (workflow.CurationNote, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return workflow.CurationNote{}, mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `select 1 from documents where id = $1 for update`, note.DocumentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.CurationNote{}, fmt.Errorf("%w: document %s", workflow.ErrNotFound, note.DocumentID)
	}
	if err != nil {
		return workflow.CurationNote{}, mapErr(err)
	}
	if _, err := tx.ExecContext(ctx, `
		insert into curation_notes (id, document_id, curator_id, note_type, body, resolved, created_at)
		values ($1, $2, $3, $4, $5, false, $6)
	`, note.ID, note.DocumentID, note.CuratorID, string(note.NoteType), note.Text, note.CreatedAt); err != nil {
		return workflow.CurationNote{}, mapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return workflow.CurationNote{}, mapErr(err)
	}
	note.Resolved = false
	note.ResolvedAt = nil
	return note, nil
}

func (s *Store) ResolveCurationNote(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update curation_notes set resolved = true, resolved_at = $2
		where id = $1 and not resolved
	`, id, s.now())
	if err != nil {
		return mapErr(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return mapErr(err)
	} else if n > 0 {
		return nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx, `select 1 from curation_notes where id = $1`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: curation note %s", workflow.ErrNotFound, id)
	}
	return mapErr(err)
}

func (s *Store) ListCurationNotes(ctx context.Context, documentID string, unresolvedOnly bool) ([]workflow.CurationNote, error) {
	query := `
		select id, document_id, curator_id, note_type, body, resolved, created_at, resolved_at
		from curation_notes
		where document_id = $1`
	if unresolvedOnly {
		query += ` and not resolved`
	}
	query += ` order by created_at asc, id asc`
	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var res []workflow.CurationNote
	for rows.Next() {
		var (
			n        workflow.CurationNote
			noteType string
			resolved sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.DocumentID, &n.CuratorID, &noteType, &n.Text,
			&n.Resolved, &n.CreatedAt, &resolved); err != nil {
			return nil, mapErr(err)
		}
		n.NoteType = workflow.NoteType(noteType)
		n.CreatedAt = n.CreatedAt.UTC()
		if resolved.Valid {
			t := resolved.Time.UTC()
			n.ResolvedAt = &t
		}
		res = append(res, n)
	}
	return res, mapErr(rows.Err())
}

func (s *Store) CountByStatus(ctx context.Context, scope workflow.Scope) (map[workflow.Status]int, error) {
	where, args := scopeClause(scope)
	query := `select status, count(*) from documents`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` group by status`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	counts := make(map[workflow.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, mapErr(err)
		}
		counts[workflow.Status(status)] = n
	}
	return counts, mapErr(rows.Err())
}
