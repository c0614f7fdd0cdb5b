package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"folio.org/internal/workflow"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrSerialization       = "40001"
	pgErrDeadlock            = "40P01"
)

// Store persists documents, their transition ledger, revision requests and
// curation notes in PostgreSQL.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ workflow.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const documentColumns = `id, title, status, owner_id, adviser_id, created_at, updated_at, published_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (workflow.Document, error) {
	var (
		doc       workflow.Document
		status    string
		published sql.NullTime
	)
	if err := row.Scan(&doc.ID, &doc.Title, &status, &doc.OwnerID, &doc.AdviserID,
		&doc.CreatedAt, &doc.UpdatedAt, &published); err != nil {
		return workflow.Document{}, err
	}
	doc.Status = workflow.Status(status)
	if published.Valid {
		t := published.Time.UTC()
		doc.PublishedAt = &t
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return doc, nil
}

func (s *Store) CreateDocument(ctx context.Context, doc workflow.Document) (workflow.Document, error) {
	if doc.Status == "" {
		doc.Status = workflow.StatusPending
	}
	row := s.db.QueryRowContext(ctx, `
		insert into documents (id, title, status, owner_id, adviser_id, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning `+documentColumns,
		doc.ID, doc.Title, string(doc.Status), doc.OwnerID, doc.AdviserID, doc.CreatedAt, doc.UpdatedAt)
	created, err := scanDocument(row)
	if err != nil {
		return workflow.Document{}, mapErr(err)
	}
	return created, nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (workflow.Document, error) {
	row := s.db.QueryRowContext(ctx, `select `+documentColumns+` from documents where id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Document{}, fmt.Errorf("%w: document %s", workflow.ErrNotFound, id)
	}
	if err != nil {
		return workflow.Document{}, mapErr(err)
	}
	return doc, nil
}

func (s *Store) ListDocuments(ctx context.Context, filter workflow.DocumentFilter) ([]workflow.Document, error) {
	where, args := scopeClause(filter.Scope)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `select ` + documentColumns + ` from documents`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(` order by created_at asc, id asc limit $%d offset $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var res []workflow.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		res = append(res, doc)
	}
	return res, mapErr(rows.Err())
}

func scopeClause(scope workflow.Scope) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	if scope.OwnerID != "" {
		args = append(args, scope.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if scope.AdviserID != "" {
		args = append(args, scope.AdviserID)
		where = append(where, fmt.Sprintf("adviser_id = $%d", len(args)))
	}
	return where, args
}

func (s *Store) History(ctx context.Context, documentID string) ([]workflow.TransitionRecord, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `select 1 from documents where id = $1`, documentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", workflow.ErrNotFound, documentID)
	}
	if err != nil {
		return nil, mapErr(err)
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, document_id, seq, from_status, to_status, actor_id, reason, comments, created_at
		from transitions
		where document_id = $1
		order by seq asc
	`, documentID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var res []workflow.TransitionRecord
	for rows.Next() {
		var (
			rec      workflow.TransitionRecord
			from, to string
		)
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.Sequence, &from, &to,
			&rec.ActorID, &rec.Reason, &rec.Comments, &rec.Timestamp); err != nil {
			return nil, mapErr(err)
		}
		rec.FromStatus = workflow.Status(from)
		rec.ToStatus = workflow.Status(to)
		rec.Timestamp = rec.Timestamp.UTC()
		res = append(res, rec)
	}
	return res, mapErr(rows.Err())
}

// Transition locks the document row, builds the snapshot, and applies the
// plan with a status compare-and-set inside one transaction.
//
// The transaction runs at read committed: a caller blocked on the row lock
// re-reads the winner's committed status once the lock is released, so decide
// reports the stale token as ErrConflict instead of the driver aborting with a
// serialization failure.
func (s *Store) Transition(ctx context.Context, documentID string, decide workflow.DecideFunc) (workflow.TransitionRecord, error) {
	rec, err := s.transition(ctx, documentID, decide)
	return rec, raceAsConflict(err, documentID)
}

func (s *Store) transition(ctx context.Context, documentID string, decide workflow.DecideFunc) (workflow.TransitionRecord, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return workflow.TransitionRecord{}, mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	doc, err := scanDocument(tx.QueryRowContext(ctx,
		`select `+documentColumns+` from documents where id = $1 for update`, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.TransitionRecord{}, fmt.Errorf("%w: document %s", workflow.ErrNotFound, documentID)
	}
	if err != nil {
		return workflow.TransitionRecord{}, mapErr(err)
	}

	var unresolved int
	if err := tx.QueryRowContext(ctx, `
		select count(*) from curation_notes where document_id = $1 and not resolved
	`, documentID).Scan(&unresolved); err != nil {
		return workflow.TransitionRecord{}, mapErr(err)
	}
	var next uint64
	if err := tx.QueryRowContext(ctx, `
		select coalesce(max(seq), 0) + 1 from transitions where document_id = $1
	`, documentID).Scan(&next); err != nil {
		return workflow.TransitionRecord{}, mapErr(err)
	}

	plan, err := decide(workflow.Snapshot{Document: doc, UnresolvedNotes: unresolved, NextSequence: next})
	if err != nil {
		return workflow.TransitionRecord{}, err
	}
	rec := plan.Record

	res, err := tx.ExecContext(ctx, `
		update documents
		set status = $2, updated_at = $3, published_at = coalesce($4, published_at)
		where id = $1 and status = $5
	`, documentID, string(rec.ToStatus), rec.Timestamp, nullTime(plan.PublishedAt), string(plan.ExpectedStatus))
	if err != nil {
		return workflow.TransitionRecord{}, mapErr(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return workflow.TransitionRecord{}, mapErr(err)
	} else if n == 0 {
		return workflow.TransitionRecord{}, fmt.Errorf("%w: document %s changed concurrently", workflow.ErrConflict, documentID)
	}

	if _, err := tx.ExecContext(ctx, `
		insert into transitions (id, document_id, seq, from_status, to_status, actor_id, reason, comments, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, documentID, rec.Sequence, string(rec.FromStatus), string(rec.ToStatus),
		rec.ActorID, rec.Reason, rec.Comments, rec.Timestamp); err != nil {
		return workflow.TransitionRecord{}, mapErr(err)
	}

	if plan.CompleteRevisions {
		if _, err := tx.ExecContext(ctx, `
			update revision_requests
			set status = 'completed', updated_at = $2, completed_at = $2
			where document_id = $1 and status in ('pending', 'in_progress')
		`, documentID, rec.Timestamp); err != nil {
			return workflow.TransitionRecord{}, mapErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return workflow.TransitionRecord{}, mapErr(err)
	}
	return rec, nil
}

// raceAsConflict reports serialization failures and deadlocks raised while
// transitioning as a lost race: the caller must re-read before deciding again.
func raceAsConflict(err error, documentID string) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := maybePgError(err); ok && (pgErr.Code == pgErrSerialization || pgErr.Code == pgErrDeadlock) {
		return fmt.Errorf("%w: document %s changed concurrently: %s", workflow.ErrConflict, documentID, pgErr.Message)
	}
	return err
}

// mapErr translates driver failures into the workflow taxonomy.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s", workflow.ErrConflict, pgErr.ConstraintName)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s", workflow.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%w: %w", workflow.ErrPersistence, err)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
