package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	defaultMigrationsTable = "schema_migrations"
	defaultSeedsTable      = "schema_seeds"

	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

var (
	// ErrUnpaired reports an up migration shipped without its down file.
	ErrUnpaired = errors.New("migration has no down file")

	// ErrNoHistory is returned by Down when nothing has been applied.
	ErrNoHistory = errors.New("no migrations applied")

	tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	versioned = regexp.MustCompile(`^(\d+)_[a-z0-9_]+$`)
)

// step is one reversible schema change: NNNN_name.up.sql with its
// NNNN_name.down.sql sibling.
type step struct {
	version string
	name    string // bookkeeping key, the up file's base name
	up      string
	down    string
}

// Manager applies the reversible schema steps and idempotent seed files read
// from a file system, typically the schema embedded in the store package.
type Manager struct {
	db              *sql.DB
	migrations      fs.FS
	seeds           fs.FS
	steps           []step
	migrationsTable string
	seedsTable      string
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable overrides the default migrations bookkeeping table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.migrationsTable = name
		}
	}
}

// WithSeedsTable overrides the default seeds bookkeeping table.
func WithSeedsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.seedsTable = name
		}
	}
}

// NewManager indexes the migration file system and refuses to build a
// Manager over a schema that could not be rolled back: every up file needs a
// down sibling, every version prefix is unique, and no down file is orphaned.
// Either file system may be nil.
func NewManager(db *sql.DB, migrations, seeds fs.FS, opts ...Option) (*Manager, error) {
	m := &Manager{
		db:              db,
		migrations:      migrations,
		seeds:           seeds,
		migrationsTable: defaultMigrationsTable,
		seedsTable:      defaultSeedsTable,
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, table := range []string{m.migrationsTable, m.seedsTable} {
		if !tableName.MatchString(table) {
			return nil, fmt.Errorf("migrate: invalid bookkeeping table %q", table)
		}
	}
	if m.migrationsTable == m.seedsTable {
		return nil, fmt.Errorf("migrate: migrations and seeds share table %q", m.seedsTable)
	}
	steps, err := indexSteps(migrations)
	if err != nil {
		return nil, err
	}
	m.steps = steps
	return m, nil
}

func indexSteps(fsys fs.FS) ([]step, error) {
	ups, err := collectSQL(fsys, upSuffix)
	if err != nil {
		return nil, err
	}
	downs, err := collectSQL(fsys, downSuffix)
	if err != nil {
		return nil, err
	}
	downByStem := make(map[string]string, len(downs))
	for _, d := range downs {
		downByStem[strings.TrimSuffix(d.Base, downSuffix)] = d.Path
	}

	steps := make([]step, 0, len(ups))
	seen := make(map[string]string, len(ups))
	for _, u := range ups {
		stem := strings.TrimSuffix(u.Base, upSuffix)
		match := versioned.FindStringSubmatch(stem)
		if match == nil {
			return nil, fmt.Errorf("migrate: %s is not named NNNN_name%s", u.Base, upSuffix)
		}
		if prev, dup := seen[match[1]]; dup {
			return nil, fmt.Errorf("migrate: version %s used by %s and %s", match[1], prev, u.Base)
		}
		seen[match[1]] = u.Base
		down, ok := downByStem[stem]
		if !ok {
			return nil, fmt.Errorf("migrate: %s: %w", u.Base, ErrUnpaired)
		}
		delete(downByStem, stem)
		steps = append(steps, step{version: match[1], name: u.Base, up: u.Path, down: down})
	}
	if len(downByStem) > 0 {
		orphans := make([]string, 0, len(downByStem))
		for stem := range downByStem {
			orphans = append(orphans, stem+downSuffix)
		}
		sort.Strings(orphans)
		return nil, fmt.Errorf("migrate: %s has no up file", strings.Join(orphans, ", "))
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	return steps, nil
}

// Up applies every pending step. Each step and its bookkeeping row commit
// together.
func (m *Manager) Up(ctx context.Context) error {
	pending, err := m.pending(ctx)
	if err != nil {
		return err
	}
	for _, st := range pending {
		record := fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, m.migrationsTable)
		if err := m.apply(ctx, m.migrations, st.up, record, st.name, time.Now().UTC()); err != nil {
			return fmt.Errorf("apply migration %s: %w", st.name, err)
		}
	}
	return nil
}

// Pending lists the steps Up would apply, oldest first.
func (m *Manager) Pending(ctx context.Context) ([]string, error) {
	steps, err := m.pending(ctx)
	if err != nil {
		return nil, err
	}
	return names(steps), nil
}

func (m *Manager) pending(ctx context.Context) ([]step, error) {
	if err := m.ensureTables(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx, m.migrationsTable)
	if err != nil {
		return nil, err
	}
	var out []step
	for _, st := range m.steps {
		if !applied[st.name] {
			out = append(out, st)
		}
	}
	return out, nil
}

// Down rolls back the most recently applied step.
func (m *Manager) Down(ctx context.Context) error {
	history, err := m.Status(ctx)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return ErrNoHistory
	}
	last := history[len(history)-1]
	st, ok := m.lookup(last)
	if !ok {
		return fmt.Errorf("migration %s is applied but not shipped with this build", last)
	}
	record := fmt.Sprintf(`delete from %s where name = $1`, m.migrationsTable)
	if err := m.apply(ctx, m.migrations, st.down, record, st.name); err != nil {
		return fmt.Errorf("rollback migration %s: %w", st.name, err)
	}
	return nil
}

// Status returns applied steps in the order they were applied.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureTables(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s order by applied_at asc, name asc`, m.migrationsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

// Seed applies seed files idempotently.
func (m *Manager) Seed(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx, m.seedsTable)
	if err != nil {
		return err
	}
	files, err := collectSQL(m.seeds, ".sql")
	if err != nil {
		return err
	}
	for _, seed := range files {
		if applied[seed.Base] {
			continue
		}
		record := fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, m.seedsTable)
		if err := m.apply(ctx, m.seeds, seed.Path, record, seed.Base, time.Now().UTC()); err != nil {
			return fmt.Errorf("apply seed %s: %w", seed.Base, err)
		}
	}
	return nil
}

func (m *Manager) lookup(name string) (step, bool) {
	for _, st := range m.steps {
		if st.name == name {
			return st, true
		}
	}
	return step{}, false
}

func (m *Manager) ensureTables(ctx context.Context) error {
	for _, table := range []string{m.migrationsTable, m.seedsTable} {
		ddl := fmt.Sprintf(`
		create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		);`, table)
		if _, err := m.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// apply runs the statements of path followed by the bookkeeping statement in
// one transaction.
func (m *Manager) apply(ctx context.Context, fsys fs.FS, path, record string, args ...any) error {
	if fsys == nil {
		return fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	raw, err := fs.ReadFile(fsys, path)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Manager) applied(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		result[name] = true
	}
	return result, rows.Err()
}

func names(steps []step) []string {
	out := make([]string, len(steps))
	for i, st := range steps {
		out[i] = st.name
	}
	return out
}

type sqlFile struct {
	Base string
	Path string
}

func collectSQL(fsys fs.FS, suffix string) ([]sqlFile, error) {
	if fsys == nil {
		return nil, nil
	}
	var files []sqlFile
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), suffix) {
			files = append(files, sqlFile{Base: d.Name(), Path: path})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Base < files[j].Base })
	return files, nil
}

// splitStatements splits on semicolons outside single-quoted literals.
func splitStatements(sql string) []string {
	var stmts []string
	var current strings.Builder
	inString := false
	for _, r := range sql {
		current.WriteRune(r)
		switch {
		case r == '\'':
			inString = !inString
		case r == ';' && !inString:
			stmts = append(stmts, current.String())
			current.Reset()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
