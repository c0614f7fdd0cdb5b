package migrate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func mustManager(t *testing.T) func(*Manager, error) *Manager {
	return func(m *Manager, err error) *Manager {
		t.Helper()
		if err != nil {
			t.Fatalf("NewManager: %v", err)
		}
		return m
	}
}

func expectTables(mock sqlmock.Sqlmock, migrations, seeds string) {
	mock.ExpectExec("create table if not exists " + migrations).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists " + seeds).WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	migrations := fstest.MapFS{
		"0002_notes.up.sql":     {Data: []byte("create table notes (id text);")},
		"0002_notes.down.sql":   {Data: []byte("drop table notes;")},
		"0001_docs.up.sql":      {Data: []byte("create table docs (id text); create index docs_idx on docs (id);")},
		"0001_docs.down.sql":    {Data: []byte("drop table docs;")},
		"README.md":             {Data: []byte("ignored")},
		"0003_applied.up.sql":   {Data: []byte("select 1;")},
		"0003_applied.down.sql": {Data: []byte("select 1;")},
	}

	expectTables(mock, "schema_migrations", "schema_seeds")
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0003_applied.up.sql"))

	mock.ExpectBegin()
	mock.ExpectExec("create table docs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create index docs_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into schema_migrations").WithArgs("0001_docs.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("create table notes").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into schema_migrations").WithArgs("0002_notes.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mgr := mustManager(t)(NewManager(db, migrations, nil))
	if err := mgr.Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFailedStepIsNotRecorded(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	migrations := fstest.MapFS{
		"0001_docs.up.sql":   {Data: []byte("create table docs (id text);")},
		"0001_docs.down.sql": {Data: []byte("drop table docs;")},
	}
	expectTables(mock, "schema_migrations", "schema_seeds")
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("create table docs").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	mgr := mustManager(t)(NewManager(db, migrations, nil))
	err = mgr.Up(context.Background())
	if err == nil || !strings.Contains(err.Error(), "0001_docs.up.sql") {
		t.Fatalf("expected failure naming the step, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPendingListsUnapplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	migrations := fstest.MapFS{
		"0001_docs.up.sql":    {Data: []byte("select 1;")},
		"0001_docs.down.sql":  {Data: []byte("select 1;")},
		"0002_notes.up.sql":   {Data: []byte("select 1;")},
		"0002_notes.down.sql": {Data: []byte("select 1;")},
	}
	expectTables(mock, "schema_migrations", "schema_seeds")
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_docs.up.sql"))

	mgr := mustManager(t)(NewManager(db, migrations, nil))
	pending, err := mgr.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0] != "0002_notes.up.sql" {
		t.Fatalf("unexpected pending: %v", pending)
	}
}

func TestNewManagerRejectsIrreversibleSchema(t *testing.T) {
	cases := []struct {
		name  string
		files fstest.MapFS
		want  string
	}{
		{
			name: "up without down",
			files: fstest.MapFS{
				"0001_docs.up.sql":   {Data: []byte("select 1;")},
				"0001_docs.down.sql": {Data: []byte("select 1;")},
				"0002_notes.up.sql":  {Data: []byte("select 1;")},
			},
			want: "0002_notes.up.sql",
		},
		{
			name: "down without up",
			files: fstest.MapFS{
				"0001_docs.up.sql":    {Data: []byte("select 1;")},
				"0001_docs.down.sql":  {Data: []byte("select 1;")},
				"0002_notes.down.sql": {Data: []byte("select 1;")},
			},
			want: "0002_notes.down.sql has no up file",
		},
		{
			name: "duplicate version",
			files: fstest.MapFS{
				"0001_docs.up.sql":    {Data: []byte("select 1;")},
				"0001_docs.down.sql":  {Data: []byte("select 1;")},
				"0001_notes.up.sql":   {Data: []byte("select 1;")},
				"0001_notes.down.sql": {Data: []byte("select 1;")},
			},
			want: "version 0001",
		},
		{
			name: "unversioned name",
			files: fstest.MapFS{
				"docs.up.sql":   {Data: []byte("select 1;")},
				"docs.down.sql": {Data: []byte("select 1;")},
			},
			want: "not named NNNN_name",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewManager(nil, tc.files, nil)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}

	_, err := NewManager(nil, fstest.MapFS{"0001_docs.up.sql": {Data: []byte("select 1;")}}, nil)
	if !errors.Is(err, ErrUnpaired) {
		t.Fatalf("expected ErrUnpaired, got %v", err)
	}
}

func TestNewManagerRejectsBadTables(t *testing.T) {
	if _, err := NewManager(nil, nil, nil, WithMigrationsTable("docs; drop table x")); err == nil {
		t.Fatal("expected invalid table name to be rejected")
	}
	if _, err := NewManager(nil, nil, nil, WithMigrationsTable("folio_meta"), WithSeedsTable("folio_meta")); err == nil {
		t.Fatal("expected shared bookkeeping table to be rejected")
	}
}

func TestDownRollsBackLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	migrations := fstest.MapFS{
		"0001_docs.up.sql":   {Data: []byte("create table docs (id text);")},
		"0001_docs.down.sql": {Data: []byte("drop table docs;")},
	}

	expectTables(mock, "schema_migrations", "schema_seeds")
	mock.ExpectQuery("select name from schema_migrations order by applied_at").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_docs.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("drop table docs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from schema_migrations").WithArgs("0001_docs.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mgr := mustManager(t)(NewManager(db, migrations, nil))
	if err := mgr.Down(context.Background()); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownRefusesUnknownStep(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	expectTables(mock, "schema_migrations", "schema_seeds")
	mock.ExpectQuery("select name from schema_migrations order by applied_at").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0009_future.up.sql"))

	mgr := mustManager(t)(NewManager(db, fstest.MapFS{}, nil))
	err = mgr.Down(context.Background())
	if err == nil || !strings.Contains(err.Error(), "0009_future.up.sql") {
		t.Fatalf("expected unknown step error, got %v", err)
	}
}

func TestDownWithoutHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	expectTables(mock, "schema_migrations", "schema_seeds")
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))

	mgr := mustManager(t)(NewManager(db, fstest.MapFS{}, nil))
	if err := mgr.Down(context.Background()); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory, got %v", err)
	}
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("insert into t values ('a;b'); select 1;\n")
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(got), got)
	}
	if got[0] != "insert into t values ('a;b');" {
		t.Fatalf("quoted semicolon split: %q", got[0])
	}
}

func TestSeedSkipsExecutedWithCustomTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	seeds := fstest.MapFS{
		"0001_demo.sql":  {Data: []byte("insert into docs values ('a');")},
		"0002_extra.sql": {Data: []byte("insert into docs values ('b');")},
	}

	expectTables(mock, "folio_migrations", "folio_seeds")
	mock.ExpectQuery("select name from folio_seeds").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_demo.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("insert into docs values").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into folio_seeds").WithArgs("0002_extra.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mgr := mustManager(t)(NewManager(db, nil, seeds, WithMigrationsTable("folio_migrations"), WithSeedsTable("folio_seeds")))
	if err := mgr.Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
