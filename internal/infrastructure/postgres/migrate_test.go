package postgres

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/pashagolub/pgxmock/v4"
)

func TestLoadMigrations_Embedded(t *testing.T) {
	migrations, err := LoadMigrations(migrationFiles)
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) < 3 {
		t.Fatalf("expected at least 3 embedded migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "clinic_schema" {
		t.Errorf("first migration = %d_%s", migrations[0].Version, migrations[0].Name)
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			t.Errorf("migrations not sorted at index %d", i)
		}
	}
}

func TestLoadMigrations_SkipsUnnumbered(t *testing.T) {
	files := fstest.MapFS{
		"migrations/010_later.sql": {Data: []byte("SELECT 10")},
		"migrations/002_first.sql": {Data: []byte("SELECT 2")},
		"migrations/readme.sql":    {Data: []byte("-- not a migration")},
		"migrations/abc_nope.sql":  {Data: []byte("SELECT 0")},
		"migrations/003_notes.txt": {Data: []byte("ignored by glob")},
	}

	got, err := LoadMigrations(files)
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 migrations, got %d: %+v", len(got), got)
	}
	if got[0].Version != 2 || got[1].Version != 10 {
		t.Errorf("unexpected order: %d, %d", got[0].Version, got[1].Version)
	}
	if got[1].Name != "later" || got[1].SQL != "SELECT 10" {
		t.Errorf("unexpected migration: %+v", got[1])
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"migrations/001_a.sql": {Data: []byte("SELECT 1")},
		"migrations/01_b.sql":  {Data: []byte("SELECT 1")},
	}
	if _, err := LoadMigrations(files); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestMigrator_UpSkipsApplied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	m := NewMigrator(mock, nil)
	m.files = fstest.MapFS{
		"migrations/001_first.sql":  {Data: []byte("CREATE TABLE first_tbl (id INT)")},
		"migrations/002_second.sql": {Data: []byte("CREATE TABLE second_tbl (id INT)")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE second_tbl").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs(2, "second").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := m.Up(context.Background())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if n != 1 {
		t.Errorf("applied = %d, want 1", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMigrator_UpRollsBackFailedMigration(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	m := NewMigrator(mock, nil)
	m.files = fstest.MapFS{
		"migrations/001_first.sql":  {Data: []byte("CREATE TABLE first_tbl (id INT)")},
		"migrations/002_second.sql": {Data: []byte("CREATE TABLE second_tbl (id INT)")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE first_tbl").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs(1, "first").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE second_tbl").
		WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	n, err := m.Up(context.Background())
	if err == nil {
		t.Fatal("expected migration error")
	}
	if n != 1 {
		t.Errorf("applied = %d, want 1", n)
	}
	// The failed migration is neither applied nor recorded.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
