package db

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMigration(t *testing.T, dir, name, sql string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(sql), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMigrationsSortsAndSkips(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "002_billing.sql", "CREATE TABLE claim ();")
	writeMigration(t, dir, "001_core.sql", "CREATE TABLE patient ();")
	writeMigration(t, dir, "notes.txt", "not a migration")
	writeMigration(t, dir, "README.sql", "no numeric prefix")

	m := NewMigrator(nil, dir)
	migs, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}

	if len(migs) != 2 {
		t.Fatalf("got %d migrations, want 2", len(migs))
	}
	if migs[0].Version != 1 || migs[1].Version != 2 {
		t.Errorf("wrong order: %d, %d", migs[0].Version, migs[1].Version)
	}
	if migs[0].Name != "001_core.sql" {
		t.Errorf("Name = %q", migs[0].Name)
	}
	if migs[0].SQL != "CREATE TABLE patient ();" {
		t.Errorf("SQL = %q", migs[0].SQL)
	}
}

func TestLoadMigrationsMissingDir(t *testing.T) {
	m := NewMigrator(nil, "/nonexistent/path")
	if _, err := m.LoadMigrations(); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
