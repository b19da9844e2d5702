package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// 埋め込んだマイグレーションがソースとして読み込めることを検証
func TestMigrationSource_Loads(t *testing.T) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("failed to load embedded migrations: %v", err)
	}
	defer source.Close()

	if _, err := source.First(); err != nil {
		t.Fatalf("expected at least one migration: %v", err)
	}
}

// up/downマイグレーションが対になっていることを検証
func TestMigrations_UpDownPairs(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("failed to read migrations dir: %v", err)
	}

	ups := make(map[string]bool)
	downs := make(map[string]bool)
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file in migrations dir: %s", name)
		}
	}

	for base := range ups {
		if !downs[base] {
			t.Errorf("migration %s has no down counterpart", base)
		}
	}
	for base := range downs {
		if !ups[base] {
			t.Errorf("migration %s has no up counterpart", base)
		}
	}
}

// スキーマに必要な4テーブルが揃っていることを検証
func TestMigrations_CoverAllTables(t *testing.T) {
	var combined strings.Builder
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("failed to read migrations dir: %v", err)
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		data, err := fs.ReadFile(migrationsFS, "migrations/"+e.Name())
		if err != nil {
			t.Fatalf("failed to read %s: %v", e.Name(), err)
		}
		combined.Write(data)
	}

	content := combined.String()
	for _, table := range []string{"users", "projects", "progress_steps", "sessions"} {
		if !strings.Contains(content, "CREATE TABLE "+table) {
			t.Errorf("migrations should create table %s", table)
		}
	}
}
