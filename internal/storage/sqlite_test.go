package storage

import "testing"

func TestOpenInMemoryAppliesMigrations(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer s.Close()

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("listing migrations: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("no migrations applied")
	}
	if versions[0] != 1 {
		t.Errorf("first migration version = %d, want 1", versions[0])
	}

	// The core tables must exist after migration.
	for _, table := range []string{"document_chunks", "module_summaries", "conversation_memory", "query_cache", "usage_log"} {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer s.Close()

	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate pass: %v", err)
	}
	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("listing migrations: %v", err)
	}
	seen := make(map[int]bool)
	for _, v := range versions {
		if seen[v] {
			t.Errorf("migration %d recorded twice", v)
		}
		seen[v] = true
	}
}
