// Package testutil provides shared fixtures for claimflow tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Veraticus/claimflow/internal/model"
	"github.com/Veraticus/claimflow/internal/storage"
)

// NewStore returns a migrated in-memory store that is closed with the test.
func NewStore(t *testing.T, namespace string) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:", namespace)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test store: %v", err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close test store: %v", err)
		}
	})
	return store
}

// WriteDocument creates a small non-empty file named name in a temp dir.
func WriteDocument(t *testing.T, name string) model.Document {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("%PDF-1.4 "+name), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return model.NewDocument(path)
}
