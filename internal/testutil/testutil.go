package testutil

import (
	"testing"

	"github.com/alnlabs/gmstation/internal/store"
)

// NewTestStore creates a new in-memory store for testing.
// Each call creates a fresh database with all migrations applied.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	t.Cleanup(func() {
		st.Close()
	})

	return st
}
