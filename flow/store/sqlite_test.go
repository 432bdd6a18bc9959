package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	storeContract(t, s)
}

func TestSQLiteStore_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC)
	if err := s.Append(ctx, Record{JobID: "j", NodeID: "n", Status: "done", At: at}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Records survive reopening the file.
	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s2.Close() }()
	hist, err := s2.History(ctx, "j")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 {
		t.Fatalf("history = %d records, want 1", len(hist))
	}
	if !hist[0].At.Equal(at) {
		t.Fatalf("At = %v, want %v (timestamps round-trip)", hist[0].At, at)
	}
}
