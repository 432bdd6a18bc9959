package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func testRecords(jobID string) []Record {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []Record{
		{JobID: jobID, NodeID: "n1", Status: "pending", At: base},
		{JobID: jobID, NodeID: "n1", Status: "running", At: base.Add(time.Millisecond)},
		{JobID: jobID, NodeID: "n1", Status: "failed", Detail: "boom", At: base.Add(2 * time.Millisecond)},
	}
}

// storeContract exercises the behavior every Store implementation shares.
// Job ids are unique per run so the contract holds against persistent
// backends with leftover rows.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	jobA := fmt.Sprintf("job-a-%d", time.Now().UnixNano())

	for _, rec := range testRecords(jobA) {
		if err := s.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Append(ctx, Record{JobID: jobA + "-b", NodeID: "n2", Status: "pending", At: time.Now()}); err != nil {
		t.Fatal(err)
	}

	hist, err := s.History(ctx, jobA)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 3 {
		t.Fatalf("history = %d records, want 3", len(hist))
	}
	want := []string{"pending", "running", "failed"}
	for i, rec := range hist {
		if rec.Status != want[i] {
			t.Fatalf("history[%d].Status = %q, want %q", i, rec.Status, want[i])
		}
	}
	if hist[2].Detail != "boom" {
		t.Fatalf("Detail = %q, want boom", hist[2].Detail)
	}

	empty, err := s.History(ctx, "job-unknown")
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Fatalf("unknown job history = %d records, want 0", len(empty))
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, Record{JobID: "late"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Append after Close = %v, want ErrClosed", err)
	}
}

func TestMemStore(t *testing.T) {
	storeContract(t, NewMemStore())
}

func TestMemStore_HistoryReturnsCopy(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	if err := s.Append(ctx, Record{JobID: "j", Status: "pending", At: time.Now()}); err != nil {
		t.Fatal(err)
	}
	h1, _ := s.History(ctx, "j")
	h1[0].Status = "mutated"
	h2, _ := s.History(ctx, "j")
	if h2[0].Status != "pending" {
		t.Fatal("History must return a copy")
	}
}
