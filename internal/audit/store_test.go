package audit

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "audit.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []Entry{
		{Channel: "discord", ChatID: "c1", SenderID: "u1", Route: "text", Outcome: "replied", LatencyMs: 120},
		{Channel: "discord", ChatID: "c1", SenderID: "u2", Route: "text", Outcome: "denied", Reason: "missing_role"},
		{Channel: "discord", ChatID: "c2", SenderID: "u1", Route: "attachment", Outcome: "rejected", Reason: "too_large"},
	}
	for _, e := range entries {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("entries = %d, want 3", len(got))
	}
	// Newest first.
	if got[0].Route != "attachment" || got[0].Reason != "too_large" {
		t.Fatalf("got[0] = %+v", got[0])
	}
	if got[2].Outcome != "replied" || got[2].LatencyMs != 120 {
		t.Fatalf("got[2] = %+v", got[2])
	}
}

func TestRecent_Limit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := s.Record(ctx, Entry{Channel: "discord", ChatID: "c", SenderID: "u", Route: "text", Outcome: "replied"}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(ctx, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("entries = %d, want 4", len(got))
	}
}

func TestRecent_Empty(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Recent(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no entries, got %d", len(got))
	}
}
