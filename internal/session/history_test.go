package session

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"hrai/internal/domain"
)

func key() Key {
	return Key{Channel: "discord", ChatID: "chan-1", UserID: "user-1"}
}

func TestAppend_RoleMapping(t *testing.T) {
	s := NewStore(5, nil)

	s.Append(key(), CallerUser, "hello")
	window := s.Append(key(), CallerAssistant, "hi there")

	if len(window) != 2 {
		t.Fatalf("window length = %d, want 2", len(window))
	}
	if window[0].Role != domain.RoleUser {
		t.Fatalf("first role = %s, want user", window[0].Role)
	}
	if window[1].Role != domain.RoleModel {
		t.Fatalf("assistant should map to model, got %s", window[1].Role)
	}
}

func TestAppend_FIFOEviction(t *testing.T) {
	const cap = 5
	s := NewStore(cap, nil)

	for i := 0; i < cap*3; i++ {
		s.Append(key(), CallerUser, fmt.Sprintf("msg-%d", i))
	}

	window := s.Get(key())
	if len(window) != cap {
		t.Fatalf("window length = %d, want %d", len(window), cap)
	}
	// Most recent cap turns, original relative order.
	for i, turn := range window {
		want := fmt.Sprintf("msg-%d", cap*3-cap+i)
		if turn.Text != want {
			t.Fatalf("window[%d] = %q, want %q", i, turn.Text, want)
		}
	}
}

func TestGet_UnknownKeyIsEmpty(t *testing.T) {
	s := NewStore(5, nil)
	if got := s.Get(key()); len(got) != 0 {
		t.Fatalf("expected empty window, got %d turns", len(got))
	}
}

func TestKeys_AreIsolated(t *testing.T) {
	s := NewStore(5, nil)

	a := Key{Channel: "discord", ChatID: "chan-1", UserID: "alice"}
	b := Key{Channel: "discord", ChatID: "chan-1", UserID: "bob"}
	c := Key{Channel: "discord", ChatID: "chan-2", UserID: "alice"}

	s.Append(a, CallerUser, "from alice")
	if s.Len(b) != 0 || s.Len(c) != 0 {
		t.Fatal("append leaked across keys")
	}
}

func TestAppend_ReturnsCopy(t *testing.T) {
	s := NewStore(5, nil)

	window := s.Append(key(), CallerUser, "original")
	window[0].Text = "mutated"

	if got := s.Get(key()); got[0].Text != "original" {
		t.Fatalf("caller mutation reached the store: %q", got[0].Text)
	}
}

func TestFormatSummary(t *testing.T) {
	s := NewStore(5, nil)
	s.Append(key(), CallerUser, "short question")
	s.Append(key(), CallerAssistant, strings.Repeat("x", 150))

	summary := s.FormatSummary(key())
	lines := strings.Split(summary, "\n")
	if len(lines) != 2 {
		t.Fatalf("summary lines = %d, want 2", len(lines))
	}
	if lines[0] != "1. user: short question" {
		t.Fatalf("line 1 = %q", lines[0])
	}
	want := "2. model: " + strings.Repeat("x", 100) + "..."
	if lines[1] != want {
		t.Fatalf("line 2 = %q, want %q", lines[1], want)
	}
}

func TestFormatSummary_Empty(t *testing.T) {
	s := NewStore(5, nil)
	if got := s.FormatSummary(key()); got != "" {
		t.Fatalf("expected empty summary, got %q", got)
	}
}

func TestAppend_ConcurrentSameKey(t *testing.T) {
	const cap = 10
	s := NewStore(cap, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Append(key(), CallerUser, fmt.Sprintf("c-%d", n))
		}(i)
	}
	wg.Wait()

	if got := s.Len(key()); got != cap {
		t.Fatalf("cap invariant violated under concurrency: len = %d, want %d", got, cap)
	}
}
