package channel

import (
	"strings"
	"testing"
)

func TestStripMention(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain mention", "<@42> hello there", "hello there"},
		{"nickname mention", "<@!42> hello", "hello"},
		{"mention in the middle", "hey <@42> what is up", "hey  what is up"},
		{"other user untouched", "<@99> hello", "<@99> hello"},
		{"no mention", "hello", "hello"},
		{"mention only", "<@42>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripMention(tt.content, "42"); got != tt.want {
				t.Errorf("stripMention(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}

func TestSplitMessage(t *testing.T) {
	t.Run("short message untouched", func(t *testing.T) {
		chunks := splitMessage("hello", 100)
		if len(chunks) != 1 || chunks[0] != "hello" {
			t.Fatalf("chunks = %v", chunks)
		}
	})

	t.Run("splits on newline when possible", func(t *testing.T) {
		msg := strings.Repeat("a", 80) + "\n" + strings.Repeat("b", 80)
		chunks := splitMessage(msg, 100)
		if len(chunks) != 2 {
			t.Fatalf("chunks = %d, want 2", len(chunks))
		}
		if !strings.HasSuffix(chunks[0], "\n") {
			t.Errorf("first chunk should end at the newline")
		}
	})

	t.Run("hard split without newline", func(t *testing.T) {
		msg := strings.Repeat("a", 250)
		chunks := splitMessage(msg, 100)
		if len(chunks) != 3 {
			t.Fatalf("chunks = %d, want 3", len(chunks))
		}
		if rejoined := strings.Join(chunks, ""); rejoined != msg {
			t.Error("rejoined chunks must reproduce the message")
		}
	})
}
