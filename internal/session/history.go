package session

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"hrai/internal/domain"
)

// summaryTruncateAt bounds each turn's text in the history dump.
const summaryTruncateAt = 100

// CallerRole is the dispatcher-side vocabulary for who produced a turn.
// Append converts it to the backend's user/model schema.
type CallerRole string

const (
	CallerUser      CallerRole = "user"
	CallerAssistant CallerRole = "assistant"
)

// Key identifies one conversation window. No cross-user or cross-channel
// sharing: two users in the same chat get separate windows.
type Key struct {
	Channel string
	ChatID  string
	UserID  string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Channel, k.ChatID, k.UserID)
}

// Store keeps a bounded FIFO window of recent turns per conversation key.
// Windows are created lazily on first append and live for the process
// lifetime; there is no persistence.
//
// Store is safe for concurrent use; every mutation is an atomic
// read-modify-write under the store lock, which also serializes writers on
// the same key.
type Store struct {
	mu       sync.Mutex
	maxTurns int
	windows  map[Key][]domain.Turn
	logger   *slog.Logger
}

func NewStore(maxTurns int, logger *slog.Logger) *Store {
	if maxTurns < 1 {
		maxTurns = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		maxTurns: maxTurns,
		windows:  make(map[Key][]domain.Turn),
		logger:   logger,
	}
}

// Append records one turn and returns a copy of the window after the
// mutation, oldest first. When the window is full the oldest turn is
// evicted.
func (s *Store) Append(key Key, role CallerRole, text string) []domain.Turn {
	turn := domain.Turn{Role: backendRole(role), Text: text}

	s.mu.Lock()
	defer s.mu.Unlock()

	window := append(s.windows[key], turn)
	if len(window) > s.maxTurns {
		window = window[len(window)-s.maxTurns:]
	}
	s.windows[key] = window
	s.logger.Debug("turn appended", "key", key.String(), "role", string(role), "turns", len(window))

	out := make([]domain.Turn, len(window))
	copy(out, window)
	return out
}

// Get returns a copy of the current window, empty if the key is unknown.
func (s *Store) Get(key Key) []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := s.windows[key]
	out := make([]domain.Turn, len(window))
	copy(out, window)
	return out
}

// Len reports the current window length for a key.
func (s *Store) Len(key Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows[key])
}

// FormatSummary renders the window as a numbered diagnostic listing, one
// line per turn, each text truncated to 100 characters with an ellipsis
// marker. Returns "" for an empty window.
func (s *Store) FormatSummary(key Key) string {
	window := s.Get(key)
	if len(window) == 0 {
		return ""
	}

	var b strings.Builder
	for i, turn := range window {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s: %s", i+1, turn.Role, truncate(turn.Text, summaryTruncateAt))
	}
	return b.String()
}

func backendRole(role CallerRole) domain.Role {
	if role == CallerAssistant {
		return domain.RoleModel
	}
	return domain.RoleUser
}

func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
