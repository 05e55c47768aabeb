package pty

import (
	"strings"
	"sync"
)

const (
	// SnapshotCap bounds the bytes of output history kept per session.
	SnapshotCap = 16 * 1024
	// MaxSnapshotLines bounds how many trailing lines LastLines returns.
	MaxSnapshotLines = 400
)

// Snapshot is a bounded record of a session's recent output. It exists
// to answer "what just happened in this terminal" for the assistant; it
// is never rendered, so evicting mid-rune at the cap boundary is fine.
type Snapshot struct {
	mu  sync.Mutex
	buf []byte
}

func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// Append adds chunk, evicting the oldest bytes once the cap is hit.
func (s *Snapshot) Append(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf, chunk...)
	if over := len(s.buf) - SnapshotCap; over > 0 {
		s.buf = append(s.buf[:0], s.buf[over:]...)
	}
}

// Len returns the buffered byte count.
func (s *Snapshot) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.buf)
}

// LastLines returns up to limit trailing lines in chronological order,
// newline joined. limit is clamped to [1, MaxSnapshotLines]. An empty
// snapshot yields an empty string.
func (s *Snapshot) LastLines(limit int) string {
	if limit < 1 {
		limit = 1
	}
	if limit > MaxSnapshotLines {
		limit = MaxSnapshotLines
	}

	s.mu.Lock()
	content := string(s.buf)
	s.mu.Unlock()

	if content == "" {
		return ""
	}

	lines := strings.Split(content, "\n")
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return strings.Join(lines, "\n")
}
