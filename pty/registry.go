package pty

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrReaderTaken is returned when a session's read half was already
	// detached.
	ErrReaderTaken = errors.New("reader already taken")
)

// Registry tracks the live PTY sessions of one backend process. All
// access to a session goes through WithSession so a session is never
// mutated concurrently.
type Registry struct {
	// TermType is the TERM value exported to spawned shells.
	TermType string

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(termType string) *Registry {
	return &Registry{
		TermType: termType,
		sessions: make(map[string]*Session),
	}
}

// CreateSession spawns a shell on a fresh PTY pair and registers it.
// The spawn happens outside the registry lock; creation either returns
// a ready session id or fails without leaving an entry behind.
func (r *Registry) CreateSession(size Size, shell string) (string, error) {
	sess, err := spawnSession(size, shell, r.TermType)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()
	activeSessions.Inc()

	return sess.ID, nil
}

// WithSession runs fn with exclusive access to the session. This is the
// only path by which write and resize reach a session.
func (r *Registry) WithSession(id string, fn func(*Session) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return fn(sess)
}

// TakeReader detaches the session's read half. It succeeds exactly once
// per session.
func (r *Registry) TakeReader(id string) (io.Reader, error) {
	var reader io.Reader
	err := r.WithSession(id, func(sess *Session) error {
		if reader = sess.takeReader(); reader == nil {
			return fmt.Errorf("session %s: %w", id, ErrReaderTaken)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reader, nil
}

// Snapshot returns the session's output snapshot. The snapshot carries
// its own lock, so holding it past this call is safe.
func (r *Registry) Snapshot(id string) (*Snapshot, error) {
	var snap *Snapshot
	err := r.WithSession(id, func(sess *Session) error {
		snap = sess.Snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// RemoveSession drops the session, closing the PTY and killing the
// shell. Removing an unknown id is a no-op.
func (r *Registry) RemoveSession(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		_ = sess.close()
		activeSessions.Dec()
	}
}

// IDs returns the registered session ids in stable order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Close tears down every session, collecting close errors.
func (r *Registry) Close() error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var result *multierror.Error
	for _, sess := range sessions {
		if err := sess.close(); err != nil {
			result = multierror.Append(result, err)
		}
		activeSessions.Dec()
	}
	return result.ErrorOrNil()
}
