package pty

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	ptylib "github.com/creack/pty"
	"github.com/rs/xid"
)

// Size describes the dimensions of a pseudo terminal.
type Size struct {
	Cols        uint16
	Rows        uint16
	PixelWidth  uint16
	PixelHeight uint16
}

// DefaultSize is the size a session starts with before the UI reports
// its real dimensions.
func DefaultSize() Size {
	return Size{Cols: 80, Rows: 24}
}

func (s Size) winsize() *ptylib.Winsize {
	return &ptylib.Winsize{
		Cols: s.Cols,
		Rows: s.Rows,
		X:    s.PixelWidth,
		Y:    s.PixelHeight,
	}
}

// Session owns one PTY pair and the shell process attached to its slave
// side. It is only ever reachable through a Registry; callers never hold
// a Session across a registry call.
type Session struct {
	ID string

	ptmx   *file
	cmd    *exec.Cmd
	reader io.Reader // nil once taken

	snapshot *Snapshot
}

func spawnSession(size Size, shell string, termType string) (*Session, error) {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/bash"
	}

	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(), "TERM="+termType)

	f, err := ptylib.StartWithSize(cmd, size.winsize())
	if err != nil {
		return nil, fmt.Errorf("unable to start pty: %w", err)
	}

	ptmx := &file{File: f}

	return &Session{
		ID:       xid.New().String(),
		ptmx:     ptmx,
		cmd:      cmd,
		reader:   ptmx,
		snapshot: NewSnapshot(),
	}, nil
}

// Write sends bytes to the shell's stdin.
func (s *Session) Write(p []byte) error {
	if _, err := s.ptmx.Write(p); err != nil {
		return fmt.Errorf("failed to write to pty: %w", err)
	}
	return nil
}

// Resize changes the terminal dimensions.
func (s *Session) Resize(size Size) error {
	if err := s.ptmx.Setsize(size.winsize()); err != nil {
		return fmt.Errorf("failed to resize pty: %w", err)
	}
	return nil
}

// Snapshot returns the session's bounded output history.
func (s *Session) Snapshot() *Snapshot {
	return s.snapshot
}

// takeReader detaches the read half. Returns nil after the first call.
func (s *Session) takeReader() io.Reader {
	r := s.reader
	s.reader = nil
	return r
}

func (s *Session) close() error {
	// Reap the child first. Its exit closes the slave side, so a reader
	// blocked in file.Read returns and releases the read lock; only then
	// can Close take the write lock.
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_, _ = s.cmd.Process.Wait()
	}
	return s.ptmx.Close()
}

// file wraps the pty *os.File with a read/write mutex to prevent a data
// race between resizing, reading and closing.
type file struct {
	*os.File
	sync.RWMutex
}

func (f *file) Setsize(ws *ptylib.Winsize) error {
	f.RLock()
	defer f.RUnlock()

	return ptylib.Setsize(f.File, ws)
}

func (f *file) Read(p []byte) (n int, err error) {
	f.RLock()
	defer f.RUnlock()

	n, err = f.File.Read(p)
	return n, ptyError(err)
}

func (f *file) Close() error {
	f.Lock()
	defer f.Unlock()

	return f.File.Close()
}

// Linux returns EIO when reading from a master whose slave side is gone.
// Treat it as a normal end of stream.
// See https://github.com/creack/pty/issues/21
func ptyError(err error) error {
	if pathErr, ok := err.(*os.PathError); ok && pathErr.Err == syscall.EIO {
		return io.EOF
	}
	return err
}
