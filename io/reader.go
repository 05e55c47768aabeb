// Package io carries small I/O helpers used by the bridge clients.
package io

import (
	"context"
	"io"
)

// NewContextReader wraps r so reads return once ctx is done, even when
// the underlying Read blocks in a syscall. The pending read goroutine
// is abandoned; its result is discarded.
func NewContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &contextReader{r: r, ctx: ctx}
}

type contextReader struct {
	r   io.Reader
	ctx context.Context
}

type result struct {
	n   int
	err error
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}

	ch := make(chan result, 1)
	go func() {
		defer close(ch)

		n, err := cr.r.Read(p)
		ch <- result{n, err}
	}()

	select {
	case res := <-ch:
		return res.n, res.err
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	}
}
