package pty

import (
	"fmt"
	"io"

	"github.com/olebedev/emitter"

	"github.com/wardenterm/warden"
)

const readChunkSize = 4096

// Output is the payload published for every chunk a session produces.
type Output struct {
	SessionID string `json:"session_id"`
	Data      string `json:"data"`
}

// ReaderLoop drains a session's read half until end of stream, feeding
// each chunk to the session snapshot and publishing it on the emitter.
// Run it on its own goroutine; Read blocks in a syscall.
//
// A read error publishes one final marker chunk and stops. The session
// stays registered either way; teardown is an explicit, separate call.
func ReaderLoop(sessionID string, r io.Reader, snap *Snapshot, em *emitter.Emitter) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			// rune conversion replaces every invalid sequence, not the
			// whole run at once
			data := string([]rune(string(buf[:n])))
			snap.Append(data)
			<-em.Emit(warden.EventTerminalOutput, Output{SessionID: sessionID, Data: data})
			bytesRead.Add(float64(n))
		}
		if err != nil {
			if err != io.EOF {
				<-em.Emit(warden.EventTerminalOutput, Output{
					SessionID: sessionID,
					Data:      fmt.Sprintf("[PTY ERROR] %v", err),
				})
			}
			return
		}
	}
}
