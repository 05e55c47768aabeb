package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/olebedev/emitter"

	"github.com/wardenterm/warden"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleEvents upgrades to a WebSocket, forwards emitter topics to the
// client and accepts "ask" frames that start streamed assistant
// exchanges.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("ws upgrade failed", "error", err)
		return
	}

	c := &wsConn{
		server: s,
		conn:   conn,
		send:   make(chan warden.EventFrame, 64),
		done:   make(chan struct{}),
	}
	go c.writePump()
	go c.forwardEvents()
	c.readPump()
}

type wsConn struct {
	server *Server
	conn   *websocket.Conn
	send   chan warden.EventFrame
	done   chan struct{}
}

// forwardEvents subscribes to both emitter topics and queues frames
// for the writer. Dropping a slow client rather than blocking the
// publishing reader loop is deliberate.
func (c *wsConn) forwardEvents() {
	em := c.server.Emitter()
	outputs := em.On(warden.EventTerminalOutput)
	chunks := em.On(warden.EventAssistantChunk)
	defer em.Off(warden.EventTerminalOutput, outputs)
	defer em.Off(warden.EventAssistantChunk, chunks)

	for {
		var (
			topic string
			evt   emitter.Event
			ok    bool
		)
		select {
		case <-c.done:
			return
		case evt, ok = <-outputs:
			topic = warden.EventTerminalOutput
		case evt, ok = <-chunks:
			topic = warden.EventAssistantChunk
		}
		if !ok {
			return
		}
		if len(evt.Args) == 0 {
			continue
		}

		payload, err := json.Marshal(evt.Args[0])
		if err != nil {
			continue
		}
		select {
		case c.send <- warden.EventFrame{Event: topic, Payload: payload}:
		case <-c.done:
			return
		default:
			// slow client: drop the frame instead of stalling the
			// publishing reader loop
		}
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) readPump() {
	defer close(c.done)
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req warden.AskRequest
		if err := c.conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Type != "ask" {
			continue
		}
		// asks are not tied to the lifetime of the connection that
		// issued them; every connected shell sees the chunks
		go c.server.askModel(context.Background(), req)
	}
}
