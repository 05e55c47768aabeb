// Package server is the local bridge the GUI shell talks to. It owns
// the HTTP surface for session and analysis operations and a WebSocket
// endpoint that fans terminal output and assistant chunks out to
// connected shells.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/dchest/uniuri"
	"github.com/olebedev/emitter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wardenterm/warden/internal/logging"
	"github.com/wardenterm/warden/ollama"
	"github.com/wardenterm/warden/pty"
	"github.com/wardenterm/warden/risk"
)

const bridgeTokenLen = 32

// Server bridges the GUI shell to the PTY registry, the risk pipeline
// and the model client.
type Server struct {
	Registry *pty.Registry
	Ollama   *ollama.Client
	Pipeline *risk.Pipeline
	Logger   *logging.Logger

	// Notifier raises a desktop notification for risky verdicts. Nil
	// disables notifications.
	Notifier Notifier

	token   string
	emitter *emitter.Emitter

	srv *http.Server
	mux sync.Mutex
}

// Token returns the bearer token the GUI must present. It is generated
// once per process.
func (s *Server) Token() string {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.token == "" {
		s.token = uniuri.NewLen(bridgeTokenLen)
	}
	return s.token
}

// Emitter returns the event bus reader loops publish to.
func (s *Server) Emitter() *emitter.Emitter {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.emitter == nil {
		s.emitter = emitter.New(1)
	}
	return s.emitter
}

// Serve accepts connections until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	token := s.Token()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", s.handleSpawn)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleRemove)
	mux.HandleFunc("POST /sessions/{id}/write", s.handleWrite)
	mux.HandleFunc("POST /sessions/{id}/resize", s.handleResize)
	mux.HandleFunc("GET /sessions/{id}/context", s.handleContext)
	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("GET /models", s.handleModels)
	mux.HandleFunc("GET /events", s.handleEvents)

	open := http.NewServeMux()
	open.Handle("/metrics", promhttp.Handler())
	open.HandleFunc("GET /health", s.handleHealth)
	open.Handle("/", requireToken(token, mux))

	s.mux.Lock()
	s.srv = &http.Server{Handler: open}
	s.mux.Unlock()

	return s.srv.Serve(ln)
}

// Shutdown stops the HTTP server and tears down every session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mux.Lock()
	srv := s.srv
	s.mux.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			return err
		}
	}
	return s.Registry.Close()
}

// requireToken guards the session and assistant surface with the
// process-local bearer token. WebSocket clients pass it as a query
// parameter since browsers cannot set headers on upgrade requests.
func requireToken(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("Authorization")
		if got == "" {
			got = "Bearer " + r.URL.Query().Get("token")
		}
		if got != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
