package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/wardenterm/warden/pty"
	"github.com/wardenterm/warden/risk"
)

const defaultContextLines = 200

type spawnRequest struct {
	Cols  uint16 `json:"cols,omitempty"`
	Rows  uint16 `json:"rows,omitempty"`
	Shell string `json:"shell,omitempty"`
}

type spawnResponse struct {
	SessionID string `json:"session_id"`
}

type writeRequest struct {
	Data string `json:"data"`
}

type resizeRequest struct {
	Cols        uint16  `json:"cols"`
	Rows        uint16  `json:"rows"`
	PixelWidth  *uint16 `json:"pixel_width,omitempty"`
	PixelHeight *uint16 `json:"pixel_height,omitempty"`
}

type contextResponse struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type analyzeRequest struct {
	Command string `json:"command"`
	Model   string `json:"model,omitempty"`
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	var req spawnRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	size := pty.DefaultSize()
	if req.Cols > 0 && req.Rows > 0 {
		size.Cols, size.Rows = req.Cols, req.Rows
	}

	id, err := s.Registry.CreateSession(size, req.Shell)
	if err != nil {
		s.Logger.Error("failed to spawn session", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	reader, err := s.Registry.TakeReader(id)
	if err != nil {
		// the registry inserted the session moments ago; losing its
		// reader means the entry is unusable
		s.Registry.RemoveSession(id)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	snap, err := s.Registry.Snapshot(id)
	if err != nil {
		s.Registry.RemoveSession(id)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	go pty.ReaderLoop(id, reader, snap, s.Emitter())

	s.Logger.Info("session spawned", "session_id", id)
	writeJSON(w, http.StatusCreated, spawnResponse{SessionID: id})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": s.Registry.IDs()})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.Registry.RemoveSession(id)
	s.Logger.Info("session removed", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req writeRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := s.Registry.WithSession(r.PathValue("id"), func(sess *pty.Session) error {
		return sess.Write([]byte(req.Data))
	})
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	size := pty.Size{Cols: req.Cols, Rows: req.Rows}
	if req.PixelWidth != nil {
		size.PixelWidth = *req.PixelWidth
	}
	if req.PixelHeight != nil {
		size.PixelHeight = *req.PixelHeight
	}

	err := s.Registry.WithSession(r.PathValue("id"), func(sess *pty.Session) error {
		return sess.Resize(size)
	})
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	lines := defaultContextLines
	if q := r.URL.Query().Get("lines"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			http.Error(w, "lines must be an integer", http.StatusBadRequest)
			return
		}
		lines = n
	}

	snap, err := s.Registry.Snapshot(id)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, contextResponse{
		SessionID: id,
		Text:      snap.LastLines(lines),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := s.Pipeline.Analyze(r.Context(), req.Command, req.Model)
	if resp.Action == risk.ActionReview {
		s.notifyRisky(req.Command, resp.Report)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.Ollama.ListModels(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"models": models})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ollama": s.Ollama.Health(r.Context())})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRegistryError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, pty.ErrSessionNotFound) {
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}
