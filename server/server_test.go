//go:build !windows

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenterm/warden"
	"github.com/wardenterm/warden/internal/logging"
	"github.com/wardenterm/warden/ollama"
	"github.com/wardenterm/warden/pty"
	"github.com/wardenterm/warden/risk"
)

type staticChatter struct {
	reply string
}

func (s *staticChatter) Chat(context.Context, string, []ollama.Message) (*ollama.Message, error) {
	return &ollama.Message{Role: "assistant", Content: s.reply}, nil
}

type recordingNotifier struct {
	titles []string
}

func (n *recordingNotifier) Notify(title, _ string) error {
	n.titles = append(n.titles, title)
	return nil
}

func newTestServer(t *testing.T, chatter risk.Chatter) (*Server, *httptest.Server, *recordingNotifier) {
	t.Helper()

	logger := logging.Must()
	notifier := &recordingNotifier{}
	srv := &Server{
		Registry: pty.NewRegistry("xterm-256color"),
		Ollama:   ollama.NewClient(warden.DefaultOllamaHost, warden.DefaultModel),
		Pipeline: risk.NewPipeline(chatter, logger.Logger),
		Logger:   logger,
		Notifier: notifier,
	}
	t.Cleanup(func() { _ = srv.Registry.Close() })

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", srv.handleSpawn)
	mux.HandleFunc("GET /sessions", srv.handleListSessions)
	mux.HandleFunc("DELETE /sessions/{id}", srv.handleRemove)
	mux.HandleFunc("POST /sessions/{id}/write", srv.handleWrite)
	mux.HandleFunc("POST /sessions/{id}/resize", srv.handleResize)
	mux.HandleFunc("GET /sessions/{id}/context", srv.handleContext)
	mux.HandleFunc("POST /analyze", srv.handleAnalyze)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return srv, ts, notifier
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	_, ts, _ := newTestServer(t, &staticChatter{})

	// spawn
	resp := postJSON(t, ts.URL+"/sessions", map[string]string{"shell": "/bin/sh"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var spawned struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&spawned))
	resp.Body.Close()
	require.NotEmpty(t, spawned.SessionID)

	// write
	resp = postJSON(t, ts.URL+"/sessions/"+spawned.SessionID+"/write", map[string]string{"data": "echo ctx_marker\n"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	// context eventually reflects the write
	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/sessions/" + spawned.SessionID + "/context?lines=50")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var ctx struct {
			SessionID string `json:"session_id"`
			Text      string `json:"text"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&ctx); err != nil {
			return false
		}
		return strings.Contains(ctx.Text, "ctx_marker")
	}, 5*time.Second, 50*time.Millisecond)

	// resize
	resp = postJSON(t, ts.URL+"/sessions/"+spawned.SessionID+"/resize", map[string]int{"cols": 100, "rows": 30})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	// remove
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+spawned.SessionID, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	// gone
	resp, err = http.Get(ts.URL + "/sessions/" + spawned.SessionID + "/context")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestWriteUnknownSession(t *testing.T) {
	_, ts, _ := newTestServer(t, &staticChatter{})

	resp := postJSON(t, ts.URL+"/sessions/unknown/write", map[string]string{"data": "x"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAnalyzeEndpointNotifiesOnReview(t *testing.T) {
	_, ts, notifier := newTestServer(t, &staticChatter{
		reply: `{"summary":"bad","is_risky":true,"risk_reason":"catastrophic"}`,
	})

	resp := postJSON(t, ts.URL+"/analyze", map[string]string{"command": "sudo rm -rf /"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out risk.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, risk.ActionReview, out.Action)
	require.NotNil(t, out.Report)
	assert.Len(t, notifier.titles, 1)
}

func TestAnalyzeEndpointBenignSkipsNotification(t *testing.T) {
	_, ts, notifier := newTestServer(t, &staticChatter{})

	resp := postJSON(t, ts.URL+"/analyze", map[string]string{"command": "ls"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out risk.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, risk.ActionRun, out.Action)
	assert.Empty(t, notifier.titles)
}

func TestRequireToken(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	ts := httptest.NewServer(requireToken("secret", inner))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	resp, err = http.Get(ts.URL + "?token=secret")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestUserPromptPrefixesContext(t *testing.T) {
	srv, _, _ := newTestServer(t, &staticChatter{})

	id, err := srv.Registry.CreateSession(pty.DefaultSize(), "/bin/sh")
	require.NoError(t, err)
	snap, err := srv.Registry.Snapshot(id)
	require.NoError(t, err)
	snap.Append("\x1b[31mred output\x1b[0m\n")

	got := srv.userPrompt(warden.AskRequest{Prompt: "what happened?", SessionID: id})
	assert.Contains(t, got, "Recent terminal output:")
	assert.Contains(t, got, "red output")
	assert.NotContains(t, got, "\x1b[31m", "escape sequences are stripped")
	assert.Contains(t, got, "User request:\nwhat happened?")
}

func TestUserPromptWithoutContext(t *testing.T) {
	srv, _, _ := newTestServer(t, &staticChatter{})

	got := srv.userPrompt(warden.AskRequest{Prompt: "hello"})
	assert.Equal(t, "hello", got)
}
