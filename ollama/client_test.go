package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat_NonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "llama3", req.Model)

		_ = json.NewEncoder(w).Encode(Chunk{
			Message: &Message{Role: "assistant", Content: "hello"},
			Done:    true,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "llama3")
	msg, err := c.Chat(context.Background(), "", []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
}

func TestChat_ModelOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "codellama", req.Model)
		_ = json.NewEncoder(w).Encode(Chunk{Message: &Message{Content: "ok"}, Done: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "llama3")
	_, err := c.Chat(context.Background(), "codellama", nil)
	require.NoError(t, err)
}

func TestChat_NonSuccessStatusCarriesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "llama3")
	_, err := c.Chat(context.Background(), "", nil)
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Contains(t, statusErr.Detail, "model not found")
}

func TestChatStream_OrderedChunksWithPartialLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)

		// one chunk split across two writes plus a blank line and a
		// trailing line without a terminator
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"a"},`))
		flusher.Flush()
		_, _ = w.Write([]byte(`"done":false}` + "\n"))
		flusher.Flush()
		time.Sleep(10 * time.Millisecond)
		_, _ = w.Write([]byte("\n"))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"b"},"done":false}` + "\n"))
		flusher.Flush()
		_, _ = w.Write([]byte(`{"done":true}`)) // no trailing newline
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "llama3")

	var contents []string
	var doneSeen bool
	err := c.ChatStream(context.Background(), "", nil, func(chunk Chunk) error {
		if chunk.Message != nil {
			contents = append(contents, chunk.Message.Content)
		}
		if chunk.Done {
			doneSeen = true
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, contents)
	assert.True(t, doneSeen)
}

func TestChatStream_CallbackErrorStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"a"},"done":false}` + "\n"))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"b"},"done":false}` + "\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "llama3")
	calls := 0
	err := c.ChatStream(context.Background(), "", nil, func(Chunk) error {
		calls++
		return context.Canceled
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3"},{"name":"codellama"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "llama3")
	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3", "codellama"}, models)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	c := NewClient(srv.URL, "llama3")
	assert.True(t, c.Health(context.Background()))

	srv.Close()
	assert.False(t, c.Health(context.Background()))
}

func TestWaitReady_GivesUp(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "llama3")
	err := c.WaitReady(context.Background(), 2)
	require.Error(t, err)
}
