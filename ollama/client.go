// Package ollama is a minimal client for the chat API of a local
// Ollama server. Streaming replies arrive as newline-delimited JSON;
// the client buffers partial lines across reads so a chunk split by
// the network is never misparsed.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

const requestTimeout = 30 * time.Second

// Message is one turn of a chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a /api/chat call.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// Chunk is one streamed response object. Non-streaming calls return a
// single Chunk with Done set.
type Chunk struct {
	Message *Message `json:"message,omitempty"`
	Done    bool     `json:"done"`
	Error   string   `json:"error,omitempty"`
}

// StatusError reports a non-2xx reply, preserving the server's detail.
type StatusError struct {
	StatusCode int
	Status     string
	Detail     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama responded with %s: %s", e.Status, e.Detail)
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Client talks to one Ollama server.
type Client struct {
	Host         string // e.g. http://127.0.0.1:11434
	DefaultModel string

	httpClient *http.Client
}

func NewClient(host, defaultModel string) *Client {
	return &Client{
		Host:         strings.TrimRight(host, "/"),
		DefaultModel: defaultModel,
		httpClient:   &http.Client{Timeout: requestTimeout},
	}
}

// Model resolves an optional model override against the default.
func (c *Client) Model(override string) string {
	if override != "" {
		return override
	}
	return c.DefaultModel
}

func (c *Client) post(ctx context.Context, req ChatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Detail:     strings.TrimSpace(string(detail)),
		}
	}

	return resp, nil
}

// Chat performs a non-streaming exchange and returns the reply message.
func (c *Client) Chat(ctx context.Context, model string, messages []Message) (*Message, error) {
	resp, err := c.post(ctx, ChatRequest{Model: c.Model(model), Messages: messages, Stream: false})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var chunk Chunk
	if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
		return nil, fmt.Errorf("malformed chat response: %w", err)
	}
	if chunk.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", chunk.Error)
	}
	if chunk.Message == nil {
		return nil, fmt.Errorf("chat response carried no message")
	}
	return chunk.Message, nil
}

// ChatStream performs a streaming exchange, invoking fn once per chunk
// in receipt order. A trailing line without a terminator is flushed
// when the body ends. fn returning an error stops consumption.
func (c *Client) ChatStream(ctx context.Context, model string, messages []Message, fn func(Chunk) error) error {
	resp, err := c.post(ctx, ChatRequest{Model: c.Model(model), Messages: messages, Stream: true})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk Chunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return fmt.Errorf("malformed stream chunk: %w", err)
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Health reports whether the server answers /api/tags.
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// ListModels returns the names of the locally available models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to fetch models (%s): %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, err
	}

	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

// WaitReady polls the server until it answers or attempts run out.
// Used once at startup so the bridge comes up after a cold-started
// Ollama instance.
func (c *Client) WaitReady(ctx context.Context, attempts uint) error {
	return retry.Do(
		func() error {
			if !c.Health(ctx) {
				return fmt.Errorf("ollama not reachable at %s", c.Host)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.DelayType(retry.BackOffDelay),
	)
}
