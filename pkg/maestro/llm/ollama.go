package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultHost is the conventional address of a local Ollama server.
const DefaultHost = "http://localhost:11434"

// OfflineMarker is returned by ListModels when the server is unreachable,
// so UIs can show a degraded state instead of an empty model list.
const OfflineMarker = "OLLAMA_OFFLINE"

// Ollama implements Client against an Ollama-compatible HTTP server.
type Ollama struct {
	host       string
	httpClient *http.Client
}

// OllamaOption configures an Ollama client.
type OllamaOption func(*Ollama)

// NewOllama creates a client for the given host.
// An empty host selects DefaultHost.
func NewOllama(host string, opts ...OllamaOption) *Ollama {
	if host == "" {
		host = DefaultHost
	}
	c := &Ollama{
		host:       host,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithHTTPClient overrides the underlying HTTP client, e.g. to set a
// per-request timeout. Streaming calls should use a client without a global
// timeout since responses can legitimately run for minutes.
func WithHTTPClient(hc *http.Client) OllamaOption {
	return func(c *Ollama) { c.httpClient = hc }
}

// chatChunk is one JSON body (blocking) or line (streaming) of /api/chat.
type chatChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// Chat implements Client.
func (c *Ollama) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	req.Stream = false
	resp, err := c.post(ctx, "chat", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError("chat", fmt.Errorf("read response: %w", err), true)
	}

	var chunk chatChunk
	if err := json.Unmarshal(body, &chunk); err != nil {
		return nil, NewError("chat", fmt.Errorf("malformed response body: %w", err), false)
	}

	return &ChatResponse{
		Content:  chunk.Message.Content,
		Model:    req.Model,
		Duration: time.Since(start),
	}, nil
}

// Stream implements Client.
// Chunks are emitted in arrival order; the stream ends when the server sends
// a done chunk or closes the connection.
func (c *Ollama) Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	req.Stream = true
	resp, err := c.post(ctx, "chat", req)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			var chunk chatChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				c.emit(ctx, ch, StreamChunk{Error: NewError("stream", fmt.Errorf("malformed chunk: %w", err), false)})
				return
			}

			if chunk.Message.Content != "" {
				if !c.emit(ctx, ch, StreamChunk{Content: chunk.Message.Content}) {
					return
				}
			}
			if chunk.Done {
				c.emit(ctx, ch, StreamChunk{Done: true})
				return
			}
		}

		if err := scanner.Err(); err != nil {
			c.emit(ctx, ch, StreamChunk{Error: NewError("stream", fmt.Errorf("read stream: %w", err), true)})
			return
		}

		// Connection closed without an explicit done chunk.
		c.emit(ctx, ch, StreamChunk{Done: true})
	}()

	return ch, nil
}

// emit delivers a chunk unless the context is cancelled first.
func (c *Ollama) emit(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// post issues the /api/<endpoint> request and checks the status.
func (c *Ollama) post(ctx context.Context, endpoint string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError(endpoint, fmt.Errorf("encode request: %w", err), false)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(endpoint, err, false)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewError(endpoint, err, true)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("unexpected status %s: %s", resp.Status, bytes.TrimSpace(detail))
		return nil, NewError(endpoint, err, isRetryableStatus(resp.Status))
	}

	return resp, nil
}

// ListModels returns the names of models installed on the server.
// When the server is unreachable it returns [OfflineMarker] and no error.
func (c *Ollama) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return nil, NewError("tags", err, false)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return []string{OfflineMarker}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return []string{OfflineMarker}, nil
	}

	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, NewError("tags", fmt.Errorf("malformed response body: %w", err), false)
	}

	names := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
