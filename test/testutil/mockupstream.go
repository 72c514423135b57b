package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/zhengjr9/thinkflow/internal/chat"
)

// MockUpstream is an httptest.Server that simulates an OpenAI-compatible
// /chat/completions streaming endpoint.
type MockUpstream struct {
	Server *httptest.Server

	// Field is the delta field chunks are sent in: "reasoning_content" or "content".
	Field  string
	Chunks []string
	// Status, when non-zero, is returned instead of a stream.
	Status int
	// DropAfter, when positive, aborts the connection after that many chunks.
	DropAfter int
	// Raw lines sent before the chunks, verbatim.
	Preamble []string

	mu       sync.Mutex
	requests []chat.CompletionRequest
	auth     []string
}

// NewMockUpstream creates and starts a mock upstream that streams chunks in field.
func NewMockUpstream(field string, chunks ...string) *MockUpstream {
	m := &MockUpstream{Field: field, Chunks: chunks}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.Server.Close()
}

// URL returns the base URL of the mock server.
func (m *MockUpstream) URL() string {
	return m.Server.URL
}

// Requests returns every request body received so far.
func (m *MockUpstream) Requests() []chat.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chat.CompletionRequest(nil), m.requests...)
}

// Authorizations returns every Authorization header received so far.
func (m *MockUpstream) Authorizations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.auth...)
}

func (m *MockUpstream) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/chat/completions" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req chat.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.auth = append(m.auth, r.Header.Get("Authorization"))
	m.mu.Unlock()

	if m.Status != 0 {
		http.Error(w, `{"error":"mock failure"}`, m.Status)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	for _, line := range m.Preamble {
		fmt.Fprintf(w, "%s\n", line)
	}
	for i, chunk := range m.Chunks {
		if m.DropAfter > 0 && i == m.DropAfter {
			m.abort(w)
			return
		}
		data, _ := json.Marshal(map[string]any{
			"object":  "chat.completion.chunk",
			"choices": []any{map[string]any{"index": 0, "delta": map[string]any{m.Field: chunk}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

// abort closes the connection mid-body so the client sees an unexpected EOF.
func (m *MockUpstream) abort(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic(http.ErrAbortHandler)
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		panic(http.ErrAbortHandler)
	}
	conn.Close()
}
