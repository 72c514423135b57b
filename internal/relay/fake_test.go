package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/zhengjr9/thinkflow/internal/chat"
	apierrors "github.com/zhengjr9/thinkflow/internal/errors"
)

// script is what the fake upstream returns for one endpoint.
type script struct {
	lines []string
	// err, when set, is reported after lines.
	err error
}

// fakeStreamer serves scripts by endpoint and records every request.
type fakeStreamer struct {
	mu       sync.Mutex
	scripts  map[string]script
	requests map[string][]chat.CompletionRequest
	keys     map[string][]string
	opened   int
	closed   int
}

func newFakeStreamer(scripts map[string]script) *fakeStreamer {
	return &fakeStreamer{
		scripts:  scripts,
		requests: map[string][]chat.CompletionRequest{},
		keys:     map[string][]string{},
	}
}

func (f *fakeStreamer) Stream(ctx context.Context, endpoint string, payload any, apiKey string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		// Round-trip through JSON to record exactly what would be sent.
		raw, err := json.Marshal(payload)
		if err != nil {
			yield("", err)
			return
		}
		var req chat.CompletionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			yield("", err)
			return
		}

		f.mu.Lock()
		f.requests[endpoint] = append(f.requests[endpoint], req)
		f.keys[endpoint] = append(f.keys[endpoint], apiKey)
		f.opened++
		s, ok := f.scripts[endpoint]
		f.mu.Unlock()
		defer func() {
			f.mu.Lock()
			f.closed++
			f.mu.Unlock()
		}()

		if !ok {
			yield("", &apierrors.TransportError{Endpoint: endpoint, Err: fmt.Errorf("no script")})
			return
		}
		for _, l := range s.lines {
			if err := ctx.Err(); err != nil {
				yield("", &apierrors.TransportError{Endpoint: endpoint, Err: err})
				return
			}
			if !yield(l, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}
}

func (f *fakeStreamer) requestsTo(endpoint string) []chat.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[endpoint]
}

func reasoningLine(text string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{"reasoning_content":%q}}]}`, text)
}

func contentLine(text string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q}}]}`, text)
}

var errReset = &apierrors.TransportError{Endpoint: "test", Err: errors.New("connection reset by peer")}
