// Package upstream streams chat completions from an OpenAI-compatible service.
package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	apierrors "github.com/zhengjr9/thinkflow/internal/errors"
)

const (
	// DefaultTimeout bounds the wait for the first byte and between bytes.
	DefaultTimeout = 30 * time.Second

	completionsPath = "/chat/completions"
	maxLineSize     = 1024 * 1024
	maxErrorBody    = 4096
)

// Streamer opens a streaming POST and exposes the response as lines.
// Client is the production implementation; tests substitute fakes.
type Streamer interface {
	Stream(ctx context.Context, endpoint string, payload any, apiKey string) iter.Seq2[string, error]
}

// Client sends streaming chat completion requests.
type Client struct {
	httpClient *http.Client
	// timeout is an idle timeout, not a deadline for the whole stream.
	timeout time.Duration
}

// NewClient constructs a Client with the given idle timeout and optional
// proxy URL. proxyURL may be empty to use the default environment proxy.
func NewClient(timeout time.Duration, proxyURL string) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := &http.Transport{
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: timeout,
		IdleConnTimeout:     90 * time.Second,
	}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &Client{
		// No client timeout: a stream may legitimately run for minutes.
		httpClient: &http.Client{Transport: transport},
		timeout:    timeout,
	}
}

// Endpoint returns the chat completions URL for baseURL. A baseURL that
// already ends with /chat/completions is used as is.
func Endpoint(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(u, completionsPath) {
		u += completionsPath
	}
	return u
}

// Stream POSTs payload as JSON to endpoint and yields the response body line
// by line. Nothing is sent until the sequence is first pulled. The response
// body is closed when the sequence ends, including when the consumer stops
// early. Every failure is reported as a *errors.TransportError and ends the
// sequence.
func (c *Client) Stream(ctx context.Context, endpoint string, payload any, apiKey string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		fail := func(err error) {
			yield("", &apierrors.TransportError{Endpoint: endpoint, Err: err})
		}

		body, err := json.Marshal(payload)
		if err != nil {
			fail(fmt.Errorf("marshal request: %w", err))
			return
		}

		ctx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)
		idle := time.AfterFunc(c.timeout, func() { cancel(apierrors.ErrUpstreamTimeout) })
		defer idle.Stop()

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			fail(fmt.Errorf("build request: %w", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			fail(cause(ctx, err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			yield("", &apierrors.TransportError{
				Endpoint:   endpoint,
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(raw)),
				Err:        apierrors.ErrUpstreamStatus,
			})
			return
		}

		scanner := bufio.NewScanner(&idleReader{r: resp.Body, timer: idle, timeout: c.timeout})
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			// A slow consumer must not count against the upstream.
			idle.Stop()
			if !yield(strings.TrimSuffix(scanner.Text(), "\r"), nil) {
				return
			}
			idle.Reset(c.timeout)
		}
		if err := scanner.Err(); err != nil {
			fail(fmt.Errorf("read stream: %w", cause(ctx, err)))
		}
	}
}

// cause prefers the cancellation cause recorded on ctx, so an idle timeout
// surfaces as ErrUpstreamTimeout rather than a bare "context canceled".
func cause(ctx context.Context, err error) error {
	if c := context.Cause(ctx); c != nil && !errors.Is(err, c) {
		return fmt.Errorf("%w: %v", c, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", apierrors.ErrUpstreamTimeout, err)
	}
	return err
}

// idleReader re-arms timer after every successful read.
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.timer.Reset(ir.timeout)
	}
	return n, err
}
