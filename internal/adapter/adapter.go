// Package adapter defines the contract between caller API formats and the
// relay.
package adapter

import (
	"iter"
	"net/http"

	"github.com/zhengjr9/thinkflow/internal/relay"
)

// Adapter translates between a caller's API format and the relay.
type Adapter interface {
	// Surface names the format in logs and metrics, e.g. "openai".
	Surface() string

	// DecodeRequest parses the incoming request into a relay Body and reports
	// whether the caller asked for a streaming response.
	DecodeRequest(r *http.Request) (relay.Body, bool, error)

	// WriteBlockingResponse encodes the whole relay output as one response.
	WriteBlockingResponse(w http.ResponseWriter, text string) error

	// WriteStreamingResponse consumes the relay sequence and encodes each chunk
	// into the caller's streaming format, flushing after each write. A relay
	// failure is written in-band and then returned.
	WriteStreamingResponse(w http.ResponseWriter, stream iter.Seq2[string, error]) error
}
