package anthropic

import (
	"encoding/json"
	"fmt"
	"iter"
	"net/http"

	"github.com/google/uuid"

	"github.com/zhengjr9/thinkflow/internal/chat"
	apierrors "github.com/zhengjr9/thinkflow/internal/errors"
	"github.com/zhengjr9/thinkflow/internal/httputil"
	"github.com/zhengjr9/thinkflow/internal/relay"
)

// Adapter serves the Anthropic Messages format.
type Adapter struct {
	model string
}

func New(model string) *Adapter {
	return &Adapter{model: model}
}

func (a *Adapter) Surface() string { return "anthropic" }

// DecodeRequest converts an Anthropic Messages request to a relay Body.
// A top-level system prompt becomes a leading system message.
func (a *Adapter) DecodeRequest(r *http.Request) (relay.Body, bool, error) {
	var req MessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return relay.Body{}, false, fmt.Errorf("%w: %v", apierrors.ErrMalformedBody, err)
	}
	return relay.Body{Messages: toMessages(req.Messages, req.System), Temperature: req.Temperature}, req.Stream, nil
}

func toMessages(msgs []Message, system string) []chat.Message {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]chat.Message, 0, len(msgs)+1)
	if system != "" {
		out = append(out, chat.Message{Role: chat.RoleSystem, Content: system})
	}
	for _, m := range msgs {
		out = append(out, chat.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// WriteBlockingResponse encodes the relay output as an Anthropic MessagesResponse.
func (a *Adapter) WriteBlockingResponse(w http.ResponseWriter, text string) error {
	out := a.message(newID())
	out.Content = []Content{{Type: "text", Text: text}}
	out.StopReason = "end_turn"
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(out)
}

// WriteStreamingResponse encodes relay chunks as Anthropic SSE events.
func (a *Adapter) WriteStreamingResponse(w http.ResponseWriter, stream iter.Seq2[string, error]) error {
	start := a.message(newID())
	start.Content = []Content{}
	if err := httputil.WriteEvent(w, "message_start", StreamEvent{Type: "message_start", Message: &start}); err != nil {
		return err
	}
	blockStart := StreamEvent{Type: "content_block_start", Index: 0, ContentBlock: &Content{Type: "text"}}
	if err := httputil.WriteEvent(w, "content_block_start", blockStart); err != nil {
		return err
	}

	for text, err := range stream {
		if err != nil {
			_ = httputil.WriteEvent(w, "error", ErrorEvent{
				Type:  "error",
				Error: ErrorDetail{Type: "api_error", Message: err.Error()},
			})
			return err
		}
		delta := StreamEvent{
			Type:  "content_block_delta",
			Index: 0,
			Delta: &Delta{Type: "text_delta", Text: text},
		}
		if err := httputil.WriteEvent(w, "content_block_delta", delta); err != nil {
			return err
		}
	}

	if err := httputil.WriteEvent(w, "content_block_stop", StreamEvent{Type: "content_block_stop", Index: 0}); err != nil {
		return err
	}
	if err := httputil.WriteEvent(w, "message_delta", StreamEvent{Type: "message_delta", Delta: &Delta{StopReason: "end_turn"}}); err != nil {
		return err
	}
	return httputil.WriteEvent(w, "message_stop", map[string]any{"type": "message_stop"})
}

func (a *Adapter) message(id string) MessagesResponse {
	return MessagesResponse{
		ID:    id,
		Type:  "message",
		Role:  chat.RoleAssistant,
		Model: a.model,
	}
}

func newID() string {
	return "msg_" + uuid.NewString()
}
