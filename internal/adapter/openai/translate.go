package openai

import (
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zhengjr9/thinkflow/internal/chat"
	apierrors "github.com/zhengjr9/thinkflow/internal/errors"
	"github.com/zhengjr9/thinkflow/internal/httputil"
	"github.com/zhengjr9/thinkflow/internal/relay"
)

// Adapter serves the OpenAI chat completions format.
type Adapter struct {
	model string
}

// New returns an Adapter that reports model in every response.
func New(model string) *Adapter {
	return &Adapter{model: model}
}

func (a *Adapter) Surface() string { return "openai" }

// DecodeRequest converts an OpenAI chat completions request to a relay Body.
// Messages are passed through unchanged.
func (a *Adapter) DecodeRequest(r *http.Request) (relay.Body, bool, error) {
	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return relay.Body{}, false, fmt.Errorf("%w: %v", apierrors.ErrMalformedBody, err)
	}
	return relay.Body{Messages: req.Messages, Temperature: req.Temperature}, req.Stream, nil
}

// WriteBlockingResponse encodes the relay output as an OpenAI ChatCompletionResponse.
func (a *Adapter) WriteBlockingResponse(w http.ResponseWriter, text string) error {
	out := ChatCompletionResponse{
		ID:      newID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   a.model,
		Choices: []Choice{
			{
				Index:        0,
				Message:      chat.Message{Role: chat.RoleAssistant, Content: text},
				FinishReason: "stop",
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(out)
}

// WriteStreamingResponse encodes relay chunks as OpenAI SSE chunks, closing
// with a finish chunk and the [DONE] sentinel.
func (a *Adapter) WriteStreamingResponse(w http.ResponseWriter, stream iter.Seq2[string, error]) error {
	id := newID()
	created := time.Now().Unix()
	chunk := func(delta Delta, finish *string) StreamChunk {
		return StreamChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   a.model,
			Choices: []StreamChoice{{Index: 0, Delta: delta, FinishReason: finish}},
		}
	}

	first := true
	for text, err := range stream {
		if err != nil {
			_ = httputil.WriteData(w, ErrorFrame{Error: ErrorBody{Message: err.Error(), Type: "upstream_error"}})
			return err
		}
		delta := Delta{Content: text}
		if first {
			delta.Role = chat.RoleAssistant
			first = false
		}
		if err := httputil.WriteData(w, chunk(delta, nil)); err != nil {
			return err
		}
	}

	stop := "stop"
	if err := httputil.WriteData(w, chunk(Delta{}, &stop)); err != nil {
		return err
	}
	return httputil.WriteRaw(w, "[DONE]")
}

// WriteModels lists the single model the relay serves.
func (a *Adapter) WriteModels(w http.ResponseWriter) error {
	out := ModelList{
		Object: "list",
		Data:   []Model{{ID: a.model, Object: "model", Created: time.Now().Unix(), OwnedBy: "thinkflow"}},
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(out)
}

func newID() string {
	return "chatcmpl-" + uuid.NewString()
}
