package gemini

import (
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"github.com/zhengjr9/thinkflow/internal/chat"
	apierrors "github.com/zhengjr9/thinkflow/internal/errors"
	"github.com/zhengjr9/thinkflow/internal/httputil"
	"github.com/zhengjr9/thinkflow/internal/relay"
)

const (
	generateSuffix       = ":generateContent"
	streamGenerateSuffix = ":streamGenerateContent"
)

// Adapter serves the Gemini generateContent / streamGenerateContent format.
type Adapter struct {
	model string
}

func New(model string) *Adapter {
	return &Adapter{model: model}
}

func (a *Adapter) Surface() string { return "gemini" }

// Match reports whether path names a generate method this adapter serves.
func Match(path string) bool {
	return strings.HasSuffix(path, generateSuffix) || strings.HasSuffix(path, streamGenerateSuffix)
}

// DecodeRequest converts a Gemini generateContent request to a relay Body.
// Streaming is chosen by the path suffix, not the body.
func (a *Adapter) DecodeRequest(r *http.Request) (relay.Body, bool, error) {
	streaming := strings.HasSuffix(r.URL.Path, streamGenerateSuffix)
	var req GenerateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return relay.Body{}, false, fmt.Errorf("%w: %v", apierrors.ErrMalformedBody, err)
	}
	body := relay.Body{Messages: toMessages(req.Contents, req.SystemInstruction)}
	if req.GenerationConfig != nil {
		body.Temperature = req.GenerationConfig.Temperature
	}
	return body, streaming, nil
}

// toMessages maps Gemini turns onto chat messages; "model" becomes assistant.
func toMessages(contents []Content, sys *SystemInstruction) []chat.Message {
	if len(contents) == 0 {
		return nil
	}
	out := make([]chat.Message, 0, len(contents)+1)
	if sys != nil && len(sys.Parts) > 0 {
		out = append(out, chat.Message{Role: chat.RoleSystem, Content: joinParts(sys.Parts)})
	}
	for _, c := range contents {
		role := c.Role
		switch role {
		case "model":
			role = chat.RoleAssistant
		case "":
			role = chat.RoleUser
		}
		out = append(out, chat.Message{Role: role, Content: joinParts(c.Parts)})
	}
	return out
}

func joinParts(parts []Part) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "")
}

func (a *Adapter) candidate(text, finish string) GenerateContentResponse {
	return GenerateContentResponse{
		Candidates: []Candidate{
			{
				Content:      Content{Role: "model", Parts: []Part{{Text: text}}},
				FinishReason: finish,
				Index:        0,
			},
		},
		ModelVersion: a.model,
	}
}

// WriteBlockingResponse encodes the relay output as a Gemini GenerateContentResponse.
func (a *Adapter) WriteBlockingResponse(w http.ResponseWriter, text string) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(a.candidate(text, "STOP"))
}

// WriteStreamingResponse encodes relay chunks as Gemini SSE JSON payloads.
// The last payload carries an empty part and finishReason STOP.
func (a *Adapter) WriteStreamingResponse(w http.ResponseWriter, stream iter.Seq2[string, error]) error {
	for text, err := range stream {
		if err != nil {
			_ = httputil.WriteData(w, ErrorResponse{Error: ErrorStatus{
				Code:    apierrors.StatusCode(err),
				Message: err.Error(),
				Status:  "UNAVAILABLE",
			}})
			return err
		}
		if err := httputil.WriteData(w, a.candidate(text, "")); err != nil {
			return err
		}
	}
	return httputil.WriteData(w, a.candidate("", "STOP"))
}
