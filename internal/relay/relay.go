// Package relay chains a reasoning stage and a response stage into one
// caller-visible text stream.
package relay

import (
	"context"
	"iter"
	"log/slog"
	"strings"

	"github.com/zhengjr9/thinkflow/internal/config"
	"github.com/zhengjr9/thinkflow/internal/upstream"
)

// Delimiters around the reasoning section of the output.
const (
	ThinkOpen  = "<think>\n"
	ThinkClose = "\n</think>\n"
)

// Stage names, used in errors, logs and metrics.
const (
	StageReasoning = "reasoning"
	StageResponse  = "response"
)

// Relay holds the read-only collaborators shared by all invocations.
// Per-invocation state lives in the Stages created by Process.
type Relay struct {
	streamer  upstream.Streamer
	reasoning config.Stage
	response  config.Stage
}

func New(streamer upstream.Streamer, reasoning, response config.Stage) *Relay {
	return &Relay{streamer: streamer, reasoning: reasoning, response: response}
}

// Process validates body and returns the relay output: ThinkOpen, the
// reasoning chunks, ThinkClose, then the response chunks. A failure is
// yielded once as the final element, after whatever text was already
// forwarded. The response request is only built after the reasoning stage
// completed. Stopping iteration early closes any open upstream stream.
//
// A caller input error is returned before any network call is made.
func (r *Relay) Process(ctx context.Context, body Body) (iter.Seq2[string, error], error) {
	if err := body.Validate(); err != nil {
		return nil, err
	}
	return func(yield func(string, error) bool) {
		if !yield(ThinkOpen, nil) {
			return
		}

		reasoning := NewStage(StageReasoning, r.streamer, r.reasoning,
			BuildReasoningRequest(body.Messages, r.reasoning), FieldReasoning)
		for chunk, err := range reasoning.Chunks(ctx) {
			if !yield(chunk, err) || err != nil {
				return
			}
		}
		thought, err := reasoning.Text()
		if err != nil {
			yield("", err)
			return
		}

		if !yield(ThinkClose, nil) {
			return
		}

		req := BuildResponseRequest(body.Messages, thought, r.response, body.Temperature)
		response := NewStage(StageResponse, r.streamer, r.response, req, FieldContent)
		for chunk, err := range response.Chunks(ctx) {
			if !yield(chunk, err) || err != nil {
				return
			}
		}
		answer, _ := response.Text()
		slog.Info("relay complete",
			"reasoning_chars", len(thought),
			"response_chars", len(answer),
		)
	}, nil
}

// Collect drains seq into one string. It returns the text gathered so far
// together with the first error.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var sb strings.Builder
	for chunk, err := range seq {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(chunk)
	}
	return sb.String(), nil
}
