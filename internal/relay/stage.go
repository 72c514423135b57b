package relay

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/zhengjr9/thinkflow/internal/chat"
	"github.com/zhengjr9/thinkflow/internal/config"
	apierrors "github.com/zhengjr9/thinkflow/internal/errors"
	"github.com/zhengjr9/thinkflow/internal/metrics"
	"github.com/zhengjr9/thinkflow/internal/sse"
	"github.com/zhengjr9/thinkflow/internal/upstream"
)

// Field selects which text of a DeltaEvent a stage forwards.
type Field int

const (
	FieldReasoning Field = iota
	FieldContent
)

func (f Field) pick(ev chat.DeltaEvent) string {
	if f == FieldReasoning {
		return ev.ReasoningText
	}
	return ev.ContentText
}

// State is the lifecycle of a Stage.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stage runs one streaming request and accumulates what it forwards.
// A Stage serves a single run and must not be shared.
type Stage struct {
	name     string
	streamer upstream.Streamer
	cfg      config.Stage
	req      chat.CompletionRequest
	field    Field

	state State
	text  strings.Builder
}

// NewStage prepares a stage; nothing is sent until Chunks is iterated.
func NewStage(name string, streamer upstream.Streamer, cfg config.Stage, req chat.CompletionRequest, field Field) *Stage {
	return &Stage{name: name, streamer: streamer, cfg: cfg, req: req, field: field}
}

// State returns the current lifecycle state.
func (s *Stage) State() State { return s.state }

// Text returns the accumulated text. It fails unless the stage completed.
func (s *Stage) Text() (string, error) {
	if s.state != StateComplete {
		return "", fmt.Errorf("%s stage is %s: %w", s.name, s.state, apierrors.ErrStageIncomplete)
	}
	return s.text.String(), nil
}

// Chunks streams the stage. Every non-empty selected field is appended to
// the accumulator and then yielded, in arrival order. An upstream failure is
// yielded once as the final element and moves the stage to StateFailed.
// A consumer that stops early leaves the stage in StateStreaming.
func (s *Stage) Chunks(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if s.state != StateIdle {
			yield("", fmt.Errorf("%s stage already ran", s.name))
			return
		}
		s.state = StateStreaming
		start := time.Now()
		chunks := 0
		slog.Debug("stage started", "stage", s.name, "model", s.req.Model)

		lines := s.streamer.Stream(ctx, upstream.Endpoint(s.cfg.BaseURL), s.req, s.cfg.APIKey)
		for ev, err := range sse.Decode(lines) {
			if err != nil {
				s.state = StateFailed
				metrics.ObserveStage(s.name, metrics.OutcomeFailed, time.Since(start))
				slog.Warn("stage failed", "stage", s.name, "chunks", chunks, "error", err)
				yield("", fmt.Errorf("%s stage: %w", s.name, err))
				return
			}
			text := s.field.pick(ev)
			if text == "" {
				continue
			}
			s.text.WriteString(text)
			chunks++
			metrics.ObserveChunk(s.name, len(text))
			if !yield(text, nil) {
				metrics.ObserveStage(s.name, metrics.OutcomeCanceled, time.Since(start))
				slog.Debug("stage abandoned by consumer", "stage", s.name, "chunks", chunks)
				return
			}
		}
		s.state = StateComplete
		metrics.ObserveStage(s.name, metrics.OutcomeComplete, time.Since(start))
		slog.Debug("stage complete", "stage", s.name, "chunks", chunks, "chars", s.text.Len())
	}
}
