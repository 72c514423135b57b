// Package a2a exposes the relay as an ADK agent served over the A2A protocol.
package a2a

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/zhengjr9/thinkflow/internal/chat"
	"github.com/zhengjr9/thinkflow/internal/metrics"
	"github.com/zhengjr9/thinkflow/internal/relay"
)

const surface = "a2a"

// AgentConfig holds the configuration for the relay-backed A2A agent.
type AgentConfig struct {
	// Name is the agent name exposed via A2A AgentCard.
	Name string
	// Description is exposed via A2A AgentCard.
	Description string
	// Relay runs both stages for every invocation.
	Relay *relay.Relay
}

// New returns an agent.Agent whose Run logic feeds the caller's text through
// the relay and converts each relayed chunk into a partial session.Event.
func New(cfg AgentConfig) (agent.Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("a2a agent: Name must not be empty")
	}
	if cfg.Relay == nil {
		return nil, fmt.Errorf("a2a agent: Relay must not be nil")
	}

	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		Run:         runFunc(cfg),
	})
}

// runFunc returns the Run closure that drives one agent invocation.
func runFunc(cfg AgentConfig) func(agent.InvocationContext) iter.Seq2[*session.Event, error] {
	return func(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
		return func(yield func(*session.Event, error) bool) {
			newEvent := func(text string, partial bool) *session.Event {
				ev := session.NewEvent(ctx.InvocationID())
				ev.Author = cfg.Name
				ev.Branch = ctx.Branch()
				ev.LLMResponse = model.LLMResponse{
					Content: textContent(text),
					Partial: partial,
				}
				return ev
			}

			query := extractQuery(ctx.UserContent())
			if query == "" {
				yield(newEvent("(empty input)", false), nil)
				return
			}

			body := relay.Body{Messages: []chat.Message{{Role: chat.RoleUser, Content: query}}}
			stream, err := cfg.Relay.Process(ctx, body)
			if err != nil {
				metrics.ObserveRequest(surface, "rejected")
				yield(nil, fmt.Errorf("relay rejected request: %w", err))
				return
			}

			var fullText strings.Builder
			for text, err := range stream {
				if err != nil {
					metrics.ObserveRequest(surface, outcome(err))
					yield(nil, fmt.Errorf("relay stream error: %w", err))
					return
				}
				fullText.WriteString(text)

				// Partial events let streaming A2A clients see tokens as they arrive.
				if !yield(newEvent(text, true), nil) {
					metrics.ObserveRequest(surface, metrics.OutcomeCanceled)
					return
				}
			}
			metrics.ObserveRequest(surface, metrics.OutcomeComplete)

			// The final non-partial event makes IsFinalResponse() true so the
			// runner closes the invocation.
			yield(newEvent(fullText.String(), false), nil)
		}
	}
}

func outcome(err error) string {
	if errors.Is(err, context.Canceled) {
		return metrics.OutcomeCanceled
	}
	return metrics.OutcomeFailed
}

// extractQuery pulls the plain-text content from the genai.Content that ADK
// puts in the InvocationContext when the caller sends a message.
func extractQuery(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func textContent(text string) *genai.Content {
	return &genai.Content{
		Role:  genai.RoleModel,
		Parts: []*genai.Part{{Text: text}},
	}
}
