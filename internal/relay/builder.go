package relay

import (
	"fmt"
	"slices"

	"github.com/zhengjr9/thinkflow/internal/chat"
	"github.com/zhengjr9/thinkflow/internal/config"
	apierrors "github.com/zhengjr9/thinkflow/internal/errors"
)

// Body is the inbound request handed to the relay by a host surface.
type Body struct {
	Messages []chat.Message
	// Temperature overrides the response stage default when non-nil.
	Temperature *float64
}

// Validate reports a caller input error for an unusable body.
func (b Body) Validate() error {
	if len(b.Messages) == 0 {
		return apierrors.ErrMissingMessages
	}
	if t := b.Temperature; t != nil && (*t < config.MinTemperature || *t > config.MaxTemperature) {
		return fmt.Errorf("%w: got %v", apierrors.ErrInvalidTemperature, *t)
	}
	return nil
}

// BuildReasoningRequest builds the stage-one request: the caller's messages
// verbatim with the stage's model and temperature.
func BuildReasoningRequest(messages []chat.Message, cfg config.Stage) chat.CompletionRequest {
	return chat.CompletionRequest{
		Model:       cfg.Model,
		Messages:    slices.Clone(messages),
		Temperature: cfg.Temperature,
		Stream:      true,
	}
}

// BuildResponseRequest builds the stage-two request: the caller's messages
// followed by one assistant message holding reasoning. The assistant message
// is appended even when reasoning is empty. messages is not modified.
func BuildResponseRequest(messages []chat.Message, reasoning string, cfg config.Stage, temperature *float64) chat.CompletionRequest {
	msgs := make([]chat.Message, 0, len(messages)+1)
	msgs = append(msgs, messages...)
	msgs = append(msgs, chat.Message{Role: chat.RoleAssistant, Content: reasoning})

	temp := cfg.Temperature
	if temperature != nil {
		temp = *temperature
	}
	return chat.CompletionRequest{
		Model:       cfg.Model,
		Messages:    msgs,
		Temperature: temp,
		Stream:      true,
	}
}
