package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhengjr9/thinkflow/internal/chat"
	"github.com/zhengjr9/thinkflow/internal/config"
	apierrors "github.com/zhengjr9/thinkflow/internal/errors"
)

var (
	reasoningCfg = config.Stage{BaseURL: "http://reasoner", APIKey: "rk", Model: "deepseek-reasoner", Temperature: 0.3}
	responseCfg  = config.Stage{BaseURL: "http://responder/v1", APIKey: "sk", Model: "deepseek-chat", Temperature: 0.7}
)

func ptr(f float64) *float64 { return &f }

func TestBuildReasoningRequest(t *testing.T) {
	msgs := []chat.Message{
		{Role: chat.RoleSystem, Content: "Be brief."},
		{Role: chat.RoleUser, Content: "Hi"},
	}
	req := BuildReasoningRequest(msgs, reasoningCfg)

	assert.Equal(t, "deepseek-reasoner", req.Model)
	assert.Equal(t, 0.3, req.Temperature)
	assert.True(t, req.Stream)
	assert.Equal(t, msgs, req.Messages)

	req.Messages[0].Content = "changed"
	assert.Equal(t, "Be brief.", msgs[0].Content, "request must not alias caller messages")
}

func TestBuildResponseRequest_AppendsReasoning(t *testing.T) {
	msgs := []chat.Message{{Role: chat.RoleUser, Content: "Hi"}}
	req := BuildResponseRequest(msgs, "think", responseCfg, nil)

	assert.Equal(t, []chat.Message{
		{Role: chat.RoleUser, Content: "Hi"},
		{Role: chat.RoleAssistant, Content: "think"},
	}, req.Messages)
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, "deepseek-chat", req.Model)
	assert.True(t, req.Stream)
}

func TestBuildResponseRequest_NonDestructiveAndRepeatable(t *testing.T) {
	backing := make([]chat.Message, 1, 4)
	backing[0] = chat.Message{Role: chat.RoleUser, Content: "Hi"}

	first := BuildResponseRequest(backing, "a", responseCfg, nil)
	second := BuildResponseRequest(backing, "a", responseCfg, nil)
	other := BuildResponseRequest(backing, "b", responseCfg, nil)

	assert.Len(t, backing, 1)
	assert.Equal(t, first, second)
	assert.Equal(t, "a", first.Messages[1].Content, "later builds must not overwrite earlier ones")
	assert.Equal(t, "b", other.Messages[1].Content)
}

func TestBuildResponseRequest_EmptyReasoningStillAppended(t *testing.T) {
	req := BuildResponseRequest([]chat.Message{{Role: chat.RoleUser, Content: "Hi"}}, "", responseCfg, nil)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, chat.Message{Role: chat.RoleAssistant, Content: ""}, req.Messages[1])
}

func TestBuildResponseRequest_TemperatureOverride(t *testing.T) {
	msgs := []chat.Message{{Role: chat.RoleUser, Content: "Hi"}}

	assert.Equal(t, 1.2, BuildResponseRequest(msgs, "", responseCfg, ptr(1.2)).Temperature)
	assert.Equal(t, 0.0, BuildResponseRequest(msgs, "", responseCfg, ptr(0)).Temperature, "explicit zero is an override")
	assert.Equal(t, 0.7, BuildResponseRequest(msgs, "", responseCfg, nil).Temperature)
}

func TestBodyValidate(t *testing.T) {
	ok := Body{Messages: []chat.Message{{Role: chat.RoleUser, Content: "Hi"}}}
	require.NoError(t, ok.Validate())

	assert.ErrorIs(t, Body{}.Validate(), apierrors.ErrMissingMessages)

	hot := ok
	hot.Temperature = ptr(2.01)
	assert.ErrorIs(t, hot.Validate(), apierrors.ErrInvalidTemperature)

	edge := ok
	edge.Temperature = ptr(2)
	assert.NoError(t, edge.Validate())
}
