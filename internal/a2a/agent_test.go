package a2a

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/zhengjr9/thinkflow/internal/config"
	"github.com/zhengjr9/thinkflow/internal/relay"
	"github.com/zhengjr9/thinkflow/internal/upstream"
)

func TestExtractQuery(t *testing.T) {
	tests := []struct {
		name    string
		content *genai.Content
		want    string
	}{
		{"nil content", nil, ""},
		{"no parts", &genai.Content{}, ""},
		{"single part", &genai.Content{Parts: []*genai.Part{{Text: " hello "}}}, "hello"},
		{
			"joins text parts",
			&genai.Content{Parts: []*genai.Part{{Text: "a"}, {Text: ""}, {Text: "b"}}},
			"ab",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractQuery(tt.content))
		})
	}
}

func TestTextContent(t *testing.T) {
	c := textContent("hi")
	assert.Equal(t, genai.RoleModel, c.Role)
	require.Len(t, c.Parts, 1)
	assert.Equal(t, "hi", c.Parts[0].Text)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(AgentConfig{})
	assert.Error(t, err)

	_, err = New(AgentConfig{Name: "thinkflow"})
	assert.Error(t, err)

	cfg := config.Default()
	rl := relay.New(upstream.NewClient(cfg.UpstreamTimeout, ""), cfg.Reasoning, cfg.Response)
	a, err := New(AgentConfig{Name: "thinkflow", Description: "relay", Relay: rl})
	require.NoError(t, err)
	assert.Equal(t, "thinkflow", a.Name())
	assert.Equal(t, "relay", a.Description())
}
