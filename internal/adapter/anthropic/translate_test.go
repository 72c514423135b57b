package anthropic

import (
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhengjr9/thinkflow/internal/chat"
	apierrors "github.com/zhengjr9/thinkflow/internal/errors"
)

func seqOf(chunks []string, fail error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
		if fail != nil {
			yield("", fail)
		}
	}
}

func eventNames(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			out = append(out, name)
		}
	}
	return out
}

func TestDecodeRequest_SystemPrepended(t *testing.T) {
	body := `{"model":"claude-3","max_tokens":1024,"system":"Be terse.","messages":[{"role":"user","content":"Hi"},{"role":"assistant","content":"Hello"},{"role":"user","content":"Why?"}],"temperature":0.4,"stream":true}`
	r := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))

	got, streaming, err := New("thinkflow").DecodeRequest(r)
	require.NoError(t, err)
	assert.True(t, streaming)
	assert.Equal(t, []chat.Message{
		{Role: chat.RoleSystem, Content: "Be terse."},
		{Role: chat.RoleUser, Content: "Hi"},
		{Role: chat.RoleAssistant, Content: "Hello"},
		{Role: chat.RoleUser, Content: "Why?"},
	}, got.Messages)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 0.4, *got.Temperature)
}

func TestDecodeRequest_NoMessagesIgnoresSystem(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"system":"s","messages":[]}`))
	got, _, err := New("m").DecodeRequest(r)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
	assert.ErrorIs(t, got.Validate(), apierrors.ErrMissingMessages)
}

func TestWriteBlockingResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, New("thinkflow").WriteBlockingResponse(rec, "answer"))

	var out MessagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "message", out.Type)
	assert.Equal(t, "end_turn", out.StopReason)
	require.Len(t, out.Content, 1)
	assert.Equal(t, "answer", out.Content[0].Text)
	assert.True(t, strings.HasPrefix(out.ID, "msg_"))
}

func TestWriteStreamingResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, New("thinkflow").WriteStreamingResponse(rec, seqOf([]string{"a", "b"}, nil)))

	assert.Equal(t, []string{
		"message_start", "content_block_start",
		"content_block_delta", "content_block_delta",
		"content_block_stop", "message_delta", "message_stop",
	}, eventNames(rec.Body.String()))
	assert.Contains(t, rec.Body.String(), `"text":"a"`)
}

func TestWriteStreamingResponse_Failure(t *testing.T) {
	boom := errors.New("upstream down")
	rec := httptest.NewRecorder()
	err := New("m").WriteStreamingResponse(rec, seqOf([]string{"a"}, boom))
	require.ErrorIs(t, err, boom)

	names := eventNames(rec.Body.String())
	assert.Equal(t, "error", names[len(names)-1])
	assert.NotContains(t, names, "message_stop")
}
