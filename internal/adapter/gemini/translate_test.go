package gemini

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

func TestMatch(t *testing.T) {
	assert.True(t, Match("/v1beta/models/thinkflow:generateContent"))
	assert.True(t, Match("/v1beta/models/thinkflow:streamGenerateContent"))
	assert.False(t, Match("/v1beta/models/thinkflow:countTokens"))
}

func TestDecodeRequest(t *testing.T) {
	body := `{
		"system_instruction":{"parts":[{"text":"Be "},{"text":"terse."}]},
		"contents":[
			{"role":"user","parts":[{"text":"Hi"}]},
			{"role":"model","parts":[{"text":"Hello"}]},
			{"parts":[{"text":"Why?"}]}
		],
		"generationConfig":{"temperature":1.3}
	}`
	r := httptest.NewRequest(http.MethodPost, "/v1beta/models/thinkflow:streamGenerateContent?alt=sse", strings.NewReader(body))

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
	assert.Equal(t, 1.3, *got.Temperature)
}

func TestDecodeRequest_BlockingPath(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/v1beta/models/x:generateContent", strings.NewReader(`{"contents":[{"role":"user","parts":[{"text":"Hi"}]}]}`))
	got, streaming, err := New("m").DecodeRequest(r)
	require.NoError(t, err)
	assert.False(t, streaming)
	assert.Nil(t, got.Temperature)
}

func TestDecodeRequest_Malformed(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/v1beta/models/x:generateContent", strings.NewReader(`[`))
	_, _, err := New("m").DecodeRequest(r)
	assert.ErrorIs(t, err, apierrors.ErrMalformedBody)
}

func TestWriteBlockingResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, New("thinkflow").WriteBlockingResponse(rec, "answer"))

	var out GenerateContentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Candidates, 1)
	assert.Equal(t, "answer", out.Candidates[0].Content.Parts[0].Text)
	assert.Equal(t, "STOP", out.Candidates[0].FinishReason)
}

func TestWriteStreamingResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, New("m").WriteStreamingResponse(rec, seqOf([]string{"a", "b"}, nil)))

	var texts []string
	var finish string
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		p, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var resp GenerateContentResponse
		require.NoError(t, json.Unmarshal([]byte(p), &resp))
		texts = append(texts, resp.Candidates[0].Content.Parts[0].Text)
		finish = resp.Candidates[0].FinishReason
	}
	assert.Equal(t, []string{"a", "b", ""}, texts)
	assert.Equal(t, "STOP", finish)
}

func TestWriteStreamingResponse_Failure(t *testing.T) {
	boom := errors.New("upstream down")
	rec := httptest.NewRecorder()
	err := New("m").WriteStreamingResponse(rec, seqOf(nil, boom))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, rec.Body.String(), `"status":"UNAVAILABLE"`)
}
