// Package sse decodes OpenAI-style chat completion streams.
package sse

import (
	"encoding/json"
	"iter"
	"strings"

	"github.com/zhengjr9/thinkflow/internal/chat"
)

const (
	// DataPrefix starts every line that carries a chunk.
	DataPrefix = "data: "
	// DoneSentinel is the payload some services send after the last chunk.
	DoneSentinel = "[DONE]"
)

// ParseLine decodes one stream line. ok is false when the line carries no
// text: it lacks the data prefix, is not valid JSON, has no
// choices[0].delta, or its delta fields are empty.
func ParseLine(line string) (ev chat.DeltaEvent, ok bool) {
	payload, found := strings.CutPrefix(line, DataPrefix)
	if !found {
		return chat.DeltaEvent{}, false
	}
	var chunk chat.StreamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return chat.DeltaEvent{}, false
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
		return chat.DeltaEvent{}, false
	}
	delta := chunk.Choices[0].Delta
	ev = chat.DeltaEvent{
		ReasoningText: delta.ReasoningContent,
		ContentText:   delta.Content,
	}
	return ev, ev.ReasoningText != "" || ev.ContentText != ""
}

// IsDone reports whether line is the end-of-stream sentinel.
func IsDone(line string) bool {
	payload, found := strings.CutPrefix(line, DataPrefix)
	return found && strings.TrimSpace(payload) == DoneSentinel
}

// Decode turns a sequence of lines into a sequence of DeltaEvents. Lines that
// ParseLine rejects are skipped. Decoding stops at the sentinel or when lines
// is exhausted; an error from lines is passed through and ends the sequence.
func Decode(lines iter.Seq2[string, error]) iter.Seq2[chat.DeltaEvent, error] {
	return func(yield func(chat.DeltaEvent, error) bool) {
		for line, err := range lines {
			if err != nil {
				yield(chat.DeltaEvent{}, err)
				return
			}
			if IsDone(line) {
				return
			}
			ev, ok := ParseLine(line)
			if !ok {
				continue
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}
