package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/agentcore/core"
)

const (
	dataPrefix = "data:"
	doneMarker = "[DONE]"
)

type chunk struct {
	Choices []chunkChoice `json:"choices"`
	Usage   *chunkUsage   `json:"usage"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chunkDelta struct {
	Content   *string         `json:"content"`
	ToolCalls []chunkToolCall `json:"tool_calls"`
}

type chunkToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chunkUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Parser converts SSE lines into Events. After a "data: [DONE]" line the
// parser is finished and ignores further input until Reset.
type Parser struct {
	done bool
}

// NewParser returns a ready parser.
func NewParser() *Parser { return &Parser{} }

// Done reports whether the terminal [DONE] marker was seen.
func (p *Parser) Done() bool { return p.done }

// Reset prepares the parser for a new stream.
func (p *Parser) Reset() { p.done = false }

// ParseLine decodes a single SSE line. Blank lines, comments (":" prefix)
// and non-data fields produce no events.
func (p *Parser) ParseLine(line string) []Event {
	if p.done {
		return nil
	}

	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") {
		return nil
	}

	if !strings.HasPrefix(line, dataPrefix) {
		return nil
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == doneMarker {
		p.done = true
		return []Event{Done{}}
	}

	return ParseChunk([]byte(payload))
}

// ParseLines decodes lines in order and stops after the [DONE] marker.
func (p *Parser) ParseLines(lines []string) []Event {
	var events []Event
	for _, l := range lines {
		if p.done {
			break
		}
		events = append(events, p.ParseLine(l)...)
	}
	return events
}

// ParseChunk decodes one chat-completion chunk payload (the JSON after
// "data:"). A malformed payload yields a single Error event.
func ParseChunk(payload []byte) []Event {
	var c chunk
	if err := json.Unmarshal(payload, &c); err != nil {
		return []Event{Error{
			Kind: core.KindDecodingError,
			Err:  fmt.Errorf("decode chunk: %w", err),
			Raw:  string(payload),
		}}
	}

	var (
		events []Event
		finish string
	)

	for _, choice := range c.Choices {
		if choice.Delta.Content != nil && *choice.Delta.Content != "" {
			events = append(events, TextDelta{Text: *choice.Delta.Content})
		}

		for _, tc := range choice.Delta.ToolCalls {
			events = append(events, ToolCallDelta{
				Index:     tc.Index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}

		if finish == "" && choice.FinishReason != nil && *choice.FinishReason != "" {
			finish = *choice.FinishReason
		}
	}

	if finish != "" {
		events = append(events, FinishReason{Reason: finish})
	}

	if c.Usage != nil {
		events = append(events, Usage{
			PromptTokens:     c.Usage.PromptTokens,
			CompletionTokens: c.Usage.CompletionTokens,
		})
	}

	return events
}
