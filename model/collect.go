package model

import (
	"context"
	"strings"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/stream"
)

// CollectUpdates drains a streamed tool-calling turn into a terminal
// InferenceResponse. onUpdate, when non-nil, observes every update in arrival
// order. When the backend never sends ToolCallsCompleted the calls are
// reassembled from the partial fragments.
func CollectUpdates(ctx context.Context, updates <-chan StreamUpdate, errs <-chan error, onUpdate func(StreamUpdate)) (*core.InferenceResponse, error) {
	var (
		content   strings.Builder
		acc       = stream.NewToolCallAccumulator()
		completed []core.ToolCall
		usage     *core.Usage
		reason    core.FinishReason
	)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case u, ok := <-updates:
			if !ok {
				if err := <-errs; err != nil {
					return nil, err
				}

				calls := completed
				if calls == nil {
					calls = acc.ToolCalls()
				}

				if reason == "" {
					reason = core.FinishCompleted
					if len(calls) > 0 {
						reason = core.FinishToolCall
					}
				}

				return &core.InferenceResponse{
					Content:      content.String(),
					ToolCalls:    calls,
					FinishReason: reason,
					Usage:        usage,
				}, nil
			}

			if onUpdate != nil {
				onUpdate(u)
			}

			switch v := u.(type) {
			case OutputChunk:
				content.WriteString(v.Text)
			case ToolCallPartial:
				acc.Accumulate(v.Index, v.ID, v.Name, v.Arguments)
			case ToolCallsCompleted:
				completed = v.Calls
			case UsageUpdate:
				uu := v.Usage
				usage = &uu
			case FinishUpdate:
				reason = v.Reason
			}
		}
	}
}

// CollectText drains a plain text stream into a single string. onChunk, when
// non-nil, observes each chunk.
func CollectText(ctx context.Context, chunks <-chan string, errs <-chan error, onChunk func(string)) (string, error) {
	var b strings.Builder

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case c, ok := <-chunks:
			if !ok {
				if err := <-errs; err != nil {
					return "", err
				}
				return b.String(), nil
			}

			if onChunk != nil {
				onChunk(c)
			}

			b.WriteString(c)
		}
	}
}

// UpdatesFromResponse expresses a terminal turn as the update sequence a
// streaming backend would have produced.
func UpdatesFromResponse(resp *core.InferenceResponse) []StreamUpdate {
	if resp == nil {
		return nil
	}

	var updates []StreamUpdate

	if resp.Content != "" {
		updates = append(updates, OutputChunk{Text: resp.Content})
	}

	for i, c := range resp.ToolCalls {
		updates = append(updates, ToolCallPartial{Index: i, ID: c.ID, Name: c.Name, Arguments: c.ArgumentsJSON()})
	}

	if len(resp.ToolCalls) > 0 {
		updates = append(updates, ToolCallsCompleted{Calls: resp.ToolCalls})
	}

	if resp.Usage != nil {
		updates = append(updates, UsageUpdate{Usage: *resp.Usage})
	}

	if resp.FinishReason != "" {
		updates = append(updates, FinishUpdate{Reason: resp.FinishReason})
	}

	return updates
}
