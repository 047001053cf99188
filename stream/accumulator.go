package stream

import (
	"sort"

	"github.com/hupe1980/agentcore/core"
)

// AccumulatedCall is the running state of one streamed tool call.
type AccumulatedCall struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Complete reports whether both id and name have been observed.
func (c AccumulatedCall) Complete() bool { return c.ID != "" && c.Name != "" }

// ToToolCall converts the aggregate into a core.ToolCall, decoding the
// concatenated argument text.
func (c AccumulatedCall) ToToolCall() core.ToolCall {
	return core.ParseToolCall(c.ID, c.Name, c.Arguments)
}

// ToolCallAccumulator reassembles tool calls from ToolCallDelta fragments.
// Aggregates are keyed by index because some providers send the id after
// the first fragment. It is owned by one stream and not safe for concurrent
// use.
type ToolCallAccumulator struct {
	calls map[int]*AccumulatedCall
}

// NewToolCallAccumulator returns an empty accumulator.
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{calls: map[int]*AccumulatedCall{}}
}

// Accumulate merges one fragment. Non-empty id and name overwrite previous
// values; the argument fragment is always appended.
func (a *ToolCallAccumulator) Accumulate(index int, id, name, fragment string) {
	if a.calls == nil {
		a.calls = map[int]*AccumulatedCall{}
	}

	c, ok := a.calls[index]
	if !ok {
		c = &AccumulatedCall{Index: index}
		a.calls[index] = c
	}

	if id != "" {
		c.ID = id
	}

	if name != "" {
		c.Name = name
	}

	c.Arguments += fragment
}

// Apply feeds ev into the accumulator when it is a ToolCallDelta and reports
// whether it was consumed.
func (a *ToolCallAccumulator) Apply(ev Event) bool {
	d, ok := ev.(ToolCallDelta)
	if !ok {
		return false
	}
	a.Accumulate(d.Index, d.ID, d.Name, d.Arguments)
	return true
}

// CompletedToolCalls returns aggregates with both id and name, sorted by index.
func (a *ToolCallAccumulator) CompletedToolCalls() []AccumulatedCall {
	out := make([]AccumulatedCall, 0, len(a.calls))
	for _, c := range a.calls {
		if c.Complete() {
			out = append(out, *c)
		}
	}
	sortByIndex(out)
	return out
}

// AllToolCalls returns every aggregate sorted by index, complete or not.
// Missing id or name are reported as empty strings.
func (a *ToolCallAccumulator) AllToolCalls() []AccumulatedCall {
	out := make([]AccumulatedCall, 0, len(a.calls))
	for _, c := range a.calls {
		out = append(out, *c)
	}
	sortByIndex(out)
	return out
}

// ToolCalls converts the completed aggregates into core.ToolCall values.
func (a *ToolCallAccumulator) ToolCalls() []core.ToolCall {
	completed := a.CompletedToolCalls()
	out := make([]core.ToolCall, 0, len(completed))
	for _, c := range completed {
		out = append(out, c.ToToolCall())
	}
	return out
}

// Len returns the number of aggregates.
func (a *ToolCallAccumulator) Len() int { return len(a.calls) }

// Reset discards all aggregates.
func (a *ToolCallAccumulator) Reset() { a.calls = map[int]*AccumulatedCall{} }

func sortByIndex(calls []AccumulatedCall) {
	sort.Slice(calls, func(i, j int) bool { return calls[i].Index < calls[j].Index })
}
