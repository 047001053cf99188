package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/agentcore/core"
)

// ToolFunc is the behavior of a spied tool.
type ToolFunc func(ctx context.Context, call core.ToolCall) (any, error)

// SpyExecutor is an in-memory tool executor that records every invocation.
// It satisfies dispatch.Executor.
type SpyExecutor struct {
	mu    sync.Mutex
	tools map[string]ToolFunc
	calls map[string]int
	order []string
}

// NewSpyExecutor returns an executor without tools.
func NewSpyExecutor() *SpyExecutor {
	return &SpyExecutor{tools: map[string]ToolFunc{}, calls: map[string]int{}}
}

// Add registers a tool behavior.
func (s *SpyExecutor) Add(name string, fn ToolFunc) *SpyExecutor {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools[name] = fn

	return s
}

// Has implements dispatch.Executor.
func (s *SpyExecutor) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.tools[name]

	return ok
}

// Execute implements dispatch.Executor.
func (s *SpyExecutor) Execute(ctx context.Context, call core.ToolCall) (any, error) {
	s.mu.Lock()
	fn, ok := s.tools[call.Name]
	s.calls[call.Name]++
	s.order = append(s.order, call.Name)
	s.mu.Unlock()

	if !ok {
		return nil, &core.Error{Kind: core.KindToolNotFound, Op: core.OpTool, Tool: call.Name}
	}

	return fn(ctx, call)
}

// Calls returns how often the named tool ran.
func (s *SpyExecutor) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[name]
}

// Total returns the number of executions across all tools.
func (s *SpyExecutor) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.order)
}

// Order returns tool names in the order they started.
func (s *SpyExecutor) Order() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.order...)
}

// Returning is a ToolFunc that always returns v.
func Returning(v any) ToolFunc {
	return func(context.Context, core.ToolCall) (any, error) { return v, nil }
}

// Failing is a ToolFunc that always returns err.
func Failing(err error) ToolFunc {
	return func(context.Context, core.ToolCall) (any, error) { return nil, err }
}
