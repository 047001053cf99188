package tool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/guardrail"
	"github.com/hupe1980/agentcore/internal/util"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/model"
)

type entry struct {
	tool      Tool
	validator *util.Validator
}

// Registry holds the tools available to an agent and executes calls against
// them. It is safe for concurrent use: lookups take a read lock, while
// registration takes the write lock.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]entry
	logger logging.Logger
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		tools:  map[string]entry{},
		logger: logging.OrNoOp(opts.Logger),
	}
}

// Register adds t. Names must be non-empty and unique, and the parameter
// schema must compile.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return core.NewError(core.KindInvalidInput, core.OpTool, "nil tool")
	}

	name := t.Name()
	if name == "" {
		return core.NewError(core.KindInvalidInput, core.OpTool, "tool name must not be empty")
	}

	v, err := util.CompileSchema(name, t.Parameters())
	if err != nil {
		return &core.Error{Kind: core.KindInvalidInput, Op: core.OpTool, Tool: name, Message: "invalid parameter schema", Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return &core.Error{Kind: core.KindInvalidInput, Op: core.OpTool, Tool: name, Message: "already registered"}
	}

	r.tools[name] = entry{tool: t, validator: v}

	r.logger.Debug("tool.registry.register", "tool", name)

	return nil
}

// MustRegister registers tools and panics on error.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Unregister removes a tool and reports whether it existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[name]; !ok {
		return false
	}

	delete(r.tools, name)

	return true
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]

	return e.tool, ok
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tools)
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// Definitions returns the model-facing schemas, sorted by name.
func (r *Registry) Definitions() []model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]model.ToolDefinition, 0, len(r.tools))
	for _, e := range r.tools {
		defs = append(defs, model.NewToolDefinition(e.tool.Name(), e.tool.Description(), e.tool.Parameters()))
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Function.Name < defs[j].Function.Name })

	return defs
}

// Execute runs call against the registered tool:
//
//	lookup           -> toolNotFound
//	argument schema  -> invalidToolArguments
//	input guardrails -> toolInputTripwire
//	tool body        -> toolExecutionFailed (panics recovered)
//	output guardrails-> toolOutputTripwire
//
// Every failure is returned as a *core.Error carrying the tool name.
func (r *Registry) Execute(ctx context.Context, call core.ToolCall) (any, error) {
	r.mu.RLock()
	e, ok := r.tools[call.Name]
	r.mu.RUnlock()

	if !ok {
		return nil, &core.Error{Kind: core.KindToolNotFound, Op: core.OpTool, Tool: call.Name}
	}

	if err := call.ArgumentsError(); err != nil {
		return nil, core.ToolError(core.KindInvalidToolArguments, call.Name, err)
	}

	args := call.Arguments()

	if err := e.validator.Validate(args); err != nil {
		return nil, core.ToolError(core.KindInvalidToolArguments, call.Name, err)
	}

	var inputGuards, outputGuards []guardrail.Guardrail
	if g, ok := e.tool.(GuardedTool); ok {
		inputGuards, outputGuards = g.InputGuardrails(), g.OutputGuardrails()
	}

	if err := guardrail.Run(ctx, guardrail.PhaseToolInput, inputGuards, args); err != nil {
		return nil, tagTool(err, call.Name)
	}

	out, err := r.invoke(ctx, e.tool, call, args)
	if err != nil {
		return nil, err
	}

	if err := guardrail.Run(ctx, guardrail.PhaseToolOutput, outputGuards, out); err != nil {
		return nil, tagTool(err, call.Name)
	}

	return out, nil
}

func (r *Registry) invoke(ctx context.Context, t Tool, call core.ToolCall, args map[string]any) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool.call.panic", "tool", call.Name, "panic", rec, "stack", string(debug.Stack()))
			err = core.ToolError(core.KindToolExecutionFailed, call.Name, &Error{
				Tool:    call.Name,
				Message: fmt.Sprintf("panic: %v", rec),
				Code:    CodePanic,
			})
		}
	}()

	out, err = t.Call(core.NewToolContext(ctx, call, r.logger), args)
	if err != nil {
		var ce *core.Error
		if errors.As(err, &ce) {
			return nil, tagTool(ce, call.Name)
		}
		return nil, core.ToolError(core.KindToolExecutionFailed, call.Name, err)
	}

	return out, nil
}

func tagTool(err error, name string) error {
	var ce *core.Error
	if !errors.As(err, &ce) {
		return core.ToolError(core.KindToolExecutionFailed, name, err)
	}

	c := *ce
	c.Op = core.OpTool
	c.Tool = name

	return &c
}

// WithRegistryLogger sets the logger used for registry and tool logs.
func WithRegistryLogger(l logging.Logger) func(o *RegistryOptions) {
	return func(o *RegistryOptions) { o.Logger = l }
}
