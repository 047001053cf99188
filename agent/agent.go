package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/dispatch"
	"github.com/hupe1980/agentcore/guardrail"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/model"
	"github.com/hupe1980/agentcore/session"
	"github.com/hupe1980/agentcore/tool"
)

const (
	// DefaultMaxIterations bounds the model round-trips of a run.
	DefaultMaxIterations = 10
	// DefaultHistoryLimit bounds the prior messages included in a prompt.
	DefaultHistoryLimit = 20
)

// Options configures an Agent instance.
//
// Use functional options with New to override defaults.
type Options struct {
	Description      string
	Instruction      Instruction
	MaxIterations    int
	Timeout          time.Duration
	HistoryLimit     int
	Streaming        bool
	StrictToolErrors bool
	FailurePolicy    dispatch.FailurePolicy
	MaxParallel      int
	Tools            *tool.Registry
	Handoffs         []Handoff
	Hooks            Hooks
	InputGuardrails  []guardrail.Guardrail
	OutputGuardrails []guardrail.Guardrail
	Generate         model.GenerateOptions
	SessionStore     session.Store
	Logger           logging.Logger
}

// Agent drives a model.Backend through the tool-calling loop. An Agent is
// immutable after construction and may serve concurrent runs.
type Agent struct {
	name       string
	backend    model.Backend
	opts       Options
	dispatcher *dispatch.Dispatcher
	logger     logging.Logger
}

// New creates an agent with sensible defaults:
//   - 10 iterations per run, no run timeout
//   - the 20 most recent prior messages in every prompt
//   - non-streaming generation
//   - tool failures folded back to the model (ContinueOnError dispatch)
func New(name string, backend model.Backend, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Instruction:   NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		MaxIterations: DefaultMaxIterations,
		HistoryLimit:  DefaultHistoryLimit,
		FailurePolicy: dispatch.ContinueOnError,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Tools == nil {
		opts.Tools = tool.NewRegistry(tool.WithRegistryLogger(opts.Logger))
	}

	if opts.Description == "" {
		opts.Description = fmt.Sprintf("Agent %s", name)
	}

	logger := logging.OrNoOp(opts.Logger)

	policy := opts.FailurePolicy
	if opts.StrictToolErrors {
		policy = dispatch.FailFast
	}

	return &Agent{
		name:    name,
		backend: backend,
		opts:    opts,
		logger:  logger,
		dispatcher: dispatch.New(
			dispatch.WithPolicy(policy),
			dispatch.WithMaxParallel(opts.MaxParallel),
			dispatch.WithLogger(logger),
		),
	}
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Description returns what the agent is for. It is advertised to models
// that may hand off to this agent.
func (a *Agent) Description() string { return a.opts.Description }

// Backend returns the inference backend.
func (a *Agent) Backend() model.Backend { return a.backend }

// Tools returns the agent's tool registry.
func (a *Agent) Tools() *tool.Registry { return a.opts.Tools }

// Handoffs returns a copy of the configured handoff targets.
func (a *Agent) Handoffs() []Handoff {
	out := make([]Handoff, len(a.opts.Handoffs))
	copy(out, a.opts.Handoffs)
	return out
}

// Result is the outcome of a completed run.
type Result struct {
	Output      string
	Iterations  int
	Duration    time.Duration
	ToolCalls   []core.ToolCall
	ToolResults []core.ToolExecutionResult
	// History is the full conversation: prior messages, the user input and
	// every assistant and tool message of the run.
	History []core.Message
	Usage   core.Usage
	// HandoffTo names the agent that produced Output when the run was
	// delegated; empty otherwise.
	HandoffTo string

	turn []core.Message
}

// RunOptions tunes a single run.
type RunOptions struct {
	RunID     string
	SessionID string
	History   []core.Message
	Hooks     Hooks
	State     map[string]any
}

// RunOption configures a single run.
type RunOption func(o *RunOptions)

// Run executes the loop for input and blocks until it finishes.
func (a *Agent) Run(ctx context.Context, input string, optFns ...RunOption) (*Result, error) {
	r, err := a.prepare(ctx, input, optFns)
	if err != nil {
		return nil, err
	}
	defer r.cancel()

	return r.execute()
}

// Start launches a run in the background. The returned handle cancels the
// run and waits for its result.
func (a *Agent) Start(ctx context.Context, input string, optFns ...RunOption) (*RunHandle, error) {
	r, err := a.prepare(ctx, input, optFns)
	if err != nil {
		return nil, err
	}

	h := &RunHandle{run: r, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		defer r.cancel()

		h.result, h.err = r.execute()
	}()

	return h, nil
}

// RunHandle controls a run started with Agent.Start.
type RunHandle struct {
	run    *run
	done   chan struct{}
	once   sync.Once
	result *Result
	err    error
}

// RunID returns the run identifier.
func (h *RunHandle) RunID() string { return h.run.rc.RunID }

// Cancel raises the run's cancellation flag and cancels its context. The
// run stops at its next guard check with a cancelled error; tools already
// executing observe the cancelled context but are not killed.
func (h *RunHandle) Cancel() {
	h.once.Do(func() {
		h.run.rc.Cancel()
		h.run.cancel()
	})
}

// Done is closed when the run has finished.
func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes and returns its outcome.
func (h *RunHandle) Wait() (*Result, error) {
	<-h.done
	return h.result, h.err
}

func (a *Agent) prepare(ctx context.Context, input string, optFns []RunOption) (*run, error) {
	if strings.TrimSpace(input) == "" {
		return nil, core.NewError(core.KindInvalidInput, core.OpAgent, "input is empty").WithAgent(a.name)
	}

	if a.backend == nil {
		return nil, core.NewError(core.KindInvalidInput, core.OpAgent, "no backend configured").WithAgent(a.name)
	}

	ro := RunOptions{}
	for _, fn := range optFns {
		fn(&ro)
	}

	if ro.RunID == "" {
		ro.RunID = uuid.NewString()
	}

	var cancel context.CancelFunc
	if a.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	ctx = core.WithRunInfo(ctx, core.RunInfo{RunID: ro.RunID, SessionID: ro.SessionID, Agent: a.name})

	rc := core.NewRunContext(ctx, ro.RunID, ro.SessionID,
		core.AgentInfo{Name: a.name, Description: a.opts.Description},
		input, a.opts.MaxIterations, a.logger)

	return &run{
		agent:  a,
		rc:     rc,
		opts:   ro,
		hooks:  CombineHooks(a.opts.Hooks, ro.Hooks),
		cancel: cancel,
	}, nil
}

// WithDescription sets the agent description.
func WithDescription(desc string) func(o *Options) {
	return func(o *Options) { o.Description = desc }
}

// WithInstruction sets a static system instruction.
func WithInstruction(text string) func(o *Options) {
	return func(o *Options) { o.Instruction = NewInstructionFromText(text) }
}

// WithInstructionProvider sets a dynamic system instruction.
func WithInstructionProvider(p Provider) func(o *Options) {
	return func(o *Options) { o.Instruction = NewInstructionFromProvider(p) }
}

// WithMaxIterations sets the iteration budget (0 = unlimited).
func WithMaxIterations(n int) func(o *Options) {
	return func(o *Options) { o.MaxIterations = n }
}

// WithTimeout bounds the wall-clock duration of a run (0 = none).
func WithTimeout(d time.Duration) func(o *Options) {
	return func(o *Options) { o.Timeout = d }
}

// WithHistoryLimit bounds the prior messages included in each prompt
// (0 = all).
func WithHistoryLimit(n int) func(o *Options) {
	return func(o *Options) { o.HistoryLimit = n }
}

// WithStreaming enables streamed generation.
func WithStreaming(enabled bool) func(o *Options) {
	return func(o *Options) { o.Streaming = enabled }
}

// WithStrictToolErrors makes the first tool failure of a batch terminal.
func WithStrictToolErrors(strict bool) func(o *Options) {
	return func(o *Options) { o.StrictToolErrors = strict }
}

// WithFailurePolicy sets the dispatcher failure policy.
func WithFailurePolicy(p dispatch.FailurePolicy) func(o *Options) {
	return func(o *Options) { o.FailurePolicy = p }
}

// WithMaxParallel bounds concurrently executing tools (0 = unbounded).
func WithMaxParallel(n int) func(o *Options) {
	return func(o *Options) { o.MaxParallel = n }
}

// WithTools registers tools in the agent's registry. It panics on duplicate
// names, like tool.Registry.MustRegister.
func WithTools(tools ...tool.Tool) func(o *Options) {
	return func(o *Options) {
		if o.Tools == nil {
			o.Tools = tool.NewRegistry(tool.WithRegistryLogger(o.Logger))
		}
		o.Tools.MustRegister(tools...)
	}
}

// WithRegistry uses an existing registry.
func WithRegistry(r *tool.Registry) func(o *Options) {
	return func(o *Options) { o.Tools = r }
}

// WithHandoffs adds handoff targets.
func WithHandoffs(h ...Handoff) func(o *Options) {
	return func(o *Options) { o.Handoffs = append(o.Handoffs, h...) }
}

// WithAgentHooks installs hooks observing every run of the agent.
func WithAgentHooks(h Hooks) func(o *Options) {
	return func(o *Options) { o.Hooks = CombineHooks(o.Hooks, h) }
}

// WithInputGuardrails validates the user input before the first model call.
func WithInputGuardrails(g ...guardrail.Guardrail) func(o *Options) {
	return func(o *Options) { o.InputGuardrails = append(o.InputGuardrails, g...) }
}

// WithOutputGuardrails validates the final output.
func WithOutputGuardrails(g ...guardrail.Guardrail) func(o *Options) {
	return func(o *Options) { o.OutputGuardrails = append(o.OutputGuardrails, g...) }
}

// WithGenerateOptions sets per-call backend overrides.
func WithGenerateOptions(g model.GenerateOptions) func(o *Options) {
	return func(o *Options) { o.Generate = g }
}

// WithSessionStore loads prior history from and persists runs to s when a
// run names a session.
func WithSessionStore(s session.Store) func(o *Options) {
	return func(o *Options) { o.SessionStore = s }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) RunOption {
	return func(o *RunOptions) { o.RunID = id }
}

// WithSessionID names the session whose stored history seeds the run.
func WithSessionID(id string) RunOption {
	return func(o *RunOptions) { o.SessionID = id }
}

// WithHistory supplies prior conversation messages. They follow any
// history loaded from the session store.
func WithHistory(msgs ...core.Message) RunOption {
	return func(o *RunOptions) { o.History = append(o.History, msgs...) }
}

// WithHooks installs hooks for this run only.
func WithHooks(h Hooks) RunOption {
	return func(o *RunOptions) { o.Hooks = CombineHooks(o.Hooks, h) }
}

// WithState adds template variables for the instruction.
func WithState(state map[string]any) RunOption {
	return func(o *RunOptions) {
		if o.State == nil {
			o.State = make(map[string]any, len(state))
		}
		for k, v := range state {
			o.State[k] = v
		}
	}
}
