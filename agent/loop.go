package agent

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/dispatch"
	"github.com/hupe1980/agentcore/guardrail"
	"github.com/hupe1980/agentcore/model"
)

// run is the state of a single loop execution. It is owned by one goroutine;
// only the tool hooks are invoked concurrently.
type run struct {
	agent  *Agent
	rc     *core.RunContext
	opts   RunOptions
	hooks  Hooks
	cancel context.CancelFunc

	system  string
	prior   []core.Message
	history *core.History
	calls   []core.ToolCall
	results []core.ToolExecutionResult
	usage   core.Usage
}

func (r *run) execute() (res *Result, err error) {
	a, rc := r.agent, r.rc

	rc.LogDebug("agent.run.start", "input_len", len(rc.Input))

	r.hooks.OnRunStart(rc)

	defer func() {
		if err != nil {
			res = nil
			err = annotate(err, a.name)
			rc.LogWarn("agent.run.error", "iterations", rc.Iteration(), "error", err.Error())
		} else {
			rc.LogInfo("agent.run.complete",
				"iterations", res.Iterations,
				"tool_calls", len(res.ToolCalls),
				"handoff_to", res.HandoffTo,
				"duration_ms", res.Duration.Milliseconds(),
			)
		}

		r.hooks.OnRunEnd(rc, res, err)
	}()

	if err := r.setup(); err != nil {
		return nil, err
	}

	res, err = r.loop()
	if err != nil {
		return nil, err
	}

	r.persist(res)

	return res, nil
}

func (r *run) setup() error {
	a, rc := r.agent, r.rc

	if err := guardrail.Run(rc.Context, guardrail.PhaseInput, a.opts.InputGuardrails, rc.Input); err != nil {
		return err
	}

	var prior []core.Message

	if a.opts.SessionStore != nil && rc.SessionID != "" {
		stored, err := a.opts.SessionStore.Load(rc.Context, rc.SessionID)
		if err != nil {
			return fmt.Errorf("load session %q: %w", rc.SessionID, err)
		}
		prior = stored
	}

	prior = append(prior, r.opts.History...)
	r.prior = trimLeadingToolMessages(core.RecentMessages(prior, a.opts.HistoryLimit))

	if !a.opts.Instruction.IsZero() {
		state := map[string]any{
			"agent":       a.name,
			"description": a.opts.Description,
			"input":       rc.Input,
			"run_id":      rc.RunID,
			"session_id":  rc.SessionID,
		}
		maps.Copy(state, r.opts.State)

		system, err := a.opts.Instruction.Resolve(rc, state)
		if err != nil {
			return &core.Error{Kind: core.KindInvalidInput, Op: core.OpAgent, Message: "resolve instruction", Err: err}
		}
		r.system = system
	}

	r.history = core.NewHistory(core.UserMessage(rc.Input))

	return nil
}

func (r *run) loop() (*Result, error) {
	a, rc := r.agent, r.rc

	for {
		if err := r.guard(); err != nil {
			return nil, err
		}

		iteration := rc.Iteration()
		r.hooks.OnIterationStart(rc, iteration)

		rc.LogDebug("agent.iteration.start", "iteration", iteration)

		start := time.Now()
		resp, err := r.infer(a.toolDefinitions())
		if err != nil {
			err = r.generationError(err, iteration)
		}

		r.hooks.OnModelResponse(rc, resp, time.Since(start), err)

		if err != nil {
			return nil, err
		}

		r.usage.Add(resp.Usage)

		rc.LogDebug("agent.model.response",
			"iteration", iteration,
			"tool_calls", len(resp.ToolCalls),
			"finish_reason", string(resp.FinishReason),
		)

		if !resp.HasToolCalls() {
			r.history.Append(core.AssistantMessage(resp.Content))

			if err := guardrail.Run(rc.Context, guardrail.PhaseOutput, a.opts.OutputGuardrails, resp.Content); err != nil {
				return nil, withIteration(err, iteration)
			}

			return r.result(resp.Content), nil
		}

		r.history.Append(core.AssistantMessage(resp.Content, resp.ToolCalls...))
		r.calls = append(r.calls, resp.ToolCalls...)

		if h, call, ok := a.handoffFor(resp.ToolCalls); ok {
			return r.delegate(h, call)
		}

		if err := r.interrupted(); err != nil {
			return nil, withIteration(err, iteration)
		}

		results, err := a.dispatcher.Dispatch(rc.Context, resp.ToolCalls, r.executor())

		for _, res := range results {
			r.history.Append(core.ToolResultMessage(res))
		}
		r.results = append(r.results, results...)

		if err != nil {
			if a.opts.StrictToolErrors {
				err = strictError(err)
			}
			return nil, withIteration(err, iteration)
		}

		for _, res := range results {
			if res.Err != nil && core.KindOf(res.Err).IsTripwire() {
				return nil, withIteration(res.Err, iteration)
			}
		}
	}
}

// guard runs the per-iteration checks in order: cancellation, elapsed
// time, iteration budget.
func (r *run) guard() error {
	if err := r.interrupted(); err != nil {
		return withIteration(err, r.rc.Iteration())
	}

	return r.rc.Limiter.Increment()
}

// interrupted reports cancellation or an exhausted time budget.
func (r *run) interrupted() error {
	rc := r.rc
	ctxErr := rc.Err()
	timeout := r.agent.opts.Timeout

	if rc.Cancelled() && !errors.Is(ctxErr, context.DeadlineExceeded) {
		return core.NewError(core.KindCancelled, core.OpAgent, "run cancelled")
	}

	if timeout > 0 && (rc.Elapsed() >= timeout || errors.Is(ctxErr, context.DeadlineExceeded)) {
		return core.Errorf(core.KindTimeout, core.OpAgent, "run exceeded %s", timeout)
	}

	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return core.WrapError(core.KindTimeout, core.OpAgent, ctxErr)
	}

	return nil
}

func (r *run) infer(defs []model.ToolDefinition) (*core.InferenceResponse, error) {
	a, ctx := r.agent, r.rc.Context
	msgs := r.prompt()

	if len(defs) == 0 {
		var (
			text string
			err  error
		)

		if a.opts.Streaming {
			chunks, errs := a.backend.Stream(ctx, msgs, a.opts.Generate)
			text, err = model.CollectText(ctx, chunks, errs, r.onDelta)
		} else {
			text, err = a.backend.Generate(ctx, msgs, a.opts.Generate)
		}

		if err != nil {
			return nil, err
		}

		return &core.InferenceResponse{Content: text, FinishReason: core.FinishCompleted}, nil
	}

	if sc, ok := a.backend.(model.StreamingToolCaller); ok && a.opts.Streaming {
		updates, errs := sc.StreamWithToolCalls(ctx, msgs, defs, a.opts.Generate)

		return model.CollectUpdates(ctx, updates, errs, func(u model.StreamUpdate) {
			if c, ok := u.(model.OutputChunk); ok {
				r.onDelta(c.Text)
			}
		})
	}

	resp, err := a.backend.GenerateWithToolCalls(ctx, msgs, defs, a.opts.Generate)
	if err == nil && resp == nil {
		err = core.NewError(core.KindGenerationFailed, core.OpGeneration, "backend returned no response")
	}

	return resp, err
}

func (r *run) onDelta(text string) { r.hooks.OnStreamDelta(r.rc, text) }

// prompt assembles system instruction, prior turns and the messages of the
// current run.
func (r *run) prompt() []core.Message {
	msgs := make([]core.Message, 0, 1+len(r.prior)+r.history.Len())

	if r.system != "" {
		msgs = append(msgs, core.SystemMessage(r.system))
	}

	msgs = append(msgs, r.prior...)

	return append(msgs, r.history.Messages()...)
}

func (r *run) generationError(err error, iteration int) error {
	if ie := r.interrupted(); ie != nil {
		return withIteration(ie, iteration)
	}

	if ce, ok := core.AsError(err); ok {
		if ce.Iteration == 0 {
			ce = ce.WithIteration(iteration)
		}
		return ce
	}

	return &core.Error{Kind: core.KindGenerationFailed, Op: core.OpGeneration, Iteration: iteration, Err: err}
}

func (r *run) delegate(h Handoff, call core.ToolCall) (*Result, error) {
	rc, target := r.rc, h.Agent

	rc.LogInfo("agent.handoff", "target", target.name, "call_id", call.ID)

	r.hooks.OnHandoff(rc, target.name)

	sub, err := target.Run(rc.Context, rc.Input,
		WithHistory(r.prior...),
		WithHooks(r.opts.Hooks),
		WithState(r.opts.State),
	)
	if err != nil {
		return nil, err
	}

	res := *sub
	res.Iterations += rc.Iteration()
	res.Duration = rc.Elapsed()
	res.ToolCalls = append(slices.Clone(r.calls), sub.ToolCalls...)
	res.ToolResults = append(slices.Clone(r.results), sub.ToolResults...)
	res.Usage.Add(&r.usage)

	if res.HandoffTo == "" {
		res.HandoffTo = target.name
	}

	return &res, nil
}

func (r *run) result(output string) *Result {
	turn := r.history.Messages()

	return &Result{
		Output:      output,
		Iterations:  r.rc.Iteration(),
		Duration:    r.rc.Elapsed(),
		ToolCalls:   r.calls,
		ToolResults: r.results,
		History:     append(slices.Clone(r.prior), turn...),
		Usage:       r.usage,
		turn:        turn,
	}
}

// persist appends the run's own messages to the session store. Failures are
// logged; the run result stands.
func (r *run) persist(res *Result) {
	a, rc := r.agent, r.rc

	if a.opts.SessionStore == nil || rc.SessionID == "" {
		return
	}

	if err := a.opts.SessionStore.Append(context.WithoutCancel(rc.Context), rc.SessionID, res.turn...); err != nil {
		rc.LogWarn("agent.session.persist.error", "error", err.Error())
	}
}

func (r *run) executor() dispatch.Executor {
	return observedExecutor{exec: r.agent.opts.Tools, rc: r.rc, hooks: r.hooks}
}

// observedExecutor reports every call to the run hooks.
type observedExecutor struct {
	exec  dispatch.Executor
	rc    *core.RunContext
	hooks Hooks
}

func (e observedExecutor) Has(name string) bool { return e.exec.Has(name) }

func (e observedExecutor) Execute(ctx context.Context, call core.ToolCall) (any, error) {
	e.hooks.OnToolCallStart(e.rc, call)

	start := time.Now()
	out, err := e.exec.Execute(ctx, call)

	e.hooks.OnToolCallEnd(e.rc, core.ToolExecutionResult{
		ToolName:  call.Name,
		CallID:    call.ID,
		Arguments: call.Arguments(),
		Output:    out,
		Err:       err,
		Duration:  time.Since(start),
		Timestamp: start,
	})

	return out, err
}

// strictError reports a tool failure as toolExecutionFailed unless it is
// already terminal in its own right.
func strictError(err error) error {
	ce, ok := core.AsError(err)
	if !ok {
		return err
	}

	switch {
	case ce.Kind.IsTripwire(), ce.Kind == core.KindToolExecutionFailed, ce.Kind == core.KindToolNotFound:
		return err
	default:
		return &core.Error{Kind: core.KindToolExecutionFailed, Op: core.OpTool, Tool: ce.Tool, Err: err}
	}
}

func withIteration(err error, iteration int) error {
	ce, ok := err.(*core.Error)
	if !ok || ce.Iteration != 0 || iteration == 0 {
		return err
	}
	return ce.WithIteration(iteration)
}

func annotate(err error, agentName string) error {
	ce, ok := err.(*core.Error)
	if !ok || ce.Agent != "" {
		return err
	}
	return ce.WithAgent(agentName)
}

// trimLeadingToolMessages drops tool messages whose assistant turn was cut
// off by the history limit.
func trimLeadingToolMessages(msgs []core.Message) []core.Message {
	for len(msgs) > 0 && msgs[0].Role == core.RoleTool {
		msgs = msgs[1:]
	}
	return slices.Clone(msgs)
}
