// Package dispatch executes a batch of tool calls concurrently and returns
// their results in call order.
//
// Every name in a batch is validated before anything runs: a single unknown
// tool aborts the whole batch with toolNotFound and no tool executes. Valid
// batches fan out one goroutine per call (optionally bounded by MaxParallel).
// Each goroutine reports an (index, result) pair on a channel; results are
// collected in completion order and sorted back into call order. The failure
// policy only decides which error, if any, accompanies the results: every call
// always runs to completion.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
)

// Executor resolves and runs tool calls. tool.Registry satisfies it.
type Executor interface {
	Has(name string) bool
	Execute(ctx context.Context, call core.ToolCall) (any, error)
}

// FailurePolicy decides how per-call failures surface from Dispatch.
type FailurePolicy int

const (
	// FailFast returns the failure of the first failing call by position.
	FailFast FailurePolicy = iota
	// CollectErrors returns a *BatchError listing every failing call.
	CollectErrors
	// ContinueOnError never returns an error for per-call failures.
	ContinueOnError
)

// String returns the configuration name of the policy.
func (p FailurePolicy) String() string {
	switch p {
	case FailFast:
		return "fail_fast"
	case CollectErrors:
		return "collect_errors"
	case ContinueOnError:
		return "continue_on_error"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// ParseFailurePolicy converts a configuration name into a FailurePolicy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fail_fast", "failfast":
		return FailFast, nil
	case "collect_errors", "collecterrors":
		return CollectErrors, nil
	case "", "continue_on_error", "continueonerror":
		return ContinueOnError, nil
	default:
		return ContinueOnError, fmt.Errorf("unknown failure policy %q", s)
	}
}

// Options configures a Dispatcher.
type Options struct {
	Policy      FailurePolicy
	MaxParallel int // 0 or negative means one goroutine per call
	Logger      logging.Logger
}

// Dispatcher runs tool call batches. It is stateless apart from its
// configuration and safe for concurrent use.
type Dispatcher struct {
	opts Options
}

// New creates a Dispatcher. The default policy is ContinueOnError.
func New(optFns ...func(o *Options)) *Dispatcher {
	opts := Options{Policy: ContinueOnError}
	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Dispatcher{opts: opts}
}

// Policy returns the configured failure policy.
func (d *Dispatcher) Policy() FailurePolicy { return d.opts.Policy }

type indexedResult struct {
	idx    int
	result core.ToolExecutionResult
}

// Dispatch executes calls and returns exactly len(calls) results, where
// results[i] belongs to calls[i]. ctx is handed to every tool; cancelling it
// does not abort calls already running.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []core.ToolCall, exec Executor) ([]core.ToolExecutionResult, error) {
	if len(calls) == 0 {
		return []core.ToolExecutionResult{}, nil
	}

	for _, c := range calls {
		if !exec.Has(c.Name) {
			return nil, &core.Error{Kind: core.KindToolNotFound, Op: core.OpDispatch, Tool: c.Name}
		}
	}

	start := time.Now()

	resultCh := make(chan indexedResult, len(calls))

	var g errgroup.Group
	if d.opts.MaxParallel > 0 {
		g.SetLimit(d.opts.MaxParallel)
	}

	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			resultCh <- indexedResult{idx: i, result: d.execute(ctx, call, exec)}
			return nil
		})
	}

	_ = g.Wait()
	close(resultCh)

	collected := make([]indexedResult, 0, len(calls))
	for r := range resultCh {
		collected = append(collected, r)
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].idx < collected[j].idx })

	results := make([]core.ToolExecutionResult, len(collected))
	for i, r := range collected {
		results[i] = r.result
	}

	failures := 0
	for _, r := range results {
		if !r.IsSuccess() {
			failures++
		}
	}

	d.opts.Logger.Debug("dispatch.batch.complete",
		"calls", len(calls),
		"failures", failures,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return results, d.policyError(results, failures)
}

func (d *Dispatcher) execute(ctx context.Context, call core.ToolCall, exec Executor) (res core.ToolExecutionResult) {
	start := time.Now()

	res = core.ToolExecutionResult{
		ToolName:  call.Name,
		CallID:    call.ID,
		Arguments: call.Arguments(),
		Timestamp: start,
	}

	defer func() {
		if rec := recover(); rec != nil {
			d.opts.Logger.Error("dispatch.call.panic", "tool", call.Name, "panic", rec, "stack", string(debug.Stack()))
			res.Output = nil
			res.Err = core.ToolError(core.KindToolExecutionFailed, call.Name, fmt.Errorf("panic: %v", rec))
		}
		res.Duration = time.Since(start)
	}()

	out, err := exec.Execute(ctx, call)
	if err != nil {
		if _, ok := core.AsError(err); !ok {
			err = core.ToolError(core.KindToolExecutionFailed, call.Name, err)
		}
		res.Err = err
		return res
	}

	res.Output = out

	return res
}

func (d *Dispatcher) policyError(results []core.ToolExecutionResult, failures int) error {
	if failures == 0 {
		return nil
	}

	switch d.opts.Policy {
	case FailFast:
		for _, r := range results {
			if r.Err != nil {
				return r.Err
			}
		}
	case CollectErrors:
		be := &BatchError{}
		for i, r := range results {
			if r.Err != nil {
				be.Failures = append(be.Failures, CallFailure{Index: i, Tool: r.ToolName, CallID: r.CallID, Err: r.Err})
			}
		}
		return be
	}

	return nil
}

// WithPolicy sets the failure policy.
func WithPolicy(p FailurePolicy) func(o *Options) {
	return func(o *Options) { o.Policy = p }
}

// WithMaxParallel bounds the number of concurrently running calls.
func WithMaxParallel(n int) func(o *Options) {
	return func(o *Options) { o.MaxParallel = n }
}

// WithLogger sets the dispatcher logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}
