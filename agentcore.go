// Package agentcore provides a high-level façade over the agent loop and its
// supporting services (tool dispatch, resilient backends, sessions & logging).
// Most applications interact with this package by:
//  1. Creating an AgentCore via New() (optionally loading a config.Config)
//  2. Building agents with NewAgent, which wraps the backend with the
//     configured resilience policies and applies the configured loop settings
//  3. Invoking agents asynchronously (Invoke) or synchronously (InvokeSync)
//
// Defaults are safe for local development and testing: an in-memory session
// store, no resilience policies and a NoOp logger.
package agentcore

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agentcore/agent"
	"github.com/hupe1980/agentcore/config"
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/model"
	"github.com/hupe1980/agentcore/resilience"
	"github.com/hupe1980/agentcore/session"
)

// DefaultMaxConcurrentRuns bounds concurrently executing runs when
// Options.MaxConcurrentRuns is zero.
const DefaultMaxConcurrentRuns = 10

// Options configures the AgentCore instance.
type Options struct {
	// Config supplies loop, dispatch, resilience and logging settings.
	Config config.Config

	// MaxConcurrentRuns limits runs executing at once. Invoke blocks until a
	// slot is free or its context ends.
	MaxConcurrentRuns int

	// SessionStore persists per-session history (in-memory when nil).
	SessionStore session.Store

	// Fallback receives calls the primary backend fails to serve.
	Fallback model.Backend

	// Hooks observe every run of every agent built by NewAgent.
	Hooks agent.Hooks

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// AgentCore aggregates named agents and tracks their active runs. Public
// methods are safe for concurrent use.
type AgentCore struct {
	opts Options
	sem  *semaphore.Weighted

	mu     sync.RWMutex
	agents map[string]*agent.Agent
	runs   map[string]*agent.RunHandle
}

// New creates an AgentCore with optional overrides.
func New(optFns ...func(o *Options)) *AgentCore {
	opts := Options{
		Config:            config.Default(),
		MaxConcurrentRuns: DefaultMaxConcurrentRuns,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	if opts.MaxConcurrentRuns <= 0 {
		opts.MaxConcurrentRuns = DefaultMaxConcurrentRuns
	}

	return &AgentCore{
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.MaxConcurrentRuns)),
		agents: make(map[string]*agent.Agent),
		runs:   make(map[string]*agent.RunHandle),
	}
}

// FromConfigFile loads a YAML configuration and creates an AgentCore from it,
// logging to stdout as configured unless optFns override the logger.
func FromConfigFile(path string, optFns ...func(o *Options)) (*AgentCore, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	base := []func(o *Options){WithConfig(cfg), WithLogger(cfg.Logger(nil))}

	return New(append(base, optFns...)...), nil
}

// NewAgent builds and registers an agent. The backend is wrapped with the
// configured resilience policies (and the fallback backend, if any). An
// empty name falls back to the configured agent name. optFns are applied
// after the configured settings and may override them.
func (c *AgentCore) NewAgent(name string, backend model.Backend, optFns ...func(o *agent.Options)) (*agent.Agent, error) {
	cfg := &c.opts.Config

	if name == "" {
		name = cfg.Agent.Name
	}

	if backend == nil {
		return nil, core.Errorf(core.KindInvalidInput, core.OpAgent, "agent %q: backend is nil", name)
	}

	if c.opts.Fallback != nil {
		backend = resilience.FallbackBackend(backend, c.opts.Fallback, cfg.Policies(c.opts.Logger)...)
	} else {
		backend = cfg.BuildBackend(backend, c.opts.Logger)
	}

	base := []func(o *agent.Options){
		agent.WithLogger(c.opts.Logger),
		agent.WithSessionStore(c.opts.SessionStore),
	}

	base = append(base, cfg.ApplyAgent()...)

	if c.opts.Hooks != nil {
		base = append(base, agent.WithAgentHooks(c.opts.Hooks))
	}

	a := agent.New(name, backend, append(base, optFns...)...)

	if err := c.Register(a); err != nil {
		return nil, err
	}

	return a, nil
}

// Register adds an agent built elsewhere. Names must be unique.
func (c *AgentCore) Register(a *agent.Agent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.agents[a.Name()]; exists {
		return core.Errorf(core.KindInvalidInput, core.OpAgent, "agent %q already registered", a.Name())
	}

	c.agents[a.Name()] = a
	c.opts.Logger.Debug("agentcore.agent.registered", "agent", a.Name(), "handoffs", len(a.Handoffs()))

	return nil
}

// Agent returns the registered agent with the given name.
func (c *AgentCore) Agent(name string) (*agent.Agent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	a, ok := c.agents[name]

	return a, ok
}

// Agents returns the registered agent names in sorted order.
func (c *AgentCore) Agents() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.agents))
	for n := range c.agents {
		names = append(names, n)
	}

	slices.Sort(names)

	return names
}

// SessionStore returns the store shared by agents built with NewAgent.
func (c *AgentCore) SessionStore() session.Store { return c.opts.SessionStore }

// Invoke starts a run of the named agent in the background. It blocks while
// MaxConcurrentRuns runs are already executing.
func (c *AgentCore) Invoke(ctx context.Context, sessionID, agentName, input string, optFns ...agent.RunOption) (*agent.RunHandle, error) {
	a, ok := c.Agent(agentName)
	if !ok {
		return nil, core.Errorf(core.KindInvalidInput, core.OpAgent, "agent %q not found", agentName)
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, core.WrapError(core.KindCancelled, core.OpAgent, err).WithAgent(agentName)
	}

	h, err := a.Start(ctx, input, append(slices.Clip(optFns), agent.WithSessionID(sessionID))...)
	if err != nil {
		c.sem.Release(1)
		return nil, err
	}

	runID := h.RunID()

	c.mu.Lock()
	c.runs[runID] = h
	c.mu.Unlock()

	c.opts.Logger.Debug("agentcore.run.started", "agent", agentName, "run_id", runID, "session_id", sessionID)

	go func() {
		<-h.Done()

		c.mu.Lock()
		delete(c.runs, runID)
		c.mu.Unlock()

		c.sem.Release(1)
	}()

	return h, nil
}

// InvokeSync runs the named agent and blocks until it finishes.
func (c *AgentCore) InvokeSync(ctx context.Context, sessionID, agentName, input string, optFns ...agent.RunOption) (*agent.Result, error) {
	h, err := c.Invoke(ctx, sessionID, agentName, input, optFns...)
	if err != nil {
		return nil, err
	}

	return h.Wait()
}

// Cancel cancels an active run by ID.
func (c *AgentCore) Cancel(runID string) error {
	c.mu.RLock()
	h, ok := c.runs[runID]
	c.mu.RUnlock()

	if !ok {
		return core.Errorf(core.KindInvalidInput, core.OpAgent, "run %q not found", runID)
	}

	h.Cancel()

	return nil
}

// ActiveRuns returns the IDs of runs that have not finished yet.
func (c *AgentCore) ActiveRuns() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.runs))
	for id := range c.runs {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// WithConfig uses cfg for loop, dispatch, resilience and logging settings.
func WithConfig(cfg *config.Config) func(o *Options) {
	return func(o *Options) { o.Config = *cfg }
}

// WithMaxConcurrentRuns bounds concurrently executing runs.
func WithMaxConcurrentRuns(n int) func(o *Options) {
	return func(o *Options) { o.MaxConcurrentRuns = n }
}

// WithSessionStore sets the session store shared by all agents.
func WithSessionStore(s session.Store) func(o *Options) {
	return func(o *Options) { o.SessionStore = s }
}

// WithFallback routes failed primary calls to b.
func WithFallback(b model.Backend) func(o *Options) {
	return func(o *Options) { o.Fallback = b }
}

// WithHooks installs hooks on every agent built by NewAgent.
func WithHooks(h agent.Hooks) func(o *Options) {
	return func(o *Options) { o.Hooks = agent.CombineHooks(o.Hooks, h) }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}
