package config

import (
	"io"
	"os"

	"github.com/hupe1980/agentcore/agent"
	"github.com/hupe1980/agentcore/dispatch"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/model"
	"github.com/hupe1980/agentcore/resilience"
)

// ApplyAgent translates the agent and dispatch sections into agent options.
// The instruction is only set when configured, so the agent's default
// greeting stays in place otherwise.
func (c *Config) ApplyAgent() []func(o *agent.Options) {
	policy, _ := dispatch.ParseFailurePolicy(c.Dispatch.Policy)

	opts := []func(o *agent.Options){
		agent.WithMaxIterations(c.Agent.MaxIterations),
		agent.WithTimeout(c.Agent.Timeout),
		agent.WithHistoryLimit(c.Agent.HistoryLimit),
		agent.WithStreaming(c.Agent.Streaming),
		agent.WithStrictToolErrors(c.Agent.StrictToolErrors),
		agent.WithFailurePolicy(policy),
		agent.WithMaxParallel(c.Dispatch.MaxParallel),
	}

	if c.Agent.Description != "" {
		opts = append(opts, agent.WithDescription(c.Agent.Description))
	}

	if c.Agent.Instruction != "" {
		opts = append(opts, agent.WithInstruction(c.Agent.Instruction))
	}

	return opts
}

// Policies builds the configured resilience policies, outermost first:
// retry, circuit breaker, rate limit, per-attempt timeout.
func (c *Config) Policies(logger logging.Logger) []resilience.Policy {
	var policies []resilience.Policy

	res := c.Resilience

	if r := res.Retry; r != nil {
		p := resilience.RetryPolicy{MaxAttempts: r.MaxAttempts, Logger: logger}

		switch r.Strategy {
		case "fixed":
			p.Delay = resilience.Fixed(r.BaseDelay)
		default:
			p.Delay = resilience.Exponential{
				Base:       r.BaseDelay,
				Max:        r.MaxDelay,
				Multiplier: r.Multiplier,
				Jitter:     r.Jitter,
			}
		}

		policies = append(policies, resilience.NewRetry(p))
	}

	if b := res.CircuitBreaker; b != nil {
		policies = append(policies, resilience.NewCircuitBreaker(b.Threshold, b.ResetTimeout, resilience.WithBreakerLogger(logger)))
	}

	if rl := res.RateLimit; rl != nil {
		if rl.MaxRPS > rl.RPS {
			policies = append(policies, resilience.NewAdaptiveRateLimiter(rl.RPS, rl.MaxRPS, rl.Burst))
		} else {
			policies = append(policies, resilience.NewRateLimiter(rl.RPS, rl.Burst))
		}
	}

	if res.Timeout > 0 {
		policies = append(policies, resilience.NewTimeout(res.Timeout))
	}

	return policies
}

// BuildBackend wraps b with the configured resilience policies. It returns
// b unchanged when none are configured.
func (c *Config) BuildBackend(b model.Backend, logger logging.Logger) model.Backend {
	policies := c.Policies(logger)
	if len(policies) == 0 {
		return b
	}

	return resilience.WrapBackend(b, policies...)
}

// Logger builds the configured logger writing to out (stdout when nil).
func (c *Config) Logger(out io.Writer) logging.Logger {
	level, _ := logging.ParseLevel(c.Logging.Level)

	if out == nil {
		out = os.Stdout
	}

	switch c.Logging.Format {
	case "zerolog":
		return logging.NewZerologLogger(level, out, false)
	case "console":
		return logging.NewZerologLogger(level, out, true)
	default:
		cfg := logging.DefaultLoggerConfig()
		cfg.Level = level
		cfg.Format = c.Logging.Format
		cfg.Output = out
		return logging.NewLogger(cfg)
	}
}
