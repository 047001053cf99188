// Package config loads agentcore settings from YAML and translates them into
// agent, dispatcher and resilience options.
//
//	agent:
//	  name: support
//	  instruction: "You are {{.agent}}."
//	  max_iterations: 8
//	  timeout: 2m
//	dispatch:
//	  policy: continue_on_error
//	  max_parallel: 4
//	resilience:
//	  retry: {max_attempts: 3, strategy: exponential, base_delay: 200ms, max_delay: 5s}
//	  circuit_breaker: {threshold: 5, reset_timeout: 30s}
//	logging:
//	  level: info
//	  format: json
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentcore/dispatch"
	"github.com/hupe1980/agentcore/logging"
)

// Config is the root configuration document.
type Config struct {
	Agent      AgentConfig      `yaml:"agent"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// AgentConfig mirrors agent.Options.
type AgentConfig struct {
	Name             string        `yaml:"name"`
	Description      string        `yaml:"description"`
	Instruction      string        `yaml:"instruction"`
	MaxIterations    int           `yaml:"max_iterations"`
	Timeout          time.Duration `yaml:"timeout"`
	HistoryLimit     int           `yaml:"history_limit"`
	Streaming        bool          `yaml:"streaming"`
	StrictToolErrors bool          `yaml:"strict_tool_errors"`
}

// DispatchConfig configures the tool dispatcher.
type DispatchConfig struct {
	Policy      string `yaml:"policy"`
	MaxParallel int    `yaml:"max_parallel"`
}

// ResilienceConfig configures the policies wrapped around the backend.
// Absent sections are disabled.
type ResilienceConfig struct {
	Retry          *RetryConfig          `yaml:"retry"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker"`
	Timeout        time.Duration         `yaml:"timeout"`
	RateLimit      *RateLimitConfig      `yaml:"rate_limit"`
}

// RetryConfig configures retries.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Strategy    string        `yaml:"strategy"` // fixed | exponential
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	Jitter      float64       `yaml:"jitter"`
}

// CircuitBreakerConfig configures the breaker.
type CircuitBreakerConfig struct {
	Threshold    int           `yaml:"threshold"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// RateLimitConfig configures the token bucket. MaxRPS above RPS enables
// adaptive limiting.
type RateLimitConfig struct {
	RPS    float64 `yaml:"rps"`
	MaxRPS float64 `yaml:"max_rps"`
	Burst  int     `yaml:"burst"`
}

// LoggingConfig selects the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json | zerolog | console
}

// Default returns the configuration used when a document leaves a field
// out.
func Default() Config {
	return Config{
		Agent: AgentConfig{
			Name:          "assistant",
			MaxIterations: 10,
			HistoryLimit:  20,
		},
		Dispatch: DispatchConfig{
			Policy: dispatch.ContinueOnError.String(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes a YAML document over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if r := c.Resilience.Retry; r != nil {
		if r.Strategy == "" {
			r.Strategy = "exponential"
		}
		if r.MaxAttempts == 0 {
			r.MaxAttempts = 3
		}
		if r.BaseDelay == 0 {
			r.BaseDelay = 200 * time.Millisecond
		}
		if r.Strategy == "exponential" && r.Multiplier == 0 {
			r.Multiplier = 2
		}
	}

	if b := c.Resilience.CircuitBreaker; b != nil && b.ResetTimeout == 0 {
		b.ResetTimeout = 30 * time.Second
	}

	if rl := c.Resilience.RateLimit; rl != nil && rl.Burst == 0 {
		rl.Burst = 1
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.Agent.Name) == "" {
		add("agent.name must not be empty")
	}
	if c.Agent.MaxIterations < 0 {
		add("agent.max_iterations must be >= 0, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.HistoryLimit < 0 {
		add("agent.history_limit must be >= 0, got %d", c.Agent.HistoryLimit)
	}
	if c.Agent.Timeout < 0 {
		add("agent.timeout must be >= 0, got %s", c.Agent.Timeout)
	}

	if _, err := dispatch.ParseFailurePolicy(c.Dispatch.Policy); err != nil {
		add("dispatch.policy: %v", err)
	}
	if c.Dispatch.MaxParallel < 0 {
		add("dispatch.max_parallel must be >= 0, got %d", c.Dispatch.MaxParallel)
	}

	if r := c.Resilience.Retry; r != nil {
		if r.MaxAttempts < 1 {
			add("resilience.retry.max_attempts must be >= 1, got %d", r.MaxAttempts)
		}
		switch r.Strategy {
		case "fixed", "exponential":
		default:
			add("resilience.retry.strategy must be fixed or exponential, got %q", r.Strategy)
		}
		if r.BaseDelay < 0 || r.MaxDelay < 0 {
			add("resilience.retry delays must be >= 0")
		}
		if r.Jitter < 0 || r.Jitter > 1 {
			add("resilience.retry.jitter must be within [0, 1], got %g", r.Jitter)
		}
	}

	if b := c.Resilience.CircuitBreaker; b != nil {
		if b.Threshold < 1 {
			add("resilience.circuit_breaker.threshold must be >= 1, got %d", b.Threshold)
		}
		if b.ResetTimeout < 0 {
			add("resilience.circuit_breaker.reset_timeout must be >= 0")
		}
	}

	if c.Resilience.Timeout < 0 {
		add("resilience.timeout must be >= 0, got %s", c.Resilience.Timeout)
	}

	if rl := c.Resilience.RateLimit; rl != nil {
		if rl.RPS <= 0 {
			add("resilience.rate_limit.rps must be > 0, got %g", rl.RPS)
		}
		if rl.MaxRPS != 0 && rl.MaxRPS < rl.RPS {
			add("resilience.rate_limit.max_rps must be >= rps")
		}
		if rl.Burst < 1 {
			add("resilience.rate_limit.burst must be >= 1, got %d", rl.Burst)
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level: %v", err)
	}

	switch c.Logging.Format {
	case "", "text", "json", "zerolog", "console":
	default:
		add("logging.format must be text, json, zerolog or console, got %q", c.Logging.Format)
	}

	return errors.Join(errs...)
}
