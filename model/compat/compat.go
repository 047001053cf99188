// Package compat provides a model.Backend for any OpenAI-compatible chat
// completions endpoint (vLLM, Ollama, LM Studio, gateways). It speaks the
// wire protocol directly: JSON requests over HTTP and Server-Sent Events
// decoded by stream.Reader.
package compat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/model"
	"github.com/hupe1980/agentcore/stream"
)

// Compile-time checks.
var (
	_ model.Backend             = (*Model)(nil)
	_ model.StreamingToolCaller = (*Model)(nil)
)

const maxErrorBody = 64 * 1024

// Options configures the compat backend.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature *float64
	MaxTokens   int
	Headers     map[string]string
	HTTPClient  *http.Client
	Logger      logging.Logger
}

// Model is an OpenAI-compatible backend over plain HTTP.
type Model struct {
	opts Options
}

// NewModel creates a compat backend for baseURL (for example
// "http://localhost:11434/v1").
func NewModel(baseURL string, optFns ...func(o *Options)) *Model {
	opts := Options{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Model{opts: opts}
}

// Info implements model.Backend.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:              m.opts.Model,
		Provider:          "compat",
		SupportsTools:     true,
		SupportsStreaming: true,
	}
}

// Generate implements model.Backend.
func (m *Model) Generate(ctx context.Context, messages []core.Message, opts model.GenerateOptions) (string, error) {
	resp, err := m.GenerateWithToolCalls(ctx, messages, nil, opts)
	if err != nil {
		return "", err
	}

	return resp.Content, nil
}

// GenerateWithToolCalls implements model.Backend.
func (m *Model) GenerateWithToolCalls(ctx context.Context, messages []core.Message, tools []model.ToolDefinition, opts model.GenerateOptions) (*core.InferenceResponse, error) {
	body, err := m.do(ctx, m.buildRequest(messages, tools, opts, false))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var cr completionResponse
	if err := json.NewDecoder(body).Decode(&cr); err != nil {
		return nil, core.WrapError(core.KindDecodingError, core.OpGeneration, err)
	}

	if len(cr.Choices) == 0 {
		return nil, core.NewError(core.KindGenerationFailed, core.OpGeneration, "no choices returned")
	}

	ch0 := cr.Choices[0]

	out := &core.InferenceResponse{Content: ch0.Message.Content}

	for _, tc := range ch0.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, core.ParseToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}

	if cr.Usage != nil {
		out.Usage = &core.Usage{InputTokens: cr.Usage.PromptTokens, OutputTokens: cr.Usage.CompletionTokens}
	}

	out.FinishReason = finishReason(ch0.FinishReason, len(out.ToolCalls) > 0)

	return out, nil
}

// Stream implements model.Backend.
func (m *Model) Stream(ctx context.Context, messages []core.Message, opts model.GenerateOptions) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		updates, errs := m.StreamWithToolCalls(ctx, messages, nil, opts)
		for u := range updates {
			if c, ok := u.(model.OutputChunk); ok {
				select {
				case out <- c.Text:
				case <-ctx.Done():
					errCh <- model.ContextError(ctx.Err())
					return
				}
			}
		}

		if err := <-errs; err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// StreamWithToolCalls implements model.StreamingToolCaller. Malformed
// chunks are logged and skipped; the stream ends at [DONE] or EOF.
func (m *Model) StreamWithToolCalls(ctx context.Context, messages []core.Message, tools []model.ToolDefinition, opts model.GenerateOptions) (<-chan model.StreamUpdate, <-chan error) {
	out := make(chan model.StreamUpdate, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		body, err := m.do(ctx, m.buildRequest(messages, tools, opts, true))
		if err != nil {
			errCh <- err
			return
		}
		defer body.Close()

		emit := func(u model.StreamUpdate) bool {
			select {
			case out <- u:
				return true
			case <-ctx.Done():
				errCh <- model.ContextError(ctx.Err())
				return false
			}
		}

		var (
			reader  = stream.NewReader(body)
			acc     = stream.NewToolCallAccumulator()
			reason  string
			skipped int
		)

		for {
			ev, err := reader.Next()
			if errors.Is(err, io.EOF) {
				break
			}

			if err != nil {
				if ctx.Err() != nil {
					errCh <- model.ContextError(ctx.Err())
				} else {
					errCh <- core.WrapError(core.KindProviderUnavailable, core.OpStream, err)
				}
				return
			}

			var u model.StreamUpdate

			switch e := ev.(type) {
			case stream.TextDelta:
				u = model.OutputChunk{Text: e.Text}
			case stream.ToolCallDelta:
				acc.Apply(e)
				u = model.ToolCallPartial{Index: e.Index, ID: e.ID, Name: e.Name, Arguments: e.Arguments}
			case stream.FinishReason:
				reason = e.Reason
			case stream.Usage:
				u = model.UsageUpdate{Usage: core.Usage{InputTokens: e.PromptTokens, OutputTokens: e.CompletionTokens}}
			case stream.Error:
				skipped++
				m.opts.Logger.Warn("model.stream.chunk.skipped", "provider", "compat", "error", e.AsError().Error())
			}

			if u != nil && !emit(u) {
				return
			}
		}

		calls := acc.ToolCalls()

		m.opts.Logger.Debug("model.stream.complete", "provider", "compat", "tool_calls", len(calls), "skipped_chunks", skipped)

		if len(calls) > 0 && !emit(model.ToolCallsCompleted{Calls: calls}) {
			return
		}

		emit(model.FinishUpdate{Reason: finishReason(reason, len(calls) > 0)})
	}()

	return out, errCh
}

func (m *Model) do(ctx context.Context, req completionRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, core.WrapError(core.KindInvalidInput, core.OpGeneration, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.opts.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, core.WrapError(core.KindInvalidInput, core.OpGeneration, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	if m.opts.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+m.opts.APIKey)
	}

	for k, v := range m.opts.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := m.opts.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, model.ProviderError(ctx, 0, nil, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return nil, model.ErrorFromHTTPStatus(resp.StatusCode, resp.Header, string(body))
	}

	return resp.Body, nil
}

func (m *Model) buildRequest(messages []core.Message, tools []model.ToolDefinition, opts model.GenerateOptions, streaming bool) completionRequest {
	req := completionRequest{
		Model:       m.opts.Model,
		Messages:    make([]wireMessage, 0, len(messages)),
		Tools:       tools,
		Temperature: m.opts.Temperature,
		MaxTokens:   m.opts.MaxTokens,
		Stop:        opts.Stop,
		Stream:      streaming,
	}

	if opts.Model != "" {
		req.Model = opts.Model
	}

	if opts.Temperature != nil {
		req.Temperature = opts.Temperature
	}

	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}

	if streaming {
		req.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	for _, msg := range messages {
		wm := wireMessage{Role: string(msg.Role), Content: msg.Content, ToolCallID: msg.ToolCallID}

		for _, tc := range msg.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireFunction{
					Name:      tc.Name,
					Arguments: tc.ArgumentsJSON(),
				},
			})
		}

		req.Messages = append(req.Messages, wm)
	}

	return req
}

func finishReason(raw string, hasCalls bool) core.FinishReason {
	if r, ok := core.ParseFinishReason(raw); ok {
		return r
	}

	if hasCalls {
		return core.FinishToolCall
	}

	return core.FinishCompleted
}

type completionRequest struct {
	Model         string                 `json:"model"`
	Messages      []wireMessage          `json:"messages"`
	Tools         []model.ToolDefinition `json:"tools,omitempty"`
	Temperature   *float64               `json:"temperature,omitempty"`
	MaxTokens     int                    `json:"max_tokens,omitempty"`
	Stop          []string               `json:"stop,omitempty"`
	Stream        bool                   `json:"stream,omitempty"`
	StreamOptions *streamOptions         `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) func(o *Options) {
	return func(o *Options) { o.APIKey = key }
}

// WithModel sets the model name sent with every request.
func WithModel(name string) func(o *Options) {
	return func(o *Options) { o.Model = name }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) func(o *Options) {
	return func(o *Options) { o.HTTPClient = c }
}

// WithHeader adds a static request header.
func WithHeader(key, value string) func(o *Options) {
	return func(o *Options) {
		if o.Headers == nil {
			o.Headers = map[string]string{}
		}
		o.Headers[key] = value
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// String implements fmt.Stringer.
func (m *Model) String() string {
	return fmt.Sprintf("compat(%s, %s)", m.opts.BaseURL, m.opts.Model)
}
