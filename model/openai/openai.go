// Package openai provides a model.Backend over the OpenAI Chat Completions
// API (including streaming + function/tool calling). Streamed chunks are
// decoded by the stream package so the SDK path and the raw SSE path share
// one event model.
package openai

import (
	"context"
	"errors"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

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

// Options configure the OpenAI model adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
	Logger              logging.Logger
}

// Model wraps the OpenAI Chat Completions API behind model.Backend.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := openai.NewClient(clientOpts...)

	return NewModelFromClient(&client, func(o *Options) { *o = opts })
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
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

// GenerateWithToolCalls implements model.Backend.
func (m *Model) GenerateWithToolCalls(ctx context.Context, messages []core.Message, tools []model.ToolDefinition, opts model.GenerateOptions) (*core.InferenceResponse, error) {
	params := m.buildParams(messages, tools, opts)

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapError(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return nil, core.NewError(core.KindGenerationFailed, core.OpGeneration, "no choices returned")
	}

	ch0 := resp.Choices[0]

	out := &core.InferenceResponse{
		Content: ch0.Message.Content,
		Usage: &core.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}

	for _, tc := range ch0.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, core.ParseToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}

	out.FinishReason = finishReason(string(ch0.FinishReason), len(out.ToolCalls) > 0)

	return out, nil
}

// StreamWithToolCalls implements model.StreamingToolCaller. Each SDK chunk
// is re-decoded by stream.ParseChunk; malformed chunks are skipped.
func (m *Model) StreamWithToolCalls(ctx context.Context, messages []core.Message, tools []model.ToolDefinition, opts model.GenerateOptions) (<-chan model.StreamUpdate, <-chan error) {
	out := make(chan model.StreamUpdate, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(messages, tools, opts)
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

		s := m.client.Chat.Completions.NewStreaming(ctx, params)
		defer s.Close()

		acc := stream.NewToolCallAccumulator()

		var reason string

		emit := func(u model.StreamUpdate) bool {
			select {
			case out <- u:
				return true
			case <-ctx.Done():
				errCh <- model.ContextError(ctx.Err())
				return false
			}
		}

		for s.Next() {
			ck := s.Current()

			for _, ev := range stream.ParseChunk([]byte(ck.RawJSON())) {
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
					m.opts.Logger.Warn("model.stream.chunk.skipped", "provider", "openai", "error", e.AsError().Error())
				}

				if u != nil && !emit(u) {
					return
				}
			}
		}

		if err := s.Err(); err != nil {
			errCh <- mapError(ctx, err)
			return
		}

		calls := acc.ToolCalls()
		if len(calls) > 0 && !emit(model.ToolCallsCompleted{Calls: calls}) {
			return
		}

		emit(model.FinishUpdate{Reason: finishReason(reason, len(calls) > 0)})
	}()

	return out, errCh
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:              m.opts.Model,
		Provider:          "openai",
		SupportsTools:     true,
		SupportsStreaming: true,
	}
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (m *Model) buildParams(messages []core.Message, tools []model.ToolDefinition, opts model.GenerateOptions) openai.ChatCompletionNewParams {
	name := m.opts.Model
	if opts.Model != "" {
		name = opts.Model
	}

	temperature := m.opts.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	maxTokens := m.opts.MaxCompletionTokens
	if opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}

	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(messages),
		Model:               name,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}

	if len(opts.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.Stop}
	}

	if len(tools) == 0 {
		return params
	}

	defs := make([]openai.ChatCompletionToolParam, len(tools))
	for i, tdef := range tools {
		defs[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Function.Name,
				Description: openai.String(tdef.Function.Description),
				Parameters:  tdef.Function.Parameters,
			},
		}
	}

	params.Tools = defs

	return params
}

// buildMessages converts the prompt into OpenAI chat messages.
func buildMessages(messages []core.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case core.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case core.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}

			calls := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				calls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.ArgumentsJSON(),
					},
				}
			}

			assistant := &openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: calls,
			}
			if msg.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(msg.Content)}
			}

			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		case core.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			if msg.Content != "" {
				out = append(out, openai.UserMessage(msg.Content))
			}
		}
	}

	return out
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

func mapError(ctx context.Context, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}

		return model.ProviderError(ctx, apiErr.StatusCode, header, err)
	}

	return model.ProviderError(ctx, 0, nil, err)
}

// WithModel sets the model name.
func WithModel(name string) func(o *Options) {
	return func(o *Options) { o.Model = name }
}

// WithAPIKey sets the API key used by NewModel.
func WithAPIKey(key string) func(o *Options) {
	return func(o *Options) { o.APIKey = key }
}

// WithBaseURL points NewModel at an OpenAI-compatible endpoint.
func WithBaseURL(url string) func(o *Options) {
	return func(o *Options) { o.BaseURL = url }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}
