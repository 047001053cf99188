// Package anthropic provides a model.Backend for the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

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

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	Logger      logging.Logger
}

// Model wraps the Anthropic Messages API behind model.Backend.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return NewModelFromClient(&client, func(o *Options) { *o = opts })
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
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
	resp, err := m.client.Messages.New(ctx, m.buildParams(messages, tools, opts))
	if err != nil {
		return nil, mapError(ctx, err)
	}

	out := &core.InferenceResponse{
		Usage: &core.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}

	var text strings.Builder

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			tu := block.AsToolUse()

			args := ""
			if tu.Input != nil {
				if raw, err := json.Marshal(tu.Input); err == nil {
					args = string(raw)
				}
			}

			out.ToolCalls = append(out.ToolCalls, core.ParseToolCall(tu.ID, tu.Name, args))
		}
	}

	out.Content = text.String()
	out.FinishReason = finishReason(string(resp.StopReason), len(out.ToolCalls) > 0)

	return out, nil
}

// StreamWithToolCalls implements model.StreamingToolCaller. Content block
// indices are renumbered so tool calls are indexed from zero.
func (m *Model) StreamWithToolCalls(ctx context.Context, messages []core.Message, tools []model.ToolDefinition, opts model.GenerateOptions) (<-chan model.StreamUpdate, <-chan error) {
	out := make(chan model.StreamUpdate, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		s := m.client.Messages.NewStreaming(ctx, m.buildParams(messages, tools, opts))
		defer s.Close()

		var (
			acc       = stream.NewToolCallAccumulator()
			toolIndex = map[int]int{}
			usage     core.Usage
			reason    string
		)

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
			var u model.StreamUpdate

			switch ev := s.Current().AsAny().(type) {
			case anthropic.MessageStartEvent:
				usage.InputTokens = int(ev.Message.Usage.InputTokens)
			case anthropic.ContentBlockStartEvent:
				if tu, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
					idx := len(toolIndex)
					toolIndex[int(ev.Index)] = idx
					acc.Accumulate(idx, tu.ID, tu.Name, "")
					u = model.ToolCallPartial{Index: idx, ID: tu.ID, Name: tu.Name}
				}
			case anthropic.ContentBlockDeltaEvent:
				switch d := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if d.Text != "" {
						u = model.OutputChunk{Text: d.Text}
					}
				case anthropic.InputJSONDelta:
					idx, ok := toolIndex[int(ev.Index)]
					if !ok || d.PartialJSON == "" {
						break
					}
					acc.Accumulate(idx, "", "", d.PartialJSON)
					u = model.ToolCallPartial{Index: idx, Arguments: d.PartialJSON}
				}
			case anthropic.MessageDeltaEvent:
				reason = string(ev.Delta.StopReason)
				usage.OutputTokens = int(ev.Usage.OutputTokens)
			}

			if u != nil && !emit(u) {
				return
			}
		}

		if err := s.Err(); err != nil {
			errCh <- mapError(ctx, err)
			return
		}

		calls := acc.ToolCalls()

		m.opts.Logger.Debug("model.stream.complete", "provider", "anthropic", "tool_calls", len(calls), "stop_reason", reason)

		if len(calls) > 0 && !emit(model.ToolCallsCompleted{Calls: calls}) {
			return
		}

		if !emit(model.UsageUpdate{Usage: usage}) {
			return
		}

		emit(model.FinishUpdate{Reason: finishReason(reason, len(calls) > 0)})
	}()

	return out, errCh
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:              string(m.opts.Model),
		Provider:          "anthropic",
		SupportsTools:     true,
		SupportsStreaming: true,
	}
}

func (m *Model) buildParams(messages []core.Message, tools []model.ToolDefinition, opts model.GenerateOptions) anthropic.MessageNewParams {
	name := m.opts.Model
	if opts.Model != "" {
		name = anthropic.Model(opts.Model)
	}

	temperature := m.opts.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	maxTokens := m.opts.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:       name,
		Messages:    buildMessages(messages),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
	}

	if system := extractSystem(messages); len(system) > 0 {
		params.System = system
	}

	if len(opts.Stop) > 0 {
		params.StopSequences = opts.Stop
	}

	if len(tools) > 0 {
		params.Tools = buildTools(tools)
	}

	return params
}

// buildMessages converts the prompt to Anthropic messages. Consecutive tool
// results are grouped into one user message following the assistant turn
// that requested them.
func buildMessages(messages []core.Message) []anthropic.MessageParam {
	var (
		out     []anthropic.MessageParam
		results []anthropic.ContentBlockParamUnion
	)

	flush := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			continue
		case core.RoleTool:
			isError := strings.HasPrefix(msg.Content, core.ToolErrorPrefix)
			results = append(results, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, isError))
			continue
		}

		flush()

		switch msg.Role {
		case core.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}

			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments(), tc.Name))
			}

			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			if msg.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}
	}

	flush()

	return out
}

func extractSystem(messages []core.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam

	for _, msg := range messages {
		if msg.Role == core.RoleSystem && msg.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: msg.Content})
		}
	}

	return blocks
}

func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if params := tool.Function.Parameters; params != nil {
			if properties, ok := params["properties"]; ok {
				schema.Properties = properties
			}

			schema.Required = requiredFields(params["required"])
		}

		u := anthropic.ToolUnionParamOfTool(schema, tool.Function.Name)
		if u.OfTool != nil && tool.Function.Description != "" {
			u.OfTool.Description = anthropic.String(tool.Function.Description)
		}

		out[i] = u
	}

	return out
}

func requiredFields(v any) []string {
	switch r := v.(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, x := range r {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
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
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}

		return model.ProviderError(ctx, apiErr.StatusCode, header, err)
	}

	return model.ProviderError(ctx, 0, nil, err)
}

// WithModel sets the model id.
func WithModel(name string) func(o *Options) {
	return func(o *Options) { o.Model = anthropic.Model(name) }
}

// WithAPIKey sets the API key used by NewModel.
func WithAPIKey(key string) func(o *Options) {
	return func(o *Options) { o.APIKey = key }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}
