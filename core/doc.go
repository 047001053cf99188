// Package core provides the foundational domain types shared by every
// agentcore subsystem. It defines:
//
//   - Tool calls and their execution results (ToolCall, ToolExecutionResult)
//   - Terminal model turns (InferenceResponse, FinishReason, Usage)
//   - Role-tagged conversation history (Message, History)
//   - The tagged error taxonomy (Error, ErrorKind and sentinel values)
//   - Scoped execution contexts handed to the loop and to tools
//     (RunContext, ToolContext, IterationLimiter)
//
// The package intentionally holds no orchestration logic. Agents, the
// dispatcher, the streaming layer and the resilience decorators all build on
// these types so that errors and results cross package boundaries without
// re-wrapping.
package core
