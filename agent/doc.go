// Package agent implements the tool-calling loop that drives a model.Backend:
//
//  1. Build the prompt (instruction, recent history, current input)
//  2. Ask the backend, streaming when enabled
//  3. Execute requested tool calls through a dispatch.Dispatcher and feed the
//     results back as tool messages
//  4. Stop on plain content, a handoff, a terminal error or a budget limit
//
// Every run carries a core.RunContext with a cooperative cancellation flag and
// an iteration limiter. Guards are checked in a fixed order at the start of
// each iteration: cancellation, elapsed time, iteration budget.
//
// Handoffs expose other agents to the model as pseudo-tools named
// "transfer_to_<agent>". Calling one delegates the whole run to the target.
package agent
