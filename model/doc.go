// Package model defines the provider-agnostic inference contract and concrete
// helpers for interacting with language models inside agentcore.
//
// Core goals:
//   - Unify plain, streaming and tool-calling generation behind Backend
//   - Normalize tool definitions and streamed tool-call updates (StreamUpdate)
//   - Map transport failures onto the core error taxonomy (ErrorFromHTTPStatus)
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (openai, anthropic, compat) implement Backend so higher layers
// (agents, resilience) remain decoupled from vendor SDKs.
package model
