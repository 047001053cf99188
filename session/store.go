package session

import (
	"context"

	"github.com/hupe1980/agentcore/core"
)

// Store persists conversation history per session. Implementations must be
// safe for concurrent use.
type Store interface {
	// Load returns the stored messages of a session in order. An unknown
	// session yields an empty history and no error.
	Load(ctx context.Context, sessionID string) ([]core.Message, error)

	// Append adds messages to the end of a session, creating it when absent.
	Append(ctx context.Context, sessionID string, msgs ...core.Message) error
}
