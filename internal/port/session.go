package port

import (
	"context"

	"docrag/internal/domain"
)

// SessionStore keeps chat history per session identifier.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)

	Append(ctx context.Context, sessionID string, msgs ...domain.ChatMessage) error

	Clear(ctx context.Context, sessionID string) error
}
