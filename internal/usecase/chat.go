package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"docrag/internal/domain"
	"docrag/internal/logger"
	"docrag/internal/port"
)

const (
	DefaultSessionID  = "default"
	DefaultMaxHistory = 20

	chatSystemPrompt = "You are a helpful assistant."
)

// ChatService answers free-form prompts with per-session history.
type ChatService struct {
	llm        port.LLM
	sessions   port.SessionStore
	maxHistory int
	logger     *zap.Logger
}

// NewChatService keeps the last maxHistory messages of a session in each
// prompt. maxHistory <= 0 uses DefaultMaxHistory.
func NewChatService(llm port.LLM, sessions port.SessionStore, maxHistory int, log *zap.Logger) *ChatService {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &ChatService{
		llm:        llm,
		sessions:   sessions,
		maxHistory: maxHistory,
		logger:     logger.OrNop(log),
	}
}

// Ask sends input with the session's history and records both turns.
// History is only updated when the model answers.
func (s *ChatService) Ask(ctx context.Context, sessionID, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("%w: empty prompt", domain.ErrInvalidArgument)
	}
	if s.llm == nil {
		return "", fmt.Errorf("%w: no LLM configured", domain.ErrGeneration)
	}
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	history, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}

	msgs := make([]domain.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, domain.ChatMessage{Role: domain.RoleSystem, Content: chatSystemPrompt})
	msgs = append(msgs, history...)
	user := domain.ChatMessage{Role: domain.RoleUser, Content: input}
	msgs = append(msgs, user)

	reply, err := s.llm.Invoke(ctx, msgs)
	if err != nil {
		s.logger.Error("chat LLM call failed", zap.String("session_id", sessionID), zap.Error(err))
		return "", fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	answer := strings.TrimSpace(reply)

	if err := s.sessions.Append(ctx, sessionID, user, domain.ChatMessage{Role: domain.RoleAssistant, Content: answer}); err != nil {
		return "", fmt.Errorf("failed to save session %s: %w", sessionID, err)
	}
	return answer, nil
}

// Reset forgets a session's history.
func (s *ChatService) Reset(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	return s.sessions.Clear(ctx, sessionID)
}
