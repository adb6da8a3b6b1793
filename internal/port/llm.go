package port

import (
	"context"

	"docrag/internal/domain"
)

// LLM represents a chat language model.
type LLM interface {
	// Invoke sends the messages in order and returns the model's reply text.
	Invoke(ctx context.Context, messages []domain.ChatMessage) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}

// Reranker reorders retrieved chunks by relevance to the query and keeps
// the first topK. It degrades instead of failing.
type Reranker interface {
	ReRank(ctx context.Context, query string, chunks []domain.ScoredChunk, topK int) []domain.ScoredChunk
}

// Retriever returns the k chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error)
}
