package port

import (
	"context"

	"docrag/internal/domain"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// EmbedDocuments embeds texts that will be stored in the index.
	// Returns a slice of vectors, one per input text.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorStore persists chunk embeddings and searches them by similarity.
type VectorStore interface {
	// Add embeds and appends chunks. The first call creates the index.
	Add(ctx context.Context, chunks []domain.Chunk) error

	// Search returns up to k chunks nearest to the query vector, nearest first.
	// Returns domain.ErrNotInitialized if nothing was ever added.
	Search(ctx context.Context, query []float32, k int) ([]domain.ScoredChunk, error)

	IsInitialized() bool

	// Count returns the number of stored chunks.
	Count() int

	Close() error
}
