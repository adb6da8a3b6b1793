package retriever

import (
	"context"
	"fmt"

	"docrag/internal/domain"
	"docrag/internal/port"
)

// SemanticRetriever embeds the query and searches the vector store.
type SemanticRetriever struct {
	vectorStore port.VectorStore
	embedder    port.Embedder
}

func NewSemanticRetriever(vectorStore port.VectorStore, embedder port.Embedder) *SemanticRetriever {
	return &SemanticRetriever{
		vectorStore: vectorStore,
		embedder:    embedder,
	}
}

// Retrieve returns up to k chunks, most similar first. It fails with
// domain.ErrNotInitialized before anything has been ingested.
func (r *SemanticRetriever) Retrieve(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if !r.vectorStore.IsInitialized() {
		return nil, domain.ErrNotInitialized
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedding returned empty result")
	}

	results, err := r.vectorStore.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return results, nil
}
