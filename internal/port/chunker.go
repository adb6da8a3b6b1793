package port

import (
	"context"

	"docrag/internal/domain"
)

// Loader reads a source file into page-level text units.
type Loader interface {
	Load(ctx context.Context, path string) ([]domain.SourceDocument, error)

	Name() string
}

type Chunker interface {
	Chunk(docs []domain.SourceDocument, source string) []domain.Chunk
}
