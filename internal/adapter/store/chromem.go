package store

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"docrag/internal/domain"
	"docrag/internal/logger"
	"docrag/internal/port"
)

const collectionName = "documents"

// ChromemStore keeps chunks in a persistent chromem-go collection. The
// collection is created by the first Add; until then the store is
// uninitialized.
type ChromemStore struct {
	db       *chromem.DB
	embedder port.Embedder
	logger   *zap.Logger

	mu   sync.RWMutex
	coll *chromem.Collection
}

// OpenChromem loads the index persisted at path, if any.
func OpenChromem(path string, compress bool, embedder port.Embedder, log *zap.Logger) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}

	s := &ChromemStore{
		db:       db,
		embedder: embedder,
		logger:   logger.OrNop(log),
	}
	s.coll = db.GetCollection(collectionName, s.embeddingFunc())
	if s.coll != nil {
		s.logger.Info("loaded existing vector index",
			zap.String("path", path),
			zap.Int("chunks", s.coll.Count()))
	}
	return s, nil
}

func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

func (s *ChromemStore) Add(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        c.ID,
			Metadata:  chunkMetadata(c),
			Embedding: vectors[i],
			Content:   c.Text,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := false
	if s.coll == nil {
		coll, err := s.db.CreateCollection(collectionName, map[string]string{"hnsw:space": "cosine"}, s.embeddingFunc())
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		s.coll = coll
		created = true
	}

	if err := s.coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		if created {
			// an empty collection must not count as initialized
			if derr := s.db.DeleteCollection(collectionName); derr != nil {
				s.logger.Warn("failed to drop empty collection", zap.Error(derr))
			}
			s.coll = nil
		}
		return fmt.Errorf("failed to add chunks: %w", err)
	}

	if created {
		s.logger.Info("created new vector index", zap.Int("chunks", len(chunks)))
	} else {
		s.logger.Info("added chunks to existing vector index", zap.Int("chunks", len(chunks)))
	}
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, query []float32, k int) ([]domain.ScoredChunk, error) {
	s.mu.RLock()
	coll := s.coll
	s.mu.RUnlock()

	if coll == nil {
		return nil, domain.ErrNotInitialized
	}
	if k <= 0 {
		return nil, nil
	}
	if n := coll.Count(); k > n {
		k = n
	}
	if k == 0 {
		return nil, nil
	}

	results, err := coll.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	out := make([]domain.ScoredChunk, len(results))
	for i, r := range results {
		out[i] = domain.ScoredChunk{
			Chunk: chunkFromMetadata(r.ID, r.Content, r.Metadata),
			Score: float64(r.Similarity),
		}
	}
	return out, nil
}

func (s *ChromemStore) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coll != nil
}

func (s *ChromemStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.coll == nil {
		return 0
	}
	return s.coll.Count()
}

// Close is a no-op: the persistent DB writes through on every Add.
func (s *ChromemStore) Close() error {
	return nil
}

func chunkMetadata(c domain.Chunk) map[string]string {
	meta := make(map[string]string, len(c.Metadata)+2)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	meta[domain.MetaSource] = c.Source
	meta[domain.MetaChunkIndex] = strconv.Itoa(c.ChunkIndex)
	return meta
}

func chunkFromMetadata(id, text string, meta map[string]string) domain.Chunk {
	idx, err := strconv.Atoi(meta[domain.MetaChunkIndex])
	if err != nil {
		idx = -1
	}
	copied := make(map[string]string, len(meta))
	for k, v := range meta {
		copied[k] = v
	}
	return domain.Chunk{
		ID:         id,
		Source:     meta[domain.MetaSource],
		ChunkIndex: idx,
		Text:       text,
		Metadata:   copied,
	}
}
