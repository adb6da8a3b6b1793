package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"docrag/internal/domain"
	"docrag/internal/logger"
	"docrag/internal/port"
)

// BoltVectorStore implements port.VectorStore on the shared bolt database.
// Uses brute-force search over an in-memory copy of all vectors.
type BoltVectorStore struct {
	db       *bbolt.DB
	embedder port.Embedder
	logger   *zap.Logger

	mu sync.RWMutex
	// entries are kept in insertion order, which breaks similarity ties
	entries []vectorEntry
}

type vectorEntry struct {
	chunk  domain.Chunk
	vector []float32
}

type storedVector struct {
	ID         string            `json:"id"`
	Source     string            `json:"source"`
	ChunkIndex int               `json:"chunk_index"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"m,omitempty"`
	Vector     []float32         `json:"v"`
}

// NewBoltVectorStore loads existing vectors from the vectors bucket.
func NewBoltVectorStore(bs *BoltStore, embedder port.Embedder, log *zap.Logger) (*BoltVectorStore, error) {
	s := &BoltVectorStore{
		db:       bs.DB(),
		embedder: embedder,
		logger:   logger.OrNop(log),
	}
	if err := s.loadVectors(); err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	return s, nil
}

// loadVectors reads every stored vector; sequence keys keep insertion order.
func (s *BoltVectorStore) loadVectors() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				s.logger.Warn("skipping corrupted vector", zap.Binary("key", k), zap.Error(err))
				return nil
			}
			s.entries = append(s.entries, vectorEntry{
				chunk: domain.Chunk{
					ID:         stored.ID,
					Source:     stored.Source,
					ChunkIndex: stored.ChunkIndex,
					Text:       stored.Text,
					Metadata:   stored.Metadata,
				},
				vector: stored.Vector,
			})
			return nil
		})
	})
}

func (s *BoltVectorStore) Add(ctx context.Context, chunks []domain.Chunk) error {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := len(vectors[0])
	if len(s.entries) > 0 {
		dim = len(s.entries[0].vector)
	}

	added := make([]vectorEntry, 0, len(chunks))
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b == nil {
			return fmt.Errorf("vectors bucket not found")
		}

		for i, c := range chunks {
			if len(vectors[i]) != dim {
				return fmt.Errorf("vector dimension mismatch: expected %d, got %d", dim, len(vectors[i]))
			}

			data, err := json.Marshal(storedVector{
				ID:         c.ID,
				Source:     c.Source,
				ChunkIndex: c.ChunkIndex,
				Text:       c.Text,
				Metadata:   c.Metadata,
				Vector:     vectors[i],
			})
			if err != nil {
				return err
			}

			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, seq)
			if err := b.Put(key, data); err != nil {
				return err
			}
			added = append(added, vectorEntry{chunk: c, vector: vectors[i]})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store vectors: %w", err)
	}

	s.entries = append(s.entries, added...)
	return nil
}

// Search finds the k nearest chunks to the query using cosine similarity.
func (s *BoltVectorStore) Search(_ context.Context, query []float32, k int) ([]domain.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, domain.ErrNotInitialized
	}
	if k <= 0 {
		return nil, nil
	}
	if dim := len(s.entries[0].vector); len(query) != dim {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", dim, len(query))
	}

	scores := make([]domain.ScoredChunk, len(s.entries))
	for i, e := range s.entries {
		scores[i] = domain.ScoredChunk{Chunk: e.chunk, Score: cosineSimilarity(query, e.vector)}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})

	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k], nil
}

func (s *BoltVectorStore) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries) > 0
}

// Count returns the number of vectors in the store.
func (s *BoltVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close leaves the shared bolt database open; its owner closes it.
func (s *BoltVectorStore) Close() error {
	return nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
