package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"docrag/internal/domain"
	"docrag/internal/logger"
	"docrag/internal/port"
)

const (
	previewRunes = 500
	maxScore     = 10
)

// LLMReranker asks a language model to score each chunk from 0 to 10.
type LLMReranker struct {
	llm    port.LLM
	logger *zap.Logger
}

// NewLLMReranker returns a reranker. With a nil llm it only truncates.
func NewLLMReranker(llm port.LLM, log *zap.Logger) *LLMReranker {
	return &LLMReranker{llm: llm, logger: logger.OrNop(log)}
}

// ReRank scores every chunk, sorts by descending score keeping the input
// order among equal scores, and returns the first topK. A chunk whose
// scoring call fails or returns something other than a number scores 0.
// topK <= 0 keeps all chunks.
func (r *LLMReranker) ReRank(ctx context.Context, query string, chunks []domain.ScoredChunk, topK int) []domain.ScoredChunk {
	if topK <= 0 || topK > len(chunks) {
		topK = len(chunks)
	}

	if r.llm == nil {
		r.logger.Info("no LLM configured for re-ranking, keeping retrieval order")
		return append([]domain.ScoredChunk(nil), chunks[:topK]...)
	}

	scored := make([]domain.ScoredChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = domain.ScoredChunk{Chunk: c.Chunk, Score: r.score(ctx, query, c.Chunk)}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	return scored[:topK]
}

func (r *LLMReranker) score(ctx context.Context, query string, c domain.Chunk) float64 {
	reply, err := r.llm.Invoke(ctx, []domain.ChatMessage{{Role: domain.RoleUser, Content: scoringPrompt(query, c.Text)}})
	if err != nil {
		r.logger.Warn("LLM scoring failed, defaulting score=0",
			zap.String("chunk_id", c.ID), zap.Error(err))
		return 0
	}

	s, err := ParseScore(reply)
	if err != nil {
		r.logger.Warn("unparseable relevance score, defaulting score=0",
			zap.String("chunk_id", c.ID), zap.String("reply", reply), zap.Error(err))
		return 0
	}
	return s
}

func scoringPrompt(query, text string) string {
	return fmt.Sprintf(`Question: %s

Context Chunk (first 500 chars): %s

Rate the relevance of this chunk to the question on a scale from 0 (not relevant) to 10 (highly relevant).
Only return the numeric score.`, query, truncateRunes(text, previewRunes))
}

// ParseScore reads a bare number from a model reply and clamps it to [0, 10].
func ParseScore(reply string) (float64, error) {
	s, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0, fmt.Errorf("score %q is not finite", reply)
	}
	return math.Max(0, math.Min(maxScore, s)), nil
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
