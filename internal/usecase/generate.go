package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"docrag/internal/domain"
	"docrag/internal/logger"
	"docrag/internal/port"
)

// FallbackAnswer is returned in place of an answer when the LLM call fails.
const FallbackAnswer = "Error: Unable to generate answer."

const (
	systemPrompt = "You are an expert assistant. Use the context provided to answer questions accurately. " +
		"Include all relevant details from the context. " +
		"If the answer is not in the context, say 'I don't know'."

	userPromptTemplate = "Context:\n%s\n\n" +
		"Question:\n%s\n\n" +
		"Answer the question using all the context above. " +
		"Write full sentences and do not omit any relevant information."

	previewWords = 50
)

var (
	newlineRuns    = regexp.MustCompile(`\n+`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// AnswerGenerator builds a grounded prompt from retrieved chunks and asks the
// LLM for an answer.
type AnswerGenerator struct {
	llm    port.LLM
	noise  *regexp.Regexp
	logger *zap.Logger
}

// NewAnswerGenerator strips noiseTokens (whole words) from chunk text before
// it reaches the prompt.
func NewAnswerGenerator(llm port.LLM, noiseTokens []string, log *zap.Logger) *AnswerGenerator {
	g := &AnswerGenerator{llm: llm, logger: logger.OrNop(log)}

	var alts []string
	for _, tok := range noiseTokens {
		if tok = strings.TrimSpace(tok); tok != "" {
			alts = append(alts, regexp.QuoteMeta(tok))
		}
	}
	if len(alts) > 0 {
		g.noise = regexp.MustCompile(`\b(?:` + strings.Join(alts, "|") + `)\b`)
	}
	return g
}

// CleanChunkText flattens newlines, removes noise tokens and collapses whitespace.
func (g *AnswerGenerator) CleanChunkText(text string) string {
	text = newlineRuns.ReplaceAllString(text, " ")
	if g.noise != nil {
		text = g.noise.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(whitespaceRuns.ReplaceAllString(text, " "))
}

// FormatContext renders chunks in order as
// "[source, chunk N] Preview: ...\nFull Content:\n...\n\n".
func (g *AnswerGenerator) FormatContext(chunks []domain.Chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		src := c.Source
		if src == "" {
			src = "unknown"
		}
		idx := "?"
		if c.ChunkIndex >= 0 {
			idx = strconv.Itoa(c.ChunkIndex)
		}

		full := g.CleanChunkText(c.Text)
		words := strings.Fields(full)
		if len(words) > previewWords {
			words = words[:previewWords]
		}

		fmt.Fprintf(&sb, "[%s, chunk %s] Preview: %s\nFull Content:\n%s\n\n",
			src, idx, strings.Join(words, " "), full)
	}
	return sb.String()
}

// Messages returns the system and user messages sent to the LLM.
func (g *AnswerGenerator) Messages(query string, chunks []domain.Chunk) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: systemPrompt},
		{Role: domain.RoleUser, Content: fmt.Sprintf(userPromptTemplate, g.FormatContext(chunks), query)},
	}
}

// Generate returns the trimmed answer, or FallbackAnswer if the LLM fails.
func (g *AnswerGenerator) Generate(ctx context.Context, query string, chunks []domain.Chunk) string {
	answer, _ := g.GenerateE(ctx, query, chunks)
	return answer
}

// GenerateE behaves like Generate and also reports the LLM failure, wrapped
// in domain.ErrGeneration.
func (g *AnswerGenerator) GenerateE(ctx context.Context, query string, chunks []domain.Chunk) (string, error) {
	if g.llm == nil {
		g.logger.Error("LLM call failed", zap.String("reason", "no LLM configured"))
		return FallbackAnswer, fmt.Errorf("%w: no LLM configured", domain.ErrGeneration)
	}

	reply, err := g.llm.Invoke(ctx, g.Messages(query, chunks))
	if err != nil {
		g.logger.Error("LLM call failed", zap.Error(err))
		return FallbackAnswer, fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	return strings.TrimSpace(reply), nil
}
