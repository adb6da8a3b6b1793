// Package chunker splits loaded documents into overlapping chunks.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"docrag/internal/domain"
)

// DefaultSeparators are tried in order, from paragraph breaks down to single
// characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveChunker splits text at the coarsest separator that keeps pieces
// under chunkSize and merges neighbouring pieces back together with
// chunkOverlap characters shared between consecutive chunks. Sizes are
// counted in runes.
type RecursiveChunker struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

func NewRecursiveChunker(chunkSize, chunkOverlap int) (*RecursiveChunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidArgument, chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			domain.ErrInvalidArgument, chunkOverlap, chunkSize)
	}
	return &RecursiveChunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
	}, nil
}

// Chunk splits every document in order. ChunkIndex runs across all documents
// of the call, starting at 0, and each chunk inherits its document's metadata.
func (c *RecursiveChunker) Chunk(docs []domain.SourceDocument, source string) []domain.Chunk {
	var chunks []domain.Chunk
	for _, doc := range docs {
		for _, text := range c.SplitText(doc.Text) {
			idx := len(chunks)
			meta := make(map[string]string, len(doc.Metadata)+1)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta[domain.MetaSource] = source

			chunks = append(chunks, domain.Chunk{
				ID:         uuid.NewString(),
				Source:     source,
				ChunkIndex: idx,
				Text:       text,
				Metadata:   meta,
			})
		}
	}
	return chunks
}

// SplitText returns the trimmed, non-empty chunks of text.
func (c *RecursiveChunker) SplitText(text string) []string {
	return c.split(text, c.separators)
}

func (c *RecursiveChunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			rest = separators[i+1:]
			break
		}
	}

	var final, good []string
	for _, piece := range splitNonEmpty(text, separator) {
		if runeLen(piece) < c.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, c.merge(good, separator)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, c.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, c.merge(good, separator)...)
	}
	return final
}

// merge packs pieces into chunks of at most chunkSize, carrying the trailing
// pieces of one chunk (up to chunkOverlap) into the next.
func (c *RecursiveChunker) merge(pieces []string, separator string) []string {
	sepLen := runeLen(separator)
	var (
		out     []string
		current []string
		total   int
	)
	joinedLen := func(n int) int {
		if len(current) > 0 {
			return total + n + sepLen
		}
		return total + n
	}

	for _, p := range pieces {
		n := runeLen(p)
		if joinedLen(n) > c.chunkSize && len(current) > 0 {
			if doc := joinTrimmed(current, separator); doc != "" {
				out = append(out, doc)
			}
			for total > c.chunkOverlap || (joinedLen(n) > c.chunkSize && total > 0) {
				drop := runeLen(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		current = append(current, p)
		if len(current) > 1 {
			total += sepLen
		}
		total += n
	}
	if doc := joinTrimmed(current, separator); doc != "" {
		out = append(out, doc)
	}
	return out
}

func splitNonEmpty(text, separator string) []string {
	var parts []string
	if separator == "" {
		parts = strings.Split(text, "")
	} else {
		parts = strings.Split(text, separator)
	}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinTrimmed(parts []string, separator string) string {
	return strings.TrimSpace(strings.Join(parts, separator))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
