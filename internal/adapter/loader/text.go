package loader

import (
	"context"
	"os"
	"strings"
	"unicode/utf8"

	"docrag/internal/domain"
)

// TextPageLoader reads a UTF-8 text file and splits pages on form feeds.
type TextPageLoader struct{}

func (TextPageLoader) Name() string { return "text-pages" }

func (l TextPageLoader) Load(_ context.Context, path string) ([]domain.SourceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, errInvalidUTF8
	}

	var docs []domain.SourceDocument
	for i, page := range strings.Split(string(data), "\f") {
		if strings.TrimSpace(page) == "" {
			continue
		}
		docs = append(docs, newDocument(path, l.Name(), i+1, page))
	}
	return docs, nil
}

// TextLoader reads the whole file as a single document, replacing invalid
// UTF-8 sequences.
type TextLoader struct{}

func (TextLoader) Name() string { return "text" }

func (l TextLoader) Load(_ context.Context, path string) ([]domain.SourceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.ToValidUTF8(string(data), "\uFFFD")
	if strings.TrimSpace(text) == "" {
		return nil, errNoText
	}
	return []domain.SourceDocument{newDocument(path, l.Name(), 0, text)}, nil
}
