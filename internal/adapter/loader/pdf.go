package loader

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"docrag/internal/domain"
)

// PDFRowLoader extracts text page by page, rebuilding lines from the
// positioned text rows of each page.
type PDFRowLoader struct{}

func (PDFRowLoader) Name() string { return "pdf-rows" }

func (l PDFRowLoader) Load(ctx context.Context, path string) ([]domain.SourceDocument, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var docs []domain.SourceDocument
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}

		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			var sb strings.Builder
			for _, word := range row.Content {
				sb.WriteString(word.S)
			}
			if line := strings.TrimSpace(sb.String()); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			continue
		}
		docs = append(docs, newDocument(path, l.Name(), i, strings.Join(lines, "\n")))
	}
	return docs, nil
}

// PDFPlainLoader extracts the whole document as one plain text stream.
type PDFPlainLoader struct{}

func (PDFPlainLoader) Name() string { return "pdf-plain" }

func (l PDFPlainLoader) Load(ctx context.Context, path string) ([]domain.SourceDocument, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	rd, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("failed to read text: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, errNoText
	}
	return []domain.SourceDocument{newDocument(path, l.Name(), 0, text)}, nil
}
