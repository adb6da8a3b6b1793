// Package loader reads source files into page-level documents.
package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"docrag/internal/domain"
	"docrag/internal/logger"
	"docrag/internal/port"
)

var (
	errNoText      = errors.New("no text extracted")
	errInvalidUTF8 = errors.New("file is not valid UTF-8")
)

// FallbackLoader tries a primary strategy and retries the same input once
// with a simpler fallback strategy.
type FallbackLoader struct {
	primary  port.Loader
	fallback port.Loader
	logger   *zap.Logger
}

func NewFallbackLoader(primary, fallback port.Loader, log *zap.Logger) *FallbackLoader {
	return &FallbackLoader{
		primary:  primary,
		fallback: fallback,
		logger:   logger.OrNop(log),
	}
}

func (l *FallbackLoader) Name() string {
	return l.primary.Name() + "+" + l.fallback.Name()
}

func (l *FallbackLoader) Load(ctx context.Context, path string) ([]domain.SourceDocument, error) {
	name := filepath.Base(path)

	docs, err := safeLoad(ctx, l.primary, path)
	if err == nil {
		l.logger.Info("loaded document",
			zap.String("source", name),
			zap.Int("pages", len(docs)),
			zap.String("loader", l.primary.Name()))
		return docs, nil
	}
	l.logger.Warn("primary loader failed, falling back",
		zap.String("source", name),
		zap.String("primary", l.primary.Name()),
		zap.String("fallback", l.fallback.Name()),
		zap.Error(err))

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	docs, ferr := safeLoad(ctx, l.fallback, path)
	if ferr != nil {
		return nil, fmt.Errorf("%w: %s: %s: %v; %s: %v", domain.ErrLoadFailed, name,
			l.primary.Name(), err, l.fallback.Name(), ferr)
	}
	l.logger.Info("loaded document",
		zap.String("source", name),
		zap.Int("pages", len(docs)),
		zap.String("loader", l.fallback.Name()))
	return docs, nil
}

// safeLoad turns parser panics and empty results into errors.
func safeLoad(ctx context.Context, s port.Loader, path string) (docs []domain.SourceDocument, err error) {
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("panic in %s: %v", s.Name(), r)
		}
	}()

	docs, err = s.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errNoText
	}
	return docs, nil
}

// Router picks a loader by file extension.
type Router struct {
	byExt map[string]port.Loader
	def   port.Loader
}

func NewRouter(def port.Loader) *Router {
	return &Router{byExt: make(map[string]port.Loader), def: def}
}

// Register binds ext (for example ".pdf") to l.
func (r *Router) Register(ext string, l port.Loader) *Router {
	r.byExt[strings.ToLower(ext)] = l
	return r
}

func (r *Router) Name() string {
	return "router"
}

func (r *Router) Load(ctx context.Context, path string) ([]domain.SourceDocument, error) {
	if l, ok := r.byExt[strings.ToLower(filepath.Ext(path))]; ok {
		return l.Load(ctx, path)
	}
	return r.def.Load(ctx, path)
}

// NewDefault returns the loader used by the pipeline: PDFs go through the
// row-layout parser with a plain-text fallback, everything else is read as text.
func NewDefault(log *zap.Logger) *Router {
	text := NewFallbackLoader(TextPageLoader{}, TextLoader{}, log)
	pdf := NewFallbackLoader(PDFRowLoader{}, PDFPlainLoader{}, log)
	return NewRouter(text).Register(".pdf", pdf)
}

func newDocument(path, loaderName string, page int, text string) domain.SourceDocument {
	meta := map[string]string{
		domain.MetaSource: filepath.Base(path),
		domain.MetaLoader: loaderName,
	}
	if page > 0 {
		meta[domain.MetaPage] = strconv.Itoa(page)
	}
	return domain.SourceDocument{Text: text, Metadata: meta}
}
