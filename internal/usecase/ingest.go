package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"docrag/internal/domain"
	"docrag/internal/logger"
	"docrag/internal/port"
)

// IngestUseCase moves a source file from unseen to processed:
// load, chunk, store, then mark it in the ledger.
type IngestUseCase struct {
	loader  port.Loader
	chunker port.Chunker
	store   port.VectorStore
	ledger  port.Ledger
	logger  *zap.Logger
	now     func() time.Time
}

func NewIngestUseCase(
	loader port.Loader,
	chunker port.Chunker,
	store port.VectorStore,
	ledger port.Ledger,
	log *zap.Logger,
) *IngestUseCase {
	return &IngestUseCase{
		loader:  loader,
		chunker: chunker,
		store:   store,
		ledger:  ledger,
		logger:  logger.OrNop(log),
		now:     time.Now,
	}
}

// Ingest returns true when path was ingested by this call. An already
// processed source returns false and no error. Any failure returns false
// with the error and leaves the source unseen.
func (u *IngestUseCase) Ingest(ctx context.Context, path string) (bool, error) {
	name := filepath.Base(path)
	log := u.logger.With(zap.String("source", name))

	if err := u.ledger.Claim(name); err != nil {
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			log.Info("already processed, skipping ingestion")
			return false, nil
		}
		log.Warn("cannot ingest now", zap.Error(err))
		return false, err
	}
	defer u.ledger.Release(name)

	n, err := u.ingest(ctx, name, path)
	if err != nil {
		log.Error("failed to ingest", zap.Error(err))
		return false, err
	}

	log.Info("ingested successfully",
		zap.Int("chunks", n),
		zap.String("processed", filepath.Join(u.ledger.ProcessedDir(), name)))
	return true, nil
}

func (u *IngestUseCase) ingest(ctx context.Context, name, path string) (int, error) {
	docs, err := u.loader.Load(ctx, path)
	if err != nil {
		return 0, err
	}

	chunks := u.chunker.Chunk(docs, name)
	u.logger.Info("created chunks", zap.String("source", name), zap.Int("chunks", len(chunks)))
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: %s: no chunks produced", domain.ErrLoadFailed, name)
	}

	if err := u.store.Add(ctx, chunks); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}

	entry := domain.LedgerEntry{
		Name:       name,
		Chunks:     len(chunks),
		IngestedAt: u.now().UTC(),
	}
	if err := u.ledger.Commit(entry, path); err != nil {
		return 0, fmt.Errorf("failed to mark processed: %w", err)
	}
	return len(chunks), nil
}

// FileResult is the outcome of one file in a bulk ingest.
type FileResult struct {
	Path     string
	Ingested bool
	Err      error
}

// IngestResult summarizes a bulk ingest.
type IngestResult struct {
	Ingested int
	Skipped  int
	Failed   int
	Files    []FileResult
}

// IngestPaths ingests each path in order. A failure does not stop the
// remaining files. onFile, when set, is called after each file.
func (u *IngestUseCase) IngestPaths(ctx context.Context, paths []string, onFile func(FileResult)) *IngestResult {
	result := &IngestResult{}
	for _, p := range paths {
		if ctx.Err() != nil {
			break
		}

		ok, err := u.Ingest(ctx, p)
		fr := FileResult{Path: p, Ingested: ok, Err: err}
		switch {
		case err != nil:
			result.Failed++
		case ok:
			result.Ingested++
		default:
			result.Skipped++
		}
		result.Files = append(result.Files, fr)
		if onFile != nil {
			onFile(fr)
		}
	}
	return result
}
