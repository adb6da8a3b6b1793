package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"docrag/internal/adapter/cache"
	"docrag/internal/adapter/retriever"
	"docrag/internal/domain"
	"docrag/internal/logger"
	"docrag/internal/port"
)

// DefaultK is the number of chunks retrieved when a query does not say.
const DefaultK = 3

// PipelineOptions wires the collaborators of a Pipeline.
type PipelineOptions struct {
	DBFolder    string
	Store       port.VectorStore
	Ledger      port.Ledger
	Loader      port.Loader
	Chunker     port.Chunker
	Embedder    port.Embedder
	LLM         port.LLM
	NoiseTokens []string
	Logger      *zap.Logger

	// Cache, when set, memoizes retrieval until the next successful ingest.
	Cache *cache.QueryCache

	// IngestGuard, when set, runs before every ingest; an error refuses it.
	IngestGuard func() error

	// Closers are closed by Pipeline.Close after the store.
	Closers []io.Closer
}

// Pipeline composes ingestion, retrieval, re-ranking and answer generation
// over one vector store.
type Pipeline struct {
	dbFolder  string
	store     port.VectorStore
	ledger    port.Ledger
	embedder  port.Embedder
	llm       port.LLM
	ingestor  *IngestUseCase
	retriever port.Retriever
	cache     *cache.QueryCache
	guard     func() error
	reranker  port.Reranker
	generator *AnswerGenerator
	logger    *zap.Logger
	closers   []io.Closer
}

func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	switch {
	case opts.Store == nil:
		return nil, fmt.Errorf("%w: pipeline needs a vector store", domain.ErrInvalidArgument)
	case opts.Ledger == nil:
		return nil, fmt.Errorf("%w: pipeline needs a ledger", domain.ErrInvalidArgument)
	case opts.Loader == nil || opts.Chunker == nil:
		return nil, fmt.Errorf("%w: pipeline needs a loader and a chunker", domain.ErrInvalidArgument)
	case opts.Embedder == nil:
		return nil, fmt.Errorf("%w: pipeline needs an embedder", domain.ErrInvalidArgument)
	}

	log := logger.OrNop(opts.Logger)
	var ret port.Retriever = retriever.NewSemanticRetriever(opts.Store, opts.Embedder)
	if opts.Cache != nil {
		ret = cache.NewCachedRetriever(ret, opts.Cache)
	}
	p := &Pipeline{
		dbFolder:  opts.DBFolder,
		store:     opts.Store,
		ledger:    opts.Ledger,
		embedder:  opts.Embedder,
		llm:       opts.LLM,
		ingestor:  NewIngestUseCase(opts.Loader, opts.Chunker, opts.Store, opts.Ledger, log),
		retriever: ret,
		cache:     opts.Cache,
		guard:     opts.IngestGuard,
		reranker:  retriever.NewLLMReranker(opts.LLM, log),
		generator: NewAnswerGenerator(opts.LLM, opts.NoiseTokens, log),
		logger:    log,
		closers:   opts.Closers,
	}
	log.Info("RAG pipeline initialized", zap.String("db_folder", opts.DBFolder))
	return p, nil
}

func (p *Pipeline) Ingest(ctx context.Context, path string) (bool, error) {
	if err := p.checkGuard(); err != nil {
		return false, err
	}
	ok, err := p.ingestor.Ingest(ctx, path)
	if ok {
		p.invalidate()
	}
	return ok, err
}

// IngestPaths ingests each path in order. When the ingest guard refuses,
// every path is reported as failed with the guard's error.
func (p *Pipeline) IngestPaths(ctx context.Context, paths []string, onFile func(FileResult)) *IngestResult {
	if err := p.checkGuard(); err != nil {
		res := &IngestResult{}
		for _, path := range paths {
			fr := FileResult{Path: path, Err: err}
			res.Failed++
			res.Files = append(res.Files, fr)
			if onFile != nil {
				onFile(fr)
			}
		}
		return res
	}
	res := p.ingestor.IngestPaths(ctx, paths, onFile)
	if res.Ingested > 0 {
		p.invalidate()
	}
	return res
}

func (p *Pipeline) checkGuard() error {
	if p.guard == nil {
		return nil
	}
	if err := p.guard(); err != nil {
		p.logger.Warn("ingest refused", zap.Error(err))
		return err
	}
	return nil
}

func (p *Pipeline) invalidate() {
	if p.cache != nil {
		p.cache.Invalidate()
	}
}

// QueryRequest holds the parameters of one question.
type QueryRequest struct {
	Question     string
	K            int  // chunks to retrieve; 0 means DefaultK
	UseReranking bool // score retrieved chunks with the LLM
	RerankTopK   int  // chunks kept after re-ranking; 0 means K
}

// QueryResult is the answer and the chunks it was grounded on. When the LLM
// fails, Answer is FallbackAnswer and GenerationErr wraps domain.ErrGeneration.
type QueryResult struct {
	Answer        string
	Chunks        []domain.ScoredChunk
	GenerationErr error
}

// Query answers a question from the index. It fails with
// domain.ErrNotInitialized before the first successful ingest.
func (p *Pipeline) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidArgument)
	}
	k := req.K
	if k <= 0 {
		k = DefaultK
	}

	chunks, err := p.retriever.Retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}

	if req.UseReranking {
		topK := req.RerankTopK
		if topK <= 0 {
			topK = k
		}
		chunks = p.reranker.ReRank(ctx, question, chunks, topK)
	}

	plain := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		plain[i] = c.Chunk
	}
	answer, genErr := p.generator.GenerateE(ctx, question, plain)

	p.logger.Info("answered query",
		zap.Int("k", k),
		zap.Bool("reranked", req.UseReranking),
		zap.Int("chunks", len(chunks)),
		zap.Bool("generation_failed", genErr != nil))

	return &QueryResult{Answer: answer, Chunks: chunks, GenerationErr: genErr}, nil
}

func (p *Pipeline) Status() (domain.Status, error) {
	entries, err := p.ledger.List()
	if err != nil {
		return domain.Status{}, fmt.Errorf("failed to read ledger: %w", err)
	}

	st := domain.Status{
		Initialized:     p.store.IsInitialized(),
		DBFolder:        p.dbFolder,
		ProcessedFolder: p.ledger.ProcessedDir(),
		Chunks:          p.store.Count(),
		Processed:       len(entries),
		EmbeddingModel:  p.embedder.ModelName(),
	}
	if p.llm != nil {
		st.LLMModel = p.llm.ModelName()
	}
	return st, nil
}

// Processed lists the ledger records.
func (p *Pipeline) Processed() ([]domain.LedgerEntry, error) {
	return p.ledger.List()
}

func (p *Pipeline) Close() error {
	errs := []error{p.store.Close()}
	for _, c := range p.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
