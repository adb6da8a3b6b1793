package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"docrag/config"
	"docrag/internal/adapter/cache"
	"docrag/internal/adapter/chunker"
	"docrag/internal/adapter/embedding"
	"docrag/internal/adapter/llm"
	"docrag/internal/adapter/loader"
	"docrag/internal/adapter/memstore"
	"docrag/internal/adapter/store"
	"docrag/internal/domain"
	"docrag/internal/logger"
	"docrag/internal/port"
	"docrag/internal/usecase"
)

// app holds everything a command needs, opened from one config.
type app struct {
	cfg      *config.Config
	bolt     *store.BoltStore
	pipeline *usecase.Pipeline
	chat     *usecase.ChatService
	llm      port.LLM
	logger   *zap.Logger

	mu        sync.Mutex
	migration *store.MigrationResult
	stamped   bool
}

func openApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	log = logger.OrNop(log)
	bs, err := store.NewBoltStore(cfg.BoltPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	closers := []io.Closer{}
	fail := func(err error) (*app, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
		_ = bs.Close()
		return nil, err
	}

	migration, err := bs.CheckMigration(cfg)
	if err != nil {
		return fail(fmt.Errorf("failed to check migration: %w", err))
	}
	if migration.NeedsMigration {
		log.Info("running schema migration", zap.String("reason", migration.Reason))
		if err := bs.MigrateSchema(); err != nil {
			return fail(fmt.Errorf("migration failed: %w", err))
		}
	}

	emb, err := newEmbedder(ctx, cfg.Embedding)
	if err != nil {
		return fail(fmt.Errorf("failed to create embedder: %w", err))
	}
	if c, ok := emb.(io.Closer); ok {
		closers = append(closers, c)
	}

	model, err := newLLM(ctx, cfg.LLM)
	if err != nil {
		return fail(fmt.Errorf("failed to create LLM client: %w", err))
	}
	if c, ok := model.(io.Closer); ok {
		closers = append(closers, c)
	}

	vs, err := openVectorStore(cfg, bs, emb, log)
	if err != nil {
		return fail(fmt.Errorf("failed to open vector store: %w", err))
	}
	if migration.ConfigDrift {
		if vs.IsInitialized() {
			log.Warn("index configuration drift", zap.String("reason", migration.Reason))
		} else {
			// nothing was stored under the old settings
			migration.ConfigDrift = false
			migration.Reason = ""
		}
	}

	ledger, err := store.NewLedger(bs, cfg.ProcessedDir())
	if err != nil {
		_ = vs.Close()
		return fail(fmt.Errorf("failed to open ledger: %w", err))
	}

	sessions, err := newSessionStore(ctx, cfg.Chat, bs)
	if err != nil {
		_ = vs.Close()
		return fail(fmt.Errorf("failed to open session store: %w", err))
	}
	if c, ok := sessions.(io.Closer); ok {
		closers = append(closers, c)
	}

	ch, err := chunker.NewRecursiveChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		_ = vs.Close()
		return fail(err)
	}

	noise := cfg.Generate.NoiseTokens
	if noise == nil {
		noise = config.DefaultNoiseTokens
	}

	var qc *cache.QueryCache
	if cfg.Retrieve.CacheSize > 0 {
		qc = cache.NewQueryCache(cfg.Retrieve.CacheSize, cfg.Retrieve.CacheTTL)
	}

	a := &app{
		cfg:       cfg,
		bolt:      bs,
		llm:       model,
		logger:    log,
		migration: migration,
	}

	pipeline, err := usecase.NewPipeline(usecase.PipelineOptions{
		DBFolder:    cfg.Storage.DBFolder,
		Store:       vs,
		Ledger:      ledger,
		Loader:      loader.NewDefault(log),
		Chunker:     ch,
		Embedder:    emb,
		LLM:         model,
		NoiseTokens: noise,
		Logger:      log,
		Cache:       qc,
		IngestGuard: a.checkDrift,
		// bolt closes last; the bolt vector store and sessions share it
		Closers: append(closers, bs),
	})
	if err != nil {
		_ = vs.Close()
		return fail(err)
	}

	a.pipeline = pipeline
	a.chat = usecase.NewChatService(model, sessions, cfg.Chat.MaxHistory, log)
	return a, nil
}

// checkDrift refuses ingestion into an index built with other embedding or
// chunking settings. Otherwise it records the current settings as the ones
// the index is built with.
func (a *app) checkDrift() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.migration.ConfigDrift {
		return fmt.Errorf("%w: re-run with --force or restore the previous settings", domain.ErrConfigDrift)
	}
	if !a.stamped {
		if err := a.bolt.StampConfig(a.cfg); err != nil {
			return fmt.Errorf("failed to record index configuration: %w", err)
		}
		a.stamped = true
	}
	return nil
}

// acceptDrift adopts the current settings for an index that has drifted.
func (a *app) acceptDrift() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.bolt.StampConfig(a.cfg); err != nil {
		return fmt.Errorf("failed to update schema info: %w", err)
	}
	a.migration.ConfigDrift = false
	a.stamped = true
	return nil
}

func (a *app) configDrift() (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.migration.ConfigDrift, a.migration.Reason
}

func (a *app) Close() error {
	if c, ok := a.llm.(interface{ Stats() llm.Stats }); ok {
		st := c.Stats()
		if st.TotalCalls > 0 {
			a.logger.Info("LLM usage",
				zap.Int("calls", st.TotalCalls),
				zap.Int("input_chars", st.TotalInputChars),
				zap.Int("output_chars", st.TotalOutputChars))
		}
	}
	return a.pipeline.Close()
}

func newEmbedder(ctx context.Context, c config.EmbeddingConfig) (port.Embedder, error) {
	switch c.Provider {
	case "gemini":
		key, err := apiKey(keyEnv(c.APIKeyEnv, googleKeyEnv))
		if err != nil {
			return nil, err
		}
		return embedding.NewGeminiEmbedder(ctx, key, c.Model, c.Dimension)
	case "openai":
		env := keyEnv(c.APIKeyEnv, openAIKeyEnv)
		if c.BaseURL != "" {
			return embedding.NewOpenAICompatibleEmbedder(env, c.Model, c.BaseURL)
		}
		return embedding.NewOpenAIEmbedder(env, c.Model)
	case "ollama":
		return embedding.NewOllamaEmbedder(c.Model, c.BaseURL)
	case "hash":
		return embedding.NewHashEmbedder(c.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", c.Provider)
	}
}

// newLLM returns a nil LLM for provider "none"; queries then answer with
// the fallback message and re-ranking keeps retrieval order.
func newLLM(ctx context.Context, c config.LLMConfig) (port.LLM, error) {
	switch c.Provider {
	case "gemini":
		key, err := apiKey(keyEnv(c.APIKeyEnv, googleKeyEnv))
		if err != nil {
			return nil, err
		}
		return llm.NewGeminiClient(ctx, key, c.Model, c.Temperature)
	case "openai", "deepseek", "ollama":
		// an empty api_key_env picks the provider's own variable
		return llm.NewOpenAIClient(c.Provider, c.Model, c.BaseURL, c.APIKeyEnv, c.Temperature)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", c.Provider)
	}
}

func openVectorStore(cfg *config.Config, bs *store.BoltStore, emb port.Embedder, log *zap.Logger) (port.VectorStore, error) {
	switch cfg.Storage.Backend {
	case "bolt":
		return store.NewBoltVectorStore(bs, emb, log)
	default:
		return store.OpenChromem(cfg.IndexDir(), cfg.Storage.Compress, emb, log)
	}
}

func newSessionStore(ctx context.Context, c config.ChatConfig, bs *store.BoltStore) (port.SessionStore, error) {
	switch c.SessionBackend {
	case "bolt":
		return store.NewBoltSessionStore(bs)
	case "redis":
		return store.NewRedisSessionStore(ctx, c.RedisAddr, c.SessionTTL)
	default:
		return memstore.NewSessionStore(), nil
	}
}

const (
	googleKeyEnv = "GOOGLE_API_KEY"
	openAIKeyEnv = "OPENAI_API_KEY"
)

func keyEnv(configured, providerDefault string) string {
	if configured != "" {
		return configured
	}
	return providerDefault
}

func apiKey(env string) (string, error) {
	key := os.Getenv(env)
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set", env)
	}
	return key, nil
}
