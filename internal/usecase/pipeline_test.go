package usecase

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/adapter/cache"
	"docrag/internal/adapter/chunker"
	"docrag/internal/adapter/embedding"
	"docrag/internal/adapter/loader"
	"docrag/internal/adapter/store"
	"docrag/internal/domain"
	"docrag/internal/port"
	"docrag/internal/testutil"
)

type fixture struct {
	dir      string
	pipeline *Pipeline
	store    port.VectorStore
	ledger   *store.Ledger
}

func newFixture(t *testing.T, ld port.Loader, llm port.LLM) *fixture {
	t.Helper()
	dir := t.TempDir()
	dbFolder := filepath.Join(dir, "db")

	bs, err := store.NewBoltStore(filepath.Join(dbFolder, "docrag.db"))
	require.NoError(t, err)

	emb := embedding.NewHashEmbedder(256)
	vs, err := store.OpenChromem(filepath.Join(dbFolder, "index"), false, emb, nil)
	require.NoError(t, err)

	ledger, err := store.NewLedger(bs, filepath.Join(dbFolder, "processed"))
	require.NoError(t, err)

	ch, err := chunker.NewRecursiveChunker(1000, 200)
	require.NoError(t, err)

	if ld == nil {
		ld = loader.NewDefault(nil)
	}
	p, err := NewPipeline(PipelineOptions{
		DBFolder: dbFolder,
		Store:    vs,
		Ledger:   ledger,
		Loader:   ld,
		Chunker:  ch,
		Embedder: emb,
		LLM:      llm,
		Cache:    cache.NewQueryCache(0, 0),
		Closers:  []io.Closer{bs},
	})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	return &fixture{dir: dir, pipeline: p, store: vs, ledger: ledger}
}

func (f *fixture) writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func (f *fixture) processedCopy(name string) bool {
	_, err := os.Stat(filepath.Join(f.ledger.ProcessedDir(), name))
	return err == nil
}

func para(r rune) string {
	return strings.Repeat(string(r), 600)
}

func TestIngest_ThreePagePDF(t *testing.T) {
	pages := testutil.Pages("report.pdf",
		strings.Join([]string{para('a'), para('b'), para('c')}, "\n\n"),
		strings.Join([]string{para('d'), para('e')}, "\n\n"),
		strings.Join([]string{para('f'), para('g')}, "\n\n"),
	)
	f := newFixture(t, &testutil.FakeLoader{Docs: pages}, nil)
	path := f.writeSource(t, "report.pdf", "%PDF-1.4")

	ok, err := f.pipeline.Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, f.store.Count())
	assert.True(t, f.processedCopy("report.pdf"))

	q, _ := embedding.NewHashEmbedder(256).EmbedQuery(context.Background(), "anything")
	res, err := f.store.Search(context.Background(), q, 7)
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, r := range res {
		assert.Equal(t, "report.pdf", r.Chunk.Source)
		seen[r.Chunk.ChunkIndex] = true
	}
	for i := 0; i < 7; i++ {
		assert.True(t, seen[i], "missing chunk index %d", i)
	}
}

func TestQuery_GroundedAnswer(t *testing.T) {
	llm := &testutil.ScriptedLLM{
		Rules:   []testutil.Rule{{Contains: "gets up at 6am", Reply: "  Brian usually gets up at 6am.\n"}},
		Default: "I don't know",
	}
	f := newFixture(t, nil, llm)
	path := f.writeSource(t, "brian.txt",
		"Brian usually gets up at 6am and goes for a run.\n\nHe has breakfast with his sister afterwards.")

	ok, err := f.pipeline.Ingest(context.Background(), path)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := f.pipeline.Query(context.Background(), QueryRequest{Question: "What time does Brian usually get up?", K: 2})
	require.NoError(t, err)
	assert.NoError(t, res.GenerationErr)
	assert.Equal(t, "Brian usually gets up at 6am.", res.Answer)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 2)
	assert.Equal(t, domain.RoleSystem, calls[0][0].Role)
	assert.Contains(t, calls[0][1].Content, "[brian.txt, chunk 0] Preview: Brian usually gets up at 6am")
	assert.Contains(t, calls[0][1].Content, "Question:\nWhat time does Brian usually get up?")
}

func TestQuery_RerankKeepsBestChunk(t *testing.T) {
	llm := &testutil.ScriptedLLM{
		Rules: []testutil.Rule{
			{Contains: "(first 500 chars): Cats sleep", Reply: "3"},
			{Contains: "(first 500 chars): Dogs bark", Reply: "8"},
		},
		Default: "answer",
	}
	f := newFixture(t, nil, llm)
	path := f.writeSource(t, "pets.txt", "Cats sleep most of the day.\fDogs bark at the mail carrier.")

	_, err := f.pipeline.Ingest(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 2, f.store.Count())

	res, err := f.pipeline.Query(context.Background(), QueryRequest{
		Question:     "Which pet barks?",
		K:            2,
		UseReranking: true,
		RerankTopK:   1,
	})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "Dogs bark at the mail carrier.", res.Chunks[0].Chunk.Text)
	assert.Equal(t, 8.0, res.Chunks[0].Score)

	calls := llm.Calls()
	require.Len(t, calls, 3)
	gen := calls[2][1].Content
	assert.Contains(t, gen, "Dogs bark")
	assert.NotContains(t, gen, "Cats sleep")
}

func TestIngest_FallbackLoaderSucceeds(t *testing.T) {
	primary := &testutil.FakeLoader{LoaderName: "rows", Err: testutil.ErrScripted}
	fallback := &testutil.FakeLoader{LoaderName: "plain", Docs: testutil.Pages("scan.pdf", "Plain text of the scan.")}
	f := newFixture(t, loader.NewFallbackLoader(primary, fallback, nil), nil)
	path := f.writeSource(t, "scan.pdf", "%PDF-1.4")

	ok, err := f.pipeline.Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, f.processedCopy("scan.pdf"))
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 1, fallback.Calls())
}

func TestIngest_Idempotent(t *testing.T) {
	f := newFixture(t, nil, nil)
	path := f.writeSource(t, "notes.md", "Some notes worth keeping.")
	ctx := context.Background()

	ok, err := f.pipeline.Ingest(ctx, path)
	require.NoError(t, err)
	require.True(t, ok)
	count := f.store.Count()

	ok, err = f.pipeline.Ingest(ctx, path)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, count, f.store.Count())

	entries, err := f.pipeline.Processed()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "notes.md", entries[0].Name)
	assert.Equal(t, count, entries[0].Chunks)
}

func TestIngest_ConcurrentSameFile(t *testing.T) {
	f := newFixture(t, nil, nil)
	path := f.writeSource(t, "race.txt", "Only one ingestion should win.")
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := f.pipeline.Ingest(ctx, path); ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, f.store.Count())
}

func TestIngest_FailureLeavesSourceUnseen(t *testing.T) {
	ld := &testutil.FakeLoader{Err: domain.ErrLoadFailed}
	f := newFixture(t, ld, nil)
	path := f.writeSource(t, "bad.pdf", "garbage")

	ok, err := f.pipeline.Ingest(context.Background(), path)
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrLoadFailed)
	assert.False(t, f.processedCopy("bad.pdf"))
	assert.False(t, f.store.IsInitialized())

	ld.Err = nil
	ld.Docs = testutil.Pages("bad.pdf", "Recovered text.")
	ok, err = f.pipeline.Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIngest_ZeroChunksIsLoadFailure(t *testing.T) {
	f := newFixture(t, &testutil.FakeLoader{Docs: testutil.Pages("blank.pdf", "   ")}, nil)
	path := f.writeSource(t, "blank.pdf", "x")

	ok, err := f.pipeline.Ingest(context.Background(), path)
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrLoadFailed)
	assert.False(t, f.store.IsInitialized())
}

func TestIngestPaths(t *testing.T) {
	f := newFixture(t, nil, nil)
	good := f.writeSource(t, "good.txt", "good content")
	empty := f.writeSource(t, "empty.txt", "  ")

	var seen []string
	res := f.pipeline.IngestPaths(context.Background(), []string{good, empty, good}, func(fr FileResult) {
		seen = append(seen, filepath.Base(fr.Path))
	})
	assert.Equal(t, 1, res.Ingested)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{"good.txt", "empty.txt", "good.txt"}, seen)
}

func TestQuery_NotInitialized(t *testing.T) {
	llm := &testutil.ScriptedLLM{Default: "x"}
	f := newFixture(t, nil, llm)

	_, err := f.pipeline.Query(context.Background(), QueryRequest{Question: "anything?"})
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
	assert.Empty(t, llm.Calls())
}

func TestQuery_GenerationFailure(t *testing.T) {
	llm := &testutil.ScriptedLLM{Err: testutil.ErrScripted}
	f := newFixture(t, nil, llm)
	path := f.writeSource(t, "a.txt", "some content")
	_, err := f.pipeline.Ingest(context.Background(), path)
	require.NoError(t, err)

	res, err := f.pipeline.Query(context.Background(), QueryRequest{Question: "what?"})
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, res.Answer)
	assert.ErrorIs(t, res.GenerationErr, domain.ErrGeneration)
	assert.ErrorIs(t, res.GenerationErr, testutil.ErrScripted)
}

func TestQuery_EmptyQuestion(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.pipeline.Query(context.Background(), QueryRequest{Question: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil, &testutil.ScriptedLLM{})

	st, err := f.pipeline.Status()
	require.NoError(t, err)
	assert.False(t, st.Initialized)
	assert.Equal(t, 0, st.Processed)
	assert.Equal(t, "hash", st.EmbeddingModel)
	assert.Equal(t, "scripted", st.LLMModel)
	assert.Equal(t, filepath.Join(f.dir, "db", "processed"), st.ProcessedFolder)

	_, err = f.pipeline.Ingest(context.Background(), f.writeSource(t, "s.txt", "status check"))
	require.NoError(t, err)

	st, err = f.pipeline.Status()
	require.NoError(t, err)
	assert.True(t, st.Initialized)
	assert.Equal(t, 1, st.Processed)
	assert.Equal(t, 1, st.Chunks)
}

func TestQuery_CacheInvalidatedByIngest(t *testing.T) {
	f := newFixture(t, nil, &testutil.ScriptedLLM{Default: "ok"})
	ctx := context.Background()

	_, err := f.pipeline.Ingest(ctx, f.writeSource(t, "first.txt", "The pool opens at noon."))
	require.NoError(t, err)

	res, err := f.pipeline.Query(ctx, QueryRequest{Question: "When does the pool open?", K: 5})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)

	_, err = f.pipeline.Ingest(ctx, f.writeSource(t, "second.txt", "The gym opens at 5am."))
	require.NoError(t, err)

	res, err = f.pipeline.Query(ctx, QueryRequest{Question: "When does the pool open?", K: 5})
	require.NoError(t, err)
	assert.Len(t, res.Chunks, 2)
}

func TestIngest_GuardRefuses(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	refused := fmt.Errorf("%w: embedding dimension changed", domain.ErrConfigDrift)
	f.pipeline.guard = func() error { return refused }

	path := f.writeSource(t, "b.txt", "Late checkout is available until noon.")
	ok, err := f.pipeline.Ingest(ctx, path)
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrConfigDrift)
	assert.False(t, f.store.IsInitialized())
	assert.False(t, f.processedCopy("b.txt"))

	var seen []FileResult
	res := f.pipeline.IngestPaths(ctx, []string{path}, func(fr FileResult) { seen = append(seen, fr) })
	assert.Equal(t, 1, res.Failed)
	require.Len(t, seen, 1)
	assert.ErrorIs(t, seen[0].Err, domain.ErrConfigDrift)

	f.pipeline.guard = func() error { return nil }
	ok, err = f.pipeline.Ingest(ctx, path)
	require.NoError(t, err)
	assert.True(t, ok)
}
