package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"docrag/internal/usecase"
)

var (
	queryText       string
	queryK          int
	queryRerank     bool
	queryNoRerank   bool
	queryRerankTopK int
	queryJSON       bool
	queryShowChunks bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Answer a question from the ingested documents",
	Long: `Retrieve the chunks most similar to a question, optionally re-rank them
with the LLM, and generate an answer grounded in them.

Examples:
  docrag query -q "When is breakfast served?"
  docrag query -q "pet policy" -k 5 --rerank --rerank-top-k 2 --show-chunks`,
	Args: cobra.ArbitraryArgs,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "question to answer (or pass it as arguments)")
	queryCmd.Flags().IntVarP(&queryK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	queryCmd.Flags().BoolVar(&queryRerank, "rerank", false, "re-rank retrieved chunks with the LLM")
	queryCmd.Flags().BoolVar(&queryNoRerank, "no-rerank", false, "disable re-ranking even if enabled in config")
	queryCmd.Flags().IntVar(&queryRerankTopK, "rerank-top-k", 0, "chunks kept after re-ranking (default k)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().BoolVar(&queryShowChunks, "show-chunks", false, "print the chunks the answer is grounded on")
}

type queryOutput struct {
	Answer string        `json:"answer"`
	Chunks []chunkOutput `json:"chunks"`
	Error  string        `json:"error,omitempty"`
}

type chunkOutput struct {
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := context.Background()

	question := queryText
	if question == "" {
		question = strings.Join(args, " ")
	}
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("a question is required: use -q or pass it as arguments")
	}

	a, err := openApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	req := usecase.QueryRequest{
		Question:     question,
		K:            cfg.Retrieve.K,
		UseReranking: (cfg.Retrieve.UseReranking || queryRerank) && !queryNoRerank,
		RerankTopK:   cfg.Retrieve.RerankTopK,
	}
	if queryK > 0 {
		req.K = queryK
	}
	if queryRerankTopK > 0 {
		req.RerankTopK = queryRerankTopK
	}

	res, err := a.pipeline.Query(ctx, req)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		out := queryOutput{Answer: res.Answer, Chunks: make([]chunkOutput, len(res.Chunks))}
		for i, c := range res.Chunks {
			out.Chunks[i] = chunkOutput{Source: c.Chunk.Source, ChunkIndex: c.Chunk.ChunkIndex, Score: c.Score, Text: c.Chunk.Text}
		}
		if res.GenerationErr != nil {
			out.Error = res.GenerationErr.Error()
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	if res.GenerationErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", res.GenerationErr)
	}
	fmt.Println(res.Answer)

	if queryShowChunks {
		fmt.Println()
		for i, c := range res.Chunks {
			fmt.Printf("--- [%d] %s#%d (score: %.3f) ---\n", i+1, c.Chunk.Source, c.Chunk.ChunkIndex, c.Score)
			fmt.Println(preview(c.Chunk.Text, 500))
			fmt.Println()
		}
	}
	return nil
}

// preview shortens text to at most n runes.
func preview(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
