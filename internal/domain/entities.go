package domain

import "time"

// Metadata keys shared by loaders, the chunker and the vector stores.
const (
	MetaSource     = "source"
	MetaChunkIndex = "chunk_index"
	MetaPage       = "page"
	MetaLoader     = "loader"
)

// SourceDocument is one loaded unit of text, typically a single PDF page.
type SourceDocument struct {
	Text     string
	Metadata map[string]string
}

// Chunk is a bounded span of source text with provenance metadata.
type Chunk struct {
	ID         string
	Source     string
	ChunkIndex int
	Text       string
	Metadata   map[string]string
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// LedgerEntry records a successfully ingested source file.
type LedgerEntry struct {
	Name       string    `json:"name"`
	SHA256     string    `json:"sha256"`
	Chunks     int       `json:"chunks"`
	IngestedAt time.Time `json:"ingested_at"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Status describes the pipeline for introspection.
type Status struct {
	Initialized     bool   `json:"initialized"`
	DBFolder        string `json:"db_folder"`
	ProcessedFolder string `json:"processed_folder"`
	Chunks          int    `json:"chunks"`
	Processed       int    `json:"processed"`
	EmbeddingModel  string `json:"embedding_model,omitempty"`
	LLMModel        string `json:"llm_model,omitempty"`
}
