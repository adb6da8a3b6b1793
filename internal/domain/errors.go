package domain

import "errors"

var (
	// ErrLoadFailed is returned when no loader strategy could read a source.
	ErrLoadFailed = errors.New("document load failed")

	// ErrNotInitialized is returned when the vector index is queried before anything was ingested.
	ErrNotInitialized = errors.New("vector database not initialized, ingest documents first")

	// ErrGeneration marks an LLM failure while generating an answer.
	ErrGeneration = errors.New("answer generation failed")

	ErrAlreadyProcessed = errors.New("source already processed")
	ErrIngestInProgress = errors.New("source ingestion already in progress")
	ErrInvalidArgument  = errors.New("invalid argument")

	// ErrConfigDrift refuses an ingest whose embedding or chunking settings
	// differ from the ones the index was built with.
	ErrConfigDrift = errors.New("index configuration changed since the first ingest")
)
