package port

import "docrag/internal/domain"

// Ledger tracks which source files have been ingested.
type Ledger interface {
	IsProcessed(name string) (bool, error)

	// Claim reserves name for ingestion. It fails with domain.ErrAlreadyProcessed
	// or domain.ErrIngestInProgress when the name cannot be ingested now.
	Claim(name string) error

	// Commit copies sourcePath into the processed folder and records entry.
	Commit(entry domain.LedgerEntry, sourcePath string) error

	// Release drops a claim that did not end in a Commit.
	Release(name string)

	List() ([]domain.LedgerEntry, error)

	ProcessedDir() string
}
