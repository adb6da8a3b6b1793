package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.etcd.io/bbolt"

	"docrag/internal/domain"
)

// Ledger records processed sources in the ledger bucket and keeps a
// byte-identical copy of each under processedDir. In-flight ingestions are
// tracked in memory only, so a crash mid-ingestion leaves the source unseen.
type Ledger struct {
	db           *bbolt.DB
	processedDir string

	mu     sync.Mutex
	claims map[string]struct{}
}

func NewLedger(bs *BoltStore, processedDir string) (*Ledger, error) {
	if err := os.MkdirAll(processedDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create processed folder: %w", err)
	}
	return &Ledger{
		db:           bs.DB(),
		processedDir: processedDir,
		claims:       make(map[string]struct{}),
	}, nil
}

func (l *Ledger) ProcessedDir() string {
	return l.processedDir
}

// IsProcessed reports whether name has a ledger record or a processed copy.
func (l *Ledger) IsProcessed(name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}

	var found bool
	err := l.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketLedger).Get([]byte(name)) != nil
		return nil
	})
	if err != nil || found {
		return found, err
	}

	_, err = os.Stat(filepath.Join(l.processedDir, name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (l *Ledger) Claim(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.claims[name]; busy {
		return fmt.Errorf("%w: %s", domain.ErrIngestInProgress, name)
	}
	done, err := l.IsProcessed(name)
	if err != nil {
		return err
	}
	if done {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyProcessed, name)
	}
	l.claims[name] = struct{}{}
	return nil
}

func (l *Ledger) Release(name string) {
	l.mu.Lock()
	delete(l.claims, name)
	l.mu.Unlock()
}

// Commit copies sourcePath to the processed folder and writes the ledger
// record. The SHA256 of the copied bytes is filled in when entry has none.
func (l *Ledger) Commit(entry domain.LedgerEntry, sourcePath string) error {
	if err := validName(entry.Name); err != nil {
		return err
	}

	dst := filepath.Join(l.processedDir, entry.Name)
	sum, err := copyFile(sourcePath, dst)
	if err != nil {
		return fmt.Errorf("failed to copy %s to processed folder: %w", entry.Name, err)
	}
	if entry.SHA256 == "" {
		entry.SHA256 = sum
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	err = l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLedger).Put([]byte(entry.Name), data)
	})
	if err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to write ledger record: %w", err)
	}
	return nil
}

// List returns all ledger records ordered by name.
func (l *Ledger) List() ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	err := l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLedger).ForEach(func(k, v []byte) error {
			var e domain.LedgerEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("corrupted ledger record %s: %w", k, err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return fmt.Errorf("%w: bad source name %q", domain.ErrInvalidArgument, name)
	}
	return nil
}

// copyFile writes src to dst through a temp file and rename, returning the
// hex SHA256 of the content.
func copyFile(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".ingest-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), in); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if info, err := in.Stat(); err == nil {
		_ = os.Chmod(tmp.Name(), info.Mode().Perm())
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
