package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"docrag/internal/domain"
)

// BoltSessionStore keeps each session's history as one JSON value.
type BoltSessionStore struct {
	db *bbolt.DB
}

func NewBoltSessionStore(bs *BoltStore) (*BoltSessionStore, error) {
	err := bs.DB().Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions bucket: %w", err)
	}
	return &BoltSessionStore{db: bs.DB()}, nil
}

func (s *BoltSessionStore) Load(_ context.Context, sessionID string) ([]domain.ChatMessage, error) {
	var msgs []domain.ChatMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get([]byte(sessionID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &msgs)
	})
	return msgs, err
}

func (s *BoltSessionStore) Append(_ context.Context, sessionID string, msgs ...domain.ChatMessage) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSessions)

		var history []domain.ChatMessage
		if data := b.Get([]byte(sessionID)); data != nil {
			if err := json.Unmarshal(data, &history); err != nil {
				return fmt.Errorf("corrupted session %s: %w", sessionID, err)
			}
		}
		history = append(history, msgs...)

		data, err := json.Marshal(history)
		if err != nil {
			return err
		}
		return b.Put([]byte(sessionID), data)
	})
}

func (s *BoltSessionStore) Clear(_ context.Context, sessionID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(sessionID))
	})
}
