// Package store persists per-channel crawl checkpoints so an interrupted
// run can resume without re-reading history it already wrote.
package store

import (
	"fmt"

	"github.com/boltdb/bolt"
	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
)

var checkpointsBucket = []byte("checkpoints")

// Checkpoint is the durable state of one channel within one run.
type Checkpoint struct {
	// LastMessageID is the newest message already written to the channel
	// file; the next history page starts after it.
	LastMessageID snowflake.ID `json:"last_message_id"`
	// Messages is the running message total, carried across resumes.
	Messages int64 `json:"messages"`
	// Media is the per-channel media sequence number, carried across
	// resumes so saved names stay unique.
	Media int `json:"media"`
	// Done marks the channel fully archived.
	Done bool `json:"done"`
}

type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpointsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create checkpoints bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Checkpoint loads the state of a channel within a run. found is false when
// the channel has never been checkpointed.
func (s *Store) Checkpoint(runKey string, channelID snowflake.ID) (cp Checkpoint, found bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(checkpointsBucket).Get(checkpointKey(runKey, channelID))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &cp)
	})
	return cp, found, err
}

func (s *Store) SetCheckpoint(runKey string, channelID snowflake.ID, cp Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(checkpointsBucket).Put(checkpointKey(runKey, channelID), raw)
	})
}

func checkpointKey(runKey string, channelID snowflake.ID) []byte {
	return []byte(fmt.Sprintf("%s/%s", runKey, channelID))
}
