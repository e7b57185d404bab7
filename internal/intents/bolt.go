package intents

import (
	"anchor/internal/domain"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
	bolt "go.etcd.io/bbolt"
)

var _ Store = (*BoltStore)(nil)

var (
	bucketIntents = []byte("intents") // seq(8 bytes BE) -> json intent
	bucketIDs     = []byte("ids")     // intent id -> seq
)

// File-backed store; survives restarts, single writer per file
type BoltStore struct {
	log logger.Logger
	db  *bolt.DB
	now func() time.Time
}

func NewBoltStore(log logger.Logger, path string) (*BoltStore, error) {
	if path == "" {
		return nil, errors.New("bolt path is required to the intent store")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db %s: %w", path, err)
	}

	if err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketIntents); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketIDs)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	s := &BoltStore{log: log, db: db, now: time.Now}

	st, err := s.Stats(context.Background())
	if err == nil {
		log.Infof("Loaded %d intents from %s (%d pending)", st.Total, path, st.Pending)
	}
	return s, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Submit(_ context.Context, in *domain.SwapIntent) (string, error) {
	if err := prepare(in, s.now()); err != nil {
		return "", err
	}

	data, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("failed to marshal intent: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		ids := tx.Bucket(bucketIDs)
		if ids.Get([]byte(in.ID)) != nil {
			return fmt.Errorf("%w: duplicate id %s", domain.ErrInvalidIntent, in.ID)
		}

		b := tx.Bucket(bucketIntents)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		key := seqKey(seq)
		if err = b.Put(key, data); err != nil {
			return err
		}
		return ids.Put([]byte(in.ID), key)
	})
	if err != nil {
		return "", err
	}

	s.log.Debugf("Added intent %s to queue", in.ID)
	return in.ID, nil
}

func (s *BoltStore) Pending(ctx context.Context) ([]domain.SwapIntent, error) {
	return s.filter(func(in *domain.SwapIntent) bool {
		return in.Status == domain.StatusPending
	})
}

func (s *BoltStore) SetStatus(_ context.Context, id string, status domain.Status, batchID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketIDs).Get([]byte(id))
		if key == nil {
			return fmt.Errorf("intent %s: %w", id, domain.ErrNotFound)
		}

		b := tx.Bucket(bucketIntents)
		var rec domain.SwapIntent
		if err := json.Unmarshal(b.Get(key), &rec); err != nil {
			return fmt.Errorf("failed to decode intent %s: %w", id, err)
		}

		if err := applyStatus(&rec, status, batchID, s.now()); err != nil {
			return err
		}

		data, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if err != nil {
		return err
	}

	s.log.Debugf("Updated intent %s status to %s", id, status)
	return nil
}

func (s *BoltStore) All(_ context.Context) ([]domain.SwapIntent, error) {
	return s.filter(func(*domain.SwapIntent) bool { return true })
}

func (s *BoltStore) Get(_ context.Context, id string) (domain.SwapIntent, error) {
	var rec domain.SwapIntent
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketIDs).Get([]byte(id))
		if key == nil {
			return fmt.Errorf("intent %s: %w", id, domain.ErrNotFound)
		}
		return json.Unmarshal(tx.Bucket(bucketIntents).Get(key), &rec)
	})
	return rec, err
}

func (s *BoltStore) ByBatch(_ context.Context, batchID string) ([]domain.SwapIntent, error) {
	return s.filter(func(in *domain.SwapIntent) bool {
		return in.BatchID == batchID
	})
}

func (s *BoltStore) Stats(_ context.Context) (domain.QueueStats, error) {
	var st domain.QueueStats
	_, err := s.filter(func(in *domain.SwapIntent) bool {
		st.Count(in.Status)
		return false
	})
	return st, err
}

// filter walks the intents bucket in insertion (sequence) order inside one read transaction
func (s *BoltStore) filter(keep func(in *domain.SwapIntent) bool) ([]domain.SwapIntent, error) {
	out := make([]domain.SwapIntent, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIntents).ForEach(func(k, v []byte) error {
			var rec domain.SwapIntent
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to decode intent at seq %d: %w", binary.BigEndian.Uint64(k), err)
			}
			if keep(&rec) {
				out = append(out, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
