// Package readstate remembers which synthesized notifications a user has read.
// The state is local to this process's disk and does not sync between instances.
package readstate

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"go.etcd.io/bbolt"
)

var bucketName = []byte("notifications_read")

type Store interface {
	// ReadIDs returns the ids marked read by userID. A missing entry is empty.
	ReadIDs(ctx context.Context, userID string) (map[string]bool, error)
	MarkRead(ctx context.Context, userID string, ids ...string) error
}

// BoltStore keeps one JSON array of ids per user.
type BoltStore struct {
	db *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) ReadIDs(_ context.Context, userID string) (map[string]bool, error) {
	out := map[string]bool{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		ids, err := decodeIDs(tx.Bucket(bucketName).Get([]byte(userID)))
		if err != nil {
			return err
		}
		for _, id := range ids {
			out[id] = true
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) MarkRead(_ context.Context, userID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		existing, err := decodeIDs(b.Get([]byte(userID)))
		if err != nil {
			return err
		}
		data, err := json.Marshal(merge(existing, ids))
		if err != nil {
			return err
		}
		return b.Put([]byte(userID), data)
	})
}

func decodeIDs(raw []byte) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func merge(existing, ids []string) []string {
	set := make(map[string]struct{}, len(existing)+len(ids))
	for _, id := range existing {
		set[id] = struct{}{}
	}
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string][]string
}

var _ Store = (*MemoryStore)(nil)

func NewMemory() *MemoryStore {
	return &MemoryStore{users: map[string][]string{}}
}

func (s *MemoryStore) ReadIDs(_ context.Context, userID string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]bool{}
	for _, id := range s.users[userID] {
		out[id] = true
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, userID string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = merge(s.users[userID], ids)
	return nil
}
