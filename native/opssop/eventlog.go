package opssop

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.etcd.io/bbolt"

	"opschain/core/types"
)

// EventStore is the append-only log OpsSOP writes to (§4.8). BoltStore is
// used by a running node so events survive a restart; MemStore backs
// tests and any in-process use.
type EventStore interface {
	Append(event types.Event) error
	List(name string, limit int) ([]types.Event, error)
	Reset() error
	Close() error
}

var eventsBucket = []byte("events")

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// BoltStore persists events to a bbolt bucket keyed by monotonic sequence
// number, matching the identity-gateway store's append-log pattern.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (creating if absent) a bbolt-backed event store at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opssop: open event store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(eventsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opssop: init event bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Append writes event under the next monotonic sequence number.
func (s *BoltStore) Append(event types.Event) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(eventsBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		raw, err := json.Marshal(event)
		if err != nil {
			return err
		}
		return bucket.Put(sequenceKey(seq), raw)
	})
}

// List returns up to limit events in append order, optionally filtered by
// name. limit<=0 means unbounded.
func (s *BoltStore) List(name string, limit int) ([]types.Event, error) {
	var out []types.Event
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(eventsBucket)
		return bucket.ForEach(func(_, value []byte) error {
			var ev types.Event
			if err := json.Unmarshal(value, &ev); err != nil {
				return err
			}
			if name != "" && ev.Name != name {
				return nil
			}
			out = append(out, ev)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Reset deletes and recreates the event bucket.
func (s *BoltStore) Reset() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(eventsBucket); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(eventsBucket)
		return err
	})
}

// Close closes the underlying bbolt file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// MemStore is an in-process EventStore, used by tests and by any
// component that does not need events to survive a restart.
type MemStore struct {
	mu     sync.RWMutex
	events []types.Event
}

// NewMemStore returns an empty in-memory event store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Append(event types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemStore) List(name string, limit int) ([]types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Event
	for _, ev := range s.events {
		if name != "" && ev.Name != name {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	return nil
}

func (s *MemStore) Close() error { return nil }
