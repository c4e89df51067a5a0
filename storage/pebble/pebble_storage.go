// Package pebble provides an embedded Storage on top of cockroachdb/pebble.
// Keys are tuples in their string notation, values hold the tuple's version
// history as fixed-size records of created and deleted snapshot tokens.
package pebble

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/tessera-authz/tessera"

	"github.com/cockroachdb/pebble"
)

// a version record is the created token followed by the deleted token,
// all-zero deleted meaning the version is still live
const versionSize = 32

type PebbleStorage struct {
	db *pebble.DB
	// serializes the read-modify-write of version records
	mu sync.Mutex
}

var _ tessera.Storage = (*PebbleStorage)(nil)

func NewPebbleStorage(dirname string) (*PebbleStorage, error) {
	db, err := pebble.Open(dirname, &pebble.Options{})
	return &PebbleStorage{db: db}, err
}

func (s *PebbleStorage) Close() error {
	return s.db.Close()
}

func (s *PebbleStorage) Write(_ context.Context, tuples ...tessera.Tuple) (tessera.Snapshot, error) {
	snap := tessera.NewSnapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, t := range tuples {
		key := []byte(t.String())
		value, err := s.currentValue(key)
		if err != nil {
			return tessera.NoSnapshot, err
		}
		if liveVersion(value) >= 0 {
			continue // already present, writes are idempotent
		}
		value = append(value, snap.UUID().Bytes()...)
		value = append(value, make([]byte, 16)...)
		if err := batch.Set(key, value, nil); err != nil {
			return tessera.NoSnapshot, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return tessera.NoSnapshot, err
	}
	return snap, nil
}

func (s *PebbleStorage) Delete(_ context.Context, tuples ...tessera.Tuple) (tessera.Snapshot, error) {
	snap := tessera.NewSnapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, t := range tuples {
		key := []byte(t.String())
		value, err := s.currentValue(key)
		if err != nil {
			return tessera.NoSnapshot, err
		}
		i := liveVersion(value)
		if i < 0 {
			continue
		}
		copy(value[i+16:i+32], snap.UUID().Bytes())
		if err := batch.Set(key, value, nil); err != nil {
			return tessera.NoSnapshot, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return tessera.NoSnapshot, err
	}
	return snap, nil
}

func (s *PebbleStorage) Read(_ context.Context, t tessera.Tuple, at tessera.Snapshot) (bool, error) {
	value, closer, err := s.db.Get([]byte(t.String()))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	visible := anyVisibleAt(value, at)
	closer.Close()
	return visible, nil
}

func (s *PebbleStorage) ReadTuples(_ context.Context, object tessera.Object, relation string, at tessera.Snapshot) (tessera.TupleIterator, error) {
	prefix := []byte(object.Type + ":" + object.ID + "#" + relation + "@")
	iter, err := s.db.NewIter(prefixIterOptions(prefix))
	if err != nil {
		return nil, err
	}
	var tuples []tessera.Tuple
	for iter.First(); iter.Valid(); iter.Next() {
		if !anyVisibleAt(iter.Value(), at) {
			continue
		}
		tuples = append(tuples, tessera.TupleString(string(iter.Key())))
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return tessera.NewStaticTupleIterator(tuples), nil
}

func (s *PebbleStorage) CurrentSnapshot(context.Context) (tessera.Snapshot, error) {
	return tessera.NewSnapshot(), nil
}

// currentValue fetches a copy of the version records stored under key, nil
// if the key was never written.
func (s *PebbleStorage) currentValue(key []byte) ([]byte, error) {
	stored, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	value := make([]byte, len(stored), len(stored)+versionSize)
	copy(value, stored)
	closer.Close()
	return value, nil
}

// liveVersion returns the offset of the record with an all-zero deleted
// token, -1 if every version has been deleted.
func liveVersion(value []byte) int {
	var zero [16]byte
	for i := 0; i+versionSize <= len(value); i += versionSize {
		if bytes.Equal(value[i+16:i+32], zero[:]) {
			return i
		}
	}
	return -1
}

func anyVisibleAt(value []byte, at tessera.Snapshot) bool {
	var zero [16]byte
	atBytes := at.UUID().Bytes()
	for i := 0; i+versionSize <= len(value); i += versionSize {
		created, deleted := value[i:i+16], value[i+16:i+32]
		if bytes.Compare(created, atBytes) > 0 {
			continue
		}
		if bytes.Equal(deleted, zero[:]) || bytes.Compare(deleted, atBytes) > 0 {
			return true
		}
	}
	return false
}

func keyUpperBound(b []byte) []byte {
	end := make([]byte, len(b))
	copy(end, b)
	for i := len(end) - 1; i >= 0; i-- {
		end[i] = end[i] + 1
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // no upper-bound
}

func prefixIterOptions(prefix []byte) *pebble.IterOptions {
	return &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	}
}
