// Package memory provides an in-process Storage backed by maps. It keeps
// the same multi-version records as the persistent backends, so snapshot
// reads behave identically, making it suitable for tests and examples.
package memory

import (
	"context"
	"sync"

	"github.com/tessera-authz/tessera"
)

type version struct {
	created tessera.Snapshot
	deleted tessera.Snapshot // zero while live
}

func (v version) visibleAt(at tessera.Snapshot) bool {
	if v.created.Compare(at) > 0 {
		return false
	}
	return v.deleted.IsZero() || v.deleted.Compare(at) > 0
}

type entry struct {
	tuple    tessera.Tuple
	versions []version
}

func (e *entry) live() *version {
	for i := range e.versions {
		if e.versions[i].deleted.IsZero() {
			return &e.versions[i]
		}
	}
	return nil
}

func (e *entry) anyVisibleAt(at tessera.Snapshot) bool {
	for _, v := range e.versions {
		if v.visibleAt(at) {
			return true
		}
	}
	return false
}

type Storage struct {
	mu sync.RWMutex
	// object-relation key to subject key to its version history
	rels map[string]map[string]*entry
}

var _ tessera.Storage = (*Storage)(nil)

func New() *Storage {
	return &Storage{rels: map[string]map[string]*entry{}}
}

func objectKey(object tessera.Object, relation string) string {
	return object.Type + ":" + object.ID + "#" + relation
}

func subjectKey(t tessera.Tuple) string {
	key := t.SubjectType + ":" + t.SubjectID
	if t.SubjectRelation != "" {
		key += "#" + t.SubjectRelation
	}
	return key
}

func (s *Storage) Write(_ context.Context, tuples ...tessera.Tuple) (tessera.Snapshot, error) {
	snap := tessera.NewSnapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tuples {
		ok := objectKey(t.Object(), t.ObjectRelation)
		subjects := s.rels[ok]
		if subjects == nil {
			subjects = map[string]*entry{}
			s.rels[ok] = subjects
		}
		sk := subjectKey(t)
		e := subjects[sk]
		if e == nil {
			e = &entry{tuple: t}
			subjects[sk] = e
		}
		if e.live() != nil {
			continue // already present, writes are idempotent
		}
		e.versions = append(e.versions, version{created: snap})
	}
	return snap, nil
}

func (s *Storage) Delete(_ context.Context, tuples ...tessera.Tuple) (tessera.Snapshot, error) {
	snap := tessera.NewSnapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tuples {
		subjects := s.rels[objectKey(t.Object(), t.ObjectRelation)]
		if subjects == nil {
			continue
		}
		e := subjects[subjectKey(t)]
		if e == nil {
			continue
		}
		if v := e.live(); v != nil {
			v.deleted = snap
		}
	}
	return snap, nil
}

func (s *Storage) Read(_ context.Context, t tessera.Tuple, at tessera.Snapshot) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subjects := s.rels[objectKey(t.Object(), t.ObjectRelation)]
	if subjects == nil {
		return false, nil
	}
	e := subjects[subjectKey(t)]
	if e == nil {
		return false, nil
	}
	return e.anyVisibleAt(at), nil
}

func (s *Storage) ReadTuples(_ context.Context, object tessera.Object, relation string, at tessera.Snapshot) (tessera.TupleIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tuples []tessera.Tuple
	for _, e := range s.rels[objectKey(object, relation)] {
		if e.anyVisibleAt(at) {
			tuples = append(tuples, e.tuple)
		}
	}
	return tessera.NewStaticTupleIterator(tuples), nil
}

func (s *Storage) CurrentSnapshot(context.Context) (tessera.Snapshot, error) {
	return tessera.NewSnapshot(), nil
}

func (s *Storage) Close() error {
	return nil
}
