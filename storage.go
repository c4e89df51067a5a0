package tessera

import (
	"context"
	"errors"
)

var (
	// ErrIteratorDone is returned by TupleIterator.Next once the sequence is
	// exhausted.
	ErrIteratorDone = errors.New("tessera: iterator done")
)

// TupleIterator is a finite, lazily consumed sequence of tuples. Iterators
// are not safe for concurrent use and must be closed.
type TupleIterator interface {
	// Next returns the next tuple or ErrIteratorDone.
	Next() (Tuple, error)
	Close()
}

// Storage persists relationship tuples and exposes snapshot-pinned reads.
// The check engine only ever reads; writes and deletes belong to the
// application's data-management layer.
//
// All reads are parameterized by a Snapshot and must be stable: reading at a
// token yields the same tuples regardless of writes committed after that
// token was issued.
type Storage interface {
	// Write upserts tuples and returns the snapshot at which they became
	// visible. Writing a tuple that already exists is a no-op for that
	// tuple; writing a previously deleted tuple resurrects it.
	Write(ctx context.Context, tuples ...Tuple) (Snapshot, error)

	// Delete removes tuples and returns the snapshot at which the deletion
	// became visible. Reads pinned to older snapshots still observe them.
	Delete(ctx context.Context, tuples ...Tuple) (Snapshot, error)

	// Read reports whether the exact tuple is visible at the snapshot.
	Read(ctx context.Context, t Tuple, at Snapshot) (bool, error)

	// ReadTuples returns all tuples stored for (object, relation) visible at
	// the snapshot, concrete and userset subjects alike.
	ReadTuples(ctx context.Context, object Object, relation string, at Snapshot) (TupleIterator, error)

	// CurrentSnapshot returns a token observing every write committed so far.
	CurrentSnapshot(ctx context.Context) (Snapshot, error)

	Close() error
}

type staticTupleIterator struct {
	tuples []Tuple
}

// NewStaticTupleIterator wraps an already materialized slice. Storage
// implementations that read eagerly use it to satisfy ReadTuples.
func NewStaticTupleIterator(tuples []Tuple) TupleIterator {
	return &staticTupleIterator{tuples: tuples}
}

func (it *staticTupleIterator) Next() (Tuple, error) {
	if len(it.tuples) == 0 {
		return Tuple{}, ErrIteratorDone
	}
	t := it.tuples[0]
	it.tuples = it.tuples[1:]
	return t, nil
}

func (it *staticTupleIterator) Close() {}
