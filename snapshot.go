package tessera

import (
	"bytes"

	"github.com/gofrs/uuid/v5"
)

// Snapshot marks a point in the tuple store's write history. Tokens are
// UUIDv7 values, so their byte order is their time order and two tokens are
// always comparable for "at least as fresh as".
//
// A check bound to a snapshot observes every write committed at or before it
// and nothing committed after. Callers that pass the token returned by a
// Write or Delete back into CheckAt get read-your-writes consistency: a
// revocation can never be missed because a check ran against an older view
// (the "new enemy" problem).
type Snapshot struct {
	id uuid.UUID
}

// NoSnapshot is the zero token. Checks given NoSnapshot resolve the store's
// current snapshot at call time.
var NoSnapshot = Snapshot{}

// NewSnapshot mints a token for the present moment. Storage implementations
// use it to stamp writes and to answer CurrentSnapshot.
func NewSnapshot() Snapshot {
	return Snapshot{id: uuid.Must(uuid.NewV7())}
}

// SnapshotFromUUID wraps a UUIDv7 read back from storage.
func SnapshotFromUUID(id uuid.UUID) Snapshot {
	return Snapshot{id: id}
}

// ParseSnapshot parses the string form produced by String. Applications ship
// tokens over their own wire as opaque strings.
func ParseSnapshot(s string) (Snapshot, error) {
	id, err := uuid.FromString(s)
	if err != nil {
		return NoSnapshot, err
	}
	return Snapshot{id: id}, nil
}

func (s Snapshot) String() string {
	return s.id.String()
}

// UUID exposes the underlying token for storage implementations.
func (s Snapshot) UUID() uuid.UUID {
	return s.id
}

// IsZero reports whether s is NoSnapshot.
func (s Snapshot) IsZero() bool {
	return s.id == uuid.UUID{}
}

// Compare orders two tokens by write history: -1 if s is older than o,
// 0 if equal, +1 if newer.
func (s Snapshot) Compare(o Snapshot) int {
	return bytes.Compare(s.id.Bytes(), o.id.Bytes())
}

// AtLeastAsFresh reports whether s observes everything o observes.
func (s Snapshot) AtLeastAsFresh(o Snapshot) bool {
	return s.Compare(o) >= 0
}
