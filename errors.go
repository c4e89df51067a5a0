package tessera

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure modes of a check. Permission denials are
// not errors: Check returns (Decision{Allowed: false}, nil) for those. All
// of the errors below additionally resolve to a not-allowed Decision, so an
// erroring check can never fail open.
var (
	// ErrUnknownRelation is returned when a check references a relation that
	// is not defined in the model the checker was built with.
	ErrUnknownRelation = errors.New("tessera: relation not defined in model")

	// ErrDepthExceeded is returned when plan evaluation recursed deeper than
	// the configured maximum. It indicates a pathological relationship graph
	// and is surfaced rather than silently resolved.
	ErrDepthExceeded = errors.New("tessera: evaluation depth exceeded")

	// ErrStoreUnavailable wraps transient storage failures. The checker does
	// not retry internally; callers may retry with backoff.
	ErrStoreUnavailable = errors.New("tessera: tuple store unavailable")

	// ErrTimeout is returned when the caller-supplied deadline elapsed before
	// the check resolved. Partial work is discarded.
	ErrTimeout = errors.New("tessera: check deadline exceeded")

	// ErrInvalidContextualTuple is returned when a contextual tuple passed
	// to a check references types or relations the model does not define.
	ErrInvalidContextualTuple = errors.New("tessera: invalid contextual tuple")

	// ErrStaleSnapshot is returned by storage implementations that no longer
	// retain history for the requested snapshot token.
	ErrStaleSnapshot = errors.New("tessera: snapshot no longer available")

	// ErrDuplicateModel is returned by Registry.Add for an already
	// registered namespace+version pair. Schema changes create a new
	// version, they never mutate a loaded one.
	ErrDuplicateModel = errors.New("tessera: model version already registered")
)

// SchemaError reports a malformed or cyclic-by-definition model. It is fatal
// at load time and names the offending relation.
type SchemaError struct {
	Object   string // object type the relation belongs to
	Relation string
	Reason   string
}

func (e *SchemaError) Error() string {
	if e.Relation == "" {
		return fmt.Sprintf("tessera: invalid schema: type %q: %s", e.Object, e.Reason)
	}
	return fmt.Sprintf("tessera: invalid schema: relation %q on type %q: %s", e.Relation, e.Object, e.Reason)
}

func schemaErrorf(object, relation, format string, args ...any) error {
	return &SchemaError{Object: object, Relation: relation, Reason: fmt.Sprintf(format, args...)}
}

// IsSchemaErr returns true if err is or wraps a *SchemaError.
func IsSchemaErr(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IsDepthExceededErr returns true if err is or wraps ErrDepthExceeded.
func IsDepthExceededErr(err error) bool {
	return errors.Is(err, ErrDepthExceeded)
}

// IsStoreUnavailableErr returns true if err is or wraps ErrStoreUnavailable.
func IsStoreUnavailableErr(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
