package tessera

import "context"

// Decision is the outcome of a check together with the snapshot it was
// computed against. The snapshot makes the decision reproducible: replaying
// the check at the same token yields the same answer.
type Decision struct {
	Allowed  bool
	Snapshot Snapshot
}

// Override bypasses plan evaluation entirely. Overrides are set at Checker
// construction via WithDecision, keeping the bypass explicit and visible in
// code; they exist for admin tooling and for testing authorized and
// unauthorized code paths without storage fixtures.
type Override int

const (
	// OverrideUnset performs the normal check.
	OverrideUnset Override = iota

	// OverrideAllow skips evaluation and always allows.
	OverrideAllow

	// OverrideDeny skips evaluation and always denies.
	OverrideDeny
)

type overrideContextKey struct{}

// WithOverrideContext returns a context carrying the override. The checker
// only consults it when built with WithContextDecision, so context values
// cannot silently change authorization behavior.
func WithOverrideContext(ctx context.Context, o Override) context.Context {
	return context.WithValue(ctx, overrideContextKey{}, o)
}

// OverrideFromContext retrieves the override, or OverrideUnset.
func OverrideFromContext(ctx context.Context) Override {
	if o, ok := ctx.Value(overrideContextKey{}).(Override); ok {
		return o
	}
	return OverrideUnset
}
