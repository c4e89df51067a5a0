package tessera

import (
	"context"
	"fmt"
)

// CheckWithContextualTuples is Check with additional tuples overlaid for
// this call only. Contextual tuples are validated against the model, never
// persisted, and visible at every snapshot during the evaluation; callers
// use them to ask "would the subject have access if these relationships
// existed". With no contextual tuples this is exactly Check.
func (c *Checker) CheckWithContextualTuples(ctx context.Context, t Tuple, tuples []Tuple) (Decision, error) {
	return c.CheckAtWithContextualTuples(ctx, t, NoSnapshot, tuples)
}

// CheckAtWithContextualTuples is CheckWithContextualTuples pinned to an
// explicit snapshot.
func (c *Checker) CheckAtWithContextualTuples(ctx context.Context, t Tuple, at Snapshot, tuples []Tuple) (Decision, error) {
	if len(tuples) == 0 {
		return c.CheckAt(ctx, t, at)
	}
	for i, extra := range tuples {
		if !c.model.IsValid(extra) {
			return Decision{}, fmt.Errorf("%w: tuple %d: %s", ErrInvalidContextualTuple, i, extra)
		}
	}

	// evaluate on a shadow checker: reads go through the overlay, and the
	// shared decision cache is bypassed entirely so per-call tuples can
	// never leak into answers for other calls
	shadow := *c
	shadow.storage = newOverlay(c.storage, tuples)
	shadow.cache = nil
	return shadow.CheckAt(ctx, t, at)
}

// overlay layers unstored tuples over a Storage for the duration of one
// check. Only the read side matters; mutations pass through untouched.
type overlay struct {
	Storage
	exact map[string]struct{}
	rels  map[string][]Tuple // object-relation key to overlaid tuples
}

func newOverlay(base Storage, tuples []Tuple) *overlay {
	o := &overlay{
		Storage: base,
		exact:   make(map[string]struct{}, len(tuples)),
		rels:    make(map[string][]Tuple),
	}
	for _, t := range tuples {
		o.exact[t.String()] = struct{}{}
		key := t.ObjectType + ":" + t.ObjectID + "#" + t.ObjectRelation
		o.rels[key] = append(o.rels[key], t)
	}
	return o
}

func (o *overlay) Read(ctx context.Context, t Tuple, at Snapshot) (bool, error) {
	if _, ok := o.exact[t.String()]; ok {
		return true, nil
	}
	return o.Storage.Read(ctx, t, at)
}

func (o *overlay) ReadTuples(ctx context.Context, object Object, relation string, at Snapshot) (TupleIterator, error) {
	base, err := o.Storage.ReadTuples(ctx, object, relation, at)
	if err != nil {
		return nil, err
	}
	extra := o.rels[object.Type+":"+object.ID+"#"+relation]
	if len(extra) == 0 {
		return base, nil
	}
	return &chainIterator{extra: extra, base: base}, nil
}

// chainIterator yields the overlaid tuples first, then the stored ones.
type chainIterator struct {
	extra []Tuple
	base  TupleIterator
}

func (it *chainIterator) Next() (Tuple, error) {
	if len(it.extra) > 0 {
		t := it.extra[0]
		it.extra = it.extra[1:]
		return t, nil
	}
	return it.base.Next()
}

func (it *chainIterator) Close() {
	it.base.Close()
}
