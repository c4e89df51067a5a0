package tessera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/juju/zaputil/zapctx"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
)

const (
	DefaultMaxDepth         = 25
	DefaultConcurrencyLimit = 16
	DefaultCacheSize        = 10000
	DefaultCacheTTL         = 10 * time.Second
)

// Checker evaluates relationship checks by interpreting compiled plans
// against a Storage. A Checker is safe for concurrent use; all state besides
// the decision cache is immutable after construction.
//
// Checks fail closed: whenever an error is returned the accompanying
// Decision is not-allowed, so ignoring the error can deny but never grant.
type Checker struct {
	model       *Model
	storage     Storage
	maxDepth    int
	concurrency int
	cache       *decisionCache
	cacheSize   int64
	cacheTTL    time.Duration
	noCache     bool
	override    Override
	ctxOverride bool
}

type CheckerOption func(*Checker)

// WithMaxDepth bounds plan recursion. Exceeding it fails the check with
// ErrDepthExceeded instead of resolving silently, since it indicates a
// pathological model or data graph.
func WithMaxDepth(depth int) CheckerOption {
	return func(c *Checker) { c.maxDepth = depth }
}

// WithConcurrencyLimit bounds the fan-out of union and intersection
// branches; branches beyond the limit queue instead of spawning.
func WithConcurrencyLimit(limit int) CheckerOption {
	return func(c *Checker) { c.concurrency = limit }
}

// WithCache sizes the decision cache.
func WithCache(maxSize int64, ttl time.Duration) CheckerOption {
	return func(c *Checker) {
		c.cacheSize = maxSize
		c.cacheTTL = ttl
	}
}

// WithoutCache disables decision memoization entirely.
func WithoutCache() CheckerOption {
	return func(c *Checker) { c.noCache = true }
}

// WithDecision installs an override that bypasses evaluation. See Override.
func WithDecision(o Override) CheckerOption {
	return func(c *Checker) { c.override = o }
}

// WithContextDecision makes the checker consult OverrideFromContext before
// evaluating. Opt-in, so context values cannot override authorization unless
// the checker was explicitly built for it.
func WithContextDecision() CheckerOption {
	return func(c *Checker) { c.ctxOverride = true }
}

// NewChecker builds a checker for the given model and storage backend.
func NewChecker(model *Model, storage Storage, opts ...CheckerOption) (*Checker, error) {
	if model == nil {
		return nil, errors.New("tessera: checker requires a model")
	}
	if storage == nil {
		return nil, errors.New("tessera: checker requires a storage backend")
	}
	c := &Checker{
		model:       model,
		storage:     storage,
		maxDepth:    DefaultMaxDepth,
		concurrency: DefaultConcurrencyLimit,
		cacheSize:   DefaultCacheSize,
		cacheTTL:    DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if !c.noCache {
		c.cache = newDecisionCache(c.cacheSize, c.cacheTTL)
	}
	return c, nil
}

// Close releases the decision cache. The storage backend is not owned by the
// checker and stays open.
func (c *Checker) Close() {
	c.cache.stop()
}

// Check resolves whether the relationship stated by t holds, pinned to the
// store's current snapshot. The caller-supplied context carries the
// deadline; on expiry the check fails with ErrTimeout.
func (c *Checker) Check(ctx context.Context, t Tuple) (Decision, error) {
	return c.CheckAt(ctx, t, NoSnapshot)
}

// CheckAt is Check pinned to an explicit snapshot. Passing the token
// returned by a prior Write or Delete guarantees the check observes that
// mutation (read-your-writes). NoSnapshot resolves to the current snapshot.
func (c *Checker) CheckAt(ctx context.Context, t Tuple, at Snapshot) (Decision, error) {
	if c.ctxOverride {
		if o := OverrideFromContext(ctx); o != OverrideUnset {
			return Decision{Allowed: o == OverrideAllow, Snapshot: at}, nil
		}
	}
	if c.override != OverrideUnset {
		return Decision{Allowed: c.override == OverrideAllow, Snapshot: at}, nil
	}

	if _, ok := c.model.PlanFor(t.ObjectType, t.ObjectRelation); !ok {
		return Decision{}, fmt.Errorf("%s#%s: %w", t.ObjectType, t.ObjectRelation, ErrUnknownRelation)
	}

	if at.IsZero() {
		var err error
		at, err = c.storage.CurrentSnapshot(ctx)
		if err != nil {
			return Decision{}, storeErr(err)
		}
	}

	res, err := c.dispatch(t, at, c.maxDepth, map[string]struct{}{})(ctx)
	if err != nil {
		return Decision{Snapshot: at}, checkErr(err)
	}
	zapctx.Debug(ctx, "check resolved",
		zap.Stringer("tuple", t),
		zap.Bool("allowed", res.allowed),
		zap.Stringer("snapshot", at))
	return Decision{Allowed: res.allowed, Snapshot: at}, nil
}

// CheckMany evaluates independent checks concurrently against one shared
// snapshot, so the batch observes a single consistent view of the store.
func (c *Checker) CheckMany(ctx context.Context, tuples []Tuple) ([]Decision, error) {
	at, err := c.storage.CurrentSnapshot(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	decisions := make([]Decision, len(tuples))
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(c.concurrency)
	for i, t := range tuples {
		i, t := i, t
		p.Go(func(ctx context.Context) error {
			d, err := c.CheckAt(ctx, t, at)
			if err != nil {
				return err
			}
			decisions[i] = d
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return decisions, nil
}

// checkResult is the outcome of one sub-check. truncated marks results whose
// evaluation had a branch cut short by a tuple-data cycle: such a result is
// correct for the path that produced it but not in general, so it must never
// enter the decision cache.
type checkResult struct {
	allowed   bool
	truncated bool
}

// checkHandler resolves one plan branch.
type checkHandler func(ctx context.Context) (checkResult, error)

type checkOutcome struct {
	result checkResult
	err    error
}

// dispatch resolves the plan for the tuple's relation and defers to
// dispatchPlan. Stored userset subjects may reference relations the model
// never defined, hence the lookup can fail below the root.
func (c *Checker) dispatch(t Tuple, at Snapshot, depth int, visited map[string]struct{}) checkHandler {
	plan, ok := c.model.PlanFor(t.ObjectType, t.ObjectRelation)
	if !ok {
		return func(context.Context) (checkResult, error) {
			return checkResult{}, fmt.Errorf("%s#%s: %w", t.ObjectType, t.ObjectRelation, ErrUnknownRelation)
		}
	}
	return c.dispatchPlan(plan, t, at, depth, visited)
}

// dispatchPlan wraps the recursion entry for one (object, relation, subject)
// sub-check: depth accounting, cycle detection against the active path, and
// decision-cache consultation all happen here so every plan node gets them
// uniformly.
func (c *Checker) dispatchPlan(plan *Plan, t Tuple, at Snapshot, depth int, visited map[string]struct{}) checkHandler {
	return func(ctx context.Context) (checkResult, error) {
		if depth <= 0 {
			return checkResult{}, fmt.Errorf("%s: %w", t, ErrDepthExceeded)
		}
		if _, seen := visited[t.String()]; seen {
			// a cycle introduced by tuple data, not schema: fail closed for
			// this branch instead of looping
			return checkResult{truncated: true}, nil
		}
		if allowed, ok := c.cache.get(t, at); ok {
			zapctx.Debug(ctx, "decision cache hit", zap.Stringer("tuple", t))
			return checkResult{allowed: allowed}, nil
		}

		branch := maps.Clone(visited)
		branch[t.String()] = struct{}{}
		res, err := c.evalNode(plan, t, at, depth-1, branch)(ctx)
		if err != nil {
			return checkResult{}, err
		}
		// a truncated result holds only relative to the active path; caching
		// it would answer unrelated checks with it
		if !res.truncated {
			c.cache.set(t, at, res.allowed)
		}
		return res, nil
	}
}

func (c *Checker) evalNode(plan *Plan, t Tuple, at Snapshot, depth int, visited map[string]struct{}) checkHandler {
	switch plan.Kind {
	case KindDirect:
		return c.evalDirect(plan, t, at, depth, visited)
	case KindComputedUserset:
		rewritten := t
		rewritten.ObjectRelation = plan.ComputedRelation
		return c.dispatchPlan(plan.Computed, rewritten, at, depth, visited)
	case KindTupleToUserset:
		return c.evalTupleToUserset(plan, t, at, depth, visited)
	case KindUnion:
		handlers := c.evalChildren(plan.Children, t, at, depth, visited)
		return func(ctx context.Context) (checkResult, error) {
			return union(ctx, c.concurrency, handlers...)
		}
	case KindIntersection:
		handlers := c.evalChildren(plan.Children, t, at, depth, visited)
		return func(ctx context.Context) (checkResult, error) {
			return intersection(ctx, c.concurrency, handlers...)
		}
	case KindExclusion:
		return func(ctx context.Context) (checkResult, error) {
			base, err := c.evalNode(plan.Base, t, at, depth, visited)(ctx)
			if err != nil || !base.allowed {
				return checkResult{truncated: base.truncated}, err
			}
			sub, err := c.evalNode(plan.Subtract, t, at, depth, visited)(ctx)
			if err != nil {
				return checkResult{}, err
			}
			return checkResult{allowed: !sub.allowed, truncated: base.truncated || sub.truncated}, nil
		}
	default:
		panic("unreachable")
	}
}

func (c *Checker) evalChildren(children []*Plan, t Tuple, at Snapshot, depth int, visited map[string]struct{}) []checkHandler {
	handlers := make([]checkHandler, 0, len(children))
	for _, child := range children {
		handlers = append(handlers, c.evalNode(child, t, at, depth, visited))
	}
	return handlers
}

// evalDirect unions an exact tuple lookup with the expansion of stored
// userset subjects: `folder:f#viewer@group:g#member` defers to a recursive
// check of `group:g#member` for the original subject. That recursion is what
// makes nested group membership work.
func (c *Checker) evalDirect(plan *Plan, t Tuple, at Snapshot, depth int, visited map[string]struct{}) checkHandler {
	return func(ctx context.Context) (checkResult, error) {
		exact := func(ctx context.Context) (checkResult, error) {
			ok, err := c.storage.Read(ctx, t, at)
			if err != nil {
				return checkResult{}, storeErr(err)
			}
			return checkResult{allowed: ok}, nil
		}

		usersets := func(ctx context.Context) (checkResult, error) {
			iter, err := c.storage.ReadTuples(ctx, t.Object(), plan.Relation, at)
			if err != nil {
				return checkResult{}, storeErr(err)
			}
			defer iter.Close()

			var handlers []checkHandler
			for {
				stored, err := iter.Next()
				if errors.Is(err, ErrIteratorDone) {
					break
				}
				if err != nil {
					return checkResult{}, storeErr(err)
				}
				userset, ok := stored.SubjectUserset()
				if !ok {
					continue
				}
				handlers = append(handlers, c.dispatch(Tuple{
					ObjectType:      userset.Object.Type,
					ObjectID:        userset.Object.ID,
					ObjectRelation:  userset.Relation,
					SubjectType:     t.SubjectType,
					SubjectID:       t.SubjectID,
					SubjectRelation: t.SubjectRelation,
				}, at, depth, visited))
			}
			if len(handlers) == 0 {
				return checkResult{}, nil
			}
			return union(ctx, c.concurrency, handlers...)
		}

		return union(ctx, c.concurrency, exact, usersets)
	}
}

// evalTupleToUserset follows direct tuples of the tupleset relation to
// related objects and evaluates the computed relation there. This is how
// "viewer of a document" derives from "viewer of its parent folder".
func (c *Checker) evalTupleToUserset(plan *Plan, t Tuple, at Snapshot, depth int, visited map[string]struct{}) checkHandler {
	return func(ctx context.Context) (checkResult, error) {
		iter, err := c.storage.ReadTuples(ctx, t.Object(), plan.TuplesetRelation, at)
		if err != nil {
			return checkResult{}, storeErr(err)
		}
		defer iter.Close()

		var handlers []checkHandler
		for {
			link, err := iter.Next()
			if errors.Is(err, ErrIteratorDone) {
				break
			}
			if err != nil {
				return checkResult{}, storeErr(err)
			}
			// tupleset links must be concrete objects of the declared type
			if link.SubjectRelation != "" || link.SubjectType != plan.TuplesetType {
				continue
			}
			handlers = append(handlers, c.dispatchPlan(plan.Computed, Tuple{
				ObjectType:      link.SubjectType,
				ObjectID:        link.SubjectID,
				ObjectRelation:  plan.ComputedRelation,
				SubjectType:     t.SubjectType,
				SubjectID:       t.SubjectID,
				SubjectRelation: t.SubjectRelation,
			}, at, depth, visited))
		}
		if len(handlers) == 0 {
			return checkResult{}, nil
		}
		return union(ctx, c.concurrency, handlers...)
	}
}

// runBranches starts handlers with at most limit in flight, yielding results
// on the provided channel. The returned drain function must be called to
// make sure every started branch has settled before the channel is closed.
func runBranches(ctx context.Context, limit int, results chan<- checkOutcome, handlers ...checkHandler) func() {
	limiter := make(chan struct{}, limit)

	var wg sync.WaitGroup

	branch := func(fn checkHandler) {
		defer wg.Done()

		resolved := make(chan checkOutcome, 1)
		go func() {
			res, err := fn(ctx)
			resolved <- checkOutcome{res, err}
			<-limiter
		}()

		select {
		case <-ctx.Done():
		case out := <-resolved:
			results <- out
		}
	}

	wg.Add(1)
	go func() {
	outer:
		for _, handler := range handlers {
			fn := handler

			select {
			case limiter <- struct{}{}:
				wg.Add(1)
				go branch(fn)
			case <-ctx.Done():
				break outer
			}
		}

		wg.Done()
	}()

	return func() {
		wg.Wait()
	}
}

// union resolves as allowed as soon as any branch does, cancelling the
// siblings. A branch error is held back: it only surfaces if no other branch
// resolves allowed. A not-allowed union is truncated if any of its branches
// was, an allowed one carries the flag of the branch that decided it.
func union(ctx context.Context, limit int, handlers ...checkHandler) (checkResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	results := make(chan checkOutcome, len(handlers))

	drain := runBranches(ctx, limit, results, handlers...)
	defer func() {
		cancel()
		drain()
		close(results)
	}()

	var branchErr error
	truncated := false
	for range handlers {
		select {
		case out := <-results:
			if out.err != nil {
				branchErr = out.err
				continue
			}
			if out.result.allowed {
				return out.result, nil
			}
			truncated = truncated || out.result.truncated
		case <-ctx.Done():
			return checkResult{}, ctx.Err()
		}
	}
	if branchErr != nil {
		return checkResult{}, branchErr
	}
	return checkResult{truncated: truncated}, nil
}

// intersection resolves as not-allowed as soon as any branch does,
// cancelling the siblings. Any branch error fails the whole check, since the
// required term cannot be proven.
func intersection(ctx context.Context, limit int, handlers ...checkHandler) (checkResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	results := make(chan checkOutcome, len(handlers))

	drain := runBranches(ctx, limit, results, handlers...)
	defer func() {
		cancel()
		drain()
		close(results)
	}()

	truncated := false
	for range handlers {
		select {
		case out := <-results:
			if out.err != nil {
				return checkResult{}, out.err
			}
			if !out.result.allowed {
				return checkResult{truncated: out.result.truncated}, nil
			}
			truncated = truncated || out.result.truncated
		case <-ctx.Done():
			return checkResult{}, ctx.Err()
		}
	}
	return checkResult{allowed: true, truncated: truncated}, nil
}

func storeErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func checkErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}
