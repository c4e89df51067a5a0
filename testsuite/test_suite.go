// Package testsuite exercises a Storage implementation through the full
// checker, so every backend is held to the same semantics, including
// snapshot visibility. Backend packages call RunTest from their own tests.
package testsuite

import (
	"context"
	"log"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tessera-authz/tessera"
)

// Model covers every rewrite form: direct tuples, computed relations,
// inheritance over related objects, usersets, intersections and exclusions.
var Model = func() *tessera.Model {
	model, err := tessera.NewModel(tessera.ObjectMap{
		"user": tessera.RelationMap{},
		"group": tessera.RelationMap{
			"parent": tessera.Rule{},
			"member": tessera.AnyOf(
				tessera.Rule{},
				tessera.Rule{InheritIf: "member", OfType: "group", WithRelation: "parent"},
			),
		},
		"folder": tessera.RelationMap{
			"parent": tessera.Rule{},
			"owner":  tessera.Rule{},
			"editor": tessera.AnyOf(
				tessera.Rule{},
				tessera.Rule{InheritIf: "owner"},
			),
			"viewer": tessera.AnyOf(
				tessera.Rule{},
				tessera.Rule{InheritIf: "editor"},
				tessera.Rule{InheritIf: "viewer", OfType: "folder", WithRelation: "parent"},
			),
		},
		"doc": tessera.RelationMap{
			"parent":   tessera.Rule{},
			"owner":    tessera.Rule{},
			"banned":   tessera.Rule{},
			"in_audit": tessera.Rule{},
			"editor": tessera.AnyOf(
				tessera.Rule{},
				tessera.Rule{InheritIf: "owner"},
			),
			"viewer": tessera.ButNot(
				tessera.AnyOf(
					tessera.Rule{},
					tessera.Rule{InheritIf: "editor"},
					tessera.Rule{InheritIf: "viewer", OfType: "folder", WithRelation: "parent"},
				),
				tessera.Rule{InheritIf: "banned"},
			),
			"auditor": tessera.AllOf(
				tessera.Rule{InheritIf: "viewer"},
				tessera.Rule{InheritIf: "in_audit"},
			),
		},
	})
	if err != nil {
		log.Fatalf("Expected test model to be valid: %v", err)
	}
	return model
}()

// Load writes the shared fixture graph and returns the snapshot of the last
// write. Writes are idempotent, so loading into a non-empty store is safe.
func Load(ctx context.Context, storage tessera.Storage) (tessera.Snapshot, error) {
	return storage.Write(ctx,
		// alice is in group:eng, and group:staff inherits eng's members
		tessera.NewTuple("group", "eng", "member", "user", "alice"),
		tessera.NewTuple("group", "staff", "parent", "group", "eng"),

		// folder:sub sits under folder:root, viewable by all staff members
		tessera.NewUsersetTuple("folder", "root", "viewer", "group", "staff", "member"),
		tessera.NewTuple("folder", "sub", "parent", "folder", "root"),

		// doc:readme lives in folder:sub
		tessera.NewTuple("doc", "readme", "parent", "folder", "sub"),
		tessera.NewTuple("doc", "readme", "owner", "user", "olivia"),
		tessera.NewTuple("doc", "readme", "viewer", "user", "victor"),
		tessera.NewTuple("doc", "readme", "in_audit", "user", "alice"),

		// mallory owns doc:secret but is banned from viewing it
		tessera.NewTuple("doc", "secret", "owner", "user", "mallory"),
		tessera.NewTuple("doc", "secret", "banned", "user", "mallory"),

		// a parent cycle in tuple data, checks across it must terminate
		tessera.NewTuple("group", "loop-a", "parent", "group", "loop-b"),
		tessera.NewTuple("group", "loop-b", "parent", "group", "loop-a"),
	)
}

func RunTestAll(t *testing.T, storages map[string]tessera.Storage) {
	for name, storage := range storages {
		t.Run(name, func(t *testing.T) {
			RunTest(t, storage)
		})
	}
}

func RunTest(t *testing.T, storage tessera.Storage) {
	ctx := context.Background()

	loaded, err := Load(ctx, storage)
	require.NoError(t, err)

	checker, err := tessera.NewChecker(Model, storage)
	require.NoError(t, err)
	defer checker.Close()

	check := func(t *testing.T, tuple tessera.Tuple, want bool) {
		t.Helper()
		decision, err := checker.CheckAt(ctx, tuple, loaded)
		require.NoError(t, err)
		require.Equal(t, want, decision.Allowed, "check %s", tuple)
	}

	t.Run("direct", func(t *testing.T) {
		check(t, tessera.NewTuple("doc", "readme", "viewer", "user", "victor"), true)
		check(t, tessera.NewTuple("doc", "readme", "viewer", "user", "nobody"), false)
	})

	t.Run("computed", func(t *testing.T) {
		// owner implies editor implies viewer
		check(t, tessera.NewTuple("doc", "readme", "editor", "user", "olivia"), true)
		check(t, tessera.NewTuple("doc", "readme", "viewer", "user", "olivia"), true)
		check(t, tessera.NewTuple("doc", "readme", "editor", "user", "victor"), false)
	})

	t.Run("inherited", func(t *testing.T) {
		// alice reaches doc:readme through group nesting, a userset grant
		// and the folder hierarchy
		check(t, tessera.NewTuple("group", "staff", "member", "user", "alice"), true)
		check(t, tessera.NewTuple("folder", "root", "viewer", "user", "alice"), true)
		check(t, tessera.NewTuple("folder", "sub", "viewer", "user", "alice"), true)
		check(t, tessera.NewTuple("doc", "readme", "viewer", "user", "alice"), true)
		check(t, tessera.NewTuple("doc", "readme", "viewer", "user", "bob"), false)
	})

	t.Run("exclusion", func(t *testing.T) {
		check(t, tessera.NewTuple("doc", "secret", "editor", "user", "mallory"), true)
		check(t, tessera.NewTuple("doc", "secret", "viewer", "user", "mallory"), false)
	})

	t.Run("intersection", func(t *testing.T) {
		check(t, tessera.NewTuple("doc", "readme", "auditor", "user", "alice"), true)
		check(t, tessera.NewTuple("doc", "readme", "auditor", "user", "victor"), false)
	})

	t.Run("cyclic_data", func(t *testing.T) {
		check(t, tessera.NewTuple("group", "loop-a", "member", "user", "nobody"), false)
	})

	t.Run("unknown_relation", func(t *testing.T) {
		_, err := checker.Check(ctx, tessera.NewTuple("doc", "readme", "bogus", "user", "alice"))
		require.ErrorIs(t, err, tessera.ErrUnknownRelation)
	})

	t.Run("read_your_writes", func(t *testing.T) {
		written, err := storage.Write(ctx, tessera.NewTuple("doc", "scratch", "viewer", "user", "walter"))
		require.NoError(t, err)

		decision, err := checker.CheckAt(ctx, tessera.NewTuple("doc", "scratch", "viewer", "user", "walter"), written)
		require.NoError(t, err)
		require.True(t, decision.Allowed)

		// the pre-write snapshot must not see it
		decision, err = checker.CheckAt(ctx, tessera.NewTuple("doc", "scratch", "viewer", "user", "walter"), loaded)
		require.NoError(t, err)
		require.False(t, decision.Allowed)
	})

	t.Run("delete_visibility", func(t *testing.T) {
		target := tessera.NewTuple("doc", "scratch", "viewer", "user", "wendy")
		written, err := storage.Write(ctx, target)
		require.NoError(t, err)

		deleted, err := storage.Delete(ctx, target)
		require.NoError(t, err)

		// the write-time snapshot still sees the tuple, the delete-time one
		// does not
		decision, err := checker.CheckAt(ctx, target, written)
		require.NoError(t, err)
		require.True(t, decision.Allowed)

		decision, err = checker.CheckAt(ctx, target, deleted)
		require.NoError(t, err)
		require.False(t, decision.Allowed)
	})

	t.Run("idempotent_writes", func(t *testing.T) {
		target := tessera.NewTuple("doc", "scratch", "viewer", "user", "willa")

		_, err := storage.Write(ctx, target)
		require.NoError(t, err)
		_, err = storage.Write(ctx, target)
		require.NoError(t, err)

		// the duplicate write must not leave a second live version behind
		deleted, err := storage.Delete(ctx, target)
		require.NoError(t, err)
		decision, err := checker.CheckAt(ctx, target, deleted)
		require.NoError(t, err)
		require.False(t, decision.Allowed)
	})

	t.Run("resurrection", func(t *testing.T) {
		target := tessera.NewTuple("doc", "scratch", "viewer", "user", "warren")

		written, err := storage.Write(ctx, target)
		require.NoError(t, err)
		deleted, err := storage.Delete(ctx, target)
		require.NoError(t, err)
		rewritten, err := storage.Write(ctx, target)
		require.NoError(t, err)

		for _, tc := range []struct {
			at   tessera.Snapshot
			want bool
		}{
			{written, true},
			{deleted, false},
			{rewritten, true},
		} {
			decision, err := checker.CheckAt(ctx, target, tc.at)
			require.NoError(t, err)
			require.Equal(t, tc.want, decision.Allowed, "at snapshot %s", tc.at)
		}
	})

	t.Run("check_many", func(t *testing.T) {
		decisions, err := checker.CheckMany(ctx, []tessera.Tuple{
			tessera.NewTuple("doc", "readme", "viewer", "user", "alice"),
			tessera.NewTuple("doc", "readme", "viewer", "user", "bob"),
			tessera.NewTuple("doc", "secret", "viewer", "user", "mallory"),
		})
		require.NoError(t, err)
		require.Len(t, decisions, 3)
		require.True(t, decisions[0].Allowed)
		require.False(t, decisions[1].Allowed)
		require.False(t, decisions[2].Allowed)
		for _, d := range decisions[1:] {
			require.Zero(t, d.Snapshot.Compare(decisions[0].Snapshot), "batch must share one snapshot")
		}
	})
}

func RunBenchmarkAll(b *testing.B, storages map[string]tessera.Storage) {
	for name, storage := range storages {
		b.Run(name, func(b *testing.B) {
			RunBenchmark(b, storage)
		})
	}
}

func RunBenchmark(b *testing.B, storage tessera.Storage) {
	ctx := context.Background()

	loaded, err := Load(ctx, storage)
	require.NoError(b, err)

	checker, err := tessera.NewChecker(Model, storage, tessera.WithoutCache())
	require.NoError(b, err)
	defer checker.Close()

	b.Run("direct", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, err := checker.CheckAt(ctx, tessera.NewTuple("doc", "readme", "viewer", "user", "victor"), loaded)
			require.NoError(b, err)
		}
	})
	b.Run("inherited_nested_4", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, err := checker.CheckAt(ctx, tessera.NewTuple("doc", "readme", "viewer", "user", "alice"), loaded)
			require.NoError(b, err)
		}
	})
}
