// Package tessera implements relationship-based access control: permissions
// are derived from a graph of stored relationships between objects and
// subjects, interpreted through per-relation rewrite rules.
//
// # Model
//
// A model declares object types, their relations and how each relation is
// derived:
//
//	model, err := tessera.NewModel(tessera.ObjectMap{
//		"user": {},
//		"group": {
//			"parent": tessera.Rule{},
//			"member": tessera.AnyOf(
//				tessera.Rule{},
//				tessera.Rule{InheritIf: "member", OfType: "group", WithRelation: "parent"},
//			),
//		},
//		"folder": {
//			"parent": tessera.Rule{},
//			"viewer": tessera.AnyOf(
//				tessera.Rule{},
//				tessera.Rule{InheritIf: "viewer", OfType: "folder", WithRelation: "parent"},
//			),
//		},
//		"doc": {
//			"parent":  tessera.Rule{},
//			"owner":   tessera.Rule{},
//			"banned":  tessera.Rule{},
//			"editor":  tessera.AnyOf(tessera.Rule{}, tessera.Rule{InheritIf: "owner"}),
//			"viewer": tessera.ButNot(
//				tessera.AnyOf(
//					tessera.Rule{},
//					tessera.Rule{InheritIf: "editor"},
//					tessera.Rule{InheritIf: "viewer", OfType: "folder", WithRelation: "parent"},
//				),
//				tessera.Rule{InheritIf: "banned"},
//			),
//		},
//	})
//
// An empty Rule{} accepts directly stored tuples. Rule{InheritIf: ...}
// computes the relation from another relation on the same object, and adding
// OfType and WithRelation computes it on related objects instead. AnyOf,
// AllOf and ButNot combine rules into unions, intersections and exclusions.
// NewModel rejects unknown relation references and cyclic computed-relation
// definitions up front, so a valid model cannot loop through its schema.
//
// # Tuples
//
// Relationships are tuples in the usual notation, object#relation@subject:
//
//	doc:readme#viewer@user:42
//	doc:readme#viewer@group:eng#member
//
// The second form grants the relation to a userset, every subject that holds
// member on group:eng, and is expanded recursively during checks.
//
// # Checking
//
// Storage backends persist tuples; see the storage sub-packages for
// Postgres, SQLite, Pebble and in-memory implementations. A Checker ties a
// model to a backend:
//
//	checker, err := tessera.NewChecker(model, store)
//	...
//	decision, err := checker.Check(ctx, tessera.NewTuple("doc", "readme", "viewer", "user", "42"))
//	if decision.Allowed {
//		...
//	}
//
// Every mutation returns a Snapshot token and every check is evaluated
// against one. Check uses the backend's current snapshot; CheckAt pins an
// explicit token, so passing the token returned by a Write guarantees the
// check observes that write regardless of replication lag. Errors fail
// closed, the returned Decision is never allowed when err is non-nil.
//
// CheckWithContextualTuples overlays unstored tuples for a single call,
// answering "would the subject have access if these relationships existed"
// without writing anything.
package tessera
