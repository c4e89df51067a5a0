package tessera_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tessera-authz/tessera"
)

func TestModel(t *testing.T) {
	model, err := tessera.NewModel(tessera.ObjectMap{
		"user": tessera.RelationMap{},
		"group": tessera.RelationMap{
			"member": tessera.Rule{},
		},
		"folder": tessera.RelationMap{
			"owner": tessera.Rule{},
			"editor": tessera.AnyOf(
				tessera.Rule{},
				tessera.Rule{InheritIf: "owner"},
			),
			"viewer": tessera.AnyOf(
				tessera.Rule{},
				tessera.Rule{InheritIf: "editor"},
			),
		},
		"doc": tessera.RelationMap{
			"parent": tessera.Rule{},
			"owner":  tessera.Rule{},
			"banned": tessera.Rule{},
			"editor": tessera.AnyOf(
				tessera.Rule{InheritIf: "owner"},
				tessera.Rule{
					InheritIf:    "editor",
					OfType:       "folder",
					WithRelation: "parent",
				},
			),
			"viewer": tessera.ButNot(
				tessera.AnyOf(
					tessera.Rule{InheritIf: "editor"},
					tessera.Rule{
						InheritIf:    "viewer",
						OfType:       "folder",
						WithRelation: "parent",
					},
				),
				tessera.Rule{InheritIf: "banned"},
			),
		},
	})
	require.NoError(t, err)

	require.True(t, model.IsValid(tessera.TupleString("doc:mydoc#viewer@user:myuser")))
	require.True(t, model.IsValid(tessera.TupleString("doc:mydoc#viewer@group:mygroup#member")))
	require.False(t, model.IsValid(tessera.TupleString("wrong:mydoc#viewer@group:mygroup#member")))
	require.False(t, model.IsValid(tessera.TupleString("doc:mydoc#wrong@group:mygroup#member")))
	require.False(t, model.IsValid(tessera.TupleString("doc:mydoc#viewer@wrong:mygroup#member")))
	require.False(t, model.IsValid(tessera.TupleString("doc:mydoc#viewer@group:mygroup#wrong")))

	require.Equal(t, []string{"doc", "folder", "group", "user"}, model.Types())
	require.Equal(t, []string{"banned", "editor", "owner", "parent", "viewer"}, model.Relations("doc"))

	plan, ok := model.PlanFor("doc", "viewer")
	require.True(t, ok)
	require.Equal(t, tessera.KindExclusion, plan.Kind)
	require.Equal(t, tessera.KindUnion, plan.Base.Kind)
	require.Equal(t, tessera.KindComputedUserset, plan.Subtract.Kind)

	_, ok = model.PlanFor("doc", "bogus")
	require.False(t, ok)
}

func TestModelRejectsUnknownReferences(t *testing.T) {
	_, err := tessera.NewModel(tessera.ObjectMap{
		"doc": tessera.RelationMap{
			"viewer": tessera.Rule{InheritIf: "editor"},
		},
	})
	require.Error(t, err)
	require.True(t, tessera.IsSchemaErr(err))

	_, err = tessera.NewModel(tessera.ObjectMap{
		"doc": tessera.RelationMap{
			"viewer": tessera.Rule{InheritIf: "viewer", OfType: "folder", WithRelation: "parent"},
		},
	})
	require.Error(t, err, "related type is not defined")

	_, err = tessera.NewModel(tessera.ObjectMap{
		"folder": tessera.RelationMap{
			"viewer": tessera.Rule{},
		},
		"doc": tessera.RelationMap{
			"viewer": tessera.Rule{InheritIf: "viewer", OfType: "folder", WithRelation: "parent"},
		},
	})
	require.Error(t, err, "tupleset relation is not defined")

	_, err = tessera.NewModel(tessera.ObjectMap{
		"doc": tessera.RelationMap{
			"viewer": tessera.Rule{InheritIf: "viewer", OfType: "folder"},
		},
	})
	require.Error(t, err, "ofType requires withRelation")
}

func TestModelRejectsMalformedRules(t *testing.T) {
	_, err := tessera.NewModel(tessera.ObjectMap{
		"doc": tessera.RelationMap{
			"viewer": tessera.AnyOf(),
		},
	})
	require.Error(t, err, "empty anyOf")

	_, err = tessera.NewModel(tessera.ObjectMap{
		"doc": tessera.RelationMap{
			"viewer": tessera.Rule{OfType: "doc", WithRelation: "parent"},
			"parent": tessera.Rule{},
		},
	})
	require.Error(t, err, "direct rule must be empty")
}

func TestModelRejectsSchemaCycles(t *testing.T) {
	_, err := tessera.NewModel(tessera.ObjectMap{
		"doc": tessera.RelationMap{
			"a": tessera.Rule{InheritIf: "b"},
			"b": tessera.Rule{InheritIf: "c"},
			"c": tessera.Rule{InheritIf: "a"},
		},
	})
	require.Error(t, err)
	require.True(t, tessera.IsSchemaErr(err))

	_, err = tessera.NewModel(tessera.ObjectMap{
		"doc": tessera.RelationMap{
			"viewer": tessera.AnyOf(
				tessera.Rule{InheritIf: "viewer"},
			),
		},
	})
	require.Error(t, err, "sole self-reference")

	// recursion through another object type is legal, only same-type
	// computed cycles are schema errors
	_, err = tessera.NewModel(tessera.ObjectMap{
		"group": tessera.RelationMap{
			"parent": tessera.Rule{},
			"member": tessera.AnyOf(
				tessera.Rule{},
				tessera.Rule{InheritIf: "member", OfType: "group", WithRelation: "parent"},
			),
		},
	})
	require.NoError(t, err)
}
