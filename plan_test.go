package tessera_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tessera-authz/tessera"
)

func TestPlanCompilation(t *testing.T) {
	model, err := tessera.NewModel(tessera.ObjectMap{
		"user": tessera.RelationMap{},
		"folder": tessera.RelationMap{
			"parent": tessera.Rule{},
			"owner":  tessera.Rule{},
			"viewer": tessera.AnyOf(
				tessera.Rule{},
				tessera.Rule{InheritIf: "owner"},
				tessera.Rule{InheritIf: "viewer", OfType: "folder", WithRelation: "parent"},
			),
		},
	})
	require.NoError(t, err)

	plan, ok := model.PlanFor("folder", "viewer")
	require.True(t, ok)
	require.Equal(t, tessera.KindUnion, plan.Kind)
	require.Len(t, plan.Children, 3)

	direct := plan.Children[0]
	require.Equal(t, tessera.KindDirect, direct.Kind)
	require.Equal(t, "folder", direct.Object)
	require.Equal(t, "viewer", direct.Relation)

	computed := plan.Children[1]
	require.Equal(t, tessera.KindComputedUserset, computed.Kind)
	require.Equal(t, "owner", computed.ComputedRelation)

	ttu := plan.Children[2]
	require.Equal(t, tessera.KindTupleToUserset, ttu.Kind)
	require.Equal(t, "parent", ttu.TuplesetRelation)
	require.Equal(t, "folder", ttu.TuplesetType)
	require.Equal(t, "viewer", ttu.ComputedRelation)
}

func TestPlanKindString(t *testing.T) {
	require.Equal(t, "direct", tessera.KindDirect.String())
	require.Equal(t, "computedUserset", tessera.KindComputedUserset.String())
	require.Equal(t, "tupleToUserset", tessera.KindTupleToUserset.String())
	require.Equal(t, "union", tessera.KindUnion.String())
	require.Equal(t, "intersection", tessera.KindIntersection.String())
	require.Equal(t, "exclusion", tessera.KindExclusion.String())
}
