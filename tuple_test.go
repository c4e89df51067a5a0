package tessera

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTupleString(t *testing.T) {
	input1 := "doc:mydoc#viewer@user:myuser"
	t1 := TupleString(input1)
	require.Equal(t, Tuple{
		ObjectType:     "doc",
		ObjectID:       "mydoc",
		ObjectRelation: "viewer",
		SubjectType:    "user",
		SubjectID:      "myuser",
	}, t1)
	require.Equal(t, input1, t1.String())

	input2 := "doc:mydoc#editor@group:mygroup#member"
	t2 := TupleString(input2)
	require.Equal(t, Tuple{
		ObjectType:      "doc",
		ObjectID:        "mydoc",
		ObjectRelation:  "editor",
		SubjectType:     "group",
		SubjectID:       "mygroup",
		SubjectRelation: "member",
	}, t2)
	require.Equal(t, input2, t2.String())

	require.Equal(t, Tuple{}, TupleString("not a tuple"))
	require.Equal(t, Tuple{}, TupleString("doc:mydoc#viewer"))
	require.Equal(t, Tuple{}, TupleString("doc#viewer@user:myuser"))
}

func TestTupleConstructors(t *testing.T) {
	t1 := NewTuple("doc", "mydoc", "viewer", "user", "myuser")
	require.Equal(t, "doc:mydoc#viewer@user:myuser", t1.String())
	require.Equal(t, Object{Type: "doc", ID: "mydoc"}, t1.Object())
	require.Equal(t, Object{Type: "user", ID: "myuser"}, t1.Subject())
	_, isUserset := t1.SubjectUserset()
	require.False(t, isUserset)

	t2 := NewUsersetTuple("folder", "myfolder", "viewer", "group", "mygroup", "member")
	require.Equal(t, "folder:myfolder#viewer@group:mygroup#member", t2.String())
	userset, isUserset := t2.SubjectUserset()
	require.True(t, isUserset)
	require.Equal(t, "group:mygroup#member", userset.String())
}
