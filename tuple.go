package tessera

import (
	"fmt"
	"strings"
)

// Object identifies a concrete entity as a (type, id) pair.
// Objects are value types compared by their fields.
type Object struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (o Object) String() string {
	return o.Type + ":" + o.ID
}

// Userset references all subjects related to an object via a relation,
// e.g. `group:mygroup#member` is every member of 'mygroup'.
type Userset struct {
	Object   Object `json:"object"`
	Relation string `json:"relation"`
}

func (u Userset) String() string {
	return u.Object.String() + "#" + u.Relation
}

// / ⟨tuple⟩ ::= ⟨object⟩‘#’⟨relation⟩‘@’⟨subject⟩
type Tuple struct {
	/// ⟨object⟩ ::= ⟨namespace⟩‘:’⟨object id⟩
	ObjectType string `json:"object_type"`
	ObjectID   string `json:"object_id"`
	/// ⟨relation⟩
	ObjectRelation string `json:"relation"`
	/// ⟨subject⟩ ::= ⟨namespace⟩‘:’⟨subject id⟩ | ⟨userset⟩
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	/// ⟨userset⟩ ::= ⟨object⟩‘#’⟨relation⟩
	SubjectRelation string `json:"subject_relation"`
}

// NewTuple constructs a tuple relating a concrete subject to an object.
func NewTuple(objectType, objectID, relation, subjectType, subjectID string) Tuple {
	return Tuple{
		ObjectType:     objectType,
		ObjectID:       objectID,
		ObjectRelation: relation,
		SubjectType:    subjectType,
		SubjectID:      subjectID,
	}
}

// NewUsersetTuple constructs a tuple whose subject is a userset,
// e.g. "members of group:mygroup are viewers of folder:myfolder".
func NewUsersetTuple(objectType, objectID, relation, subjectType, subjectID, subjectRelation string) Tuple {
	return Tuple{
		ObjectType:      objectType,
		ObjectID:        objectID,
		ObjectRelation:  relation,
		SubjectType:     subjectType,
		SubjectID:       subjectID,
		SubjectRelation: subjectRelation,
	}
}

// TupleString parses the whitepaper-notation `object:id#relation@subject`,
// e.g. `doc:mydoc#viewer@user:myuser` or `doc:mydoc#viewer@group:mygroup#member`.
// Malformed input yields a zero-field tuple; use Model.IsValid to reject it.
func TupleString(s string) Tuple {
	object, rest, ok := strings.Cut(s, "#")
	if !ok {
		return Tuple{}
	}
	relation, subject, ok := strings.Cut(rest, "@")
	if !ok {
		return Tuple{}
	}
	t := Tuple{ObjectRelation: relation}
	t.ObjectType, t.ObjectID, ok = strings.Cut(object, ":")
	if !ok {
		return Tuple{}
	}
	if subjectObject, subjectRelation, isUserset := strings.Cut(subject, "#"); isUserset {
		t.SubjectRelation = subjectRelation
		subject = subjectObject
	}
	t.SubjectType, t.SubjectID, ok = strings.Cut(subject, ":")
	if !ok {
		return Tuple{}
	}
	return t
}

func (t Tuple) String() string {
	if t.SubjectRelation != "" {
		return fmt.Sprintf("%s:%s#%s@%s:%s#%s", t.ObjectType, t.ObjectID, t.ObjectRelation, t.SubjectType, t.SubjectID, t.SubjectRelation)
	}
	return fmt.Sprintf("%s:%s#%s@%s:%s", t.ObjectType, t.ObjectID, t.ObjectRelation, t.SubjectType, t.SubjectID)
}

// Object returns the object side of the tuple.
func (t Tuple) Object() Object {
	return Object{Type: t.ObjectType, ID: t.ObjectID}
}

// Subject returns the subject side as an object, dropping any userset relation.
func (t Tuple) Subject() Object {
	return Object{Type: t.SubjectType, ID: t.SubjectID}
}

// SubjectUserset returns the subject as a userset reference and whether the
// subject actually is one.
func (t Tuple) SubjectUserset() (Userset, bool) {
	if t.SubjectRelation == "" {
		return Userset{}, false
	}
	return Userset{Object: t.Subject(), Relation: t.SubjectRelation}, true
}
