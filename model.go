package tessera

import (
	"github.com/samber/lo"
	"golang.org/x/exp/slices"
)

const (
	AnyOfPlaceholder  = "anyOf"
	AllOfPlaceholder  = "allOf"
	ButNotPlaceholder = "butNot"
)

// ObjectMap declares the object types of a namespace and their relations.
type ObjectMap map[string]RelationMap

type RelationMap map[string]Rule

// Rule is one term of a relation's rewrite expression:
//
//   - the zero Rule matches stored tuples verbatim (direct),
//   - Rule{InheritIf: "owner"} rewrites to another relation on the same
//     object (computed userset),
//   - Rule{InheritIf: "viewer", OfType: "folder", WithRelation: "parent"}
//     follows WithRelation tuples to a related OfType object and evaluates
//     InheritIf there (tuple-to-userset),
//   - AnyOf, AllOf and ButNot combine terms into unions, intersections and
//     exclusions.
type Rule struct {
	InheritIf    string `json:"inheritIf"`
	OfType       string `json:"ofType,omitempty"`
	WithRelation string `json:"withRelation,omitempty"`
	Rules        []Rule `json:"rules,omitempty"`
}

// AnyOf is satisfied as soon as one of the rules is.
func AnyOf(rules ...Rule) Rule {
	return Rule{
		InheritIf: AnyOfPlaceholder,
		Rules:     rules,
	}
}

// AllOf is satisfied only if every rule is.
func AllOf(rules ...Rule) Rule {
	return Rule{
		InheritIf: AllOfPlaceholder,
		Rules:     rules,
	}
}

// ButNot is satisfied if base is and subtract is not.
func ButNot(base, subtract Rule) Rule {
	return Rule{
		InheritIf: ButNotPlaceholder,
		Rules:     []Rule{base, subtract},
	}
}

type relationKey struct {
	object, relation string
}

// Model is an immutable, validated authorization model with every relation
// compiled to its evaluation plan. A Model is keyed by namespace and version;
// schema changes create a new version rather than mutating a loaded one.
type Model struct {
	Namespace string
	Version   string

	objects ObjectMap
	plans   map[relationKey]*Plan
}

// NewModel validates the object map and compiles all relation rewrites.
// Returns a *SchemaError naming the offending relation if the definitions
// are malformed or cyclic.
func NewModel(objects ObjectMap) (*Model, error) {
	return NewVersionedModel("default", "", objects)
}

// NewVersionedModel is NewModel with an explicit namespace and version
// identifier for use with a Registry.
func NewVersionedModel(namespace, version string, objects ObjectMap) (*Model, error) {
	if err := validateObjects(objects); err != nil {
		return nil, err
	}
	return &Model{
		Namespace: namespace,
		Version:   version,
		objects:   objects,
		plans:     compilePlans(objects),
	}, nil
}

// IsValid reports whether the tuple only references types and relations
// defined by the model.
func (m *Model) IsValid(t Tuple) bool {
	relations, ok := m.objects[t.ObjectType]
	if !ok {
		return false
	}
	if _, ok := relations[t.ObjectRelation]; !ok {
		return false
	}
	subjectRelations, ok := m.objects[t.SubjectType]
	if !ok {
		return false
	}
	if t.SubjectRelation != "" {
		if _, ok := subjectRelations[t.SubjectRelation]; !ok {
			return false
		}
	}
	return true
}

// PlanFor returns the compiled plan for the given object type and relation.
func (m *Model) PlanFor(object, relation string) (*Plan, bool) {
	p, ok := m.plans[relationKey{object, relation}]
	return p, ok
}

// Types returns the declared object types, sorted.
func (m *Model) Types() []string {
	types := lo.Keys(m.objects)
	slices.Sort(types)
	return types
}

// Relations returns the relations declared on the object type, sorted.
func (m *Model) Relations(object string) []string {
	relations := lo.Keys(m.objects[object])
	slices.Sort(relations)
	return relations
}

func validateObjects(objects ObjectMap) error {
	for object, relations := range objects {
		for relation, rule := range relations {
			if err := validateRule(objects, object, relation, rule); err != nil {
				return err
			}
			if soleSelfRewrite(rule, relation) {
				return schemaErrorf(object, relation, "relation rewrites to itself with no other branch")
			}
		}
	}
	return detectComputedCycles(objects)
}

func validateRule(objects ObjectMap, object, relation string, rule Rule) error {
	switch rule.InheritIf {
	case AnyOfPlaceholder, AllOfPlaceholder:
		if len(rule.Rules) == 0 {
			return schemaErrorf(object, relation, "empty %s", rule.InheritIf)
		}
		for _, sub := range rule.Rules {
			if err := validateRule(objects, object, relation, sub); err != nil {
				return err
			}
		}
		return nil
	case ButNotPlaceholder:
		if len(rule.Rules) != 2 {
			return schemaErrorf(object, relation, "butNot requires exactly a base and a subtract rule, got %d", len(rule.Rules))
		}
		for _, sub := range rule.Rules {
			if err := validateRule(objects, object, relation, sub); err != nil {
				return err
			}
		}
		return nil
	case "":
		if rule.OfType != "" || rule.WithRelation != "" || len(rule.Rules) != 0 {
			return schemaErrorf(object, relation, "direct rule must not set ofType, withRelation or nested rules")
		}
		return nil
	}

	if len(rule.Rules) != 0 {
		return schemaErrorf(object, relation, "nested rules are only valid under anyOf, allOf or butNot")
	}

	if rule.OfType == "" && rule.WithRelation == "" {
		// computed userset on the same object type
		if _, ok := objects[object][rule.InheritIf]; !ok {
			return schemaErrorf(object, relation, "inherited relation %q is not defined on type %q", rule.InheritIf, object)
		}
		return nil
	}

	// tuple-to-userset: follow WithRelation tuples to an OfType object
	if rule.OfType == "" || rule.WithRelation == "" {
		return schemaErrorf(object, relation, "ofType and withRelation must be set together")
	}
	if _, ok := objects[object][rule.WithRelation]; !ok {
		return schemaErrorf(object, relation, "tupleset relation %q is not defined on type %q", rule.WithRelation, object)
	}
	related, ok := objects[rule.OfType]
	if !ok {
		return schemaErrorf(object, relation, "related type %q is not defined", rule.OfType)
	}
	if _, ok := related[rule.InheritIf]; !ok {
		return schemaErrorf(object, relation, "inherited relation %q is not defined on type %q", rule.InheritIf, rule.OfType)
	}
	return nil
}

// soleSelfRewrite reports whether the rule reduces to nothing but the
// relation itself: a direct self-reference, or a combinator whose only
// reachable term is one. Such relations are trivially unsatisfiable or
// infinite.
func soleSelfRewrite(rule Rule, relation string) bool {
	switch rule.InheritIf {
	case AnyOfPlaceholder, AllOfPlaceholder:
		if len(rule.Rules) != 1 {
			return false
		}
		return soleSelfRewrite(rule.Rules[0], relation)
	case ButNotPlaceholder:
		if len(rule.Rules) != 2 {
			return false
		}
		// a base of "the relation itself" never terminates, whatever the subtract
		return soleSelfRewrite(rule.Rules[0], relation)
	case "":
		return false
	}
	return rule.OfType == "" && rule.InheritIf == relation
}

// detectComputedCycles rejects schemas whose computed-userset references form
// a loop within a type (a implies b implies a). Tuple-to-userset recursion
// across objects is legal and handled at evaluation time.
func detectComputedCycles(objects ObjectMap) error {
	const (
		white = iota // unvisited
		gray         // in the active path
		black        // done
	)
	for object, relations := range objects {
		edges := make(map[string][]string, len(relations))
		for relation, rule := range relations {
			edges[relation] = computedReferences(rule)
		}
		colors := make(map[string]int, len(relations))
		var visit func(relation string) string
		visit = func(relation string) string {
			colors[relation] = gray
			for _, next := range edges[relation] {
				switch colors[next] {
				case gray:
					return next
				case white:
					if offender := visit(next); offender != "" {
						return offender
					}
				}
			}
			colors[relation] = black
			return ""
		}
		for relation := range relations {
			if colors[relation] != white {
				continue
			}
			if offender := visit(relation); offender != "" {
				return schemaErrorf(object, offender, "computed userset cycle")
			}
		}
	}
	return nil
}

func computedReferences(rule Rule) []string {
	switch rule.InheritIf {
	case AnyOfPlaceholder, AllOfPlaceholder, ButNotPlaceholder:
		return lo.Uniq(lo.FlatMap(rule.Rules, func(sub Rule, _ int) []string {
			return computedReferences(sub)
		}))
	case "":
		return nil
	}
	if rule.OfType != "" {
		return nil // crosses into another object, not a schema cycle
	}
	return []string{rule.InheritIf}
}
