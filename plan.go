package tessera

import "github.com/samber/lo"

// PlanKind enumerates the closed set of plan node variants. The evaluator
// dispatches over it exhaustively; there is no way to extend the combinator
// set from outside the package.
type PlanKind int

const (
	KindDirect PlanKind = iota
	KindComputedUserset
	KindTupleToUserset
	KindUnion
	KindIntersection
	KindExclusion
)

func (k PlanKind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindComputedUserset:
		return "computedUserset"
	case KindTupleToUserset:
		return "tupleToUserset"
	case KindUnion:
		return "union"
	case KindIntersection:
		return "intersection"
	case KindExclusion:
		return "exclusion"
	default:
		return "unknown"
	}
}

// Plan is one node of a relation's compiled rewrite. Plans form a graph:
// relation references resolve to the shared, memoized root plan of the
// referenced relation, so mutually recursive relations (folders in folders)
// compile without unrolling.
type Plan struct {
	Kind PlanKind

	// Object and Relation locate the relation this node was compiled from;
	// direct nodes read stored tuples for exactly this pair.
	Object   string
	Relation string

	// ComputedRelation names the rewrite target of computedUserset and
	// tupleToUserset nodes; Computed points at its compiled plan.
	ComputedRelation string
	Computed         *Plan

	// TuplesetRelation and TuplesetType describe the indirection of a
	// tupleToUserset node: follow TuplesetRelation tuples on Object to
	// related objects of TuplesetType and evaluate ComputedRelation there.
	TuplesetRelation string
	TuplesetType     string

	// Children are union/intersection operands; Base and Subtract belong to
	// exclusion nodes.
	Children []*Plan
	Base     *Plan
	Subtract *Plan
}

// compilePlans turns every relation's rule tree into a plan. Compilation is
// pure and happens once per model. Roots are allocated up front so that
// relation references, including recursive ones, resolve to shared subtrees.
func compilePlans(objects ObjectMap) map[relationKey]*Plan {
	plans := make(map[relationKey]*Plan)
	for object, relations := range objects {
		for relation := range relations {
			plans[relationKey{object, relation}] = &Plan{}
		}
	}
	for object, relations := range objects {
		for relation, rule := range relations {
			root := plans[relationKey{object, relation}]
			*root = *compileRule(plans, object, relation, rule)
		}
	}
	return plans
}

func compileRule(plans map[relationKey]*Plan, object, relation string, rule Rule) *Plan {
	node := &Plan{Object: object, Relation: relation}
	switch rule.InheritIf {
	case AnyOfPlaceholder:
		node.Kind = KindUnion
		node.Children = compileChildren(plans, object, relation, rule.Rules)
	case AllOfPlaceholder:
		node.Kind = KindIntersection
		node.Children = compileChildren(plans, object, relation, rule.Rules)
	case ButNotPlaceholder:
		node.Kind = KindExclusion
		node.Base = compileRule(plans, object, relation, rule.Rules[0])
		node.Subtract = compileRule(plans, object, relation, rule.Rules[1])
	case "":
		node.Kind = KindDirect
	default:
		if rule.OfType != "" {
			node.Kind = KindTupleToUserset
			node.TuplesetRelation = rule.WithRelation
			node.TuplesetType = rule.OfType
			node.ComputedRelation = rule.InheritIf
			node.Computed = plans[relationKey{rule.OfType, rule.InheritIf}]
		} else {
			node.Kind = KindComputedUserset
			node.ComputedRelation = rule.InheritIf
			node.Computed = plans[relationKey{object, rule.InheritIf}]
		}
	}
	return node
}

func compileChildren(plans map[relationKey]*Plan, object, relation string, rules []Rule) []*Plan {
	return lo.Map(rules, func(sub Rule, _ int) *Plan {
		return compileRule(plans, object, relation, sub)
	})
}
