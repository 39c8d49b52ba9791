// Copyright 2024 The EM-√ Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package logical

// Rule is one rewrite pass over a logical plan tree (§4.E). Rules must
// preserve observable semantics: same rows, same order up to the
// guarantees each operator already makes.
type Rule interface {
	Apply(p Plan) (Plan, bool)
}

// Optimize applies the fixed rewrite-rule sequence to a fixed point
// (§4.E): currently just projectionPreservationRule, since predicate
// pushdown into Scan, constant folding, and join reordering remain
// reserved-but-unimplemented per §4.E/§9.
func Optimize(p Plan) Plan {
	rules := []Rule{projectionPreservationRule{}}
	changed := true
	for changed {
		changed = false
		for _, r := range rules {
			if np, ok := r.Apply(p); ok {
				p = np
				changed = true
			}
		}
	}
	return p
}

// projectionPreservationRule is a documentation-bearing identity rule: it
// recognizes the Project-atop-Filter shape and explicitly declines to
// push the Project below the Filter, because the filter predicate may
// reference columns the projection would have discarded (§4.E). A
// correct implementation would compute Filter's referenced-column set
// and push only when it is a subset of Project's columns — this is
// listed as an open question in §9 and intentionally left unimplemented.
type projectionPreservationRule struct{}

func (projectionPreservationRule) Apply(p Plan) (Plan, bool) {
	switch node := p.(type) {
	case *Project:
		if _, isFilter := node.Input.(*Filter); isFilter {
			return p, false
		}
		if child, changed := applyToChild(node.Input); changed {
			return &Project{Input: child, Columns: node.Columns}, true
		}
		return p, false
	default:
		return recurse(p)
	}
}

// recurse walks p's children applying the same rule, rebuilding p only
// if a child actually changed (so Optimize's fixed-point loop terminates
// once nothing more rewrites).
func recurse(p Plan) (Plan, bool) {
	switch node := p.(type) {
	case *Scan:
		return p, false
	case *Filter:
		if child, changed := applyToChild(node.Input); changed {
			return &Filter{Input: child, Expr: node.Expr, ExprSrc: node.ExprSrc}, true
		}
		return p, false
	case *Project:
		if child, changed := applyToChild(node.Input); changed {
			return &Project{Input: child, Columns: node.Columns}, true
		}
		return p, false
	case *Map:
		if child, changed := applyToChild(node.Input); changed {
			return &Map{Input: child}, true
		}
		return p, false
	case *Aggregate:
		if child, changed := applyToChild(node.Input); changed {
			return &Aggregate{Input: child, GroupBy: node.GroupBy, Aggs: node.Aggs}, true
		}
		return p, false
	case *Join:
		left, lc := applyToChild(node.Left)
		right, rc := applyToChild(node.Right)
		if lc || rc {
			return &Join{Left: left, Right: right, On: node.On, Type: node.Type}, true
		}
		return p, false
	case *Sink:
		if child, changed := applyToChild(node.Input); changed {
			return &Sink{Input: child, Destination: node.Destination, Format: node.Format}, true
		}
		return p, false
	default:
		return p, false
	}
}

func applyToChild(p Plan) (Plan, bool) {
	return projectionPreservationRule{}.Apply(p)
}
