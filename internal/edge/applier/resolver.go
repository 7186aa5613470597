// Package applier implements the edge configuration applier (L6): a
// dependency-ordered reconciler that drives a PeerConfiguration's
// parameters to their target host state, per spec.md §4.6. The
// open/completed/failed/skipped set algorithm is grounded on the teacher's
// Agent sync loop (api_mesh/internal/agent/agent.go), generalised from a
// flat WireGuard-config diff into a dependency-ordered parameter graph.
package applier

import (
	"context"
	"fmt"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
)

// node is a type-erased Parameter: its identity, dependency set, and a
// closure that performs its reconciliation action against host state.
type node struct {
	id      model.ParameterId
	deps    map[model.ParameterId]struct{}
	kind    string
	apply   func(ctx context.Context) error
}

// Result reports the outcome of one resolve pass. Failed holds parameters
// whose own reconciliation action returned an error, plus every parameter
// still open when the graph stalls with no failure to blame (a missing or
// cyclic dependency), recorded as an unresolvable dependency graph.
// Skipped holds parameters that never ran because a dependency (direct or
// transitive) failed or was itself skipped.
type Result struct {
	Completed []model.ParameterId
	Failed    map[model.ParameterId]error
	Skipped   map[model.ParameterId]error
}

func (r Result) Ok() bool { return len(r.Failed) == 0 && len(r.Skipped) == 0 }

// Resolve executes nodes in dependency order: a node runs only once every
// id in its Dependencies is in the completed set. A node whose reconcile
// action errors is moved to failed. Every node that transitively depends
// on a failed node, directly or through another skipped node, is moved to
// skipped instead, with the originating failure wrapped so its cause is
// still traceable.
func resolve(ctx context.Context, nodes []node) Result {
	byId := make(map[model.ParameterId]*node, len(nodes))
	open := make(map[model.ParameterId]struct{}, len(nodes))
	for i := range nodes {
		byId[nodes[i].id] = &nodes[i]
		open[nodes[i].id] = struct{}{}
	}

	completed := make(map[model.ParameterId]struct{}, len(nodes))
	failed := make(map[model.ParameterId]error)
	skipped := make(map[model.ParameterId]error)

	for len(open) > 0 {
		progressed := false
		for id := range open {
			n := byId[id]
			if blockedBy, ok := firstUnresolvedDependency(n, failed, skipped); ok {
				cause := failed[blockedBy]
				if cause == nil {
					cause = skipped[blockedBy]
				}
				skipped[id] = fmt.Errorf("skipped: dependency %s did not complete: %w", blockedBy, cause)
				delete(open, id)
				progressed = true
				continue
			}
			if !dependenciesSatisfied(n, completed) {
				continue
			}
			if err := n.apply(ctx); err != nil {
				failed[id] = err
			} else {
				completed[id] = struct{}{}
			}
			delete(open, id)
			progressed = true
		}
		if !progressed {
			// No node in `open` has its dependencies in `completed` and none
			// transitively failed either: an unsatisfiable dependency (a
			// missing or cyclic reference). Fail the remainder outright.
			for id := range open {
				failed[id] = fmt.Errorf("unresolvable dependency graph")
			}
			break
		}
	}

	out := Result{Failed: failed, Skipped: skipped}
	for id := range completed {
		out.Completed = append(out.Completed, id)
	}
	return out
}

func dependenciesSatisfied(n *node, completed map[model.ParameterId]struct{}) bool {
	for dep := range n.deps {
		if _, ok := completed[dep]; !ok {
			return false
		}
	}
	return true
}

func firstUnresolvedDependency(n *node, failed, skipped map[model.ParameterId]error) (model.ParameterId, bool) {
	for dep := range n.deps {
		if _, ok := failed[dep]; ok {
			return dep, true
		}
		if _, ok := skipped[dep]; ok {
			return dep, true
		}
	}
	return model.ParameterId{}, false
}
