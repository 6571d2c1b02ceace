package workflow

import (
	"sort"
	"strings"

	"github.com/BaSui01/flowengine/types"
)

// StepNode is a step with its dependency edges.
type StepNode struct {
	Step         Step
	Index        int
	Dependencies map[string]struct{}
	Dependents   map[string]struct{}
}

// BuildStepGraph builds the dependency graph of steps. Edges to unknown ids
// are ignored here; Definition.Validate rejects them at registration.
func BuildStepGraph(steps []Step) map[string]*StepNode {
	g := make(map[string]*StepNode, len(steps))
	for i, s := range steps {
		g[s.ID] = &StepNode{
			Step:         s,
			Index:        i,
			Dependencies: make(map[string]struct{}),
			Dependents:   make(map[string]struct{}),
		}
	}
	for _, s := range steps {
		node := g[s.ID]
		for _, dep := range s.DependsOn {
			parent, ok := g[dep]
			if !ok {
				continue
			}
			node.Dependencies[dep] = struct{}{}
			parent.Dependents[s.ID] = struct{}{}
		}
	}
	return g
}

// TopologicalSort layers the graph with Kahn's algorithm. Each returned group
// holds steps whose dependencies all sit in earlier groups; steps keep their
// declaration order inside a group. Remaining steps with nonzero in-degree
// mean a cycle.
func TopologicalSort(g map[string]*StepNode) ([][]Step, error) {
	order := declarationOrder(g)
	inDegree := make(map[string]int, len(g))
	for id, n := range g {
		inDegree[id] = len(n.Dependencies)
	}

	var ready []string
	for _, id := range order {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	var groups [][]Step
	processed := 0
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			return g[ready[i]].Index < g[ready[j]].Index
		})

		group := make([]Step, 0, len(ready))
		var next []string
		for _, id := range ready {
			node := g[id]
			group = append(group, node.Step)
			processed++
			for dep := range node.Dependents {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		groups = append(groups, group)
		ready = next
	}

	if processed != len(g) {
		var remaining []string
		for _, id := range order {
			if inDegree[id] > 0 {
				remaining = append(remaining, id)
			}
		}
		return nil, types.Errorf(types.ErrCircularDependency,
			"circular dependency detected in workflow steps: %s", strings.Join(remaining, ", ")).
			WithDetail("steps", remaining)
	}
	return groups, nil
}

func declarationOrder(g map[string]*StepNode) []string {
	order := make([]string, 0, len(g))
	for id := range g {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool { return g[order[i]].Index < g[order[j]].Index })
	return order
}

// Plan computes the execution groups of a definition. A step with
// Parallel=false is split out of its layer into a group of its own, placed
// after the layer's parallel members, so dependencies stay strictly earlier.
func Plan(def *Definition) ([][]Step, error) {
	layers, err := TopologicalSort(BuildStepGraph(def.Steps))
	if err != nil {
		return nil, err
	}

	groups := make([][]Step, 0, len(layers))
	for _, layer := range layers {
		var parallel []Step
		var serial []Step
		for _, s := range layer {
			if s.IsParallel() {
				parallel = append(parallel, s)
			} else {
				serial = append(serial, s)
			}
		}
		if len(parallel) > 0 {
			groups = append(groups, parallel)
		}
		for _, s := range serial {
			groups = append(groups, []Step{s})
		}
	}
	return groups, nil
}

// CanRunInParallel reports whether a and b may share a group: neither
// depends on the other and neither disables parallelism.
func CanRunInParallel(a, b Step) bool {
	if !a.IsParallel() || !b.IsParallel() {
		return false
	}
	for _, d := range a.DependsOn {
		if d == b.ID {
			return false
		}
	}
	for _, d := range b.DependsOn {
		if d == a.ID {
			return false
		}
	}
	return true
}

// GroupIDs flattens groups into step ids, for logs and diagnostics.
func GroupIDs(groups [][]Step) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		ids := make([]string, len(g))
		for j, s := range g {
			ids[j] = s.ID
		}
		out[i] = ids
	}
	return out
}
