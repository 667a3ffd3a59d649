// Package dag is the graph substrate for the Workplan Orchestrator
// (SPEC_FULL §4.12): build a dependency graph of named steps, detect
// cycles, and compute the ready frontier.
//
// Grounded directly on distr1-distri/cmd/distri/batch.go's scheduler:
// gonum's simple.DirectedGraph + topo.Sort for cycle detection, and the
// canBuild/markFailed frontier-propagation pair, generalized from packages
// depending on packages to workplan steps depending on steps via
// depends_on.
package dag

import (
	"sort"
	"strings"

	"github.com/c-star-org/cstar"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

type stepNode struct {
	id   int64
	name string
}

func (n *stepNode) ID() int64 { return n.id }

// Graph is a named-step dependency graph. An edge is added from a step to
// each step it depends on, matching the teacher's "n depends on d" edge
// direction (s.g.From(n) enumerates n's dependencies).
type Graph struct {
	g        *simple.DirectedGraph
	byName   map[string]*stepNode
	byID     map[int64]*stepNode
	declared []string // declaration order, for "submit ready steps in declaration order"
	nextID   int64
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		g:      simple.NewDirectedGraph(),
		byName: map[string]*stepNode{},
		byID:   map[int64]*stepNode{},
	}
}

// AddStep registers a step, failing ValidationError on a duplicate name
// (SPEC_FULL §4.12 validation: "duplicate step name").
func (g *Graph) AddStep(name string) error {
	if _, exists := g.byName[name]; exists {
		return cstar.New(cstar.KindValidation, "duplicate step name %q", name)
	}
	n := &stepNode{id: g.nextID, name: name}
	g.nextID++
	g.byName[name] = n
	g.byID[n.id] = n
	g.declared = append(g.declared, name)
	g.g.AddNode(n)
	return nil
}

// AddDependency records that step depends on dependsOn. Both must already
// be registered via AddStep.
func (g *Graph) AddDependency(step, dependsOn string) error {
	n, ok := g.byName[step]
	if !ok {
		return cstar.New(cstar.KindValidation, "unknown step %q in depends_on", step)
	}
	d, ok := g.byName[dependsOn]
	if !ok {
		return cstar.New(cstar.KindValidation, "step %q depends on unknown step %q", step, dependsOn)
	}
	g.g.SetEdge(g.g.NewEdge(n, d))
	return nil
}

// Validate runs cycle detection over the whole graph, returning a
// ValidationError naming every step caught in a cyclic component.
func (g *Graph) Validate() error {
	if _, err := topo.Sort(g.g); err != nil {
		uo, ok := err.(topo.Unorderable)
		if !ok {
			return cstar.Wrap(cstar.KindValidation, err, "validating workplan dependency graph")
		}
		var cyclic []string
		for _, component := range uo {
			for _, n := range component {
				cyclic = append(cyclic, n.(*stepNode).name)
			}
		}
		sort.Strings(cyclic)
		return cstar.New(cstar.KindValidation, "workplan dependency graph has a cycle involving: %s", strings.Join(cyclic, ", "))
	}
	return nil
}

// Dependencies returns the names of the steps that name directly depends
// on.
func (g *Graph) Dependencies(name string) []string {
	n, ok := g.byName[name]
	if !ok {
		return nil
	}
	var out []string
	for it := g.g.From(n.ID()); it.Next(); {
		out = append(out, it.Node().(*stepNode).name)
	}
	sort.Strings(out)
	return out
}

// Dependents returns the names of the steps that directly depend on name.
func (g *Graph) Dependents(name string) []string {
	n, ok := g.byName[name]
	if !ok {
		return nil
	}
	var out []string
	for it := g.g.To(n.ID()); it.Next(); {
		out = append(out, it.Node().(*stepNode).name)
	}
	sort.Strings(out)
	return out
}

// Steps returns every registered step name in declaration order.
func (g *Graph) Steps() []string {
	return append([]string(nil), g.declared...)
}

// ReadyFrontier returns, in declaration order, the names of steps that are
// not yet completed and whose every dependency is completed — the set the
// Workplan Orchestrator submits next (SPEC_FULL §4.12 step 4: "steps whose
// dependencies are COMPLETED"). completed reports whether a given step name
// has already finished successfully.
func (g *Graph) ReadyFrontier(completed func(name string) bool) []string {
	var ready []string
	for _, name := range g.declared {
		if completed(name) {
			continue
		}
		n := g.byName[name]
		allDepsDone := true
		for it := g.g.From(n.ID()); it.Next(); {
			if !completed(it.Node().(*stepNode).name) {
				allDepsDone = false
				break
			}
		}
		if allDepsDone {
			ready = append(ready, name)
		}
	}
	return ready
}

// PropagateSkip returns every step transitively dependent on failed (direct
// and indirect dependents) that is not already terminal, the set the
// Workplan Orchestrator marks SKIPPED when failed fails (SPEC_FULL §4.12:
// "Failure of any step marks dependents as SKIPPED but does not roll back
// already-terminal steps"). terminal reports whether a step name has
// already reached a terminal status.
func (g *Graph) PropagateSkip(failed string, terminal func(name string) bool) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(name string)
	walk = func(name string) {
		n, ok := g.byName[name]
		if !ok {
			return
		}
		for it := g.g.To(n.ID()); it.Next(); {
			dep := it.Node().(*stepNode).name
			if seen[dep] {
				continue
			}
			seen[dep] = true
			if !terminal(dep) {
				out = append(out, dep)
			}
			walk(dep)
		}
	}
	walk(failed)
	sort.Strings(out)
	return out
}
