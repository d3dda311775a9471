package pipeline

import (
	"fmt"
	"sort"
)

// Graph is the directed acyclic dependency graph of stages. Edges point
// from a stage to the stages it depends on; scheduling walks the reverse
// direction.
type Graph struct {
	deps       map[string][]string
	dependents map[string][]string
	names      []string
}

// NewGraph creates an empty dependency graph
func NewGraph() *Graph {
	return &Graph{
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}
}

// AddStage registers a stage and its dependencies. Dependencies may be
// added before the stages they name exist; Validate catches dangling
// references.
func (g *Graph) AddStage(name string, dependsOn ...string) error {
	if name == "" {
		return fmt.Errorf("stage name must not be empty")
	}
	if _, exists := g.deps[name]; exists {
		return fmt.Errorf("stage %s already registered", name)
	}
	g.deps[name] = append([]string{}, dependsOn...)
	g.names = append(g.names, name)
	for _, dep := range dependsOn {
		g.dependents[dep] = append(g.dependents[dep], name)
	}
	return nil
}

// Stages returns stage names in registration order
func (g *Graph) Stages() []string {
	return append([]string{}, g.names...)
}

// Dependencies returns the stages the given stage depends on
func (g *Graph) Dependencies(name string) []string {
	return append([]string{}, g.deps[name]...)
}

// Dependents returns the stages that depend on the given stage
func (g *Graph) Dependents(name string) []string {
	return append([]string{}, g.dependents[name]...)
}

// Len returns the number of registered stages
func (g *Graph) Len() int {
	return len(g.deps)
}

// Validate checks that every dependency names a registered stage and that
// the graph contains no cycles.
func (g *Graph) Validate() error {
	if len(g.deps) == 0 {
		return fmt.Errorf("dependency graph has no stages")
	}

	for name, deps := range g.deps {
		for _, dep := range deps {
			if _, exists := g.deps[dep]; !exists {
				return fmt.Errorf("stage %s depends on unknown stage %s", name, dep)
			}
			if dep == name {
				return fmt.Errorf("stage %s depends on itself", name)
			}
		}
	}

	// DFS-based cycle detection
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	for _, name := range g.names {
		if !visited[name] {
			if g.hasCycle(name, visited, onStack) {
				return fmt.Errorf("dependency graph contains a cycle involving %s", name)
			}
		}
	}

	return nil
}

func (g *Graph) hasCycle(name string, visited, onStack map[string]bool) bool {
	visited[name] = true
	onStack[name] = true

	for _, dep := range g.deps[name] {
		if !visited[dep] {
			if g.hasCycle(dep, visited, onStack) {
				return true
			}
		} else if onStack[dep] {
			return true
		}
	}

	onStack[name] = false
	return false
}

// TopologicalOrder returns stage names ordered so that every stage appears
// after all of its dependencies. Registration order breaks ties, so the
// plan is deterministic.
func (g *Graph) TopologicalOrder() ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	indegree := make(map[string]int, len(g.deps))
	for name, deps := range g.deps {
		indegree[name] = len(deps)
	}

	// Kahn's algorithm with a sorted frontier for determinism
	position := make(map[string]int, len(g.names))
	for i, name := range g.names {
		position[name] = i
	}

	frontier := make([]string, 0, len(g.deps))
	for _, name := range g.names {
		if indegree[name] == 0 {
			frontier = append(frontier, name)
		}
	}

	order := make([]string, 0, len(g.deps))
	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool {
			return position[frontier[i]] < position[frontier[j]]
		})
		next := frontier[0]
		frontier = frontier[1:]
		order = append(order, next)

		for _, dependent := range g.dependents[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				frontier = append(frontier, dependent)
			}
		}
	}

	if len(order) != len(g.deps) {
		return nil, fmt.Errorf("dependency graph contains a cycle")
	}

	return order, nil
}

// Ready returns, in plan order, the stages whose dependencies have all
// reached a terminal status and that have not been scheduled yet.
func (g *Graph) Ready(plan []string, terminal, scheduled map[string]bool) []string {
	var ready []string
	for _, name := range plan {
		if scheduled[name] {
			continue
		}
		ok := true
		for _, dep := range g.deps[name] {
			if !terminal[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, name)
		}
	}
	return ready
}
