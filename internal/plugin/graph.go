package plugin

import (
	"fmt"
	"sort"
)

// dependencyGraph tracks plugin relationships for load ordering and cycle
// detection. Edges point from a dependent to each of its dependencies.
type dependencyGraph struct {
	nodes    map[string]struct{}
	incoming map[string]map[string]struct{}
	outgoing map[string]map[string]struct{}
}

func newDependencyGraph() *dependencyGraph {
	return &dependencyGraph{
		nodes:    make(map[string]struct{}),
		incoming: make(map[string]map[string]struct{}),
		outgoing: make(map[string]map[string]struct{}),
	}
}

// addNode ensures the plugin exists within the graph.
func (g *dependencyGraph) addNode(name string) {
	if _, exists := g.nodes[name]; exists {
		return
	}
	g.nodes[name] = struct{}{}
	g.incoming[name] = make(map[string]struct{})
	g.outgoing[name] = make(map[string]struct{})
}

// addEdge records that dependent requires dependency.
func (g *dependencyGraph) addEdge(dependent, dependency string) {
	g.addNode(dependent)
	g.addNode(dependency)

	g.outgoing[dependent][dependency] = struct{}{}
	g.incoming[dependency][dependent] = struct{}{}
}

// detectCycle returns one cycle path if present, or nil when acyclic. Nodes
// are visited in sorted order so the reported cycle is stable across runs.
func (g *dependencyGraph) detectCycle() []string {
	visited := make(map[string]bool)
	stack := make(map[string]bool)
	path := []string{}

	var cycle []string
	var dfs func(node string) bool

	dfs = func(node string) bool {
		visited[node] = true
		stack[node] = true
		path = append(path, node)

		for _, dependency := range g.dependencies(node) {
			if !visited[dependency] {
				if dfs(dependency) {
					return true
				}
			} else if stack[dependency] {
				// Extract the cycle from the dependency's position in path.
				idx := len(path) - 1
				for idx >= 0 && path[idx] != dependency {
					idx--
				}
				if idx >= 0 {
					cycle = append([]string{}, path[idx:]...)
					return true
				}
			}
		}

		stack[node] = false
		path = path[:len(path)-1]
		return false
	}

	for _, node := range g.sortedNodes() {
		if !visited[node] {
			if dfs(node) {
				break
			}
		}
	}

	return cycle
}

// topologicalSort returns nodes in dependency order (dependencies first).
// Ties are broken by ascending name so the order is deterministic.
func (g *dependencyGraph) topologicalSort() ([]string, error) {
	remaining := make(map[string]int, len(g.nodes))
	for node := range g.nodes {
		remaining[node] = len(g.outgoing[node])
	}

	queue := make([]string, 0, len(g.nodes))
	for node, deps := range remaining {
		if deps == 0 {
			queue = append(queue, node)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, dependent := range g.dependents(current) {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				queue = append(queue, dependent)
				sort.Strings(queue)
			}
		}
	}

	if len(result) != len(g.nodes) {
		if cycle := g.detectCycle(); len(cycle) > 0 {
			return nil, ErrCircularDependency{Cycle: cycle}
		}
		return nil, fmt.Errorf("dependency graph contains unresolved nodes")
	}

	return result, nil
}

// dependencies returns the sorted dependencies of a node.
func (g *dependencyGraph) dependencies(node string) []string {
	depsMap, ok := g.outgoing[node]
	if !ok {
		return nil
	}
	deps := make([]string, 0, len(depsMap))
	for dep := range depsMap {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	return deps
}

// dependents returns the sorted nodes that rely on the supplied node.
func (g *dependencyGraph) dependents(node string) []string {
	depMap, ok := g.incoming[node]
	if !ok {
		return nil
	}
	dependents := make([]string, 0, len(depMap))
	for dep := range depMap {
		dependents = append(dependents, dep)
	}
	sort.Strings(dependents)
	return dependents
}

func (g *dependencyGraph) sortedNodes() []string {
	nodes := make([]string, 0, len(g.nodes))
	for node := range g.nodes {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}
