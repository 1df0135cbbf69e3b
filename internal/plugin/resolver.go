package plugin

import "sort"

// LoadOrder computes the order in which the target plugins and their
// transitive dependencies must be loaded: every dependency strictly before
// its dependents, ties broken by name. A nil target set means all known
// plugins. A dependency naming an unknown plugin is ErrMissingDependency; a
// cycle is ErrCircularDependency.
func LoadOrder(descriptors map[string]*Descriptor, targets []string) ([]string, error) {
	if targets == nil {
		targets = make([]string, 0, len(descriptors))
		for name := range descriptors {
			targets = append(targets, name)
		}
		sort.Strings(targets)
	}

	// Expand targets to their transitive dependency closure.
	closure := make(map[string]struct{})
	queue := append([]string(nil), targets...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if _, seen := closure[name]; seen {
			continue
		}
		desc, ok := descriptors[name]
		if !ok {
			return nil, ErrPluginNotFound{Name: name}
		}
		closure[name] = struct{}{}
		for _, dep := range desc.Dependencies {
			if _, ok := descriptors[dep]; !ok {
				return nil, ErrMissingDependency{Plugin: name, Dependency: dep}
			}
			queue = append(queue, dep)
		}
	}

	graph := newDependencyGraph()
	for name := range closure {
		graph.addNode(name)
		for _, dep := range descriptors[name].Dependencies {
			graph.addEdge(name, dep)
		}
	}

	return graph.topologicalSort()
}

// LoadedDependents returns the currently-Loaded plugins that transitively
// depend on the named plugin, sorted by name.
func LoadedDependents(descriptors map[string]*Descriptor, name string) []string {
	reverse := make(map[string][]string)
	for depName, desc := range descriptors {
		if desc.State != StateLoaded {
			continue
		}
		for _, dep := range desc.Dependencies {
			reverse[dep] = append(reverse[dep], depName)
		}
	}

	seen := make(map[string]struct{})
	queue := append([]string(nil), reverse[name]...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if _, done := seen[current]; done {
			continue
		}
		seen[current] = struct{}{}
		queue = append(queue, reverse[current]...)
	}

	dependents := make([]string, 0, len(seen))
	for dep := range seen {
		dependents = append(dependents, dep)
	}
	sort.Strings(dependents)
	return dependents
}

// UnloadOrder returns the cascade unload sequence for the named plugin: its
// loaded transitive dependents, dependents before their dependencies, then
// the plugin itself.
func UnloadOrder(descriptors map[string]*Descriptor, name string) ([]string, error) {
	dependents := LoadedDependents(descriptors, name)

	members := make(map[string]struct{}, len(dependents)+1)
	members[name] = struct{}{}
	for _, dep := range dependents {
		members[dep] = struct{}{}
	}

	graph := newDependencyGraph()
	for member := range members {
		graph.addNode(member)
		for _, dep := range descriptors[member].Dependencies {
			if _, in := members[dep]; in {
				graph.addEdge(member, dep)
			}
		}
	}

	forward, err := graph.topologicalSort()
	if err != nil {
		return nil, err
	}

	// Reverse: dependents are torn down before what they depend on.
	order := make([]string, len(forward))
	for i, member := range forward {
		order[len(forward)-1-i] = member
	}
	return order, nil
}
