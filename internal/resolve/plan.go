package resolve

import "github.com/bpkg-toolchain/bpkg/internal/ver"

// ResolvedPrerequisite is one materialized lazy pointer in the plan's
// output, naming the dependency by key rather than by a live database
// handle (C3 resolves it against the actual dbstore.Handle at apply
// time).
type ResolvedPrerequisite struct {
	DependsIndex int
	AltIndex     int
	Dependency   PackageKey
	Constraint   string
}

// ConfigSource records, per variable, whether its value came from a
// dependent (and which) or from the user, per spec.md §4.6's output
// contract.
type ConfigSource struct {
	Variable    string
	Value       string
	FromUser    bool
	FromKey     PackageKey
	HasFromKey  bool
}

// PlanEntry is one package's materialization instructions, in
// topological (dependency-before-dependent) order.
type PlanEntry struct {
	Key            PackageKey
	Version        ver.Version
	AltChoice      []int
	Prerequisites  []ResolvedPrerequisite
	ConfigSources  []ConfigSource
}

// Plan is the resolver's output: a topologically ordered materialization
// plan for C3 to apply.
type Plan struct {
	Entries []PlanEntry
}

// topoSort orders keys so each package appears after every package it
// depends on, using the resolver's recorded dependency edges.
func topoSort(keys []PackageKey, deps map[PackageKey][]PackageKey) []PackageKey {
	visited := map[PackageKey]bool{}
	var order []PackageKey
	var visit func(k PackageKey)
	visit = func(k PackageKey) {
		if visited[k] {
			return
		}
		visited[k] = true
		for _, d := range deps[k] {
			visit(d)
		}
		order = append(order, k)
	}
	for _, k := range keys {
		visit(k)
	}
	return order
}
