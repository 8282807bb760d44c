package repo

import "github.com/bpkg-toolchain/bpkg/internal/ver"

// EdgeRole distinguishes the two kinds of edges a fragment can declare to
// another repository.
type EdgeRole int

const (
	RoleComplement EdgeRole = iota
	RolePrerequisite
)

// Edge is one declared relationship from a fragment to another
// repository, by canonical name.
type Edge struct {
	Role   EdgeRole
	Target string // canonical name of the target repository
}

// Fragment is one version of a repository's package set: a package
// manifest plus the edges it declares. Each matched git branch or tag
// gets its own Fragment; refs that advertise the same packages.manifest
// content are not merged into one.
type Fragment struct {
	ID       string // stable identifier within the owning Repository
	Packages []AvailablePackage
	Edges    []Edge
}

// AvailablePackage is one entry in a fragment's package manifest, typed
// for query-layer consumption (spec.md §3's Available package).
type AvailablePackage struct {
	Name       ver.Name
	Version    ver.Version
	Location   string // archive path (pkg) or fs path (dir/git checkout)
	SHA256     string
	originRepo string // canonical name of the repository this entry was read from
}

// OriginRepo returns the canonical name of the repository this package
// entry was read from.
func (p AvailablePackage) OriginRepo() string { return p.originRepo }

// WithOrigin returns a copy of p stamped with the repository it was read
// from, set by the fetch pipeline when a fragment's manifest is parsed.
func (p AvailablePackage) WithOrigin(canonicalName string) AvailablePackage {
	p.originRepo = canonicalName
	return p
}

// Repository is one configured repository: a location plus the set of
// fragments it currently resolves to (more than one only for git, where
// distinct refs each produce a fragment).
type Repository struct {
	Location      Location
	CanonicalName string
	Fragments     []*Fragment
	Certificate   *Certificate // non-nil only for authenticated pkg repositories
}

// Graph is the full repository-fragment graph reachable from a
// configuration's declared repositories.
type Graph struct {
	repos map[string]*Repository // by canonical name
	mask  *maskTable
	scope string // configuration UUID this graph's lookups are scoped to; "" = global only
}

// NewGraph creates an empty repository graph, scoped to the global mask
// only until SetScope is called.
func NewGraph() *Graph {
	return &Graph{repos: map[string]*Repository{}, mask: newMaskTable()}
}

// SetScope fixes the configuration UUID consulted by this graph's
// Get/AllCandidates/Visible lookups, in addition to the global scope
// (spec.md §4.3: masking may be scoped to a specific configuration UUID).
func (g *Graph) SetScope(configUUID string) {
	g.scope = configUUID
}

// Add registers r in the graph, keyed by its canonical name.
func (g *Graph) Add(r *Repository) {
	g.repos[r.CanonicalName] = r
}

// Get returns the repository named name, honoring the current mask in
// both g's configuration scope and the global scope.
func (g *Graph) Get(name string) (*Repository, bool) {
	if g.mask.isMaskedInScope(g.scope, name) {
		return nil, false
	}
	r, ok := g.repos[name]
	return r, ok
}

// complementsOf walks the complement edges of every fragment belonging to
// root, transitively, carrying a visited set to tolerate cycles (spec.md
// §4.3: "The fragment graph may be cyclic").
func (g *Graph) complementsOf(root *Repository) []*Repository {
	seen := map[string]bool{root.CanonicalName: true}
	var out []*Repository
	queue := []*Repository{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, frag := range cur.Fragments {
			for _, e := range frag.Edges {
				if e.Role != RoleComplement || seen[e.Target] {
					continue
				}
				target, ok := g.Get(e.Target)
				if !ok {
					continue
				}
				seen[e.Target] = true
				out = append(out, target)
				queue = append(queue, target)
			}
		}
	}
	return out
}

// prerequisitesOf returns the one-level (non-recursive) prerequisite
// targets of every fragment of repos.
func (g *Graph) prerequisitesOf(repos []*Repository) []*Repository {
	seen := map[string]bool{}
	var out []*Repository
	for _, r := range repos {
		for _, frag := range r.Fragments {
			for _, e := range frag.Edges {
				if e.Role != RolePrerequisite || seen[e.Target] {
					continue
				}
				target, ok := g.Get(e.Target)
				if !ok {
					continue
				}
				seen[e.Target] = true
				out = append(out, target)
			}
		}
	}
	return out
}

// AllCandidates returns every package entry named name across every
// repository in the graph, stamped with its origin, ignoring visibility.
// Used by the resolver's unfiltered "all configured repositories" query
// source, as opposed to the root-repository-relative Visible filter.
func (g *Graph) AllCandidates(name ver.Name) []AvailablePackage {
	var out []AvailablePackage
	for canonicalName, r := range g.repos {
		if g.mask.isMaskedInScope(g.scope, canonicalName) {
			continue
		}
		for _, frag := range r.Fragments {
			for _, pkg := range frag.Packages {
				if pkg.Name.Equal(name) {
					out = append(out, pkg)
				}
			}
		}
	}
	return out
}

// Visible implements spec.md §4.3's visibility filter: pkg (an available
// package) is visible from root iff some location in pkg's location list
// belongs to root, to a complement reachable by recursive complement
// walk, or to a prerequisite of one of those.
func (g *Graph) Visible(root *Repository, pkg AvailablePackage) bool {
	candidates := append([]*Repository{root}, g.complementsOf(root)...)
	candidates = append(candidates, g.prerequisitesOf(candidates)...)

	for _, r := range candidates {
		if r.CanonicalName == pkg.originRepo {
			return true
		}
	}
	return false
}
