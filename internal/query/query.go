// Package query implements the package query and availability layer
// (C6): answering "given a name and constraint, which available_package
// candidates may be used?" across a set of repository-backed databases
// plus the imaginary sources (existing-packages registry, stubs).
package query

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/bpkg-toolchain/bpkg/internal/repo"
	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

// Source answers package queries against one database's root fragment.
type Source interface {
	// Candidates returns every AvailablePackage named name that is
	// visible from this source's root fragment.
	Candidates(name ver.Name) []repo.AvailablePackage
}

// GraphSource adapts a repo.Graph's root repository into a Source.
type GraphSource struct {
	Graph *repo.Graph
	Root  *repo.Repository
	All   func(name ver.Name) []repo.AvailablePackage // full unfiltered candidate list
}

// Candidates implements Source by filtering All through the graph's
// visibility rule.
func (s GraphSource) Candidates(name ver.Name) []repo.AvailablePackage {
	var out []repo.AvailablePackage
	for _, p := range s.All(name) {
		if s.Graph.Visible(s.Root, p) {
			out = append(out, p)
		}
	}
	return out
}

// FindAvailable implements spec.md §4.5's find_available: it queries
// every source concurrently, merges matching candidates, sorts by
// version descending, and de-duplicates. Revision is ignored by default
// (libfoo/1 matches 1+1) and iteration is always ignored unless the
// caller's constraint specifically constrains it.
func FindAvailable(ctx context.Context, sources []Source, name ver.Name, constraint *ver.Constraint) ([]repo.AvailablePackage, error) {
	results := make([][]repo.AvailablePackage, len(sources))

	g, _ := errgroup.WithContext(ctx)
	for i, s := range sources {
		i, s := i, s
		g.Go(func() error {
			results[i] = s.Candidates(name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	opts := ver.CompareOptions{Revision: false, Iteration: false}
	seen := map[string]bool{}
	var merged []repo.AvailablePackage
	for _, rs := range results {
		for _, p := range rs {
			if constraint != nil && !ver.Satisfies(p.Version, *constraint) {
				continue
			}
			key := p.Name.String() + "/" + p.Version.String() + "@" + p.OriginRepo()
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, p)
		}
	}

	// Stub candidates are used only when no other source matched.
	var nonStub []repo.AvailablePackage
	for _, p := range merged {
		if p.OriginRepo() != "stub" {
			nonStub = append(nonStub, p)
		}
	}
	if len(nonStub) > 0 {
		merged = nonStub
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return ver.Compare(merged[i].Version, merged[j].Version, opts) > 0
	})
	return merged, nil
}

// FindAvailableOne returns the best (highest-version) candidate plus the
// index of the Source it came from, per spec.md §4.5's find_available_one.
func FindAvailableOne(ctx context.Context, sources []Source, name ver.Name, constraint *ver.Constraint) (repo.AvailablePackage, int, bool, error) {
	candidates, err := FindAvailable(ctx, sources, name, constraint)
	if err != nil {
		return repo.AvailablePackage{}, 0, false, err
	}
	if len(candidates) == 0 {
		return repo.AvailablePackage{}, 0, false, nil
	}
	best := candidates[0]
	for i, s := range sources {
		for _, p := range s.Candidates(name) {
			if p.Version.String() == best.Version.String() {
				return best, i, true, nil
			}
		}
	}
	return best, 0, true, nil
}
