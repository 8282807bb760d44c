package query

import (
	"github.com/bpkg-toolchain/bpkg/internal/repo"
	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

// ExistingPackages is the imaginary-complement source for packages
// passed on the command line as directories or archives (spec.md §4.5):
// semantically an imaginary complement of every real repository in a
// configuration, and queried before any real source.
type ExistingPackages struct {
	entries map[ver.Name][]repo.AvailablePackage
}

// NewExistingPackages builds a registry from command-line package
// locations already resolved to AvailablePackage entries.
func NewExistingPackages(pkgs ...repo.AvailablePackage) *ExistingPackages {
	e := &ExistingPackages{entries: map[ver.Name][]repo.AvailablePackage{}}
	for _, p := range pkgs {
		e.entries[p.Name] = append(e.entries[p.Name], p)
	}
	return e
}

// Candidates implements Source; existing packages are always visible,
// bypassing the fragment graph's visibility filter entirely.
func (e *ExistingPackages) Candidates(name ver.Name) []repo.AvailablePackage {
	return e.entries[name]
}

// Stubs is the imaginary source of synthetic available_package rows at
// wildcard version, injected for user-specified system packages.
// FindAvailable returns its candidates only when no other source has a
// match.
type Stubs struct {
	names map[ver.Name]bool
}

// NewStubs builds a stub registry for the given system package names.
func NewStubs(names ...ver.Name) *Stubs {
	s := &Stubs{names: map[ver.Name]bool{}}
	for _, n := range names {
		s.names[n] = true
	}
	return s
}

// Candidates implements Source, returning a single wildcard-version
// AvailablePackage when name was declared a system package.
func (s *Stubs) Candidates(name ver.Name) []repo.AvailablePackage {
	if !s.names[name] {
		return nil
	}
	return []repo.AvailablePackage{{
		Name:    name,
		Version: ver.Wildcard,
	}.WithOrigin("stub")}
}
