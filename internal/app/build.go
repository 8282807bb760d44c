package app

import (
	"context"
	"io"

	"github.com/bpkg-toolchain/bpkg/internal/dbstore"
	"github.com/bpkg-toolchain/bpkg/internal/diag"
	"github.com/bpkg-toolchain/bpkg/internal/pkgstate"
	"github.com/bpkg-toolchain/bpkg/internal/repo"
	"github.com/bpkg-toolchain/bpkg/internal/resolve"
	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

// RootSpec is one build-to-hold root named on the command line, e.g.
// `bpkg build libfoo libbar/1.2.0`.
type RootSpec struct {
	ConfigDir  string
	Name       ver.Name
	Constraint *ver.Constraint
}

// Build runs the resolver (C7) over roots and drives each selected
// package through fetch/unpack/configure (C3) in the plan's topological
// order, matching spec.md §2's "for build-type commands, C7 selects
// versions... then drives C3" control flow.
func (a *App) Build(ctx context.Context, driverVersion resolve.Driver, roots []RootSpec) (*resolve.Plan, error) {
	backend := a.NewBackend()
	resolver := resolve.New(backend, driverVersion)

	reqs := make([]resolve.RootRequest, 0, len(roots))
	for _, r := range roots {
		reqs = append(reqs, resolve.RootRequest{ConfigDir: r.ConfigDir, Name: r.Name, Constraint: r.Constraint})
	}
	plan, err := resolver.Resolve(reqs)
	if err != nil {
		return nil, err
	}

	for _, entry := range plan.Entries {
		if err := a.materialize(ctx, entry); err != nil {
			return plan, err
		}
	}
	return plan, nil
}

// materialize brings one plan entry's selected package to the configured
// state, skipping steps already satisfied by its current row (so a
// partially-built configuration resumes rather than re-fetching).
func (a *App) materialize(ctx context.Context, entry resolve.PlanEntry) error {
	h, err := a.openHandle(entry.Key.ConfigDir)
	if err != nil {
		return err
	}

	sel, err := pkgstate.Load(h, entry.Key.Name)
	if err != nil {
		return err
	}
	if sel != nil && sel.State == pkgstate.StateConfigured {
		return nil
	}

	g, root, err := a.graphFor(ctx, entry.Key.ConfigDir)
	if err != nil {
		return err
	}
	found, ok := findCandidate(g, root, entry.Key.Name, entry.Version)
	if !ok {
		return diag.New(diag.KindUserInput, "app: %s-%s is no longer visible from %s", entry.Key.Name, entry.Version, entry.Key.ConfigDir)
	}

	if sel == nil || sel.State == pkgstate.StateBroken {
		if err := a.fetchOne(ctx, h, entry, found); err != nil {
			return err
		}
		sel, err = pkgstate.Load(h, entry.Key.Name)
		if err != nil {
			return err
		}
	}
	if sel.State == pkgstate.StateFetched {
		if err := pkgstate.UnpackFromArchive(h, entry.Key.ConfigDir, entry.Key.Name.String(), entry.Version.String()); err != nil {
			return err
		}
	}

	return a.configureOne(h, entry)
}

// findCandidate locates entry's chosen version among the configuration's
// currently visible available packages.
func findCandidate(g *repo.Graph, root *repo.Repository, name ver.Name, version ver.Version) (repo.AvailablePackage, bool) {
	for _, c := range g.AllCandidates(name) {
		if !g.Visible(root, c) {
			continue
		}
		if ver.Compare(c.Version, version, ver.CompareOptions{Revision: true}) == 0 {
			return c, true
		}
	}
	return repo.AvailablePackage{}, false
}

// fetchOne dispatches Fetch/direct-unpack depending on whether found's
// origin repository is archive-based (pkg) or directory/version-control
// based (dir, git), per spec.md §4.2's "(external / dir-based)" unpack
// transition.
func (a *App) fetchOne(ctx context.Context, h *dbstore.Handle, entry resolve.PlanEntry, found repo.AvailablePackage) error {
	originRepo, ok := a.lookupGraphRepo(ctx, entry.Key.ConfigDir, found.OriginRepo())
	if !ok {
		return diag.New(diag.KindLogic, "app: origin repository %s not found", found.OriginRepo())
	}

	if !originRepo.Location.IsArchiveBased() {
		return pkgstate.UnpackFromDirectory(h, entry.Key.Name.String(), found.Location, nil, false)
	}

	src := pkgstate.FetchSource{
		SHA256Sum: found.SHA256,
		Open: func() (io.ReadCloser, error) {
			return a.pkgFetcher.FetchArchive(ctx, originRepo.Location.Raw, found.Location)
		},
	}
	if a.Config.SharedSrc {
		if path, ok := a.Cache.LookupArchive(found.Name.String(), found.Version.String(), found.SHA256); ok {
			src.SharedSrcMode = true
			src.InPlacePath = path
		}
	}
	return pkgstate.Fetch(h, entry.Key.ConfigDir, entry.Key.Name, entry.Version, src)
}

// lookupGraphRepo returns the repository canonicalName within
// configDir's repository graph.
func (a *App) lookupGraphRepo(ctx context.Context, configDir, canonicalName string) (*repo.Repository, bool) {
	g, _, err := a.graphFor(ctx, configDir)
	if err != nil {
		return nil, false
	}
	return g.Get(canonicalName)
}

// configureOne materializes entry's resolver decision: the prerequisite
// set and configuration variables the resolver already chose, via
// pkgstate.Configure.
func (a *App) configureOne(h *dbstore.Handle, entry resolve.PlanEntry) error {
	prereqs := make([]pkgstate.Prerequisite, 0, len(entry.Prerequisites))
	for _, p := range entry.Prerequisites {
		depHandle, err := a.openHandle(p.Dependency.ConfigDir)
		if err != nil {
			return err
		}
		depSel, err := pkgstate.Load(depHandle, p.Dependency.Name)
		if err != nil {
			return err
		}
		if depSel == nil {
			return diag.New(diag.KindLogic, "app: prerequisite %s not selected in %s", p.Dependency.Name, p.Dependency.ConfigDir)
		}
		prereqs = append(prereqs, pkgstate.Prerequisite{
			DependsIndex: p.DependsIndex,
			AltIndex:     p.AltIndex,
			Dep:          dbstore.Ptr{DB: depHandle, ID: depSel.ID},
			Constraint:   p.Constraint,
		})
	}

	vars := make([]pkgstate.Variable, 0, len(entry.ConfigSources))
	for _, cs := range entry.ConfigSources {
		v := pkgstate.Variable{Name: cs.Variable, Value: cs.Value}
		switch {
		case cs.HasFromKey:
			v.Origin = pkgstate.SourceBuildfile
			v.SetByDir = cs.FromKey.ConfigDir
		case cs.FromUser:
			v.Origin = pkgstate.SourceOverride
		default:
			v.Origin = pkgstate.SourceDefault
		}
		vars = append(vars, v)
	}

	return pkgstate.Configure(h, entry.Key.ConfigDir, entry.Key.Name, prereqs, vars, a.Config.Driver)
}
