package app

import (
	"context"

	"github.com/bpkg-toolchain/bpkg/internal/dbstore"
	"github.com/bpkg-toolchain/bpkg/internal/diag"
	"github.com/bpkg-toolchain/bpkg/internal/manifest"
	"github.com/bpkg-toolchain/bpkg/internal/query"
	"github.com/bpkg-toolchain/bpkg/internal/repo"
	"github.com/bpkg-toolchain/bpkg/internal/resolve"
	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

// dbBackend adapts the repository graph and fetch cache into
// resolve.Backend, the only two integration points the resolver (C7)
// needs from everything below it.
type dbBackend struct {
	app *App
}

// NewBackend builds the resolve.Backend this App exposes.
func (a *App) NewBackend() resolve.Backend {
	return &dbBackend{app: a}
}

// FindAvailable implements spec.md §4.5's find_available against the
// configuration's repository graph, restricted to the requested name and
// constraint.
func (b *dbBackend) FindAvailable(configDir string, name ver.Name, constraint *ver.Constraint) ([]resolve.AvailableCandidate, error) {
	g, root, err := b.app.graphFor(context.Background(), configDir)
	if err != nil {
		return nil, err
	}

	source := query.GraphSource{Graph: g, Root: root, All: g.AllCandidates}
	candidates, err := query.FindAvailable(context.Background(), []query.Source{source}, name, constraint)
	if err != nil {
		return nil, err
	}

	out := make([]resolve.AvailableCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, resolve.AvailableCandidate{Version: c.Version, IsStub: c.OriginRepo() == "stub"})
	}
	return out, nil
}

// LoadPackage recovers a package's dependency syntax by re-reading the
// cached packages.manifest of whichever repository advertised it, since
// the query layer's repo.AvailablePackage intentionally carries only the
// lightweight availability-query fields.
func (b *dbBackend) LoadPackage(configDir string, name ver.Name, version ver.Version) (resolve.Package, error) {
	g, root, err := b.app.graphFor(context.Background(), configDir)
	if err != nil {
		return resolve.Package{}, err
	}

	var found *repo.AvailablePackage
	for _, c := range g.AllCandidates(name) {
		if !g.Visible(root, c) {
			continue
		}
		if ver.Compare(c.Version, version, ver.CompareOptions{Revision: true}) == 0 {
			cc := c
			found = &cc
			break
		}
	}
	if found == nil {
		return resolve.Package{}, diag.New(diag.KindUserInput, "app: %s-%s is not visible from %s", name, version, configDir)
	}

	mp, err := b.loadManifestPackage(g, *found)
	if err != nil {
		return resolve.Package{}, err
	}

	depends, err := manifest.ParseDepends(mp)
	if err != nil {
		return resolve.Package{}, err
	}
	return resolve.Package{Name: name, Version: version, Depends: convertDepends(depends)}, nil
}

// loadManifestPackage resolves found's full manifest.Package, either by
// re-reading the fetch cache's packages.manifest (pkg repositories) or
// the package's own standalone manifest file (dir/git repositories).
func (b *dbBackend) loadManifestPackage(g *repo.Graph, found repo.AvailablePackage) (manifest.Package, error) {
	originRepo, ok := g.Get(found.OriginRepo())
	if !ok {
		return manifest.Package{}, diag.New(diag.KindLogic, "app: origin repository %s not in graph", found.OriginRepo())
	}

	if originRepo.Location.Scheme == repo.SchemeDir {
		return readManifestFile(found.Location + "/manifest")
	}
	if originRepo.Location.Scheme == repo.SchemeGit {
		return readManifestFile(found.Location + "/manifest")
	}

	entry, ok := b.app.Cache.Lookup(originRepo.Location.Raw)
	if !ok {
		return manifest.Package{}, diag.New(diag.KindState, "app: no cached metadata for %s", originRepo.CanonicalName)
	}
	pm, err := readPackagesManifest(entry.PackagesPath)
	if err != nil {
		return manifest.Package{}, err
	}
	for _, p := range pm.Packages {
		if string(found.Name) == p.Name && found.Version.String() == p.Version {
			return p, nil
		}
	}
	return manifest.Package{}, diag.New(diag.KindIntegrity, "app: %s-%s missing from cached packages.manifest", found.Name, found.Version)
}

func convertDepends(entries []manifest.DependsEntry) []resolve.DependsEntry {
	out := make([]resolve.DependsEntry, 0, len(entries))
	for _, e := range entries {
		re := resolve.DependsEntry{Line: e.Line}
		for _, alt := range e.Alternatives {
			ra := resolve.Alternative{
				Enable: alt.Enable, Reflect: alt.Reflect,
				PreferClause: alt.Prefer, AcceptClause: alt.Accept, RequireClause: alt.Require,
			}
			for _, ref := range alt.Refs {
				ra.Refs = append(ra.Refs, resolve.PackageRef{Name: ref.Name, Constraint: ref.Constraint, Buildtime: ref.Buildtime})
			}
			re.Alternatives = append(re.Alternatives, ra)
		}
		out = append(out, re)
	}
	return out
}

// Skeleton builds a sandboxed evaluator for (name, version) by shelling
// out to the configured build-system driver, per spec.md §9's
// "build system as external subprocess contract".
func (b *dbBackend) Skeleton(configDir string, name ver.Name, version ver.Version) (resolve.Skeleton, error) {
	g, root, err := b.app.graphFor(context.Background(), configDir)
	if err != nil {
		return nil, err
	}
	var srcHint string
	for _, c := range g.AllCandidates(name) {
		if !g.Visible(root, c) {
			continue
		}
		if ver.Compare(c.Version, version, ver.CompareOptions{Revision: true}) == 0 {
			srcHint = c.Location
			break
		}
	}
	return &driverSkeleton{driver: b.app.Config.Driver, srcHint: srcHint, configDir: configDir}, nil
}

// PriorPrerequisites returns the prior resolved prerequisite set for an
// already-configured package named key.Name in key.ConfigDir, used by
// the resolver's "recreate dependency decisions" mode.
func (b *dbBackend) PriorPrerequisites(key resolve.PackageKey) ([]resolve.ResolvedPrerequisite, bool) {
	h, err := b.app.openHandle(key.ConfigDir)
	if err != nil {
		return nil, false
	}

	var selfID int64
	row := h.DB.QueryRow(`SELECT id FROM selected_package WHERE name = ? AND state = 'configured'`, key.Name.String())
	if err := row.Scan(&selfID); err != nil {
		return nil, false
	}

	rows, err := h.DB.Query(`SELECT depends_index, alt_index, dep_config_dir, dep_package_id, constraint_str
		FROM prerequisite WHERE dependent_id = ?`, selfID)
	if err != nil {
		return nil, false
	}
	defer rows.Close()

	var out []resolve.ResolvedPrerequisite
	for rows.Next() {
		var dependsIdx, altIdx int
		var depConfigDir, constraintStr string
		var depID int64
		if err := rows.Scan(&dependsIdx, &altIdx, &depConfigDir, &depID, &constraintStr); err != nil {
			return nil, false
		}
		depName, ok := lookupPackageName(depConfigDir, depID)
		if !ok {
			continue
		}
		out = append(out, resolve.ResolvedPrerequisite{
			DependsIndex: dependsIdx, AltIndex: altIdx,
			Dependency: resolve.PackageKey{ConfigDir: depConfigDir, Name: depName},
			Constraint: constraintStr,
		})
	}
	return out, len(out) > 0
}

func lookupPackageName(configDir string, id int64) (ver.Name, bool) {
	h, ok := dbstore.Lookup(configDir)
	if !ok {
		var err error
		h, err = dbstore.Open(configDir)
		if err != nil {
			return "", false
		}
	}
	var name string
	row := h.DB.QueryRow(`SELECT name FROM selected_package WHERE id = ?`, id)
	if err := row.Scan(&name); err != nil {
		return "", false
	}
	return ver.Name(name), true
}
