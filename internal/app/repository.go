package app

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/bpkg-toolchain/bpkg/internal/dbstore"
	"github.com/bpkg-toolchain/bpkg/internal/diag"
	"github.com/bpkg-toolchain/bpkg/internal/fetchcache"
	"github.com/bpkg-toolchain/bpkg/internal/manifest"
	"github.com/bpkg-toolchain/bpkg/internal/repo"
)

// GraphFor is graphFor's exported form, used directly by the CLI's
// rep-fetch command to report fragment/package counts without going
// through the resolver backend.
func (a *App) GraphFor(ctx context.Context, configDir string) (*repo.Graph, *repo.Repository, error) {
	return a.graphFor(ctx, configDir)
}

// graphFor builds (or returns the cached) repository graph for
// configDir: a synthetic root repository whose complement edges are the
// configuration's directly rep-added repositories, plus every repository
// reachable from them.
func (a *App) graphFor(ctx context.Context, configDir string) (*repo.Graph, *repo.Repository, error) {
	a.mu.Lock()
	if g, ok := a.graphs[configDir]; ok {
		a.mu.Unlock()
		root, _ := g.Get(rootCanonicalName(configDir))
		return g, root, nil
	}
	a.mu.Unlock()

	h, err := a.openHandle(configDir)
	if err != nil {
		return nil, nil, err
	}
	rows, err := dbstore.ListRepositories(h)
	if err != nil {
		return nil, nil, err
	}

	g := repo.NewGraph()
	g.SetScope(h.UUID)
	root := &repo.Repository{
		CanonicalName: rootCanonicalName(configDir),
		Fragments:     []*repo.Fragment{{ID: "root"}},
	}
	var masked []string
	for _, row := range rows {
		root.Fragments[0].Edges = append(root.Fragments[0].Edges, repo.Edge{
			Role: repo.RoleComplement, Target: row.CanonicalName,
		})
		if row.Masked {
			masked = append(masked, row.CanonicalName)
		}

		r, err := a.loadRepository(ctx, row)
		if err != nil {
			return nil, nil, err
		}
		g.Add(r)
	}
	g.Add(root)
	if len(masked) > 0 {
		g.MaskRepositories(h.UUID, masked...)
	}

	a.mu.Lock()
	a.graphs[configDir] = g
	a.mu.Unlock()
	return g, root, nil
}

// loadRepository loads row's fragment content, dispatching on its
// location scheme.
func (a *App) loadRepository(ctx context.Context, row dbstore.RepositoryRow) (*repo.Repository, error) {
	loc, err := repo.ParseLocation(row.Location)
	if err != nil {
		return nil, err
	}

	r := &repo.Repository{Location: loc, CanonicalName: row.CanonicalName}
	if row.Certificate != "" {
		cert, err := repo.ParseCertificate(row.Certificate)
		if err != nil {
			return nil, err
		}
		r.Certificate = cert
	}

	switch loc.Scheme {
	case repo.SchemePkg:
		frag, err := a.loadPkgFragment(ctx, row.CanonicalName, loc)
		if err != nil {
			return nil, err
		}
		r.Fragments = []*repo.Fragment{frag}
	case repo.SchemeDir:
		frag, err := a.loadDirFragment(row.CanonicalName, loc)
		if err != nil {
			return nil, err
		}
		r.Fragments = []*repo.Fragment{frag}
	case repo.SchemeGit:
		frags, err := a.loadGitFragments(ctx, row.CanonicalName, loc)
		if err != nil {
			return nil, err
		}
		r.Fragments = frags
	default:
		return nil, diag.New(diag.KindUserInput, "app: unsupported repository scheme for %s", row.CanonicalName)
	}
	return r, nil
}

// loadPkgFragment fetches (or reuses, subject to fetch-cache
// revalidation) an archive-based pkg repository's manifests.
func (a *App) loadPkgFragment(ctx context.Context, canonicalName string, loc repo.Location) (*repo.Fragment, error) {
	url := loc.Raw
	entry, hit := a.Cache.Lookup(url)
	if !hit || a.Cache.NeedsRevalidation(entry) {
		repos, err := a.pkgFetcher.FetchRepositoriesManifest(ctx, url)
		if err != nil {
			return nil, err
		}
		pm, raw, err := a.pkgFetcher.FetchPackagesManifest(ctx, url)
		if err != nil {
			return nil, err
		}

		if len(raw) > 0 {
			sig, err := a.pkgFetcher.FetchSignatureManifest(ctx, url)
			if err == nil {
				cert := certFromRoles(repos.Roles)
				if cert != nil {
					if err := repo.VerifySignature(cert, sig.Signature, raw); err != nil {
						return nil, err
					}
				}
			}
		}

		dir := a.Cache.MetadataDir(url)
		repoPath := filepath.Join(dir, "repositories.manifest")
		pkgPath := filepath.Join(dir, "packages.manifest")
		if err := writeManifestFiles(dir, repoPath, pkgPath, repos, pm); err != nil {
			return nil, err
		}

		entry = fetchcache.MetadataEntry{
			URL: url, RepositoriesPath: repoPath, PackagesPath: pkgPath,
		}
		if err := a.Cache.Save(entry); err != nil {
			return nil, err
		}
		return fragmentFromManifests(canonicalName, pm, repos), nil
	}

	pm, err := readPackagesManifest(entry.PackagesPath)
	if err != nil {
		return nil, err
	}
	repos, err := readRepositoriesManifest(entry.RepositoriesPath)
	if err != nil {
		return nil, err
	}
	return fragmentFromManifests(canonicalName, pm, repos), nil
}

func certFromRoles(roles []manifest.RepositoryRole) *repo.Certificate {
	for _, r := range roles {
		if r.Certificate != "" {
			if cert, err := repo.ParseCertificate(r.Certificate); err == nil {
				return cert
			}
		}
	}
	return nil
}

func fragmentFromManifests(canonicalName string, pm *manifest.PackagesManifest, repos *manifest.RepositoriesManifest) *repo.Fragment {
	frag := &repo.Fragment{ID: canonicalName}
	for _, p := range pm.Packages {
		name, err := p.ParsedName()
		if err != nil {
			continue
		}
		version, err := p.ParsedVersion()
		if err != nil {
			continue
		}
		frag.Packages = append(frag.Packages, repo.AvailablePackage{
			Name: name, Version: version, Location: p.Location, SHA256: p.SHA256Sum,
		}.WithOrigin(canonicalName))
	}
	if repos != nil {
		for _, role := range repos.Roles {
			switch role.Role {
			case "complement":
				frag.Edges = append(frag.Edges, repo.Edge{Role: repo.RoleComplement, Target: role.Location})
			case "prerequisite":
				frag.Edges = append(frag.Edges, repo.Edge{Role: repo.RolePrerequisite, Target: role.Location})
			}
		}
	}
	return frag
}

// loadDirFragment scans a dir repository one level deep, parsing each
// subdirectory's manifest file directly (dir repositories have no
// packages.manifest of their own).
func (a *App) loadDirFragment(canonicalName string, loc repo.Location) (*repo.Fragment, error) {
	dirs, err := a.dirFetcher.ScanDirRepository(loc.Raw)
	if err != nil {
		return nil, err
	}
	frag := &repo.Fragment{ID: canonicalName}
	for _, d := range dirs {
		p, err := readManifestFile(filepath.Join(d, "manifest"))
		if err != nil {
			return nil, err
		}
		name, err := p.ParsedName()
		if err != nil {
			return nil, err
		}
		version, err := p.ParsedVersion()
		if err != nil {
			return nil, err
		}
		frag.Packages = append(frag.Packages, repo.AvailablePackage{
			Name: name, Version: version, Location: d,
		}.WithOrigin(canonicalName))
	}
	return frag, nil
}

// loadGitFragments resolves a git repository's fragment filter against
// its remote refs, fetches the matching commits, and parses each
// matched ref's packages.manifest into its own fragment (distinct refs
// of the same repository may advertise distinct package sets).
func (a *App) loadGitFragments(ctx context.Context, canonicalName string, loc repo.Location) ([]*repo.Fragment, error) {
	dir, err := a.gitFetcher.EnsureClone(ctx, loc)
	if err != nil {
		return nil, err
	}
	refs, err := a.gitFetcher.ListRemoteRefs(ctx, loc)
	if err != nil {
		return nil, err
	}
	matched := repo.MatchFragmentFilter(refs, loc.Fragment)
	if err := a.gitFetcher.FetchRefs(ctx, dir, matched); err != nil {
		return nil, err
	}

	var frags []*repo.Fragment
	for _, ref := range matched {
		data, err := gitShow(ctx, dir, ref.Commit, "packages.manifest")
		if err != nil {
			continue // ref has no packages.manifest at this commit
		}
		pm, err := manifest.ParsePackagesManifest(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		fragID := fmt.Sprintf("%s#%s", canonicalName, ref.Name)
		frag := fragmentFromManifests(fragID, pm, nil)
		frags = append(frags, frag)
	}
	return frags, nil
}

func gitShow(ctx context.Context, dir, commit, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "show", commit+":"+path)
	out, err := cmd.Output()
	if err != nil {
		return nil, diag.Wrap(diag.KindSubprocess, err, "app: git show %s:%s", commit, path)
	}
	return out, nil
}
