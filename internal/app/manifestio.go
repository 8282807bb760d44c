package app

import (
	"os"

	"github.com/bpkg-toolchain/bpkg/internal/diag"
	"github.com/bpkg-toolchain/bpkg/internal/manifest"
)

// readManifestFile parses a single package's standalone manifest file,
// as found at the root of a dir-repository package subdirectory (same
// name:value grammar as packages.manifest, but exactly one entry and no
// min-bpkg-version header).
func readManifestFile(path string) (manifest.Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return manifest.Package{}, diag.Wrap(diag.KindIO, err, "app: open %s", path)
	}
	defer f.Close()

	entries, err := manifest.Parse(f)
	if err != nil {
		return manifest.Package{}, err
	}
	if len(entries) == 0 {
		return manifest.Package{}, diag.New(diag.KindIntegrity, "app: %s has no manifest entry", path)
	}
	return packageFromEntry(entries[0]), nil
}

// packageFromEntry extracts the fields packageFromEntry in the manifest
// package extracts, duplicated here because that helper is unexported.
func packageFromEntry(e manifest.Entry) manifest.Package {
	var p manifest.Package
	p.Name, _ = e.Get("name")
	p.Version, _ = e.Get("version")
	p.Project, _ = e.Get("project")
	p.Summary, _ = e.Get("summary")
	p.License, _ = e.Get("license")
	p.DependsRaw = e.GetAll("depends")
	p.Location, _ = e.Get("location")
	p.SHA256Sum, _ = e.Get("sha256sum")
	p.Languages = e.GetAll("language")
	return p
}

// readPackagesManifest re-reads a cached packages.manifest file from
// disk, used to recover a package's full dependency syntax once the
// fetch cache has already validated it (the query layer's
// repo.AvailablePackage intentionally omits DependsRaw).
func readPackagesManifest(path string) (*manifest.PackagesManifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, diag.Wrap(diag.KindIO, err, "app: open cached %s", path)
	}
	defer f.Close()
	return manifest.ParsePackagesManifest(f)
}

// readRepositoriesManifest re-reads a cached repositories.manifest file.
func readRepositoriesManifest(path string) (*manifest.RepositoriesManifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, diag.Wrap(diag.KindIO, err, "app: open cached %s", path)
	}
	defer f.Close()
	return manifest.ParseRepositoriesManifest(f)
}

// writeManifestFiles persists freshly fetched manifests into the fetch
// cache's metadata directory, for the next invocation's revalidation
// check to read back via readPackagesManifest/readRepositoriesManifest.
func writeManifestFiles(dir, repoPath, pkgPath string, repos *manifest.RepositoriesManifest, pm *manifest.PackagesManifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return diag.Wrap(diag.KindIO, err, "app: create metadata directory %s", dir)
	}
	if repos != nil {
		if err := writeRepositoriesManifest(repoPath, repos); err != nil {
			return err
		}
	}
	f, err := os.Create(pkgPath)
	if err != nil {
		return diag.Wrap(diag.KindIO, err, "app: create %s", pkgPath)
	}
	defer f.Close()
	return pm.Write(f)
}

// writeRepositoriesManifest serializes repos back to the manifest
// grammar; RepositoriesManifest has no Write method of its own since
// bpkg never re-emits it (only packages.manifest needs a round trip for
// backward-compatible signature re-computation).
func writeRepositoriesManifest(path string, repos *manifest.RepositoriesManifest) error {
	f, err := os.Create(path)
	if err != nil {
		return diag.Wrap(diag.KindIO, err, "app: create %s", path)
	}
	defer f.Close()

	var entries []manifest.Entry
	for _, role := range repos.Roles {
		e := manifest.Entry{Fields: []manifest.Field{{Name: "location", Value: role.Location}}}
		if role.Role != "" {
			e.Fields = append(e.Fields, manifest.Field{Name: "role", Value: role.Role})
		}
		if role.Certificate != "" {
			e.Fields = append(e.Fields, manifest.Field{Name: "certificate", Value: role.Certificate})
		}
		entries = append(entries, e)
	}
	return manifest.Write(f, entries)
}
