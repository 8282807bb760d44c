package repo

import (
	"os"
	"path/filepath"

	"github.com/bpkg-toolchain/bpkg/internal/diag"
)

// DirFetcher reads a dir repository: a directory tree containing source
// packages directly, each a subdirectory with its own manifest.
type DirFetcher struct{}

// ScanDirRepository walks root one level deep, returning every
// subdirectory that contains a manifest file as an AvailablePackage
// location (name/version come from the manifest itself, parsed by the
// caller via internal/manifest).
func (DirFetcher) ScanDirRepository(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, diag.Wrap(diag.KindIO, err, "repo: scan dir repository %s", root)
	}
	var pkgDirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(candidate, "manifest")); err == nil {
			pkgDirs = append(pkgDirs, candidate)
		}
	}
	return pkgDirs, nil
}
