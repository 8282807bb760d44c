package pkgstate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/bpkg-toolchain/bpkg/internal/dbstore"
	"github.com/bpkg-toolchain/bpkg/internal/diag"
	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

// UnpackFromArchive implements spec.md §4.2's Unpack-from-archive case: it
// extracts the package's archive into <cfg>/<name>-<version>/ using the
// external archive tool, then records src_root/purge_src/state.
func UnpackFromArchive(h *dbstore.Handle, cfgDir string, name, version string) error {
	sel, err := Load(h, ver.Name(name))
	if err != nil {
		return err
	}
	if sel == nil {
		return diag.New(diag.KindPrecondition, "pkgstate: %s is not fetched", name)
	}

	srcRoot := filepath.Join(cfgDir, fmt.Sprintf("%s-%s", name, version))
	tmpRoot := srcRoot + ".tmp-" + shortRandom()

	cmd := exec.Command("tar", "-xzf", sel.ArchivePath, "-C", filepath.Dir(tmpRoot))
	if err := os.MkdirAll(filepath.Dir(tmpRoot), 0o755); err != nil {
		return diag.Wrap(diag.KindIO, err, "pkgstate: prepare unpack directory")
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return diag.Wrap(diag.KindSubprocess, err, "pkgstate: unpack %s", sel.ArchivePath).WithInfo("%s", out)
	}

	if err := os.Rename(tmpRoot, srcRoot); err != nil {
		return diag.Wrap(diag.KindIO, err, "pkgstate: place unpacked sources at %s", srcRoot)
	}

	tx, err := h.Begin()
	if err != nil {
		os.RemoveAll(srcRoot)
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`UPDATE selected_package SET src_root = ?, purge_src = 1, state = 'unpacked' WHERE id = ?`,
		srcRoot, sel.ID)
	if err != nil {
		markBroken(tx, sel.ID)
		tx.Commit()
		return diag.Wrap(diag.KindState, err, "pkgstate: record unpacked state for %s", name)
	}
	return tx.Commit()
}

// UnpackFromDirectory implements the external-package case: src_root
// points at an existing directory with purge_src=false, and the
// manifest/buildfiles checksums are computed for later change detection.
func UnpackFromDirectory(h *dbstore.Handle, name, externalDir string, subprojects []string, hasBuildfileClause bool) error {
	sel, err := Load(h, ver.Name(name))
	if err != nil {
		return err
	}
	if sel == nil {
		return diag.New(diag.KindPrecondition, "pkgstate: %s is not fetched", name)
	}

	manifestPath := filepath.Join(externalDir, "manifest")
	manifestSum, err := checksumManifest(manifestPath, subprojects)
	if err != nil {
		return err
	}

	var buildfilesSum string
	if hasBuildfileClause {
		buildfilesSum, err = checksumBuildfiles(externalDir)
		if err != nil {
			return err
		}
	}

	tx, err := h.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`UPDATE selected_package SET src_root = ?, purge_src = 0, state = 'unpacked',
		manifest_checksum = ?, buildfiles_checksum = ? WHERE id = ?`,
		externalDir, manifestSum, nullIfEmpty(buildfilesSum), sel.ID)
	if err != nil {
		markBroken(tx, sel.ID)
		tx.Commit()
		return diag.Wrap(diag.KindState, err, "pkgstate: record external unpack for %s", name)
	}
	return tx.Commit()
}

func checksumManifest(manifestPath string, subprojects []string) (string, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", diag.Wrap(diag.KindIO, err, "pkgstate: read %s", manifestPath)
	}
	sorted := append([]string(nil), subprojects...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write(data)
	h.Write([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// checksumBuildfiles hashes the bootstrap/root/config buildfiles using
// whichever naming scheme (standard build/ or alternative build2/) is
// present under dir.
func checksumBuildfiles(dir string) (string, error) {
	scheme := "build"
	if _, err := os.Stat(filepath.Join(dir, "build2")); err == nil {
		scheme = "build2"
	}

	names := []string{"bootstrap." + scheme, "root." + scheme, "config." + scheme}
	h := sha256.New()
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(dir, scheme, n))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", diag.Wrap(diag.KindIO, err, "pkgstate: read %s", n)
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func shortRandom() string {
	return uuid.New().String()
}
