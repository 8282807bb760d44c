package pkgstate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/bpkg-toolchain/bpkg/internal/dbstore"
	"github.com/bpkg-toolchain/bpkg/internal/diag"
	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

// FetchSource is where the archive bytes for a fetch come from: a stream
// (typically HTTP or a cache hit) plus the checksum advertised by the
// repository's packages.manifest.
type FetchSource struct {
	Open           func() (io.ReadCloser, error)
	SHA256Sum      string
	SharedSrcMode  bool // archive referenced in place; purge_archive stays false
	InPlacePath    string
}

// Fetch implements spec.md §4.2's Fetch operation: it places (or
// references, in shared-src mode) an archive for (name, version), binds
// it to the selected row with state=fetched, and verifies its checksum.
// If a selected package of the same name already exists its archive is
// stashed before the new one is written, so a failure can restore it.
func Fetch(h *dbstore.Handle, cfgDir string, name ver.Name, version ver.Version, src FetchSource) error {
	existing, err := Load(h, name)
	if err != nil {
		return err
	}

	destDir := filepath.Join(cfgDir, ".bpkg", "archives")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return diag.Wrap(diag.KindIO, err, "pkgstate: create archive directory %s", destDir)
	}
	destPath := filepath.Join(destDir, fmt.Sprintf("%s-%s.tar.gz", name, version))

	var stashPath string
	if existing != nil && existing.ArchivePath != "" {
		stashPath = existing.ArchivePath + fmt.Sprintf(".stash-%s", uuid.New().String())
		if err := os.Rename(existing.ArchivePath, stashPath); err != nil {
			return diag.Wrap(diag.KindIO, err, "pkgstate: stash existing archive for %s", name)
		}
	}

	restoreStash := func() {
		if stashPath != "" {
			os.Rename(stashPath, existing.ArchivePath)
		}
	}

	archivePath := destPath
	sum := ""
	purgeArchive := true

	if src.SharedSrcMode {
		archivePath = src.InPlacePath
		purgeArchive = false
		f, err := os.Open(archivePath)
		if err != nil {
			restoreStash()
			return diag.Wrap(diag.KindIO, err, "pkgstate: open shared-src archive %s", archivePath)
		}
		sum, err = sha256File(f)
		f.Close()
		if err != nil {
			restoreStash()
			return err
		}
		if sum != src.SHA256Sum {
			restoreStash()
			return diag.New(diag.KindIntegrity,
				"pkgstate: checksum mismatch for %s-%s: manifest says %s, archive is %s", name, version, src.SHA256Sum, sum)
		}
	} else {
		tmpPath := destPath + fmt.Sprintf(".tmp-%s", uuid.New().String())
		if err := writeArchive(tmpPath, src); err != nil {
			restoreStash()
			return err
		}
		f, err := os.Open(tmpPath)
		if err != nil {
			os.Remove(tmpPath)
			restoreStash()
			return diag.Wrap(diag.KindIO, err, "pkgstate: reopen fetched archive %s", tmpPath)
		}
		sum, err = sha256File(f)
		f.Close()
		if err != nil {
			os.Remove(tmpPath)
			restoreStash()
			return err
		}
		if sum != src.SHA256Sum {
			os.Remove(tmpPath)
			restoreStash()
			return diag.New(diag.KindIntegrity,
				"pkgstate: checksum mismatch for %s-%s: manifest says %s, archive is %s", name, version, src.SHA256Sum, sum)
		}
		if err := os.Rename(tmpPath, destPath); err != nil {
			os.Remove(tmpPath)
			restoreStash()
			return diag.Wrap(diag.KindIO, err, "pkgstate: place fetched archive at %s", destPath)
		}
	}

	tx, err := h.Begin()
	if err != nil {
		restoreStash()
		return err
	}
	defer tx.Rollback()

	if existing == nil {
		_, err = tx.Exec(`INSERT INTO selected_package (name, version, state, archive_path, purge_archive)
			VALUES (?, ?, 'fetched', ?, ?)`, name.String(), version.String(), archivePath, purgeArchive)
	} else {
		_, err = tx.Exec(`UPDATE selected_package SET version = ?, state = 'fetched', archive_path = ?,
			purge_archive = ?, src_root = NULL, out_root = NULL WHERE id = ?`,
			version.String(), archivePath, purgeArchive, existing.ID)
	}
	if err != nil {
		if existing != nil {
			markBroken(tx, existing.ID)
			tx.Commit()
		}
		restoreStash()
		return diag.Wrap(diag.KindState, err, "pkgstate: record fetched row for %s", name)
	}

	if err := tx.Commit(); err != nil {
		restoreStash()
		return err
	}

	if stashPath != "" {
		os.Remove(stashPath)
	}
	return nil
}

func writeArchive(path string, src FetchSource) error {
	rc, err := src.Open()
	if err != nil {
		return diag.Wrap(diag.KindTransient, err, "pkgstate: open fetch source")
	}
	defer rc.Close()

	f, err := os.Create(path)
	if err != nil {
		return diag.Wrap(diag.KindIO, err, "pkgstate: create %s", path)
	}
	defer f.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return diag.Wrap(diag.KindTransient, err, "pkgstate: download archive")
	}
	return nil
}

func sha256File(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", diag.Wrap(diag.KindIO, err, "pkgstate: checksum archive")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
