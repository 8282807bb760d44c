package pkgstate

import (
	"os"

	"github.com/bpkg-toolchain/bpkg/internal/dbstore"
	"github.com/bpkg-toolchain/bpkg/internal/diag"
	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

// PurgeOptions controls the edge cases in spec.md §4.2's Purge operation.
type PurgeOptions struct {
	Keep  bool // keep the archive even if purge_archive was set
	Force bool // allow purging a broken row
}

// Purge implements spec.md §4.2's Purge operation: removes the source
// directory (iff PurgeSrc), optionally the archive (iff PurgeArchive and
// not Keep), and erases the row. System-substate packages are erased
// unconditionally. A broken row is refused unless Force, and even then
// only after confirming no artifact remains on disk.
func Purge(h *dbstore.Handle, name ver.Name, opts PurgeOptions) error {
	sel, err := Load(h, name)
	if err != nil {
		return err
	}
	if sel == nil {
		return diag.New(diag.KindPrecondition, "pkgstate: %s is not selected", name)
	}

	if sel.Substate == SubstateSystem {
		return deleteRow(h, sel.ID)
	}

	if sel.State == StateBroken {
		if !opts.Force {
			return diag.New(diag.KindPrecondition, "pkgstate: %s is broken; purge requires --force", name)
		}
		if sel.SrcRoot != "" {
			if _, err := os.Stat(sel.SrcRoot); err == nil {
				return diag.New(diag.KindState, "pkgstate: refusing to purge %s: %s still exists on disk", name, sel.SrcRoot)
			}
		}
		if sel.ArchivePath != "" {
			if _, err := os.Stat(sel.ArchivePath); err == nil {
				return diag.New(diag.KindState, "pkgstate: refusing to purge %s: %s still exists on disk", name, sel.ArchivePath)
			}
		}
		return deleteRow(h, sel.ID)
	}

	if sel.State == StateConfigured {
		return diag.New(diag.KindPrecondition, "pkgstate: %s is still configured; disfigure first", name)
	}

	dependents, err := DependentsOf(h, sel)
	if err != nil {
		return err
	}
	if len(dependents) > 0 {
		return diag.New(diag.KindPrecondition, "pkgstate: cannot purge %s: still required by %v", name, dependents)
	}

	if sel.PurgeSrc && sel.SrcRoot != "" {
		if err := os.RemoveAll(sel.SrcRoot); err != nil {
			return diag.Wrap(diag.KindIO, err, "pkgstate: remove source directory %s", sel.SrcRoot)
		}
	}
	if sel.PurgeArchive && !opts.Keep && sel.ArchivePath != "" {
		if err := os.Remove(sel.ArchivePath); err != nil && !os.IsNotExist(err) {
			return diag.Wrap(diag.KindIO, err, "pkgstate: remove archive %s", sel.ArchivePath)
		}
	}

	return deleteRow(h, sel.ID)
}

func deleteRow(h *dbstore.Handle, id int64) error {
	tx, err := h.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM selected_package WHERE id = ?`, id); err != nil {
		return diag.Wrap(diag.KindState, err, "pkgstate: erase row %d", id)
	}
	return tx.Commit()
}
