package dbstore

import (
	"database/sql"
	"errors"

	"github.com/bpkg-toolchain/bpkg/internal/diag"
)

// RepositoryRow is one repository a configuration has been told about
// via rep-add, independent of any fragment content fetched for it (that
// content lives only in the C5 fetch cache).
type RepositoryRow struct {
	ID            int64
	Location      string
	CanonicalName string
	Certificate   string
	Masked        bool
}

// AddRepository records a newly added repository in h, per spec.md
// §4.3's rep-add. It refuses a canonical-name collision rather than
// silently overwriting an existing entry's location.
func AddRepository(h *Handle, location, canonicalName, certificate string) error {
	tx, err := h.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing string
	row := tx.QueryRow(`SELECT location FROM config_repository WHERE canonical_name = ?`, canonicalName)
	switch err := row.Scan(&existing); {
	case errors.Is(err, sql.ErrNoRows):
		// fall through to insert
	case err != nil:
		return diag.Wrap(diag.KindState, err, "dbstore: look up repository %s", canonicalName)
	default:
		if existing != location {
			return diag.New(diag.KindPrecondition,
				"dbstore: repository %s is already added at a different location (%s)", canonicalName, existing)
		}
		return tx.Commit()
	}

	if _, err := tx.Exec(`INSERT INTO config_repository (location, canonical_name, certificate) VALUES (?, ?, ?)`,
		location, canonicalName, nullableString(certificate)); err != nil {
		return diag.Wrap(diag.KindState, err, "dbstore: add repository %s", canonicalName)
	}
	return tx.Commit()
}

// ListRepositories returns every repository row added to h, in
// insertion order.
func ListRepositories(h *Handle) ([]RepositoryRow, error) {
	rows, err := h.DB.Query(`SELECT id, location, canonical_name, COALESCE(certificate, ''), masked
		FROM config_repository ORDER BY id`)
	if err != nil {
		return nil, diag.Wrap(diag.KindState, err, "dbstore: list repositories of %s", h.Dir)
	}
	defer rows.Close()

	var out []RepositoryRow
	for rows.Next() {
		var r RepositoryRow
		if err := rows.Scan(&r.ID, &r.Location, &r.CanonicalName, &r.Certificate, &r.Masked); err != nil {
			return nil, diag.Wrap(diag.KindState, err, "dbstore: scan repository row of %s", h.Dir)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RemoveRepository deletes the repository named canonicalName from h,
// per spec.md §4.3's rep-remove.
func RemoveRepository(h *Handle, canonicalName string) error {
	tx, err := h.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM config_repository WHERE canonical_name = ?`, canonicalName)
	if err != nil {
		return diag.Wrap(diag.KindState, err, "dbstore: remove repository %s", canonicalName)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return diag.New(diag.KindPrecondition, "dbstore: no repository %s in %s", canonicalName, h.Dir)
	}
	return tx.Commit()
}

// SetRepositoryMasked updates the masked flag of a previously-added
// repository row, mirroring the in-memory mask applied to repo.Graph for
// the lifetime of one command invocation.
func SetRepositoryMasked(h *Handle, canonicalName string, masked bool) error {
	tx, err := h.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE config_repository SET masked = ? WHERE canonical_name = ?`, masked, canonicalName); err != nil {
		return diag.Wrap(diag.KindState, err, "dbstore: set masked flag on repository %s", canonicalName)
	}
	return tx.Commit()
}
