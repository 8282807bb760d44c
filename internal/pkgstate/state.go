// Package pkgstate implements the package state machine (C3): fetch,
// unpack, configure, disfigure, purge and drop, each maintaining the
// invariant that a selected package's database row reflects its on-disk
// state or is marked broken.
package pkgstate

import (
	"database/sql"
	"errors"

	"github.com/bpkg-toolchain/bpkg/internal/dbstore"
	"github.com/bpkg-toolchain/bpkg/internal/diag"
	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

// State is the coarse lifecycle stage of a selected package.
type State int

const (
	StateFetched State = iota
	StateUnpacked
	StateConfigured
	StateBroken
)

func (s State) String() string {
	switch s {
	case StateFetched:
		return "fetched"
	case StateUnpacked:
		return "unpacked"
	case StateConfigured:
		return "configured"
	case StateBroken:
		return "broken"
	default:
		return "unknown"
	}
}

func parseState(s string) State {
	switch s {
	case "unpacked":
		return StateUnpacked
	case "configured":
		return StateConfigured
	case "broken":
		return StateBroken
	default:
		return StateFetched
	}
}

// Substate distinguishes ordinarily-managed packages from system
// packages and held (user-pinned) ones.
type Substate int

const (
	SubstateNone Substate = iota
	SubstateSystem
	SubstateHeld
)

func (s Substate) String() string {
	switch s {
	case SubstateSystem:
		return "system"
	case SubstateHeld:
		return "held"
	default:
		return "none"
	}
}

func parseSubstate(s string) Substate {
	switch s {
	case "system":
		return SubstateSystem
	case "held":
		return SubstateHeld
	default:
		return SubstateNone
	}
}

// Selected is one row of the selected_package table: a package bound to a
// specific version within one configuration, with its lifecycle state.
type Selected struct {
	ID                 int64
	Name               ver.Name
	Version            ver.Version
	State              State
	Substate           Substate
	SrcRoot            string
	OutRoot            string
	PurgeSrc           bool
	PurgeArchive       bool
	ArchivePath        string
	ManifestChecksum   string
	BuildfilesChecksum string
}

// Load reads the selected_package row named name from h, if any.
func Load(h *dbstore.Handle, name ver.Name) (*Selected, error) {
	row := h.DB.QueryRow(`SELECT id, name, version, state, substate, COALESCE(src_root,''),
		COALESCE(out_root,''), purge_src, purge_archive, COALESCE(archive_path,''),
		COALESCE(manifest_checksum,''), COALESCE(buildfiles_checksum,'')
		FROM selected_package WHERE name = ?`, name.String())

	var s Selected
	var nameStr, versionStr, stateStr, substateStr string
	err := row.Scan(&s.ID, &nameStr, &versionStr, &stateStr, &substateStr, &s.SrcRoot,
		&s.OutRoot, &s.PurgeSrc, &s.PurgeArchive, &s.ArchivePath, &s.ManifestChecksum, &s.BuildfilesChecksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, diag.Wrap(diag.KindState, err, "pkgstate: load %s from %s", name, h.Dir)
	}
	s.Name = ver.Name(nameStr)
	s.Version, err = ver.Parse(versionStr)
	if err != nil {
		return nil, diag.Wrap(diag.KindState, err, "pkgstate: parse stored version of %s", name)
	}
	s.State = parseState(stateStr)
	s.Substate = parseSubstate(substateStr)
	return &s, nil
}

// markBroken transitions the row to broken within tx, used by every
// operation's failure path per spec.md §4.2's crash semantics.
func markBroken(tx *dbstore.Tx, id int64) error {
	if _, err := tx.Exec(`UPDATE selected_package SET state = 'broken' WHERE id = ?`, id); err != nil {
		return diag.Wrap(diag.KindState, err, "pkgstate: mark package %d broken", id)
	}
	return nil
}
