package pkgstate

import (
	"os/exec"
	"path/filepath"

	"github.com/bpkg-toolchain/bpkg/internal/dbstore"
	"github.com/bpkg-toolchain/bpkg/internal/diag"
	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

// VariableSource records where a configuration variable's value came
// from: the resolver's negotiation decided this, not this package.
type VariableSource int

const (
	SourceDefault VariableSource = iota
	SourceBuildfile
	SourceOverride
	SourceUndefined
)

func (s VariableSource) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceBuildfile:
		return "buildfile"
	case SourceOverride:
		return "override"
	default:
		return "undefined"
	}
}

// Variable is one resolved configuration variable value plus its origin.
type Variable struct {
	Name      string
	Value     string
	Origin    VariableSource
	SetByDir  string // configuration directory of the originating dependent, if buildfile-origin
	SetByID   int64
}

// Prerequisite is one resolved lazy pointer to a configured dependency,
// with the alternative/entry it was chosen to satisfy.
type Prerequisite struct {
	DependsIndex int
	AltIndex     int
	Dep          dbstore.Ptr
	Constraint   string
}

// Configure implements spec.md §4.2's Configure operation: it invokes the
// build-system driver against the package's src_root, writes the already
// -decided prerequisite set and configuration variables, and promotes the
// row to configured. Which version/alternative satisfies each depends
// entry is decided upstream by the resolver (C7); this function only
// materializes that decision.
func Configure(h *dbstore.Handle, cfgDir string, name ver.Name, prereqs []Prerequisite, vars []Variable, driver string) error {
	sel, err := Load(h, name)
	if err != nil {
		return err
	}
	if sel == nil || sel.State != StateUnpacked {
		return diag.New(diag.KindPrecondition, "pkgstate: %s is not unpacked", name)
	}

	outRoot := filepath.Join(cfgDir, name.String())
	cmd := exec.Command(driver, "configure", sel.SrcRoot, "@"+outRoot)
	if out, err := cmd.CombinedOutput(); err != nil {
		return diag.Wrap(diag.KindSubprocess, err, "pkgstate: configure %s", name).WithInfo("%s", out)
	}

	tx, err := h.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, p := range prereqs {
		_, err := tx.Exec(`INSERT INTO prerequisite (dependent_id, depends_index, alt_index, dep_config_dir, dep_package_id, constraint_str)
			VALUES (?, ?, ?, ?, ?, ?)`, sel.ID, p.DependsIndex, p.AltIndex, p.Dep.DB.Dir, p.Dep.ID, p.Constraint)
		if err != nil {
			markBroken(tx, sel.ID)
			tx.Commit()
			return diag.Wrap(diag.KindState, err, "pkgstate: record prerequisite %d for %s", i, name)
		}
	}
	for _, v := range vars {
		_, err := tx.Exec(`INSERT OR REPLACE INTO config_variable (package_id, name, value, origin, set_by_dir, set_by_id)
			VALUES (?, ?, ?, ?, ?, ?)`, sel.ID, v.Name, v.Value, v.Origin.String(), nullableDir(v.SetByDir), v.SetByID)
		if err != nil {
			markBroken(tx, sel.ID)
			tx.Commit()
			return diag.Wrap(diag.KindState, err, "pkgstate: record variable %s for %s", v.Name, name)
		}
	}

	_, err = tx.Exec(`UPDATE selected_package SET out_root = ?, state = 'configured' WHERE id = ?`, outRoot, sel.ID)
	if err != nil {
		markBroken(tx, sel.ID)
		tx.Commit()
		return diag.Wrap(diag.KindState, err, "pkgstate: promote %s to configured", name)
	}
	return tx.Commit()
}

func nullableDir(s string) any {
	if s == "" {
		return nil
	}
	return s
}
