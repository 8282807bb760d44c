package pkgstate

import (
	"os/exec"

	"github.com/bpkg-toolchain/bpkg/internal/dbstore"
	"github.com/bpkg-toolchain/bpkg/internal/diag"
	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

// DependentsOf reports the configured packages (in any database reachable
// from h) that still depend on name as a prerequisite. Disfigure and
// Purge both refuse while this is non-empty.
func DependentsOf(h *dbstore.Handle, sel *Selected) ([]string, error) {
	others, err := dbstore.DependentConfigs(h)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, d := range append([]*dbstore.Handle{h}, others...) {
		rows, err := d.DB.Query(`SELECT sp.name FROM prerequisite p
			JOIN selected_package sp ON sp.id = p.dependent_id
			WHERE p.dep_config_dir = ? AND p.dep_package_id = ?`, h.Dir, sel.ID)
		if err != nil {
			return nil, diag.Wrap(diag.KindState, err, "pkgstate: find dependents of %s", sel.Name)
		}
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				rows.Close()
				return nil, diag.Wrap(diag.KindState, err, "pkgstate: scan dependent of %s", sel.Name)
			}
			names = append(names, n)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, diag.Wrap(diag.KindState, err, "pkgstate: find dependents of %s", sel.Name)
		}
	}
	return names, nil
}

// Disfigure implements spec.md §4.2's Disfigure operation: it fails if
// any other package still depends on this one, runs the build system's
// disfigure (and optionally clean), and on success clears out_root and
// demotes the row to unpacked. A build-system failure instead commits a
// broken row and re-raises.
func Disfigure(h *dbstore.Handle, name ver.Name, driver string, clean bool) error {
	sel, err := Load(h, name)
	if err != nil {
		return err
	}
	if sel == nil || sel.State != StateConfigured {
		return diag.New(diag.KindPrecondition, "pkgstate: %s is not configured", name)
	}

	dependents, err := DependentsOf(h, sel)
	if err != nil {
		return err
	}
	if len(dependents) > 0 {
		return diag.New(diag.KindPrecondition,
			"pkgstate: cannot disfigure %s: still required by %v", name, dependents)
	}

	out, buildErr := exec.Command(driver, "disfigure", sel.OutRoot).CombinedOutput()
	if buildErr == nil && clean {
		out, buildErr = exec.Command(driver, "clean", sel.OutRoot).CombinedOutput()
	}
	if buildErr != nil {
		tx, err := h.Begin()
		if err != nil {
			return err
		}
		if err := markBroken(tx, sel.ID); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		return diag.Wrap(diag.KindSubprocess, buildErr, "pkgstate: disfigure %s", name).WithInfo("%s", out)
	}

	tx, err := h.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM prerequisite WHERE dependent_id = ?`, sel.ID); err != nil {
		markBroken(tx, sel.ID)
		tx.Commit()
		return diag.Wrap(diag.KindState, err, "pkgstate: clear prerequisites of %s", name)
	}
	if _, err := tx.Exec(`DELETE FROM config_variable WHERE package_id = ?`, sel.ID); err != nil {
		markBroken(tx, sel.ID)
		tx.Commit()
		return diag.Wrap(diag.KindState, err, "pkgstate: clear variables of %s", name)
	}
	if _, err := tx.Exec(`UPDATE selected_package SET out_root = NULL, state = 'unpacked' WHERE id = ?`, sel.ID); err != nil {
		markBroken(tx, sel.ID)
		tx.Commit()
		return diag.Wrap(diag.KindState, err, "pkgstate: demote %s to unpacked", name)
	}
	return tx.Commit()
}
