package pkgstate

import (
	"github.com/bpkg-toolchain/bpkg/internal/dbstore"
	"github.com/bpkg-toolchain/bpkg/internal/diag"
	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

// DropOptions controls dependent handling for Drop.
type DropOptions struct {
	DropDependents bool // also drop transitive dependents instead of failing
	Yes            bool // suppress the confirmation that would otherwise be required
	Driver         string
	PurgeOptions   PurgeOptions
}

// Drop implements spec.md §4.2's Drop operation: disfigure-then-purge for
// name plus, when requested, its transitive dependents. Without
// DropDependents, the presence of any dependent is a precondition
// failure (the interactive confirmation prompt itself is a CLI-layer
// concern; Drop only enforces the Yes gate once dependents are found).
func Drop(h *dbstore.Handle, name ver.Name, opts DropOptions) error {
	order, err := dropOrder(h, name)
	if err != nil {
		return err
	}
	if len(order) > 1 && !opts.DropDependents {
		return diag.New(diag.KindPrecondition,
			"pkgstate: %s has dependents %v; pass --drop-dependent to remove them too", name, order[:len(order)-1])
	}
	if len(order) > 1 && !opts.Yes {
		return diag.New(diag.KindPrecondition, "pkgstate: dropping %s and its dependents requires confirmation", name)
	}

	for _, n := range order {
		sel, err := Load(h, n)
		if err != nil {
			return err
		}
		if sel == nil {
			continue
		}
		if sel.State == StateConfigured {
			if err := Disfigure(h, n, opts.Driver, false); err != nil {
				return err
			}
		}
		if err := Purge(h, n, opts.PurgeOptions); err != nil {
			return err
		}
	}
	return nil
}

// dropOrder returns [transitive dependents..., name] innermost-dependent
// first, so each can be disfigured before the package it depends on.
func dropOrder(h *dbstore.Handle, name ver.Name) ([]ver.Name, error) {
	visited := map[ver.Name]bool{}
	var order []ver.Name

	var visit func(n ver.Name) error
	visit = func(n ver.Name) error {
		if visited[n] {
			return nil
		}
		visited[n] = true
		sel, err := Load(h, n)
		if err != nil {
			return err
		}
		if sel != nil {
			dependents, err := DependentsOf(h, sel)
			if err != nil {
				return err
			}
			for _, d := range dependents {
				if err := visit(ver.Name(d)); err != nil {
					return err
				}
			}
		}
		order = append(order, n)
		return nil
	}
	if err := visit(name); err != nil {
		return nil, err
	}
	return order, nil
}
