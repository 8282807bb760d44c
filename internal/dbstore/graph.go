package dbstore

import (
	"path/filepath"

	"github.com/bpkg-toolchain/bpkg/internal/diag"
	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

type linkRow struct {
	uuid     string
	path     string
	typ      string
	explicit bool
}

func (h *Handle) links() ([]linkRow, error) {
	rows, err := h.DB.Query(`SELECT uuid, path, type, explicit FROM config_link`)
	if err != nil {
		return nil, diag.Wrap(diag.KindState, err, "dbstore: list links of %s", h.Dir)
	}
	defer rows.Close()
	var out []linkRow
	for rows.Next() {
		var r linkRow
		if err := rows.Scan(&r.uuid, &r.path, &r.typ, &r.explicit); err != nil {
			return nil, diag.Wrap(diag.KindState, err, "dbstore: scan link row of %s", h.Dir)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// resolveLink opens the configuration referenced by r, given that h is
// already open, using the attached-handle cache when possible.
func (h *Handle) resolveLink(r linkRow) (*Handle, error) {
	for _, a := range h.Attached() {
		if a.UUID == r.uuid {
			return a, nil
		}
	}
	other, ok := (*Handle)(nil), false
	if abs, err := filepath.Abs(r.path); err == nil {
		other, ok = Lookup(abs)
	}
	if !ok {
		var err error
		if other, err = Open(r.path); err != nil {
			return nil, err
		}
	}
	h.Attach(other)
	return other, nil
}

// DependencyConfigs implements spec.md §4.1's "dependency configs of D for
// package P, buildtime flag b" walk. buildtime is a *bool: nil means
// "unspecified".
func DependencyConfigs(d *Handle, pkg ver.Name, buildtime *bool) ([]*Handle, error) {
	wantBuild2 := pkg.IsBuild2Module()

	var allowed func(linkType string) bool
	switch {
	case buildtime == nil:
		allowed = func(t string) bool { return t == d.Type || t == "host" || t == "build2" }
	case !*buildtime:
		allowed = func(t string) bool { return t == d.Type }
	default:
		if wantBuild2 {
			allowed = func(t string) bool { return t == "build2" }
		} else {
			allowed = func(t string) bool { return t == "host" }
		}
	}

	seen := map[string]bool{d.UUID: true}
	out := []*Handle{d}
	var walk func(h *Handle) error
	walk = func(h *Handle) error {
		rows, err := h.links()
		if err != nil {
			return err
		}
		for _, r := range rows {
			if seen[r.uuid] || !allowed(r.typ) {
				continue
			}
			other, err := h.resolveLink(r)
			if err != nil {
				return err
			}
			seen[other.UUID] = true
			out = append(out, other)
			// Only descend through like-typed links, per spec.md:
			// buildtime dependency configs are not themselves traversed
			// further across type boundaries.
			if r.typ == h.Type {
				if err := walk(other); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(d); err != nil {
		return nil, err
	}
	return out, nil
}

// DependentConfigs implements spec.md §4.1's "dependent configs of D"
// walk: the transitive closure in the implicit-link direction, including
// a link iff its type matches D's or D is host/build2.
func DependentConfigs(d *Handle) ([]*Handle, error) {
	typeMatches := func(t string) bool {
		return t == d.Type || d.Type == "host" || d.Type == "build2"
	}

	seen := map[string]bool{d.UUID: true}
	var out []*Handle
	var walk func(h *Handle) error
	walk = func(h *Handle) error {
		rows, err := h.links()
		if err != nil {
			return err
		}
		for _, r := range rows {
			if r.explicit || seen[r.uuid] || !typeMatches(r.typ) {
				continue
			}
			other, err := h.resolveLink(r)
			if err != nil {
				return err
			}
			seen[other.UUID] = true
			out = append(out, other)
			if err := walk(other); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(d); err != nil {
		return nil, err
	}
	return out, nil
}
