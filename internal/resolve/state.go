package resolve

import "github.com/bpkg-toolchain/bpkg/internal/ver"

// PackageKey identifies one selected package slot: a name within a
// specific configuration (by directory), matching spec.md §4.6's
// package_key.
type PackageKey struct {
	ConfigDir string
	Name      ver.Name
}

// Origin distinguishes why a package ended up at its selected version.
type Origin int

const (
	OriginRoot Origin = iota
	OriginDependency
)

// Selection is the resolver's current choice for one PackageKey.
type Selection struct {
	Key     PackageKey
	Version ver.Version
	Origin  Origin
	Pkg     Package
	// AltChoice records, per DependsEntry index, which Alternative index
	// was chosen (and how many were tried, for backtracking).
	AltChoice []int
	AltTried  [][]bool
}

// ConfigVarOrigin mirrors C3's VariableSource, tracked here so the
// resolver can detect override events during negotiation.
type ConfigVarOrigin struct {
	Value       string
	FromBuiltin bool // default/buildfile value, not attributable to any dependent
	SetBy       PackageKey
	HasSetBy    bool
}

// PackageConfig is the resolver's live view of one selected package's
// configuration-variable values, keyed by variable name.
type PackageConfig map[string]ConfigVarOrigin

// JointSnapshot captures a set of dependency configs' variable values at
// one point in negotiation, used for the change-history cycle check.
type JointSnapshot map[PackageKey]PackageConfig

// ChangeEvent is one (old, new) joint-configuration override recorded
// when a negotiation changes a variable previously owned by a different
// dependent.
type ChangeEvent struct {
	Dependent PackageKey
	Old       JointSnapshot
	New       JointSnapshot
}

// Clone returns a deep-enough copy of cfg for snapshotting (values are
// immutable strings, so a shallow map copy suffices per variable).
func (cfg PackageConfig) Clone() PackageConfig {
	out := make(PackageConfig, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	return out
}
