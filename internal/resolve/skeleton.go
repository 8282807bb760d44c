// Package resolve implements the dependency resolver and configuration
// negotiator (C7): the backtracking search over selected versions and
// package configuration variable values described in spec.md §4.6.
package resolve

import "github.com/bpkg-toolchain/bpkg/internal/ver"

// VarValue is one configuration variable's current value.
type VarValue struct {
	Name  string
	Value string
}

// Skeleton is a sandboxed build-system evaluator for one selected
// package, able to answer the questions the resolver needs without
// actually configuring the package.
type Skeleton interface {
	// ReloadDefaults returns the package's default configuration variable
	// values as declared in its buildfiles.
	ReloadDefaults() ([]VarValue, error)
	// EvaluateEnable evaluates an alternative's enable clause.
	EvaluateEnable(clause string) (bool, error)
	// EvaluateReflect evaluates an alternative's reflect clause, producing
	// variable bindings exported to the dependent's own configuration.
	EvaluateReflect(clause string) ([]VarValue, error)
	// EvaluatePreferAccept proposes bindings for the named dependency
	// configurations per the prefer clause, then evaluates whether the
	// resulting joint configuration is acceptable per the accept clause.
	EvaluatePreferAccept(preferClause, acceptClause string, deps map[string][]VarValue) (proposed map[string][]VarValue, accepted bool, err error)
	// EvaluateRequire asserts require-clause conditions, returning the
	// variable bindings it sets (laxMode permits only boolean-true
	// assignments, used when a dependency is a system package whose
	// defaults cannot be loaded).
	EvaluateRequire(clause string, deps map[string][]VarValue, laxMode bool) (map[string][]VarValue, error)
	// LoadOverrides returns user-specified overrides for this package's
	// variables (origin=override).
	LoadOverrides() ([]VarValue, error)
}

// PackageRef is one constrained package reference inside an alternative.
type PackageRef struct {
	Name       ver.Name
	Constraint *ver.Constraint
	Buildtime  bool // true for '*'-marked build-time references
}

// Alternative is one conjunction of PackageRefs plus optional clauses.
// Prefer/Accept and Require are mutually exclusive per spec.md §4.6.
type Alternative struct {
	Refs          []PackageRef
	Enable        string
	Reflect       string
	PreferClause  string
	AcceptClause  string
	RequireClause string
}

func (a Alternative) hasNegotiation() bool {
	return a.PreferClause != "" || a.RequireClause != ""
}

// DependsEntry is one disjunction of Alternatives, at a specific source
// line for diagnostics.
type DependsEntry struct {
	Line         int
	Alternatives []Alternative
}

// Package is the dependency-syntax view of a selected package: its
// ordered depends entries, exposed by the caller (materialized from the
// package's manifest).
type Package struct {
	Name    ver.Name
	Version ver.Version
	Depends []DependsEntry
}
