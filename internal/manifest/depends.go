package manifest

import (
	"fmt"
	"strings"

	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

// DependsRef is one constrained package reference inside an alternative,
// per spec.md §4.6's dependency syntax: a name, an optional constraint
// after a '/', and a leading '*' marking a build-time reference.
type DependsRef struct {
	Name       ver.Name
	Constraint *ver.Constraint
	Buildtime  bool
}

// DependsAlternative is one conjunction of refs plus its optional
// enable/reflect and mutually-exclusive prefer+accept/require clauses.
type DependsAlternative struct {
	Refs    []DependsRef
	Enable  string
	Reflect string
	Prefer  string
	Accept  string
	Require string
}

// DependsEntry is one disjunction of alternatives, at the source line it
// appeared on within the package's manifest.
type DependsEntry struct {
	Line         int
	Alternatives []DependsAlternative
}

// ParseDepends parses every "depends" field of p, in order, into
// structured entries. A field's 1-based position among the depends
// fields stands in for Line, since the line-oriented grammar parser
// (Parse in grammar.go) does not currently retain source line numbers
// per field.
func ParseDepends(p Package) ([]DependsEntry, error) {
	entries := make([]DependsEntry, 0, len(p.DependsRaw))
	for i, raw := range p.DependsRaw {
		e, err := parseDependsEntry(raw, i+1)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func parseDependsEntry(raw string, line int) (DependsEntry, error) {
	e := DependsEntry{Line: line}
	for _, part := range strings.Split(raw, "|") {
		alt, err := parseAlternative(strings.TrimSpace(part))
		if err != nil {
			return DependsEntry{}, fmt.Errorf("manifest: depends entry at line %d: %w", line, err)
		}
		e.Alternatives = append(e.Alternatives, alt)
	}
	return e, nil
}

// parseAlternative parses one alternative: a run of whitespace-separated
// package references, optionally followed by a "{ clause: ...; ... }"
// block.
func parseAlternative(s string) (DependsAlternative, error) {
	var alt DependsAlternative
	body := s
	if i := strings.IndexByte(s, '{'); i >= 0 {
		if !strings.HasSuffix(s, "}") {
			return alt, fmt.Errorf("unterminated clause block in %q", s)
		}
		body = strings.TrimSpace(s[:i])
		if err := parseClauses(s[i+1:len(s)-1], &alt); err != nil {
			return alt, err
		}
	}

	for _, tok := range strings.Fields(body) {
		ref, err := parseRef(tok)
		if err != nil {
			return alt, err
		}
		alt.Refs = append(alt.Refs, ref)
	}
	if len(alt.Refs) == 0 {
		return alt, fmt.Errorf("alternative has no package references: %q", s)
	}
	if alt.Prefer != "" && alt.Require != "" {
		return alt, fmt.Errorf("alternative specifies both prefer/accept and require: %q", s)
	}
	return alt, nil
}

func parseRef(tok string) (DependsRef, error) {
	var ref DependsRef
	if strings.HasPrefix(tok, "*") {
		ref.Buildtime = true
		tok = tok[1:]
	}
	name, constraintStr, hasConstraint := strings.Cut(tok, "/")
	n, err := ver.ParseName(name)
	if err != nil {
		return ref, fmt.Errorf("invalid package name %q: %w", name, err)
	}
	ref.Name = n
	if hasConstraint && constraintStr != "" {
		c, err := ver.ParseConstraint(constraintStr)
		if err != nil {
			return ref, fmt.Errorf("invalid constraint for %q: %w", name, err)
		}
		ref.Constraint = &c
	}
	return ref, nil
}

func parseClauses(s string, alt *DependsAlternative) error {
	for _, stmt := range strings.Split(s, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		key, value, ok := strings.Cut(stmt, ":")
		if !ok {
			return fmt.Errorf("malformed clause %q", stmt)
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "enable":
			alt.Enable = value
		case "reflect":
			alt.Reflect = value
		case "prefer":
			alt.Prefer = value
		case "accept":
			alt.Accept = value
		case "require":
			alt.Require = value
		default:
			return fmt.Errorf("unknown clause %q", key)
		}
	}
	return nil
}
