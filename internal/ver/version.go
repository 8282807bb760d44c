// Package ver implements bpkg's version and constraint algebra: the
// ordered (epoch, upstream, release, revision, iteration) tuple described
// in the data model, and the half-open/closed interval constraints that
// are satisfied against it.
package ver

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a strictly ordered tuple. Release is nil for a "final"
// release and points to an empty string for the earliest-pre-release
// sentinel used as a range floor. Revision is nil to mean "earliest
// revision" (low end) / "any revision" (high end), context-dependent —
// callers resolve that ambiguity via the Endpoint side it appears on.
type Version struct {
	Epoch     uint16
	Upstream  string
	Release   *string
	Revision  *uint16
	Iteration uint16
}

// Wildcard is the designated version that satisfies any constraint and
// represents an unconstrained system package (substate "system").
var Wildcard = Version{Upstream: "*"}

// IsWildcard reports whether v is the wildcard version.
func (v Version) IsWildcard() bool { return v.Upstream == "*" }

// earliestPreRelease returns a pointer to the empty string, used to mark
// a version as the earliest pre-release of its upstream+epoch.
func earliestPreRelease() *string { s := ""; return &s }

// IsEarliestPreRelease reports whether v's release is the empty-string
// sentinel marking a range floor.
func (v Version) IsEarliestPreRelease() bool {
	return v.Release != nil && *v.Release == ""
}

// CompareOptions controls which normally-ignored fields participate in
// comparison.
type CompareOptions struct {
	// Revision, when false (default), makes comparison ignore revision.
	Revision bool
	// Iteration, when false (default), makes comparison ignore iteration.
	// Per spec.md, iteration is *always* ignored unless explicitly
	// requested, independent of the Revision flag.
	Iteration bool
}

// Compare returns -1, 0 or 1 comparing a to b under opts. The wildcard
// version compares equal only to itself and is otherwise considered
// greater than every concrete version (so a version-descending sort
// places it first, ahead of every concrete candidate).
func Compare(a, b Version, opts CompareOptions) int {
	if a.IsWildcard() || b.IsWildcard() {
		switch {
		case a.IsWildcard() && b.IsWildcard():
			return 0
		case a.IsWildcard():
			return 1
		default:
			return -1
		}
	}

	if a.Epoch != b.Epoch {
		return cmpUint16(a.Epoch, b.Epoch)
	}
	if c := strings.Compare(a.Upstream, b.Upstream); c != 0 {
		return sign(c)
	}
	if c := compareRelease(a.Release, b.Release); c != 0 {
		return c
	}
	if opts.Revision {
		if c := compareRevision(a.Revision, b.Revision); c != 0 {
			return c
		}
	}
	if opts.Iteration {
		if a.Iteration != b.Iteration {
			return cmpUint16(a.Iteration, b.Iteration)
		}
	}
	return 0
}

// compareRelease orders: earliest-pre-release (empty string) < any named
// pre-release (lexicographic) < no release (final) at the high end.
func compareRelease(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil: // a is "final", sorts after any release
		return 1
	case b == nil:
		return -1
	default:
		return sign(strings.Compare(*a, *b))
	}
}

// compareRevision treats a nil revision as "earliest" (0) for ordering
// purposes; callers needing the endpoint-dependent "any revision"
// semantics handle that at the Endpoint level, not here.
func compareRevision(a, b *uint16) int {
	var av, bv uint16
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return cmpUint16(av, bv)
}

func cmpUint16(a, b uint16) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func sign(c int) int {
	switch {
	case c < 0:
		return -1
	case c > 0:
		return 1
	default:
		return 0
	}
}

// Equal is Compare == 0 using default (revision- and iteration-ignoring)
// comparison, matching the constraint-satisfaction default in spec.md.
func Equal(a, b Version) bool {
	return Compare(a, b, CompareOptions{}) == 0
}

// String renders the canonical textual form: epoch~upstream-release+revision#iteration,
// omitting absent components.
func (v Version) String() string {
	var b strings.Builder
	if v.Epoch != 0 {
		fmt.Fprintf(&b, "%d~", v.Epoch)
	}
	b.WriteString(v.Upstream)
	if v.Release != nil {
		b.WriteByte('-')
		b.WriteString(*v.Release)
	}
	if v.Revision != nil {
		fmt.Fprintf(&b, "+%d", *v.Revision)
	}
	if v.Iteration != 0 {
		fmt.Fprintf(&b, "#%d", v.Iteration)
	}
	return b.String()
}

// Parse parses the canonical textual form produced by String, plus the
// bare wildcard spelling "*".
func Parse(s string) (Version, error) {
	if s == "*" {
		return Wildcard, nil
	}
	var v Version
	rest := s

	if i := strings.IndexByte(rest, '~'); i >= 0 {
		n, err := strconv.ParseUint(rest[:i], 10, 16)
		if err != nil {
			return Version{}, fmt.Errorf("ver: invalid epoch in %q: %w", s, err)
		}
		v.Epoch = uint16(n)
		rest = rest[i+1:]
	}

	if i := strings.IndexByte(rest, '#'); i >= 0 {
		n, err := strconv.ParseUint(rest[i+1:], 10, 16)
		if err != nil {
			return Version{}, fmt.Errorf("ver: invalid iteration in %q: %w", s, err)
		}
		v.Iteration = uint16(n)
		rest = rest[:i]
	}

	if i := strings.IndexByte(rest, '+'); i >= 0 {
		n, err := strconv.ParseUint(rest[i+1:], 10, 16)
		if err != nil {
			return Version{}, fmt.Errorf("ver: invalid revision in %q: %w", s, err)
		}
		r := uint16(n)
		v.Revision = &r
		rest = rest[:i]
	}

	if i := strings.IndexByte(rest, '-'); i >= 0 {
		release := rest[i+1:]
		v.Release = &release
		rest = rest[:i]
	}

	if rest == "" {
		return Version{}, fmt.Errorf("ver: empty upstream in %q", s)
	}
	v.Upstream = rest
	return v, nil
}

// EarliestPreRelease returns a copy of v with an empty release marking
// it as the earliest pre-release of v's (epoch, upstream), used to build
// a range floor ("2.0+1-" style endpoint in spec.md's scenario S1).
func (v Version) EarliestPreRelease() Version {
	v.Release = earliestPreRelease()
	v.Revision = nil
	return v
}
