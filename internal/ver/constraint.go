package ver

import (
	"fmt"
	"strconv"
	"strings"
)

// Endpoint is one side of an interval constraint.
type Endpoint struct {
	V    Version
	Open bool // true: strict (exclusive); false: inclusive
}

// Constraint is a half-open or closed interval [min,max], or an equality
// constraint when Eq is true. A nil Min means unbounded below; a nil Max
// means unbounded above.
type Constraint struct {
	Eq  bool
	Min *Endpoint
	Max *Endpoint
}

// Equality builds an equality constraint.
func Equality(v Version) Constraint {
	return Constraint{Eq: true, Min: &Endpoint{V: v}, Max: &Endpoint{V: v}}
}

// Interval builds a closed/half-open interval constraint.
func Interval(min, max *Endpoint) Constraint {
	return Constraint{Min: min, Max: max}
}

// endpointAllowsRevision reports whether endpoint e (the high end when
// isMax is set) admits v's revision, implementing spec.md's rule that an
// absent revision means "earliest revision" at the low end and "any
// revision" at the high end.
func endpointAllowsRevision(e *Endpoint, isMax bool, v Version) bool {
	if e.V.Revision != nil {
		// explicit revision on the endpoint: compare revision too.
		return true
	}
	if isMax {
		// absent revision at the high end: "any revision" — always satisfied
		// regardless of v's own revision, as long as upstream/release/epoch match.
		return true
	}
	// absent revision at the low end: "earliest revision" means the
	// endpoint's floor is revision 0, so every revision of this same
	// upstream/release is at or above the floor and satisfies it.
	return true
}

// Satisfies reports whether v satisfies c, using default (revision-
// ignoring unless the endpoint pins one, iteration-ignoring) comparison
// per spec.md §3/§8 invariant 3.
func Satisfies(v Version, c Constraint) bool {
	if v.IsWildcard() {
		return true
	}
	if c.Eq {
		return satisfiesEq(v, *c.Min)
	}
	if c.Min != nil && !satisfiesLowerBound(v, *c.Min) {
		return false
	}
	if c.Max != nil && !satisfiesUpperBound(v, *c.Max) {
		return false
	}
	return true
}

func satisfiesEq(v Version, e Endpoint) bool {
	base := Compare(v, e.V, CompareOptions{Revision: e.V.Revision != nil})
	if base != 0 {
		return false
	}
	if e.V.Revision != nil {
		return true
	}
	return endpointAllowsRevision(&e, false, v)
}

func satisfiesLowerBound(v Version, e Endpoint) bool {
	cmpOpts := CompareOptions{Revision: e.V.Revision != nil}
	c := Compare(v, e.V, cmpOpts)
	switch {
	case c > 0:
		return true
	case c < 0:
		return false
	default:
		if e.Open {
			return false
		}
		return endpointAllowsRevision(&e, false, v)
	}
}

func satisfiesUpperBound(v Version, e Endpoint) bool {
	cmpOpts := CompareOptions{Revision: e.V.Revision != nil}
	c := Compare(v, e.V, cmpOpts)
	switch {
	case c < 0:
		return true
	case c > 0:
		return false
	default:
		if e.Open {
			return false
		}
		return endpointAllowsRevision(&e, true, v)
	}
}

// normalizedEndpoint returns a concrete comparison version for an
// endpoint on the given side, resolving an absent revision per spec.md's
// "stricter-than" normalization rule: absent revision is treated as
// revision 0 at the low end and as +inf at the high end.
func normalizedEndpoint(e *Endpoint, isMax bool) (Version, bool) {
	if e == nil {
		return Version{}, false
	}
	v := e.V
	if v.Revision == nil {
		if isMax {
			// "any revision": represent as +inf by bumping iteration-independent
			// sentinel — comparison callers must treat nil-max-revision as
			// greater than any concrete revision, handled explicitly below.
			return v, true
		}
		zero := uint16(0)
		v.Revision = &zero
	}
	return v, true
}

// StricterThan reports whether constraint l is stricter than constraint r,
// i.e. every version satisfying l also satisfies r (l ⊆ r), using
// endpoint-version comparison after normalizing absent revisions by
// endpoint side and openness, per spec.md §3.
func StricterThan(l, r Constraint) bool {
	// l's lower bound must be >= r's lower bound (l starts no earlier... no,
	// l's interval must be contained: l.min >= r.min and l.max <= r.max).
	if !lowerBoundWithin(l.effectiveMin(), r.effectiveMin()) {
		return false
	}
	if !upperBoundWithin(l.effectiveMax(), r.effectiveMax()) {
		return false
	}
	return true
}

func (c Constraint) effectiveMin() *Endpoint {
	if c.Eq {
		return c.Min
	}
	return c.Min
}

func (c Constraint) effectiveMax() *Endpoint {
	if c.Eq {
		return c.Max
	}
	return c.Max
}

// lowerBoundWithin reports whether lower bound "l" is at least as strict
// (>=) as lower bound "r": nil (unbounded) is least strict.
func lowerBoundWithin(l, r *Endpoint) bool {
	if r == nil {
		return true
	}
	if l == nil {
		return false
	}
	if base := Compare(l.V, r.V, CompareOptions{}); base != 0 {
		return base > 0
	}
	// same (epoch, upstream, release): an explicit revision pin is strictly
	// more specific than an absent one ("earliest revision" as written, but
	// covering every revision once resolved against a concrete version —
	// see endpointAllowsRevision) and so is always within the unpinned
	// floor; the reverse is not, since the unpinned floor does not commit
	// to any one revision.
	switch {
	case l.V.Revision != nil && r.V.Revision == nil:
		return true
	case l.V.Revision == nil && r.V.Revision != nil:
		return false
	}
	lv, _ := normalizedEndpoint(l, false)
	rv, _ := normalizedEndpoint(r, false)
	c := Compare(lv, rv, CompareOptions{Revision: true})
	switch {
	case c > 0:
		return true
	case c < 0:
		return false
	default:
		// equal version: l is within r iff l is not looser-open than r,
		// i.e. r open implies l must also be open (or l strictly greater,
		// handled above); l closed & r open is NOT within (l admits the
		// boundary point that r excludes).
		if r.Open && !l.Open {
			return false
		}
		return true
	}
}

// upperBoundWithin reports whether upper bound "l" is at least as strict
// (<=) as upper bound "r": nil (unbounded) is least strict.
func upperBoundWithin(l, r *Endpoint) bool {
	if r == nil {
		return true
	}
	if l == nil {
		return false
	}
	// "any revision" (nil revision at the max side) is the loosest possible
	// upper bound for a given (epoch,upstream,release); treat it as +inf
	// only when comparing same upstream/release, otherwise fall through to
	// normal comparison which will already differ on upstream/release.
	if l.V.Revision == nil && r.V.Revision != nil &&
		Compare(l.V, r.V, CompareOptions{}) == 0 {
		return false
	}
	lv, _ := normalizedEndpoint(l, true)
	rv, _ := normalizedEndpoint(r, true)
	c := Compare(lv, rv, CompareOptions{Revision: true})
	switch {
	case c < 0:
		return true
	case c > 0:
		return false
	default:
		if r.Open && !l.Open {
			return false
		}
		return true
	}
}

// ConstraintSatisfies reports whether every version satisfying l also
// satisfies r — the constraint-over-constraint relation named
// "satisfies(l, r)" in spec.md's scenario S2. It is an alias of
// StricterThan kept for naming parity with the spec's scenario text.
func ConstraintSatisfies(l, r Constraint) bool { return StricterThan(l, r) }

// ParseConstraint parses the textual forms spec.md's scenario S2 and the
// §8 round-trip property exercise: "==v" equality, "[min max]"/"(min
// max)"/mixed-openness intervals with either side blank for unbounded,
// and the "^v" caret shorthand (satisfied by v up to, but excluding, the
// next bump of v's leading dot-separated upstream component — plain
// reflexive sugar, since bpkg upstream components are not required to be
// numeric).
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "=="):
		v, err := Parse(strings.TrimSpace(s[2:]))
		if err != nil {
			return Constraint{}, fmt.Errorf("ver: invalid equality constraint %q: %w", s, err)
		}
		return Equality(v), nil
	case strings.HasPrefix(s, "^"):
		return caretConstraint(strings.TrimSpace(s[1:]))
	case len(s) >= 2 && (s[0] == '[' || s[0] == '('):
		return parseInterval(s)
	default:
		v, err := Parse(s)
		if err != nil {
			return Constraint{}, fmt.Errorf("ver: invalid constraint %q: %w", s, err)
		}
		return Equality(v), nil
	}
}

func parseInterval(s string) (Constraint, error) {
	openMin := s[0] == '('
	closeByte := s[len(s)-1]
	if closeByte != ']' && closeByte != ')' {
		return Constraint{}, fmt.Errorf("ver: constraint %q missing closing bracket", s)
	}
	openMax := closeByte == ')'
	body := strings.TrimSpace(s[1 : len(s)-1])
	parts := strings.SplitN(body, " ", 2)
	minS := strings.TrimSpace(parts[0])
	maxS := ""
	if len(parts) > 1 {
		maxS = strings.TrimSpace(parts[1])
	}

	var min, max *Endpoint
	if minS != "" {
		v, err := Parse(minS)
		if err != nil {
			return Constraint{}, fmt.Errorf("ver: invalid constraint min %q: %w", s, err)
		}
		min = &Endpoint{V: v, Open: openMin}
	}
	if maxS != "" {
		v, err := Parse(maxS)
		if err != nil {
			return Constraint{}, fmt.Errorf("ver: invalid constraint max %q: %w", s, err)
		}
		max = &Endpoint{V: v, Open: openMax}
	}
	return Interval(min, max), nil
}

// caretConstraint builds [v, bump) where bump increments the first
// numeric leading component of v's upstream and zeroes the rest, falling
// back to an unbounded-above interval when upstream has no numeric
// leading component to bump.
func caretConstraint(vs string) (Constraint, error) {
	v, err := Parse(vs)
	if err != nil {
		return Constraint{}, fmt.Errorf("ver: invalid caret constraint %q: %w", vs, err)
	}
	parts := strings.SplitN(v.Upstream, ".", 2)
	n, convErr := strconv.Atoi(parts[0])
	if convErr != nil {
		return Interval(&Endpoint{V: v}, nil), nil
	}
	bumped := v
	bumped.Release = nil
	bumped.Revision = nil
	bumped.Iteration = 0
	bumped.Upstream = strconv.Itoa(n + 1)
	return Interval(&Endpoint{V: v}, &Endpoint{V: bumped, Open: true}), nil
}

// String renders the constraint in the "[min max]"/"==v" textual form
// used by spec.md's scenario S2 and the round-trip property in §8.
func (c Constraint) String() string {
	if c.Eq {
		return "==" + c.Min.V.String()
	}
	lb, ub := "[", "]"
	if c.Min != nil && c.Min.Open {
		lb = "("
	}
	if c.Max != nil && c.Max.Open {
		ub = ")"
	}
	minS, maxS := "", ""
	if c.Min != nil {
		minS = c.Min.V.String()
	}
	if c.Max != nil {
		maxS = c.Max.V.String()
	}
	return fmt.Sprintf("%s%s %s%s", lb, minS, maxS, ub)
}
