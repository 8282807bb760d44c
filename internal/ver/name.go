package ver

import (
	"fmt"
	"strings"
)

// Name is a package name, case-insensitively compared, validated against
// the grammar in spec.md §3: letters, digits, '-', '_', '+', '.'.
type Name string

// Valid reports whether n conforms to the package-name grammar.
func (n Name) Valid() bool {
	if len(n) == 0 {
		return false
	}
	for _, r := range string(n) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '+' || r == '.':
		default:
			return false
		}
	}
	return true
}

// ParseName validates and normalizes s into a Name.
func ParseName(s string) (Name, error) {
	n := Name(s)
	if !n.Valid() {
		return "", fmt.Errorf("ver: invalid package name %q", s)
	}
	return n, nil
}

// Equal compares two names case-insensitively, per spec.md §3.
func (n Name) Equal(o Name) bool {
	return strings.EqualFold(string(n), string(o))
}

// String implements fmt.Stringer.
func (n Name) String() string { return string(n) }

// IsBuild2Module reports whether n names a build2 module package
// (the "libbuild2-*" prefix used by spec.md §4.1's dependency-config
// search to route build-time dependencies to the build2 configuration
// type rather than host).
func (n Name) IsBuild2Module() bool {
	return strings.HasPrefix(strings.ToLower(string(n)), "libbuild2-")
}
