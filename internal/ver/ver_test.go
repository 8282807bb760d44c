package ver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1: version satisfaction against a closed, revision-less [1.0 2.0].
func TestSatisfaction_S1(t *testing.T) {
	c, err := ParseConstraint("[1.0 2.0]")
	require.NoError(t, err)

	satisfy := []string{"1.0", "1.0+1", "2.0", "2.0+0"}
	for _, s := range satisfy {
		v, err := Parse(s)
		require.NoError(t, err)
		assert.True(t, Satisfies(v, c), "%s should satisfy %s", s, c)
	}

	v, err := Parse("0.9")
	require.NoError(t, err)
	assert.False(t, Satisfies(v, c), "0.9 is below the range floor")
}

// S2: constraint-over-constraint per the literal scenario text.
func TestConstraintOverConstraint_S2(t *testing.T) {
	tight, err := ParseConstraint("[1.0+0 2.0]")
	require.NoError(t, err)
	loose, err := ParseConstraint("[1.0 2.0]")
	require.NoError(t, err)

	assert.True(t, ConstraintSatisfies(tight, loose))
	assert.False(t, ConstraintSatisfies(loose, tight))

	caret, err := ParseConstraint("^1.0.0")
	require.NoError(t, err)
	assert.True(t, ConstraintSatisfies(caret, caret))
}

func TestConstraintStringRoundTrip(t *testing.T) {
	c, err := ParseConstraint("[1.0 2.0]")
	require.NoError(t, err)
	assert.Equal(t, "[1.0 2.0]", c.String())
}

func TestVersionStringRoundTrip(t *testing.T) {
	for _, s := range []string{"1.0", "1.0+1", "1~2.0-beta+3#4", "*"} {
		v, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, s, v.String())
	}
}

func TestWildcardSatisfiesAnyConstraint(t *testing.T) {
	c, err := ParseConstraint("==9.9.9")
	require.NoError(t, err)
	assert.True(t, Satisfies(Wildcard, c))
}

func TestNameGrammar(t *testing.T) {
	for _, s := range []string{"libfoo", "lib-foo_bar.1+x"} {
		n, err := ParseName(s)
		require.NoError(t, err)
		assert.True(t, n.Valid())
	}
	_, err := ParseName("lib/foo")
	assert.Error(t, err)

	a, err := ParseName("LibFoo")
	require.NoError(t, err)
	b, err := ParseName("libfoo")
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}
