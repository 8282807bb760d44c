package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDependsSimple(t *testing.T) {
	p := Package{DependsRaw: []string{"libfoo/^1.2.0"}}
	entries, err := ParseDepends(p)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Alternatives, 1)
	alt := entries[0].Alternatives[0]
	require.Len(t, alt.Refs, 1)
	assert.Equal(t, "libfoo", alt.Refs[0].Name.String())
	require.NotNil(t, alt.Refs[0].Constraint)
}

func TestParseDependsDisjunctionAndBuildtime(t *testing.T) {
	p := Package{DependsRaw: []string{"libfoo/^1.0.0 | libbar/^2.0.0", "*build2/^0.13.0"}}
	entries, err := ParseDepends(p)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	require.Len(t, first.Alternatives, 2)
	assert.Equal(t, "libfoo", first.Alternatives[0].Refs[0].Name.String())
	assert.Equal(t, "libbar", first.Alternatives[1].Refs[0].Name.String())

	second := entries[1]
	require.Len(t, second.Alternatives, 1)
	ref := second.Alternatives[0].Refs[0]
	assert.True(t, ref.Buildtime)
	assert.Equal(t, "build2", ref.Name.String())
}

func TestParseDependsClauses(t *testing.T) {
	p := Package{DependsRaw: []string{"libfoo/^1.0.0 { enable: true; reflect: config.libfoo.backend=cpp }"}}
	entries, err := ParseDepends(p)
	require.NoError(t, err)
	alt := entries[0].Alternatives[0]
	assert.Equal(t, "true", alt.Enable)
	assert.Equal(t, "config.libfoo.backend=cpp", alt.Reflect)
}

func TestParseDependsRejectsPreferAndRequireTogether(t *testing.T) {
	p := Package{DependsRaw: []string{"libfoo/^1.0.0 { prefer: ($libfoo.v); accept: true; require: true }"}}
	_, err := ParseDepends(p)
	assert.Error(t, err)
}
