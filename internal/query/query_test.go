package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpkg-toolchain/bpkg/internal/repo"
	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

func mustVersion(t *testing.T, s string) ver.Version {
	t.Helper()
	v, err := ver.Parse(s)
	require.NoError(t, err)
	return v
}

func TestFindAvailableMergesAndSortsDescending(t *testing.T) {
	existing := NewExistingPackages(
		repo.AvailablePackage{Name: "libfoo", Version: mustVersion(t, "1.0.0")}.WithOrigin("cli"),
		repo.AvailablePackage{Name: "libfoo", Version: mustVersion(t, "2.0.0")}.WithOrigin("cli"),
	)

	out, err := FindAvailable(context.Background(), []Source{existing}, "libfoo", nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "2.0.0", out[0].Version.String())
	assert.Equal(t, "1.0.0", out[1].Version.String())
}

func TestFindAvailableIgnoresRevisionByDefault(t *testing.T) {
	existing := NewExistingPackages(
		repo.AvailablePackage{Name: "libfoo", Version: mustVersion(t, "1")}.WithOrigin("cli"),
	)
	c := ver.Equality(mustVersion(t, "1+1"))

	out, err := FindAvailable(context.Background(), []Source{existing}, "libfoo", &c)
	require.NoError(t, err)
	assert.Len(t, out, 1, "revision should be ignored by default comparison")
}

func TestStubsOnlyMatchDeclaredNames(t *testing.T) {
	stubs := NewStubs("zlib")

	out, err := FindAvailable(context.Background(), []Source{stubs}, "zlib", nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Version.IsWildcard())

	out, err = FindAvailable(context.Background(), []Source{stubs}, "openssl", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
