package fetchcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveThenLookupMetadata(t *testing.T) {
	c, err := Open(t.TempDir(), false)
	require.NoError(t, err)
	defer c.Close()

	url := "https://example.org/1/stable"
	_, ok := c.Lookup(url)
	assert.False(t, ok)

	require.NoError(t, c.Save(MetadataEntry{URL: url, PackagesSum: "abc123"}))

	e, ok := c.Lookup(url)
	require.True(t, ok)
	assert.Equal(t, "abc123", e.PackagesSum)
	assert.False(t, c.NeedsRevalidation(e))
}

func TestSharedSourceReferenceCounting(t *testing.T) {
	c, err := Open(t.TempDir(), true)
	require.NoError(t, err)
	defer c.Close()

	e := SharedSourceEntry{PackageID: "libfoo", Version: "1.0.0", Directory: c.SharedSourceDir("libfoo", "1.0.0")}
	require.NoError(t, c.ReferenceSharedSource(e, "/cfg/a"))
	require.NoError(t, c.ReferenceSharedSource(e, "/cfg/b"))

	got, ok := c.LookupSharedSource("libfoo", "1.0.0")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"/cfg/a", "/cfg/b"}, got.Configurations)

	require.NoError(t, c.UnreferenceSharedSource("libfoo", "1.0.0", "/cfg/a"))
	got, ok = c.LookupSharedSource("libfoo", "1.0.0")
	require.True(t, ok)
	assert.Equal(t, []string{"/cfg/b"}, got.Configurations)
}

func TestGCSkipsReferencedSources(t *testing.T) {
	c, err := Open(t.TempDir(), true)
	require.NoError(t, err)
	defer c.Close()

	e := SharedSourceEntry{PackageID: "libfoo", Version: "1.0.0", Directory: c.SharedSourceDir("libfoo", "1.0.0")}
	require.NoError(t, c.ReferenceSharedSource(e, "/cfg/a"))

	stats, err := c.GC(-time.Hour) // horizon in the past: everything looks stale by age
	require.NoError(t, err)
	assert.Equal(t, 0, stats.SourcesRemoved, "referenced sources must survive GC regardless of age")
}
