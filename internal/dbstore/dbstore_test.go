package dbstore

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesSelfRow(t *testing.T) {
	dir := t.TempDir()

	h, err := Open(dir)
	require.NoError(t, err)
	defer h.Close()

	assert.NotEmpty(t, h.UUID)
	assert.Equal(t, "target", h.Type)
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	h1, err := Open(dir)
	require.NoError(t, err)
	uuid1 := h1.UUID
	require.NoError(t, h1.Close())

	h2, err := Open(dir)
	require.NoError(t, err)
	defer h2.Close()

	assert.Equal(t, uuid1, h2.UUID)
}

func TestLinkCreatesMutualRows(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	a, err := Open(dirA)
	require.NoError(t, err)
	defer a.Close()

	b, err := Open(dirB)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, Link(a, dirB, LinkOptions{}))

	linksA, err := a.links()
	require.NoError(t, err)
	require.Len(t, linksA, 1)
	assert.Equal(t, b.UUID, linksA[0].uuid)
	assert.True(t, linksA[0].explicit)

	linksB, err := b.links()
	require.NoError(t, err)
	require.Len(t, linksB, 1)
	assert.Equal(t, a.UUID, linksB[0].uuid)
	assert.False(t, linksB[0].explicit)
}

func TestUnlinkRemovesBothRows(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	a, err := Open(dirA)
	require.NoError(t, err)
	defer a.Close()

	b, err := Open(dirB)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, Link(a, dirB, LinkOptions{Name: "b"}))
	require.NoError(t, Unlink(a, b.UUID, false))

	linksA, err := a.links()
	require.NoError(t, err)
	assert.Empty(t, linksA, "explicit row in A must be gone")

	linksB, err := b.links()
	require.NoError(t, err)
	assert.Empty(t, linksB, "implicit mirror row in B must be gone too")
}

func TestUnlinkDemotesMutualExplicitMirror(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	a, err := Open(dirA)
	require.NoError(t, err)
	defer a.Close()

	b, err := Open(dirB)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, Link(a, dirB, LinkOptions{Name: "b"}))
	require.NoError(t, Link(b, dirA, LinkOptions{Name: "a"}))

	linksB, err := b.links()
	require.NoError(t, err)
	require.Len(t, linksB, 1)
	require.True(t, linksB[0].explicit, "mutual link: B's mirror is promoted to explicit")

	require.NoError(t, Unlink(a, b.UUID, false))

	linksA, err := a.links()
	require.NoError(t, err)
	assert.Empty(t, linksA)

	linksB, err = b.links()
	require.NoError(t, err)
	require.Len(t, linksB, 1, "a mutual-explicit mirror is demoted, not removed")
	assert.False(t, linksB[0].explicit)
}

func TestUnlinkPrivateRemovesMirrorAndDirectory(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	a, err := Open(dirA)
	require.NoError(t, err)
	defer a.Close()

	b, err := Open(dirB)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, Link(a, dirB, LinkOptions{Name: "b"}))
	require.NoError(t, Unlink(a, b.UUID, true))

	linksA, err := a.links()
	require.NoError(t, err)
	assert.Empty(t, linksA)

	_, err = os.Stat(dirB)
	assert.True(t, os.IsNotExist(err), "private unlink must delete the target configuration's directory")
}

func TestLinkRejectsSelfLink(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir)
	require.NoError(t, err)
	defer a.Close()

	err = Link(a, dir, LinkOptions{})
	assert.Error(t, err)
}

func TestOpenDirsTracksOpenHandles(t *testing.T) {
	dir := t.TempDir()
	h, err := Open(dir)
	require.NoError(t, err)

	found := false
	for _, d := range OpenDirs() {
		if d == h.Dir {
			found = true
		}
	}
	assert.True(t, found)

	require.NoError(t, h.Close())

	for _, d := range OpenDirs() {
		assert.NotEqual(t, h.Dir, d)
	}
}
