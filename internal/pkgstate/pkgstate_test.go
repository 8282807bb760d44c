package pkgstate

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpkg-toolchain/bpkg/internal/dbstore"
	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

func openTestConfig(t *testing.T) (*dbstore.Handle, string) {
	t.Helper()
	dir := t.TempDir()
	h, err := dbstore.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h, dir
}

func TestFetchVerifiesChecksum(t *testing.T) {
	h, dir := openTestConfig(t)
	name := ver.Name("libfoo")
	version, err := ver.Parse("1.0.0")
	require.NoError(t, err)

	payload := []byte("not a real archive")
	src := FetchSource{
		Open:      func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(payload)), nil },
		SHA256Sum: "0000000000000000000000000000000000000000000000000000000000000000",
	}

	err = Fetch(h, dir, name, version, src)
	assert.Error(t, err)

	sum, _ := sha256File(bytes.NewReader(payload))
	src.SHA256Sum = sum
	require.NoError(t, Fetch(h, dir, name, version, src))

	sel, err := Load(h, name)
	require.NoError(t, err)
	require.NotNil(t, sel)
	assert.Equal(t, StateFetched, sel.State)
}

func TestPurgeRefusesConfigured(t *testing.T) {
	h, dir := openTestConfig(t)
	name := ver.Name("libfoo")
	version, err := ver.Parse("1.0.0")
	require.NoError(t, err)

	payload := []byte("archive bytes")
	sum, _ := sha256File(bytes.NewReader(payload))
	require.NoError(t, Fetch(h, dir, name, version, FetchSource{
		Open:      func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(payload)), nil },
		SHA256Sum: sum,
	}))

	tx, err := h.Begin()
	require.NoError(t, err)
	_, err = tx.Exec(`UPDATE selected_package SET state = 'configured' WHERE name = ?`, name.String())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	err = Purge(h, name, PurgeOptions{})
	assert.Error(t, err)
}
