package cli

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/bpkg-toolchain/bpkg/internal/diag"
)

// sha256OfFile hashes path, used by the manual `bpkg fetch --file` path
// to supply the checksum pkgstate.Fetch otherwise expects a repository's
// packages.manifest to have advertised.
func sha256OfFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", diag.Wrap(diag.KindIO, err, "cli: open %s", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", diag.Wrap(diag.KindIO, err, "cli: hash %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
