package repo

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bpkg-toolchain/bpkg/internal/diag"
)

// GitRef is one matched reference from a git repository: a friendly name
// (branch or tag), the commit it resolves to, and its commit timestamp.
type GitRef struct {
	Name      string
	Commit    string
	Timestamp time.Time
}

// GitFetcher manages the dedicated working clone for a git repository
// location, stored under stateDir/<12-char-sha256-of-canonical-name>.
type GitFetcher struct {
	StateDir string
	Offline  bool
}

// checkoutDir returns the dedicated clone directory for canonicalName.
func (g *GitFetcher) checkoutDir(canonicalName string) string {
	sum := sha256.Sum256([]byte(canonicalName))
	return filepath.Join(g.StateDir, hex.EncodeToString(sum[:])[:12])
}

// EnsureClone initializes (or reuses) the dedicated working clone for
// loc, and returns its directory.
func (g *GitFetcher) EnsureClone(ctx context.Context, loc Location) (string, error) {
	canonical, err := loc.CanonicalName()
	if err != nil {
		return "", err
	}
	dir := g.checkoutDir(canonical)
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	}
	if g.Offline {
		return "", diag.New(diag.KindTransient, "repo: offline mode: no cached clone for %s", loc.Raw)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", diag.Wrap(diag.KindIO, err, "repo: prepare git state directory")
	}
	cmd := exec.CommandContext(ctx, "git", "init", "--bare", dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", diag.Wrap(diag.KindSubprocess, err, "repo: git init %s", dir).WithInfo("%s", out)
	}
	cmd = exec.CommandContext(ctx, "git", "-C", dir, "remote", "add", "origin", loc.Raw)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", diag.Wrap(diag.KindSubprocess, err, "repo: git remote add").WithInfo("%s", out)
	}
	return dir, nil
}

// ListRemoteRefs runs git ls-remote against loc and parses branch/tag
// refs, used to resolve fragment filters before fetching only the
// matching commits.
func (g *GitFetcher) ListRemoteRefs(ctx context.Context, loc Location) ([]GitRef, error) {
	if g.Offline {
		return nil, diag.New(diag.KindTransient, "repo: offline mode: cannot list remote refs for %s", loc.Raw)
	}
	cmd := exec.CommandContext(ctx, "git", "ls-remote", "--heads", "--tags", loc.Raw)
	out, err := cmd.Output()
	if err != nil {
		return nil, diag.Wrap(diag.KindSubprocess, err, "repo: git ls-remote %s", loc.Raw)
	}

	var refs []GitRef
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}
		commit, ref := fields[0], fields[1]
		name := strings.TrimPrefix(ref, "refs/heads/")
		name = strings.TrimPrefix(name, "refs/tags/")
		if name == ref {
			continue // not a branch or tag
		}
		refs = append(refs, GitRef{Name: name, Commit: commit})
	}
	return refs, nil
}

// MatchFragmentFilter filters refs against the comma-separated glob
// filter carried in a git location's fragment (e.g. "master,v*").
func MatchFragmentFilter(refs []GitRef, fragment string) []GitRef {
	if fragment == "" {
		return refs
	}
	patterns := strings.Split(fragment, ",")
	var out []GitRef
	for _, r := range refs {
		for _, p := range patterns {
			if ok, _ := path.Match(strings.TrimSpace(p), r.Name); ok {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// FetchRefs fetches only the matched commits into the dedicated clone.
func (g *GitFetcher) FetchRefs(ctx context.Context, dir string, refs []GitRef) error {
	if g.Offline {
		return diag.New(diag.KindTransient, "repo: offline mode: cannot fetch git refs into %s", dir)
	}
	if len(refs) == 0 {
		return nil
	}
	args := []string{"-C", dir, "fetch", "--depth=1", "origin"}
	for _, r := range refs {
		args = append(args, r.Commit)
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return diag.Wrap(diag.KindSubprocess, err, "repo: git fetch in %s", dir).WithInfo("%s", out)
	}
	return nil
}
