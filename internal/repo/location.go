// Package repo implements the repository model and fetch pipeline (C4):
// pkg/dir/git repository locations, the repository-fragment graph with
// complement/prerequisite edges, masking, and the pkg-repository
// authentication pipeline. Transport is done by concrete fetcher types
// (PkgFetcher over HTTP, GitFetcher through the git binary); no interface
// abstracts it.
package repo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"runtime"
	"strings"
)

// Scheme identifies the kind of repository location.
type Scheme int

const (
	SchemePkg Scheme = iota
	SchemeDir
	SchemeGit
)

func (s Scheme) String() string {
	switch s {
	case SchemePkg:
		return "pkg"
	case SchemeDir:
		return "dir"
	case SchemeGit:
		return "git"
	default:
		return "unknown"
	}
}

// Location is a typed repository URL, per spec.md §3.
type Location struct {
	Scheme Scheme
	Raw    string // the original location string, e.g. "https://example.org/1/stable"
	// Fragment carries a git ref filter (e.g. "master,v*") when Scheme
	// is SchemeGit; empty otherwise.
	Fragment string
}

// ParseLocation parses a location string into a typed Location.
func ParseLocation(s string) (Location, error) {
	switch {
	case strings.HasPrefix(s, "git+") || strings.HasSuffix(strings.SplitN(s, "#", 2)[0], ".git"):
		raw := strings.TrimPrefix(s, "git+")
		base, frag, _ := strings.Cut(raw, "#")
		return Location{Scheme: SchemeGit, Raw: base, Fragment: frag}, nil
	case strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://"):
		return Location{Scheme: SchemePkg, Raw: s}, nil
	case strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../"):
		return Location{Scheme: SchemeDir, Raw: s}, nil
	default:
		return Location{}, fmt.Errorf("repo: cannot classify location %q", s)
	}
}

// Serialize renders l back to its external string form; ParseLocation
// must round-trip it exactly (spec.md §8's round-trip property).
func (l Location) Serialize() string {
	switch l.Scheme {
	case SchemeGit:
		s := l.Raw
		if !strings.HasSuffix(s, ".git") {
			s = "git+" + s
		}
		if l.Fragment != "" {
			s += "#" + l.Fragment
		}
		return s
	default:
		return l.Raw
	}
}

// IsArchiveBased reports whether l is archive-based (pkg) as opposed to
// directory-based/version-control-based (dir, git).
func (l Location) IsArchiveBased() bool { return l.Scheme == SchemePkg }

// CanonicalName derives the canonical name of the repository at l, per
// spec.md §3's scheme-specific rules: host+normalized-path for remote
// pkg locations, abbreviated SHA-256 of a canonicalized form for git,
// lowercased on Windows for local (dir) locations.
func (l Location) CanonicalName() (string, error) {
	switch l.Scheme {
	case SchemePkg:
		u, err := url.Parse(l.Raw)
		if err != nil {
			return "", fmt.Errorf("repo: invalid pkg location %q: %w", l.Raw, err)
		}
		return u.Host + normalizePath(u.Path), nil
	case SchemeGit:
		canon := l.Raw
		if l.Fragment != "" {
			canon += "#" + l.Fragment
		}
		sum := sha256.Sum256([]byte(canon))
		return hex.EncodeToString(sum[:])[:12], nil
	case SchemeDir:
		p := normalizePath(l.Raw)
		if runtime.GOOS == "windows" {
			p = strings.ToLower(p)
		}
		return p, nil
	default:
		return "", fmt.Errorf("repo: unknown scheme")
	}
}

func normalizePath(p string) string {
	p = path.Clean(p)
	return strings.TrimSuffix(p, "/")
}
