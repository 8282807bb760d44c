// Package app wires C2-C7 into the operations the CLI front-end invokes:
// opening configurations and the fetch cache, loading repository graphs,
// adapting them to the resolver's Backend/Skeleton interfaces, and
// running the fetch/unpack/configure state machine against a resolved
// plan.
package app

import (
	"log/slog"
	"net/url"
	"sync"

	"github.com/bpkg-toolchain/bpkg/internal/config"
	"github.com/bpkg-toolchain/bpkg/internal/dbstore"
	"github.com/bpkg-toolchain/bpkg/internal/diag"
	"github.com/bpkg-toolchain/bpkg/internal/fetchcache"
	"github.com/bpkg-toolchain/bpkg/internal/repo"
)

// App holds the long-lived state one CLI invocation wires together: the
// merged configuration, logger, and fetch cache, plus the per-configDir
// repository graphs and database handles built up over the invocation.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Cache  *fetchcache.Cache

	pkgFetcher *repo.PkgFetcher
	dirFetcher repo.DirFetcher
	gitFetcher *repo.GitFetcher

	mu     sync.Mutex
	graphs map[string]*repo.Graph
}

// New opens the fetch cache and builds an App ready to service
// repository/resolve/pkgstate operations.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	cache, err := fetchcache.Open(cfg.FetchCachePath, cfg.SharedSrc)
	if err != nil {
		return nil, err
	}

	var proxy *url.URL
	if cfg.PkgProxy != "" {
		proxy, err = url.Parse(cfg.PkgProxy)
		if err != nil {
			cache.Close()
			return nil, diag.Wrap(diag.KindUserInput, err, "app: invalid pkg_proxy %q", cfg.PkgProxy)
		}
	}

	return &App{
		Config:     cfg,
		Logger:     logger,
		Cache:      cache,
		pkgFetcher: repo.NewPkgFetcher(nil, proxy, cfg.Offline),
		gitFetcher: &repo.GitFetcher{StateDir: cache.Root + "/git", Offline: cfg.Offline},
		graphs:     map[string]*repo.Graph{},
	}, nil
}

// Close releases the fetch cache and every configuration database opened
// during this invocation.
func (a *App) Close() error {
	for _, dir := range dbstore.OpenDirs() {
		if h, ok := dbstore.Lookup(dir); ok {
			h.Close()
		}
	}
	return a.Cache.Close()
}

// openHandle opens (or reuses, via the process-wide registry) the
// configuration database at configDir.
func (a *App) openHandle(configDir string) (*dbstore.Handle, error) {
	if h, ok := dbstore.Lookup(configDir); ok {
		return h, nil
	}
	h, err := dbstore.Open(configDir)
	if err != nil {
		return nil, err
	}
	if err := dbstore.PreAttach(h); err != nil {
		return nil, err
	}
	return h, nil
}

// rootCanonicalName names the synthetic repository that stands in for a
// configuration's own implicit repository, so every directly rep-added
// repository can be modeled as one of its complements and the existing
// repo.Graph visibility walk (Visible/complementsOf/prerequisitesOf)
// applies unchanged.
func rootCanonicalName(configDir string) string {
	return "config:" + configDir
}
