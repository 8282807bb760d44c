package repo

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/bpkg-toolchain/bpkg/internal/diag"
	"github.com/bpkg-toolchain/bpkg/internal/manifest"
)

// PkgFetcher fetches repositories.manifest/packages.manifest/
// signature.manifest and per-package archives from an archive-based pkg
// repository over HTTP, with one rate limiter per host so a resolve pass
// touching many packages from the same mirror doesn't hammer it.
type PkgFetcher struct {
	Client   *http.Client
	Proxy    *url.URL
	Offline  bool

	limiters map[string]*rate.Limiter
}

// NewPkgFetcher builds a fetcher with a default per-host rate of 10
// requests/second and a burst of 5. When client is nil, requests go
// through proxy if one is given.
func NewPkgFetcher(client *http.Client, proxy *url.URL, offline bool) *PkgFetcher {
	if client == nil {
		client = http.DefaultClient
		if proxy != nil {
			client = &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxy)}}
		}
	}
	return &PkgFetcher{Client: client, Proxy: proxy, Offline: offline, limiters: map[string]*rate.Limiter{}}
}

func (f *PkgFetcher) limiterFor(host string) *rate.Limiter {
	if l, ok := f.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(10), 5)
	f.limiters[host] = l
	return l
}

func (f *PkgFetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	if f.Offline {
		return nil, diag.New(diag.KindTransient, "repo: offline mode: cannot fetch %s", rawURL).
			WithInfo("run without --offline, or warm the fetch cache first")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, diag.Wrap(diag.KindUserInput, err, "repo: invalid URL %s", rawURL)
	}
	if err := f.limiterFor(u.Host).Wait(ctx); err != nil {
		return nil, diag.Wrap(diag.KindTransient, err, "repo: rate limit wait for %s", u.Host)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, diag.Wrap(diag.KindIO, err, "repo: build request for %s", rawURL)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, diag.Wrap(diag.KindTransient, err, "repo: fetch %s", rawURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, diag.New(diag.KindTransient, "repo: fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// FetchRepositoriesManifest fetches and parses repositories.manifest from
// baseURL.
func (f *PkgFetcher) FetchRepositoriesManifest(ctx context.Context, baseURL string) (*manifest.RepositoriesManifest, error) {
	data, err := f.get(ctx, baseURL+"/repositories.manifest")
	if err != nil {
		return nil, err
	}
	return manifest.ParseRepositoriesManifest(bytes.NewReader(data))
}

// FetchPackagesManifest fetches and parses packages.manifest from baseURL.
func (f *PkgFetcher) FetchPackagesManifest(ctx context.Context, baseURL string) (*manifest.PackagesManifest, []byte, error) {
	data, err := f.get(ctx, baseURL+"/packages.manifest")
	if err != nil {
		return nil, nil, err
	}
	pm, err := manifest.ParsePackagesManifest(bytes.NewReader(data))
	return pm, data, err
}

// FetchSignatureManifest fetches and parses signature.manifest from
// baseURL, if present (repositories without a certificate have none).
func (f *PkgFetcher) FetchSignatureManifest(ctx context.Context, baseURL string) (*manifest.SignatureManifest, error) {
	data, err := f.get(ctx, baseURL+"/signature.manifest")
	if err != nil {
		return nil, err
	}
	return manifest.ParseSignatureManifest(bytes.NewReader(data))
}

// FetchArchive fetches the archive at the given relative location,
// resolved against baseURL.
func (f *PkgFetcher) FetchArchive(ctx context.Context, baseURL, location string) (io.ReadCloser, error) {
	if f.Offline {
		return nil, diag.New(diag.KindTransient, "repo: offline mode: cannot fetch archive %s", location)
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, diag.Wrap(diag.KindUserInput, err, "repo: invalid URL %s", baseURL)
	}
	if err := f.limiterFor(u.Host).Wait(ctx); err != nil {
		return nil, diag.Wrap(diag.KindTransient, err, "repo: rate limit wait for %s", u.Host)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/"+location, nil)
	if err != nil {
		return nil, diag.Wrap(diag.KindIO, err, "repo: build archive request")
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, diag.Wrap(diag.KindTransient, err, "repo: fetch archive %s", location)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, diag.New(diag.KindTransient, "repo: fetch archive %s: HTTP %d", location, resp.StatusCode)
	}
	return resp.Body, nil
}

// defaultTimeout bounds a single manifest request when the caller
// supplies no context deadline of its own. FetchArchive returns a
// streaming body and is bounded only by the caller's context.
const defaultTimeout = 30 * time.Second
