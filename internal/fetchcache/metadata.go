package fetchcache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"path/filepath"

	"github.com/bpkg-toolchain/bpkg/internal/diag"
)

// MetadataEntry is the cached state of one pkg repository's manifests.
type MetadataEntry struct {
	URL              string
	Dir              string
	Session          string
	RepositoriesPath string
	RepositoriesSum  string
	PackagesPath     string
	PackagesSum      string
}

func hash16(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// MetadataDir returns the on-disk directory reserved for url's metadata.
func (c *Cache) MetadataDir(url string) string {
	return filepath.Join(c.Root, dirPkgMetadata, hash16(url))
}

// Lookup implements spec.md §4.4's load_pkg_repository_metadata: it
// returns (nothing, false) on a cold cache, or the cached entry
// otherwise. The caller compares Entry.Session against the cache's
// current Session to decide whether revalidation against the remote is
// needed.
func (c *Cache) Lookup(url string) (MetadataEntry, bool) {
	if e, ok := c.metaLRU.Get(url); ok {
		return e, true
	}

	row := c.DB.QueryRow(`SELECT url, dir, session, COALESCE(repositories_path,''), COALESCE(repositories_sum,''),
		COALESCE(packages_path,''), COALESCE(packages_sum,'') FROM pkg_repository_metadata WHERE url = ?`, url)
	var e MetadataEntry
	err := row.Scan(&e.URL, &e.Dir, &e.Session, &e.RepositoriesPath, &e.RepositoriesSum, &e.PackagesPath, &e.PackagesSum)
	if errors.Is(err, sql.ErrNoRows) {
		return MetadataEntry{}, false
	}
	if err != nil {
		return MetadataEntry{}, false
	}

	c.DB.Exec(`UPDATE pkg_repository_metadata SET access_time = ? WHERE url = ?`, now(), url)
	c.metaLRU.Add(url, e)
	return e, true
}

// NeedsRevalidation reports whether the cached entry e must be checked
// against the remote before use: it was last validated in a different
// session than the current one.
func (c *Cache) NeedsRevalidation(e MetadataEntry) bool {
	return e.Session != c.Session
}

// Save implements spec.md §4.4's save_pkg_repository_metadata: it
// creates or atomically updates the cached entry and invalidates the
// in-process LRU entry so the next Lookup re-reads from the database.
func (c *Cache) Save(e MetadataEntry) error {
	e.Session = c.Session
	dir := c.MetadataDir(e.URL)
	e.Dir = dir

	_, err := c.DB.Exec(`INSERT INTO pkg_repository_metadata
		(url, dir, session, access_time, repositories_path, repositories_sum, packages_path, packages_sum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			dir = excluded.dir, session = excluded.session, access_time = excluded.access_time,
			repositories_path = excluded.repositories_path, repositories_sum = excluded.repositories_sum,
			packages_path = excluded.packages_path, packages_sum = excluded.packages_sum`,
		e.URL, dir, e.Session, now(), e.RepositoriesPath, e.RepositoriesSum, e.PackagesPath, e.PackagesSum)
	if err != nil {
		return diag.Wrap(diag.KindState, err, "fetchcache: save metadata for %s", e.URL)
	}

	c.metaLRU.Remove(e.URL)
	return nil
}

// ArchivePath returns the on-disk path reserved for a package archive.
func (c *Cache) ArchivePath(name, version string) string {
	return filepath.Join(c.Root, dirPkgPackages, name+"-"+version+".tar.gz")
}

// LookupArchive returns the cached archive info for (name, version), if
// present and its checksum still matches expectedSum.
func (c *Cache) LookupArchive(packageID, version, expectedSum string) (string, bool) {
	row := c.DB.QueryRow(`SELECT archive, checksum FROM pkg_repository_package WHERE package_id = ? AND version = ?`,
		packageID, version)
	var archive, sum string
	if err := row.Scan(&archive, &sum); err != nil {
		return "", false
	}
	if sum != expectedSum {
		return "", false
	}
	c.DB.Exec(`UPDATE pkg_repository_package SET access_time = ? WHERE package_id = ? AND version = ?`,
		now(), packageID, version)
	return archive, true
}

// SaveArchive records a newly cached archive.
func (c *Cache) SaveArchive(packageID, version, archivePath, checksum, repository string) error {
	_, err := c.DB.Exec(`INSERT INTO pkg_repository_package (package_id, version, access_time, archive, checksum, repository)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(package_id, version) DO UPDATE SET
			access_time = excluded.access_time, archive = excluded.archive,
			checksum = excluded.checksum, repository = excluded.repository`,
		packageID, version, now(), archivePath, checksum, repository)
	if err != nil {
		return diag.Wrap(diag.KindState, err, "fetchcache: save archive for %s-%s", packageID, version)
	}
	return nil
}
