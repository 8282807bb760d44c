package fetchcache

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/bpkg-toolchain/bpkg/internal/diag"
)

// SharedSourceEntry is a cached, possibly multiply-referenced, unpacked
// source tree.
type SharedSourceEntry struct {
	PackageID      string
	Version        string
	Directory      string
	Repository     string
	OriginID       string
	SrcRootMarker  string
	Configurations []string
}

// SharedSourceDir returns the reserved directory for a shared source
// tree.
func (c *Cache) SharedSourceDir(name, version string) string {
	return filepath.Join(c.Root, dirSrc, name+"-"+version)
}

func encodeConfigs(cs []string) string { return strings.Join(cs, "\n") }
func decodeConfigs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// LookupSharedSource returns the shared entry for (packageID, version),
// if any.
func (c *Cache) LookupSharedSource(packageID, version string) (SharedSourceEntry, bool) {
	key := packageID + "@" + version
	if e, ok := c.srcLRU.Get(key); ok {
		return e, true
	}

	row := c.DB.QueryRow(`SELECT package_id, version, directory, repository, COALESCE(origin_id,''),
		COALESCE(src_root_marker,''), configurations FROM shared_source_directory WHERE package_id = ? AND version = ?`,
		packageID, version)
	var e SharedSourceEntry
	var configs string
	err := row.Scan(&e.PackageID, &e.Version, &e.Directory, &e.Repository, &e.OriginID, &e.SrcRootMarker, &configs)
	if errors.Is(err, sql.ErrNoRows) {
		return SharedSourceEntry{}, false
	}
	if err != nil {
		return SharedSourceEntry{}, false
	}
	e.Configurations = decodeConfigs(configs)
	c.DB.Exec(`UPDATE shared_source_directory SET access_time = ? WHERE package_id = ? AND version = ?`, now(), packageID, version)
	c.srcLRU.Add(key, e)
	return e, true
}

// ReferenceSharedSource registers configDir as a referencing
// configuration of the shared source tree for (packageID, version),
// adding it to the configurations already stored for that entry. It only
// records the reference; it does not create any tree (see HardlinkInto).
func (c *Cache) ReferenceSharedSource(e SharedSourceEntry, configDir string) error {
	if stored, ok := c.LookupSharedSource(e.PackageID, e.Version); ok {
		e.Configurations = stored.Configurations
	}
	for _, existing := range e.Configurations {
		if existing == configDir {
			return nil
		}
	}
	e.Configurations = append(e.Configurations, configDir)
	c.srcLRU.Remove(e.PackageID + "@" + e.Version)

	_, err := c.DB.Exec(`INSERT INTO shared_source_directory
		(package_id, version, access_time, directory, repository, origin_id, src_root_marker, configurations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(package_id, version) DO UPDATE SET configurations = excluded.configurations, access_time = excluded.access_time`,
		e.PackageID, e.Version, now(), e.Directory, e.Repository, e.OriginID, e.SrcRootMarker, encodeConfigs(e.Configurations))
	if err != nil {
		return diag.Wrap(diag.KindState, err, "fetchcache: reference shared source for %s-%s", e.PackageID, e.Version)
	}
	return nil
}

// UnreferenceSharedSource removes configDir from the referencing set,
// making the entry eligible for GC once empty.
func (c *Cache) UnreferenceSharedSource(packageID, version, configDir string) error {
	e, ok := c.LookupSharedSource(packageID, version)
	if !ok {
		return nil
	}
	var remaining []string
	for _, existing := range e.Configurations {
		if existing != configDir {
			remaining = append(remaining, existing)
		}
	}
	e.Configurations = remaining
	c.srcLRU.Remove(packageID + "@" + version)

	_, err := c.DB.Exec(`UPDATE shared_source_directory SET configurations = ? WHERE package_id = ? AND version = ?`,
		encodeConfigs(remaining), packageID, version)
	if err != nil {
		return diag.Wrap(diag.KindState, err, "fetchcache: unreference shared source for %s-%s", packageID, version)
	}
	return nil
}

// HardlinkInto reproduces dir's source tree under dest via hardlinks, the
// shared-src checkout mechanism.
func HardlinkInto(dir, dest string) error {
	return filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.Link(p, target)
	})
}
