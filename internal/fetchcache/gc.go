package fetchcache

import (
	"os"
	"time"

	"github.com/bpkg-toolchain/bpkg/internal/diag"
)

// GCStats summarizes one garbage collection pass.
type GCStats struct {
	ArchivesRemoved int
	SourcesRemoved  int
}

// GC evicts cache entries whose LRU age exceeds horizon and, for shared
// source directories, whose Configurations list is empty, per spec.md
// §4.4. It may run concurrently with downloads under the cache's held
// database lock (the caller is expected to hold Cache for the duration).
func (c *Cache) GC(horizon time.Duration) (GCStats, error) {
	var stats GCStats
	cutoff := time.Now().Add(-horizon).Unix()

	rows, err := c.DB.Query(`SELECT package_id, version, archive FROM pkg_repository_package WHERE access_time < ?`, cutoff)
	if err != nil {
		return stats, diag.Wrap(diag.KindState, err, "fetchcache: scan stale archives")
	}
	type archiveRow struct{ id, version, archive string }
	var stale []archiveRow
	for rows.Next() {
		var r archiveRow
		if err := rows.Scan(&r.id, &r.version, &r.archive); err != nil {
			rows.Close()
			return stats, diag.Wrap(diag.KindState, err, "fetchcache: scan archive row")
		}
		stale = append(stale, r)
	}
	rows.Close()

	for _, r := range stale {
		if err := os.Remove(r.archive); err != nil && !os.IsNotExist(err) {
			return stats, diag.Wrap(diag.KindIO, err, "fetchcache: remove archive %s", r.archive)
		}
		if _, err := c.DB.Exec(`DELETE FROM pkg_repository_package WHERE package_id = ? AND version = ?`, r.id, r.version); err != nil {
			return stats, diag.Wrap(diag.KindState, err, "fetchcache: erase archive row %s-%s", r.id, r.version)
		}
		stats.ArchivesRemoved++
	}

	srcRows, err := c.DB.Query(`SELECT package_id, version, directory FROM shared_source_directory
		WHERE access_time < ? AND (configurations = '' OR configurations IS NULL)`, cutoff)
	if err != nil {
		return stats, diag.Wrap(diag.KindState, err, "fetchcache: scan stale sources")
	}
	type srcRow struct{ id, version, dir string }
	var staleSrc []srcRow
	for srcRows.Next() {
		var r srcRow
		if err := srcRows.Scan(&r.id, &r.version, &r.dir); err != nil {
			srcRows.Close()
			return stats, diag.Wrap(diag.KindState, err, "fetchcache: scan source row")
		}
		staleSrc = append(staleSrc, r)
	}
	srcRows.Close()

	for _, r := range staleSrc {
		if err := os.RemoveAll(r.dir); err != nil {
			return stats, diag.Wrap(diag.KindIO, err, "fetchcache: remove source tree %s", r.dir)
		}
		if _, err := c.DB.Exec(`DELETE FROM shared_source_directory WHERE package_id = ? AND version = ?`, r.id, r.version); err != nil {
			return stats, diag.Wrap(diag.KindState, err, "fetchcache: erase source row %s-%s", r.id, r.version)
		}
		stats.SourcesRemoved++
	}

	return stats, nil
}
