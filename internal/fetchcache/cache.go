// Package fetchcache implements the fetch cache (C5): a SQLite-backed
// store under the user's cache root that de-duplicates downloads across
// runs, keeps git checkouts warm, and optionally shares source trees
// with the active configuration.
package fetchcache

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"

	"github.com/bpkg-toolchain/bpkg/internal/diag"
)

//go:embed migrate/sql/*.sql
var migrationFS embed.FS

// Layout, relative to the cache root (spec.md §4.4):
//
//	pkg/metadata/<hash16(url)>/{repositories.manifest, packages.manifest}
//	pkg/packages/<name>-<version>.tar.gz
//	git/<hash16(canonical-name)>/...
//	src/<name>-<version>/
//	fetch-cache.sqlite3
const (
	dirPkgMetadata = "pkg/metadata"
	dirPkgPackages = "pkg/packages"
	dirGit         = "git"
	dirSrc         = "src"
	dbFileName     = "fetch-cache.sqlite3"
)

// Cache is one open fetch cache, rooted at Root.
type Cache struct {
	Root      string
	Session   string
	DB        *sql.DB
	SharedSrc bool

	mu       sync.Mutex
	metaLRU  *lru.Cache[string, MetadataEntry]
	srcLRU   *lru.Cache[string, SharedSourceEntry]
}

// envSession lets a sequence of cooperating runs share one session id,
// disabling revalidation across them (spec.md §4.4).
const envSession = "BPKG_FETCH_SESSION"

// Open opens (creating if absent) the fetch cache rooted at root.
func Open(root string, sharedSrc bool) (*Cache, error) {
	for _, d := range []string{dirPkgMetadata, dirPkgPackages, dirGit, dirSrc} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, diag.Wrap(diag.KindIO, err, "fetchcache: create %s", d)
		}
	}

	dbPath := filepath.Join(root, dbFileName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(1000)")
	if err != nil {
		return nil, diag.Wrap(diag.KindIO, err, "fetchcache: open %s", dbPath)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA locking_mode = EXCLUSIVE`); err != nil {
		db.Close()
		return nil, diag.Wrap(diag.KindState, err, "fetchcache: set exclusive locking mode")
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	session := os.Getenv(envSession)
	if session == "" {
		session = uuid.New().String()
	}

	metaLRU, _ := lru.New[string, MetadataEntry](256)
	srcLRU, _ := lru.New[string, SharedSourceEntry](256)

	return &Cache{
		Root:      root,
		Session:   session,
		DB:        db,
		SharedSrc: sharedSrc,
		metaLRU:   metaLRU,
		srcLRU:    srcLRU,
	}, nil
}

func migrate(db *sql.DB) error {
	sqlFS, err := fs.Sub(migrationFS, "migrate/sql")
	if err != nil {
		return diag.Wrap(diag.KindLogic, err, "fetchcache: locate embedded migrations")
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sqlFS)
	if err != nil {
		return diag.Wrap(diag.KindState, err, "fetchcache: initialize schema migrator")
	}
	if _, err := provider.Up(context.Background()); err != nil {
		return diag.Wrap(diag.KindState, err, "fetchcache: run schema migrations")
	}
	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error { return c.DB.Close() }

func now() int64 { return time.Now().Unix() }
