// Package dbstore implements the configuration store (C2): opening a
// per-directory SQLite-backed configuration database, exclusive locking,
// schema migration, and the self-row identity cached for logging.
package dbstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"github.com/bpkg-toolchain/bpkg/internal/diag"
)

// relative path of the configuration database within a configuration
// directory, mirroring the donor's fixed sqlite-file-under-dotdir layout.
const dbRelPath = ".bpkg/bpkg.sqlite3"

// Handle is one open configuration database.
type Handle struct {
	Dir  string // absolute configuration directory
	DB   *sql.DB
	UUID string
	Name string
	Type string

	mu      sync.Mutex
	tx      *sql.Tx // transaction opened by Begin; nil between operations
	attached map[string]*Handle
}

// ErrBusy is returned (wrapped in a *diag.Error) when a configuration
// cannot be locked exclusively because another process holds it open.
var ErrBusy = fmt.Errorf("dbstore: configuration busy")

// Open opens (creating if absent) the configuration database under dir,
// acquires the exclusive lock, verifies/migrates the schema, and caches
// the self-row identity.
func Open(dir string) (h *Handle, err error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, diag.Wrap(diag.KindIO, err, "dbstore: resolve configuration directory %q", dir)
	}
	dbPath := filepath.Join(abs, dbRelPath)
	isNew := false
	if _, statErr := os.Stat(dbPath); os.IsNotExist(statErr) {
		isNew = true
		if mkErr := os.MkdirAll(filepath.Dir(dbPath), 0o755); mkErr != nil {
			return nil, diag.Wrap(diag.KindIO, mkErr, "dbstore: create %s", filepath.Dir(dbPath))
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(1000)")
	if err != nil {
		return nil, diag.Wrap(diag.KindIO, err, "dbstore: open %s", dbPath)
	}
	// A configuration is accessed by one process at a time: single
	// connection avoids SQLite's own internal lock contention getting in
	// the way of the explicit EXCLUSIVE semantics below.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA locking_mode = EXCLUSIVE`); err != nil {
		db.Close()
		return nil, diag.Wrap(diag.KindState, err, "dbstore: set exclusive locking mode on %s", dbPath)
	}
	if err := migrateSchema(db, dbPath); err != nil {
		db.Close()
		return nil, err
	}
	tx, err := db.Begin()
	if err != nil {
		db.Close()
		return nil, diag.Wrap(diag.KindState, ErrBusy, "dbstore: %s", dbPath).WithInfo("%v", err)
	}

	h = &Handle{Dir: abs, DB: db, tx: tx, attached: map[string]*Handle{}}

	if isNew {
		if err := h.createSelfRow(); err != nil {
			tx.Rollback()
			db.Close()
			return nil, err
		}
	}
	if err := h.loadSelfRow(); err != nil {
		tx.Rollback()
		db.Close()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		db.Close()
		return nil, diag.Wrap(diag.KindState, err, "dbstore: commit open transaction for %s", dbPath)
	}
	// locking_mode=EXCLUSIVE keeps the file locked for the connection's
	// whole lifetime regardless of transaction state; h.tx is left nil so
	// subsequent operations open their own per-operation transaction (a
	// plain BEGIN, see Handle.Begin), matching the "every mutating
	// operation" rule.
	h.tx = nil

	defaultRegistry.add(abs, h)
	return h, nil
}

func (h *Handle) createSelfRow() error {
	id := uuid.New().String()
	_, err := h.tx.Exec(`INSERT INTO config_self (id, uuid, name, type) VALUES (0, ?, NULL, 'target')`, id)
	if err != nil {
		return diag.Wrap(diag.KindState, err, "dbstore: create self-row for %s", h.Dir)
	}
	return nil
}

func (h *Handle) loadSelfRow() error {
	row := h.tx.QueryRow(`SELECT uuid, COALESCE(name, ''), type FROM config_self WHERE id = 0`)
	if err := row.Scan(&h.UUID, &h.Name, &h.Type); err != nil {
		return diag.Wrap(diag.KindState, err, "dbstore: read self-row for %s", h.Dir)
	}
	return nil
}

// Close releases h's lock, closing the underlying held transaction if it
// was never explicitly committed by a caller (rolling back any
// uncommitted writes, matching the scope-guarded commit discipline used
// throughout this package).
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tx != nil {
		h.tx.Rollback()
		h.tx = nil
	}
	defaultRegistry.remove(h.Dir)
	return h.DB.Close()
}

// Attach registers other as reachable for lazy-pointer resolution from h,
// per the pre-attachment described in spec.md §4.1.
func (h *Handle) Attach(other *Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attached[other.Dir] = other
}

// Attached returns the set of handles pre-attached to h, plus h itself.
func (h *Handle) Attached() []*Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Handle, 0, len(h.attached)+1)
	out = append(out, h)
	for _, o := range h.attached {
		out = append(out, o)
	}
	return out
}

// Ptr is a lazy pointer: a reference to a row in a specific configuration
// database, resolved only when dereferenced (spec.md §3's Lazy pointer).
type Ptr struct {
	DB *Handle
	ID int64
}

func (p Ptr) String() string {
	if p.DB == nil {
		return "<nil-ptr>"
	}
	return fmt.Sprintf("%s#%d", p.DB.Dir, p.ID)
}
