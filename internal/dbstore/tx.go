package dbstore

import (
	"database/sql"

	"github.com/bpkg-toolchain/bpkg/internal/diag"
)

// Tx wraps h's held exclusive transaction so nested callers can share it
// without re-opening SQLite's own transaction machinery, per spec.md
// §4.1's "a transaction object may be started or passed as a no-op
// wrapper" rule.
type Tx struct {
	h     *Handle
	inner bool // true if this Tx began the exclusive BEGIN itself
}

// Begin starts a transaction on h, or returns a no-op wrapper if h
// already has one open (a transaction begun further up the call stack
// that has not yet been committed or rolled back).
func (h *Handle) Begin() (*Tx, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tx != nil {
		return &Tx{h: h, inner: false}, nil
	}
	// MaxOpenConns(1) plus locking_mode=EXCLUSIVE already give file-level
	// exclusivity, so a plain Begin is sufficient here; there is no
	// other connection it could race with.
	tx, err := h.DB.Begin()
	if err != nil {
		return nil, diag.Wrap(diag.KindState, err, "dbstore: begin transaction on %s", h.Dir)
	}
	h.tx = tx
	return &Tx{h: h, inner: true}, nil
}

// Exec runs a statement against the transaction backing t.
func (t *Tx) Exec(query string, args ...any) (sql.Result, error) {
	return t.h.tx.Exec(query, args...)
}

// QueryRow runs a single-row query against the transaction backing t.
func (t *Tx) QueryRow(query string, args ...any) *sql.Row {
	return t.h.tx.QueryRow(query, args...)
}

// Query runs a multi-row query against the transaction backing t.
func (t *Tx) Query(query string, args ...any) (*sql.Rows, error) {
	return t.h.tx.Query(query, args...)
}

// Commit commits the transaction if t actually began one; otherwise it is
// a no-op, leaving the enclosing caller's transaction untouched.
func (t *Tx) Commit() error {
	if !t.inner {
		return nil
	}
	t.h.mu.Lock()
	defer t.h.mu.Unlock()
	err := t.h.tx.Commit()
	t.h.tx = nil
	if err != nil {
		return diag.Wrap(diag.KindState, err, "dbstore: commit transaction on %s", t.h.Dir)
	}
	return nil
}

// Rollback rolls back the transaction if t actually began one.
func (t *Tx) Rollback() error {
	if !t.inner {
		return nil
	}
	t.h.mu.Lock()
	defer t.h.mu.Unlock()
	err := t.h.tx.Rollback()
	t.h.tx = nil
	return err
}
