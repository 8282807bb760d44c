package repo

import "sync"

// maskTable records, per configuration UUID (or the empty string for the
// process-global scope), the set of repository/fragment canonical names
// that have been masked. Masking runs inside a transaction the caller
// rolls back (the mask itself is the only lasting effect); a repository
// or fragment present in the masked set is reported absent.
type maskTable struct {
	mu     sync.Mutex
	masked map[string]map[string]bool // scope -> canonical name -> masked
}

func newMaskTable() *maskTable {
	return &maskTable{masked: map[string]map[string]bool{}}
}

// Mask marks names as masked within scope (empty string for global).
func (m *maskTable) Mask(scope string, names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.masked[scope]
	if !ok {
		set = map[string]bool{}
		m.masked[scope] = set
	}
	for _, n := range names {
		set[n] = true
	}
}

// isMaskedInScope reports whether name is masked either in scope or
// globally. m.mu must not already be held by the caller.
func (m *maskTable) isMaskedInScope(scope, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maskedLocked(scope, name) || m.maskedLocked("", name)
}

// maskedLocked is the shared lookup; callers must hold m.mu.
func (m *maskTable) maskedLocked(scope, name string) bool {
	set, ok := m.masked[scope]
	return ok && set[name]
}

// MaskRepositories implements spec.md §4.3's repository masking: it
// removes the named repositories (and any fragment referenced only by
// them) from g's answerable set, scoped to configUUID (empty for every
// configuration). The caller is expected to run this inside a
// transaction it will roll back; the mask table itself persists across
// the rollback since it lives in-process, not in the database.
func (g *Graph) MaskRepositories(configUUID string, canonicalNames ...string) {
	g.mask.Mask(configUUID, canonicalNames...)

	// A fragment referenced only by now-masked repositories is itself
	// masked: since fragments aren't separately keyed in this graph (they
	// live under their owning Repository), masking the repository already
	// makes every Fragment under it unreachable via Get/Visible.
}

// IsMasked reports whether canonicalName is masked in the given
// configuration scope (empty string checks only the global scope).
func (g *Graph) IsMasked(configUUID, canonicalName string) bool {
	return g.mask.isMaskedInScope(configUUID, canonicalName)
}
