package dbstore

// PreAttach recursively attaches every configuration reachable from h via
// explicit links, per spec.md §4.1's pre-attachment step: "requests
// recursive attachment of all explicit links (reachable via the
// complement-like walk)". The attached set becomes visible through
// Handle.Attached and is consulted by lazy-pointer resolution.
func PreAttach(h *Handle) error {
	seen := map[string]bool{h.UUID: true}
	var walk func(cur *Handle) error
	walk = func(cur *Handle) error {
		rows, err := cur.links()
		if err != nil {
			return err
		}
		for _, r := range rows {
			if !r.explicit || seen[r.uuid] {
				continue
			}
			other, err := cur.resolveLink(r)
			if err != nil {
				return err
			}
			seen[other.UUID] = true
			h.Attach(other)
			if err := walk(other); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(h)
}
