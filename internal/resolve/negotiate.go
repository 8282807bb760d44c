package resolve

import "github.com/bpkg-toolchain/bpkg/internal/diag"

// negotiate implements spec.md §4.6 step 4 (configuration negotiation)
// and step 5 (cycle detection) for the alternative chosen at
// (key, entryIdx, altIdx).
//
// It returns (changed=true, nil) when the negotiation produced a
// committed change, (false, nil) when it was a no-op, or a
// *backtrackSignal when cycle detection found an untried alternative to
// retry instead of failing outright.
func (r *Resolver) negotiate(key PackageKey, entryIdx, altIdx int, alt Alternative, dependentSkel Skeleton) (bool, error) {
	depKeys := r.alternativeDependencyKeys(key, alt)

	old := r.snapshot(depKeys)
	defaults := map[string][]VarValue{}
	laxMode := false

	for _, dk := range depKeys {
		sel := r.selected[dk]
		if sel == nil {
			continue
		}
		isSystem := sel.Version.IsWildcard()
		r.unsetOwnedBy(dk, key)

		if alt.RequireClause != "" && isSystem {
			laxMode = true
			continue
		}
		depSkel, err := r.backend.Skeleton(dk.ConfigDir, dk.Name, sel.Version)
		if err != nil {
			return false, diag.Wrap(diag.KindState, err, "resolve: build skeleton for dependency %s", dk.Name)
		}
		vals, err := depSkel.ReloadDefaults()
		if err != nil {
			return false, diag.Wrap(diag.KindState, err, "resolve: reload defaults for %s", dk.Name)
		}
		defaults[string(dk.Name)] = vals
		for _, v := range vals {
			r.configs[dk][v.Name] = ConfigVarOrigin{Value: v.Value, FromBuiltin: true}
		}
	}

	var proposed map[string][]VarValue
	var err error
	if alt.RequireClause != "" {
		proposed, err = dependentSkel.EvaluateRequire(alt.RequireClause, defaults, laxMode)
		if err != nil {
			return false, diag.Wrap(diag.KindState, err, "resolve: evaluate require clause for %s", key.Name)
		}
	} else {
		var accepted bool
		proposed, accepted, err = dependentSkel.EvaluatePreferAccept(alt.PreferClause, alt.AcceptClause, defaults)
		if err != nil {
			return false, diag.Wrap(diag.KindState, err, "resolve: evaluate prefer/accept clause for %s", key.Name)
		}
		if !accepted {
			if r.hasUntriedAlternative(key, entryIdx) {
				return false, &backtrackSignal{key: key, entryIdx: entryIdx}
			}
			return false, diag.New(diag.KindUserInput,
				"resolve: joint configuration of %s was not accepted\nbefore: %s", key.Name, formatSnapshot(old)).
				WithInfo("after: %s", formatSnapshot(r.snapshot(depKeys)))
		}
	}

	for name, vals := range proposed {
		dk := findKeyByName(depKeys, name)
		if dk.ConfigDir == "" {
			continue
		}
		for _, v := range vals {
			r.configs[dk][v.Name] = ConfigVarOrigin{Value: v.Value, SetBy: key, HasSetBy: true}
		}
	}

	newSnap := r.snapshot(depKeys)
	if snapshotsEqual(old, newSnap) {
		return false, nil
	}

	if override := r.detectOverride(old, newSnap, key); override {
		r.history = append(r.history, ChangeEvent{Dependent: key, Old: old, New: newSnap})
		if side, ok := r.findCycle(); ok {
			if r.hasUntriedAlternative(side, entryIdx) {
				return false, &backtrackSignal{key: side, entryIdx: entryIdx}
			}
			return false, diag.New(diag.KindState,
				"resolve: configuration cycle detected between %s and %s", key.Name, side.Name)
		}
	}

	return true, nil
}

func (r *Resolver) alternativeDependencyKeys(key PackageKey, alt Alternative) []PackageKey {
	var out []PackageKey
	for _, ref := range alt.Refs {
		if ref.Buildtime && isToolchainName(ref.Name) {
			continue
		}
		out = append(out, PackageKey{ConfigDir: key.ConfigDir, Name: ref.Name})
	}
	return out
}

func (r *Resolver) snapshot(keys []PackageKey) JointSnapshot {
	snap := JointSnapshot{}
	for _, k := range keys {
		if cfg, ok := r.configs[k]; ok {
			snap[k] = cfg.Clone()
		}
	}
	return snap
}

func (r *Resolver) unsetOwnedBy(dk, owner PackageKey) {
	cfg := r.configs[dk]
	for name, cv := range cfg {
		if cv.HasSetBy && cv.SetBy == owner {
			delete(cfg, name)
		}
	}
}

func findKeyByName(keys []PackageKey, name string) PackageKey {
	for _, k := range keys {
		if string(k.Name) == name {
			return k
		}
	}
	return PackageKey{}
}

func snapshotsEqual(a, b JointSnapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || len(av) != len(bv) {
			return false
		}
		for name, ao := range av {
			bo, ok := bv[name]
			if !ok || ao.Value != bo.Value {
				return false
			}
		}
	}
	return true
}

// detectOverride reports whether any value in newSnap was previously set
// by a different originating dependent than the one performing this
// negotiation (spec.md §4.6 step 4c).
func (r *Resolver) detectOverride(old, newSnap JointSnapshot, dependent PackageKey) bool {
	for k, newCfg := range newSnap {
		oldCfg := old[k]
		for name, nv := range newCfg {
			ov, existed := oldCfg[name]
			if existed && ov.HasSetBy && ov.SetBy != dependent && ov.Value != nv.Value {
				return true
			}
		}
	}
	return false
}

// findCycle searches r.history backward for a suffix of the form
// "... O→N ... O→N" enclosing an identical segment of length d >= 1
// (spec.md §4.6 step 5). It returns one of the two oscillating
// dependents' keys when found.
func (r *Resolver) findCycle() (PackageKey, bool) {
	n := len(r.history)
	for d := 1; d*2 <= n; d++ {
		a := r.history[n-d:]
		b := r.history[n-2*d : n-d]
		if changeSegmentsEqual(a, b) {
			return a[0].Dependent, true
		}
	}
	return PackageKey{}, false
}

func changeSegmentsEqual(a, b []ChangeEvent) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Dependent != b[i].Dependent || !snapshotsEqual(a[i].Old, b[i].Old) || !snapshotsEqual(a[i].New, b[i].New) {
			return false
		}
	}
	return true
}

func (r *Resolver) hasUntriedAlternative(key PackageKey, entryIdx int) bool {
	sel := r.selected[key]
	if sel == nil || entryIdx >= len(sel.AltTried) {
		return false
	}
	for _, tried := range sel.AltTried[entryIdx] {
		if !tried {
			return true
		}
	}
	return false
}

func formatSnapshot(s JointSnapshot) string {
	out := ""
	for k, cfg := range s {
		out += string(k.Name) + ": {"
		for name, v := range cfg {
			out += name + "=" + v.Value + " "
		}
		out += "} "
	}
	return out
}
