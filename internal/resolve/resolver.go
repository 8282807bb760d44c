package resolve

import (
	"fmt"

	"github.com/bpkg-toolchain/bpkg/internal/diag"
	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

// AvailableCandidate is the resolver's view of one candidate version for
// a package, sourced from C6.
type AvailableCandidate struct {
	Version Version
	IsStub  bool
}

// Version is a thin alias kept local so callers don't need to import
// internal/ver just to build an AvailableCandidate slice inline.
type Version = ver.Version

// RootRequest is one build-to-hold root the user asked for.
type RootRequest struct {
	ConfigDir  string
	Name       ver.Name
	Constraint *ver.Constraint
}

// Driver abstracts the running build2/bpkg toolchain version check for
// build-time toolchain dependencies, which never become selected
// packages (spec.md §4.6 step 2).
type Driver struct {
	Build2Version ver.Version
	BpkgVersion   ver.Version
}

// Backend supplies the resolver with everything it cannot compute on its
// own: available candidates (C6), a package's dependency syntax (parsed
// manifest), and a sandboxed Skeleton evaluator for a selected version.
type Backend interface {
	FindAvailable(configDir string, name ver.Name, constraint *ver.Constraint) ([]AvailableCandidate, error)
	LoadPackage(configDir string, name ver.Name, version ver.Version) (Package, error)
	Skeleton(configDir string, name ver.Name, version ver.Version) (Skeleton, error)
	// PriorPrerequisites returns the prior resolved prerequisite set for an
	// already-configured dependent, used by "recreate dependency
	// decisions" mode (spec.md §4.6 step 6).
	PriorPrerequisites(key PackageKey) ([]ResolvedPrerequisite, bool)
}

// Resolver runs the backtracking search described in spec.md §4.6.
type Resolver struct {
	backend Backend
	driver  Driver

	selected map[PackageKey]*Selection
	configs  map[PackageKey]PackageConfig
	history  []ChangeEvent
	depEdges map[PackageKey][]PackageKey
}

// New creates a Resolver over backend, aware of the running driver's own
// version for toolchain-dependency checks.
func New(backend Backend, driver Driver) *Resolver {
	return &Resolver{
		backend:  backend,
		driver:   driver,
		selected: map[PackageKey]*Selection{},
		configs:  map[PackageKey]PackageConfig{},
		depEdges: map[PackageKey][]PackageKey{},
	}
}

// Resolve runs the resolver over the given roots and returns a
// materialization plan.
func (r *Resolver) Resolve(roots []RootRequest) (*Plan, error) {
	var order []PackageKey
	for _, root := range roots {
		key := PackageKey{ConfigDir: root.ConfigDir, Name: root.Name}
		if err := r.resolvePackage(key, root.Constraint, OriginRoot, nil, -1, -1); err != nil {
			return nil, err
		}
		order = append(order, key)
	}
	return r.buildPlan(order), nil
}

// resolvePackage implements step 1 (pick a version) plus step 2 (walk
// depends entries) for one package slot.
func (r *Resolver) resolvePackage(key PackageKey, constraint *ver.Constraint, origin Origin, dependent *PackageKey, dependsIdx, altIdx int) error {
	sel, alreadySelected := r.selected[key]
	if alreadySelected {
		if constraint != nil && !ver.Satisfies(sel.Version, *constraint) {
			return diag.New(diag.KindUserInput,
				"resolve: %s is already selected at %s, which does not satisfy %s", key.Name, sel.Version, constraint).
				WithInfo("a held version is never downgraded without consent; re-run with an explicit version to change it")
		}
		return nil
	}

	version, err := r.pickVersion(key, constraint)
	if err != nil {
		return err
	}

	pkg, err := r.backend.LoadPackage(key.ConfigDir, key.Name, version)
	if err != nil {
		return diag.Wrap(diag.KindUserInput, err, "resolve: load package %s-%s", key.Name, version)
	}

	sel = &Selection{
		Key:       key,
		Version:   version,
		Origin:    origin,
		Pkg:       pkg,
		AltChoice: make([]int, len(pkg.Depends)),
		AltTried:  make([][]bool, len(pkg.Depends)),
	}
	for i, entry := range pkg.Depends {
		sel.AltChoice[i] = -1
		sel.AltTried[i] = make([]bool, len(entry.Alternatives))
	}
	r.selected[key] = sel
	r.configs[key] = PackageConfig{}

	skel, err := r.backend.Skeleton(key.ConfigDir, key.Name, version)
	if err != nil {
		return diag.Wrap(diag.KindState, err, "resolve: build skeleton for %s-%s", key.Name, version)
	}
	if defaults, err := skel.ReloadDefaults(); err == nil {
		for _, v := range defaults {
			r.configs[key][v.Name] = ConfigVarOrigin{Value: v.Value, FromBuiltin: true}
		}
	}

	return r.walkDependsEntries(key, skel)
}

// pickVersion implements spec.md §4.6 step 1: it picks the highest
// candidate satisfying the constraint, comparing revisions (so a higher
// revision wins) and ignoring iteration. An already-selected version gets
// no preference over a newer one. A wildcard (stub) candidate is
// acceptable iff it is a stub or the constraint allows it.
func (r *Resolver) pickVersion(key PackageKey, constraint *ver.Constraint) (ver.Version, error) {
	candidates, err := r.backend.FindAvailable(key.ConfigDir, key.Name, constraint)
	if err != nil {
		return ver.Version{}, diag.Wrap(diag.KindUserInput, err, "resolve: query available versions of %s", key.Name)
	}
	if len(candidates) == 0 {
		return ver.Version{}, diag.New(diag.KindUserInput, "resolve: no available version of %s satisfies %s", key.Name, constraintString(constraint))
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if ver.Compare(c.Version, best.Version, ver.CompareOptions{Revision: true, Iteration: false}) > 0 {
			best = c
		}
	}
	if best.Version.IsWildcard() && !best.IsStub && constraint == nil {
		return ver.Version{}, diag.New(diag.KindUserInput, "resolve: %s has no concrete version available", key.Name)
	}
	return best.Version, nil
}

func constraintString(c *ver.Constraint) string {
	if c == nil {
		return "(any)"
	}
	return c.String()
}

// walkDependsEntries implements spec.md §4.6 steps 2-5 for every depends
// entry of the package selected at key.
func (r *Resolver) walkDependsEntries(key PackageKey, skel Skeleton) error {
	sel := r.selected[key]

	for entryIdx := range sel.Pkg.Depends {
		if err := r.resolveEntry(key, entryIdx, skel); err != nil {
			return err
		}
	}
	return nil
}

// altTryOrder implements spec.md §4.6 step 6 ("recreate dependency
// decisions" mode): if key is already configured and has a prior
// prerequisite set, the alternative whose dependencies are all present
// in that prior set is tried first, to keep the existing solution
// stable; every other alternative follows in its original order.
func altTryOrder(key PackageKey, entry DependsEntry, backend Backend) []int {
	order := make([]int, len(entry.Alternatives))
	for i := range order {
		order[i] = i
	}

	prior, ok := backend.PriorPrerequisites(key)
	if !ok {
		return order
	}
	priorNames := map[string]bool{}
	for _, p := range prior {
		priorNames[string(p.Dependency.Name)] = true
	}

	stable := -1
	for i, alt := range entry.Alternatives {
		allPrior := true
		for _, ref := range alt.Refs {
			if !priorNames[string(ref.Name)] {
				allPrior = false
				break
			}
		}
		if allPrior && len(alt.Refs) > 0 {
			stable = i
			break
		}
	}
	if stable <= 0 {
		return order
	}
	reordered := []int{stable}
	for _, i := range order {
		if i != stable {
			reordered = append(reordered, i)
		}
	}
	return reordered
}

func (r *Resolver) resolveEntry(key PackageKey, entryIdx int, skel Skeleton) error {
	sel := r.selected[key]
	entry := sel.Pkg.Depends[entryIdx]

	order := altTryOrder(key, entry, r.backend)
	for _, altIdx := range order {
		alt := entry.Alternatives[altIdx]
		if sel.AltTried[entryIdx][altIdx] {
			continue
		}
		sel.AltTried[entryIdx][altIdx] = true

		if alt.Enable != "" {
			ok, err := skel.EvaluateEnable(alt.Enable)
			if err != nil {
				return diag.Wrap(diag.KindState, err, "resolve: evaluate enable clause for %s depends entry %d", key.Name, entryIdx)
			}
			if !ok {
				continue
			}
		}

		if ok, err := r.trySatisfyRefs(key, entryIdx, altIdx, alt); err != nil {
			return err
		} else if !ok {
			continue
		}

		if alt.Reflect != "" {
			bindings, err := skel.EvaluateReflect(alt.Reflect)
			if err != nil {
				return diag.Wrap(diag.KindState, err, "resolve: evaluate reflect clause for %s depends entry %d", key.Name, entryIdx)
			}
			for _, b := range bindings {
				r.configs[key][b.Name] = ConfigVarOrigin{Value: b.Value, FromBuiltin: false, SetBy: key, HasSetBy: true}
			}
		}

		if alt.hasNegotiation() {
			changed, cycleErr := r.negotiate(key, entryIdx, altIdx, alt, skel)
			if cycleErr != nil {
				if backtrack, ok := cycleErr.(*backtrackSignal); ok && backtrack.key == key && backtrack.entryIdx == entryIdx {
					continue // try the next alternative of this same entry
				}
				return cycleErr
			}
			_ = changed
		}

		sel.AltChoice[entryIdx] = altIdx
		return nil
	}

	return diag.New(diag.KindUserInput,
		"resolve: no alternative of %s's depends entry %d (line %d) could be satisfied", key.Name, entryIdx, entry.Line)
}

// trySatisfyRefs resolves every PackageRef of alt, recursively selecting
// dependency packages as needed. Toolchain build-time dependencies are
// checked against the running driver's own version and never become
// selected packages.
func (r *Resolver) trySatisfyRefs(key PackageKey, entryIdx, altIdx int, alt Alternative) (bool, error) {
	for _, ref := range alt.Refs {
		if ref.Buildtime && isToolchainName(ref.Name) {
			if !r.satisfiesDriver(ref) {
				return false, nil
			}
			continue
		}

		depKey := PackageKey{ConfigDir: key.ConfigDir, Name: ref.Name}
		if err := r.resolvePackage(depKey, ref.Constraint, OriginDependency, &key, entryIdx, altIdx); err != nil {
			if diag.KindOf(err) == diag.KindUserInput {
				return false, nil
			}
			return false, err
		}
		r.depEdges[key] = append(r.depEdges[key], depKey)
	}
	return true, nil
}

func isToolchainName(n ver.Name) bool {
	return n == "build2" || n == "bpkg"
}

func (r *Resolver) satisfiesDriver(ref PackageRef) bool {
	v := r.driver.Build2Version
	if ref.Name == "bpkg" {
		v = r.driver.BpkgVersion
	}
	if ref.Constraint == nil {
		return true
	}
	return ver.Satisfies(v, *ref.Constraint)
}

func (r *Resolver) buildPlan(roots []PackageKey) *Plan {
	var all []PackageKey
	for k := range r.selected {
		all = append(all, k)
	}
	ordered := topoSort(all, r.depEdges)

	plan := &Plan{}
	for _, k := range ordered {
		sel := r.selected[k]
		entry := PlanEntry{Key: k, Version: sel.Version, AltChoice: sel.AltChoice}
		for name, cv := range r.configs[k] {
			cs := ConfigSource{Variable: name, Value: cv.Value, FromUser: !cv.HasSetBy && cv.FromBuiltin}
			if cv.HasSetBy {
				cs.FromKey = cv.SetBy
				cs.HasFromKey = true
			}
			entry.ConfigSources = append(entry.ConfigSources, cs)
		}
		for _, dep := range r.depEdges[k] {
			entry.Prerequisites = append(entry.Prerequisites, ResolvedPrerequisite{Dependency: dep})
		}
		plan.Entries = append(plan.Entries, entry)
	}
	return plan
}

// backtrackSignal is returned internally by negotiate to unwind to the
// alternative-selection loop of a specific (key, entryIdx) when cycle
// detection finds an untried alternative on one side of the oscillation.
type backtrackSignal struct {
	key      PackageKey
	entryIdx int
}

func (b *backtrackSignal) Error() string {
	return fmt.Sprintf("resolve: backtracking %s depends entry %d", b.key.Name, b.entryIdx)
}
