package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

// fakeBackend implements Backend over an in-memory package graph, with
// no enable/reflect/negotiation clauses, for exercising the core
// version-selection and dependency-walk path without a real build
// system.
type fakeBackend struct {
	packages map[string]map[string]Package // name -> version -> Package
}

func mustV(t *testing.T, s string) ver.Version {
	t.Helper()
	v, err := ver.Parse(s)
	require.NoError(t, err)
	return v
}

func (b *fakeBackend) FindAvailable(_ string, name ver.Name, constraint *ver.Constraint) ([]AvailableCandidate, error) {
	var out []AvailableCandidate
	for vs := range b.packages[string(name)] {
		v, err := ver.Parse(vs)
		if err != nil {
			continue
		}
		if constraint == nil || ver.Satisfies(v, *constraint) {
			out = append(out, AvailableCandidate{Version: v})
		}
	}
	return out, nil
}

func (b *fakeBackend) LoadPackage(_ string, name ver.Name, version ver.Version) (Package, error) {
	return b.packages[string(name)][version.String()], nil
}

func (b *fakeBackend) Skeleton(_ string, _ ver.Name, _ ver.Version) (Skeleton, error) {
	return noopSkeleton{}, nil
}

func (b *fakeBackend) PriorPrerequisites(PackageKey) ([]ResolvedPrerequisite, bool) { return nil, false }

type noopSkeleton struct{}

func (noopSkeleton) ReloadDefaults() ([]VarValue, error) { return nil, nil }
func (noopSkeleton) EvaluateEnable(string) (bool, error) { return true, nil }
func (noopSkeleton) EvaluateReflect(string) ([]VarValue, error) { return nil, nil }
func (noopSkeleton) EvaluatePreferAccept(string, string, map[string][]VarValue) (map[string][]VarValue, bool, error) {
	return nil, true, nil
}
func (noopSkeleton) EvaluateRequire(string, map[string][]VarValue, bool) (map[string][]VarValue, error) {
	return nil, nil
}
func (noopSkeleton) LoadOverrides() ([]VarValue, error) { return nil, nil }

func TestResolveSimpleChain(t *testing.T) {
	backend := &fakeBackend{packages: map[string]map[string]Package{
		"app": {"1.0.0": {
			Name: "app", Version: mustV(t, "1.0.0"),
			Depends: []DependsEntry{{Line: 1, Alternatives: []Alternative{{
				Refs: []PackageRef{{Name: "libfoo"}},
			}}}},
		}},
		"libfoo": {"2.0.0": {Name: "libfoo", Version: mustV(t, "2.0.0")}},
	}}

	r := New(backend, Driver{})
	plan, err := r.Resolve([]RootRequest{{ConfigDir: "/cfg", Name: "app"}})
	require.NoError(t, err)

	require.Len(t, plan.Entries, 2)
	// libfoo must come before app (dependency before dependent).
	names := map[string]int{}
	for i, e := range plan.Entries {
		names[string(e.Key.Name)] = i
	}
	assert.Less(t, names["libfoo"], names["app"])
}

func TestResolveFailsWhenNoAlternativeSatisfiable(t *testing.T) {
	backend := &fakeBackend{packages: map[string]map[string]Package{
		"app": {"1.0.0": {
			Name: "app", Version: mustV(t, "1.0.0"),
			Depends: []DependsEntry{{Line: 1, Alternatives: []Alternative{{
				Refs: []PackageRef{{Name: "missing"}},
			}}}},
		}},
	}}

	r := New(backend, Driver{})
	_, err := r.Resolve([]RootRequest{{ConfigDir: "/cfg", Name: "app"}})
	assert.Error(t, err)
}

func TestPickVersionPrefersHigherRevision(t *testing.T) {
	backend := &fakeBackend{packages: map[string]map[string]Package{
		"libfoo": {
			"1.0.0":   {Name: "libfoo", Version: mustV(t, "1.0.0")},
			"1.0.0+2": {Name: "libfoo", Version: mustV(t, "1.0.0+2")},
		},
	}}

	r := New(backend, Driver{})
	v, err := r.pickVersion(PackageKey{ConfigDir: "/cfg", Name: "libfoo"}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), *v.Revision)
}
