package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

func TestParseLocationClassifiesSchemes(t *testing.T) {
	cases := []struct {
		in   string
		want Scheme
	}{
		{"https://example.org/1/stable", SchemePkg},
		{"git+https://example.org/repo.git#master,v*", SchemeGit},
		{"https://example.org/repo.git", SchemeGit},
		{"/srv/packages/local", SchemeDir},
	}
	for _, c := range cases {
		loc, err := ParseLocation(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, loc.Scheme, c.in)
	}
}

func TestLocationSerializeRoundTrips(t *testing.T) {
	loc, err := ParseLocation("git+https://example.org/repo.git#master,v*")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/repo.git#master,v*", loc.Serialize())
}

func TestVisibleFollowsComplementNotPrerequisiteRecursively(t *testing.T) {
	g := NewGraph()

	root := &Repository{CanonicalName: "root", Fragments: []*Fragment{{
		Edges: []Edge{{Role: RoleComplement, Target: "comp1"}},
	}}}
	comp1 := &Repository{CanonicalName: "comp1", Fragments: []*Fragment{{
		Edges: []Edge{
			{Role: RoleComplement, Target: "comp2"},
			{Role: RolePrerequisite, Target: "prereq1"},
		},
	}}}
	comp2 := &Repository{CanonicalName: "comp2"}
	prereq1 := &Repository{CanonicalName: "prereq1", Fragments: []*Fragment{{
		Edges: []Edge{{Role: RolePrerequisite, Target: "prereq2"}},
	}}}
	prereq2 := &Repository{CanonicalName: "prereq2"}

	g.Add(root)
	g.Add(comp1)
	g.Add(comp2)
	g.Add(prereq1)
	g.Add(prereq2)

	visibleInComp2 := AvailablePackage{}.WithOrigin("comp2")
	assert.True(t, g.Visible(root, visibleInComp2))

	visibleInPrereq1 := AvailablePackage{}.WithOrigin("prereq1")
	assert.True(t, g.Visible(root, visibleInPrereq1))

	// prereq2 is a prerequisite of a prerequisite: not recursive.
	notVisible := AvailablePackage{}.WithOrigin("prereq2")
	assert.False(t, g.Visible(root, notVisible))
}

func TestMaskRepositoriesHidesLookup(t *testing.T) {
	g := NewGraph()
	g.Add(&Repository{CanonicalName: "masked-me"})

	_, ok := g.Get("masked-me")
	require.True(t, ok)

	g.MaskRepositories("", "masked-me")

	_, ok = g.Get("masked-me")
	assert.False(t, ok)
}

func TestMaskRepositoriesHidesLookupWhenScopedToConfigUUID(t *testing.T) {
	g := NewGraph()
	g.SetScope("cfg-uuid-1")
	g.Add(&Repository{CanonicalName: "masked-me", Fragments: []*Fragment{{
		Packages: []AvailablePackage{
			{Name: ver.Name("libfoo")}.WithOrigin("masked-me"),
		},
	}}})
	g.Add(&Repository{CanonicalName: "still-visible"})

	g.MaskRepositories("cfg-uuid-1", "masked-me")

	_, ok := g.Get("masked-me")
	assert.False(t, ok, "repository masked in this graph's own configuration scope must be invisible")

	_, ok = g.Get("still-visible")
	assert.True(t, ok)

	assert.True(t, g.IsMasked("cfg-uuid-1", "masked-me"))
	assert.False(t, g.IsMasked("cfg-uuid-1", "still-visible"))

	for _, n := range g.AllCandidates(ver.Name("libfoo")) {
		require.NotEqual(t, "masked-me", n.OriginRepo())
	}
}

func TestMatchFragmentFilter(t *testing.T) {
	refs := []GitRef{{Name: "master"}, {Name: "v1.0"}, {Name: "v2.0"}, {Name: "dev"}}
	matched := MatchFragmentFilter(refs, "master,v*")

	var names []string
	for _, r := range matched {
		names = append(names, r.Name)
	}
	assert.ElementsMatch(t, []string{"master", "v1.0", "v2.0"}, names)
}
