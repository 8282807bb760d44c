package manifest

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bpkg-toolchain/bpkg/internal/ver"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Package is the authoritative per-package manifest (also the shape of
// one entry in packages.manifest).
type Package struct {
	Name             string `validate:"required"`
	Version          string `validate:"required"`
	Project          string
	Summary          string
	License          string
	DependsRaw       []string `validate:"-"`
	Location         string   // relative archive path, within a pkg repository
	SHA256Sum        string   `mapstructure:"sha256sum"`
	Languages        []string
}

// ParsedName/ParsedVersion validate and return the typed domain values.
func (p Package) ParsedName() (ver.Name, error)       { return ver.ParseName(p.Name) }
func (p Package) ParsedVersion() (ver.Version, error) { return ver.Parse(p.Version) }

// Validate runs struct-tag validation over p.
func (p Package) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("manifest: invalid package entry: %w", err)
	}
	if _, err := p.ParsedName(); err != nil {
		return err
	}
	if _, err := p.ParsedVersion(); err != nil {
		return err
	}
	return nil
}

// packageFromEntry builds a Package from a parsed Entry.
func packageFromEntry(e Entry) (Package, error) {
	var p Package
	for _, f := range e.Fields {
		switch f.Name {
		case "name":
			p.Name = f.Value
		case "version":
			p.Version = f.Value
		case "project":
			p.Project = f.Value
		case "summary":
			p.Summary = f.Value
		case "license":
			p.License = f.Value
		case "depends":
			p.DependsRaw = append(p.DependsRaw, f.Value)
		case "location":
			p.Location = f.Value
		case "sha256sum":
			p.SHA256Sum = f.Value
		case "language":
			p.Languages = append(p.Languages, f.Value)
		}
	}
	return p, p.Validate()
}

func (p Package) toEntry() Entry {
	e := Entry{}
	add := func(name, value string) {
		if value != "" {
			e.Fields = append(e.Fields, Field{Name: name, Value: value})
		}
	}
	add("name", p.Name)
	add("version", p.Version)
	add("project", p.Project)
	add("summary", p.Summary)
	add("license", p.License)
	for _, d := range p.DependsRaw {
		e.Fields = append(e.Fields, Field{Name: "depends", Value: d})
	}
	for _, l := range p.Languages {
		e.Fields = append(e.Fields, Field{Name: "language", Value: l})
	}
	add("location", p.Location)
	add("sha256sum", p.SHA256Sum)
	return e
}

// PackagesManifest is the ordered list of package entries served by a
// pkg repository, with the header fields from spec.md §6.
type PackagesManifest struct {
	MinBpkgVersion string
	Packages       []Package
}

// ParsePackagesManifest parses a packages.manifest stream.
func ParsePackagesManifest(r io.Reader) (*PackagesManifest, error) {
	entries, err := Parse(r)
	if err != nil {
		return nil, err
	}
	pm := &PackagesManifest{}
	start := 0
	if len(entries) > 0 {
		if v, ok := entries[0].Get("min-bpkg-version"); ok {
			pm.MinBpkgVersion = v
			start = 1
		}
	}
	for _, e := range entries[start:] {
		p, err := packageFromEntry(e)
		if err != nil {
			return nil, err
		}
		pm.Packages = append(pm.Packages, p)
	}
	return pm, nil
}

// minBpkgVersionFor returns the lowest min-bpkg-version string that is
// compatible with the feature set actually used across pkgs, per spec.md
// §6's backward-compatibility requirement ("emit the lowest minimum
// bpkg-version permitted by the active set of manifest features").
func minBpkgVersionFor(pkgs []Package) string {
	const base = "0.13.0"
	const withLanguages = "0.15.0"
	v := base
	for _, p := range pkgs {
		if len(p.Languages) > 0 {
			v = withLanguages
		}
	}
	return v
}

// Write serializes pm back to the manifest grammar, recomputing the
// minimum compatible min-bpkg-version header.
func (pm *PackagesManifest) Write(w io.Writer) error {
	header := Entry{Fields: []Field{{Name: "min-bpkg-version", Value: minBpkgVersionFor(pm.Packages)}}}
	entries := make([]Entry, 0, len(pm.Packages)+1)
	entries = append(entries, header)
	for _, p := range pm.Packages {
		entries = append(entries, p.toEntry())
	}
	return Write(w, entries)
}

// RepositoryRole is one entry of repositories.manifest: a complement or
// prerequisite location, or the base entry carrying a certificate.
type RepositoryRole struct {
	Location     string
	Role         string // "complement", "prerequisite", or "" for the base entry
	Certificate  string // PEM, base-entry only
}

// RepositoriesManifest is the parsed repositories.manifest of a pkg
// repository.
type RepositoriesManifest struct {
	Roles []RepositoryRole
}

// ParseRepositoriesManifest parses a repositories.manifest stream.
func ParseRepositoriesManifest(r io.Reader) (*RepositoriesManifest, error) {
	entries, err := Parse(r)
	if err != nil {
		return nil, err
	}
	rm := &RepositoriesManifest{}
	for _, e := range entries {
		var role RepositoryRole
		for _, f := range e.Fields {
			switch f.Name {
			case "location":
				role.Location = f.Value
			case "role":
				role.Role = f.Value
			case "certificate":
				role.Certificate = strings.TrimSpace(f.Value)
			}
		}
		rm.Roles = append(rm.Roles, role)
	}
	return rm, nil
}

// SignatureManifest is the parsed signature.manifest of a pkg repository.
type SignatureManifest struct {
	SHA256Sum string
	Signature string // base64-encoded RSA-encrypted digest
}

// ParseSignatureManifest parses a signature.manifest stream.
func ParseSignatureManifest(r io.Reader) (*SignatureManifest, error) {
	entries, err := Parse(r)
	if err != nil {
		return nil, err
	}
	if len(entries) != 1 {
		return nil, fmt.Errorf("manifest: signature.manifest must have exactly one entry, got %d", len(entries))
	}
	sm := &SignatureManifest{}
	for _, f := range entries[0].Fields {
		switch f.Name {
		case "sha256sum":
			sm.SHA256Sum = f.Value
		case "signature":
			sm.Signature = f.Value
		}
	}
	if sm.SHA256Sum == "" || sm.Signature == "" {
		return nil, fmt.Errorf("manifest: signature.manifest missing sha256sum or signature")
	}
	return sm, nil
}
