// Package manifest implements the line-oriented, name-colon-value grammar
// shared by repositories.manifest, packages.manifest, signature.manifest
// and per-package manifest files (spec.md §6), and the typed structures
// built on top of it.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Entry is one manifest entry: an ordered list of name:value fields.
// Manifests are a sequence of entries separated by a blank line (the
// "packages.manifest" list-of-packages shape); a single-entry manifest
// (per-package manifest, signature.manifest) has exactly one.
type Entry struct {
	Fields []Field
}

// Field is a single name:value pair. Continuation lines (leading
// whitespace) are folded into Value with embedded newlines preserved.
type Field struct {
	Name  string
	Value string
}

// Get returns the value of the first field named name, and whether it
// was present.
func (e Entry) Get(name string) (string, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// GetAll returns every value for fields named name, in order.
func (e Entry) GetAll(name string) []string {
	var out []string
	for _, f := range e.Fields {
		if f.Name == name {
			out = append(out, f.Value)
		}
	}
	return out
}

// Parse reads a sequence of entries from r.
func Parse(r io.Reader) ([]Entry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var entries []Entry
	var cur Entry
	var lastField *Field

	flush := func() {
		if len(cur.Fields) > 0 {
			entries = append(entries, cur)
		}
		cur = Entry{}
		lastField = nil
	}

	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Text()

		if strings.TrimSpace(raw) == "" {
			flush()
			continue
		}
		if strings.HasPrefix(raw, "#") {
			continue
		}
		if (strings.HasPrefix(raw, " ") || strings.HasPrefix(raw, "\t")) && lastField != nil {
			lastField.Value += "\n" + strings.TrimSpace(raw)
			continue
		}

		i := strings.IndexByte(raw, ':')
		if i < 0 {
			return nil, fmt.Errorf("manifest: line %d: expected 'name: value', got %q", lineNo, raw)
		}
		name := strings.TrimSpace(raw[:i])
		value := strings.TrimSpace(raw[i+1:])
		cur.Fields = append(cur.Fields, Field{Name: name, Value: value})
		lastField = &cur.Fields[len(cur.Fields)-1]
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("manifest: scan: %w", err)
	}
	flush()
	return entries, nil
}

// Write serializes entries back to the name-colon-value grammar,
// separating entries with a blank line. Used when rewriting
// packages.manifest (spec.md §6's backward-compatibility requirement).
func Write(w io.Writer, entries []Entry) error {
	for i, e := range entries {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		for _, f := range e.Fields {
			lines := strings.Split(f.Value, "\n")
			if _, err := fmt.Fprintf(w, "%s: %s\n", f.Name, lines[0]); err != nil {
				return err
			}
			for _, cont := range lines[1:] {
				if _, err := fmt.Fprintf(w, "  %s\n", cont); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
