package app

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bpkg-toolchain/bpkg/internal/diag"
	"github.com/bpkg-toolchain/bpkg/internal/resolve"
)

// driverSkeleton implements resolve.Skeleton by shelling out to the
// configured build-system driver against a package's (possibly not yet
// unpacked) source tree, per spec.md §9's "build system as external
// subprocess contract via `b info`". Each method maps to one driver
// subcommand; output is line-oriented "name: value" or "name=value"
// pairs, mirroring the manifest grammar the rest of this codebase
// already parses.
type driverSkeleton struct {
	driver    string
	srcHint   string // archive path or checkout directory, not yet configured
	configDir string
}

func (s *driverSkeleton) run(args ...string) ([]byte, error) {
	cmd := exec.Command(s.driver, append([]string{"info", s.srcHint}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		return nil, diag.Wrap(diag.KindSubprocess, err, "app: driver %s %v", s.driver, args)
	}
	return out, nil
}

func parseNameValueLines(out []byte) []resolve.VarValue {
	var vals []resolve.VarValue
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		sep := "="
		if i := strings.IndexByte(line, ':'); i >= 0 && (strings.IndexByte(line, '=') < 0 || i < strings.IndexByte(line, '=')) {
			sep = ":"
		}
		name, value, ok := strings.Cut(line, sep)
		if !ok {
			continue
		}
		vals = append(vals, resolve.VarValue{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	return vals
}

// ReloadDefaults runs "<driver> info <src> config.save" and parses its
// config.* variable defaults.
func (s *driverSkeleton) ReloadDefaults() ([]resolve.VarValue, error) {
	out, err := s.run("config.save")
	if err != nil {
		return nil, err
	}
	return parseNameValueLines(out), nil
}

// EvaluateEnable runs the driver's boolean evaluator over clause.
func (s *driverSkeleton) EvaluateEnable(clause string) (bool, error) {
	if clause == "" {
		return true, nil
	}
	out, err := s.run("eval", "enable", clause)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(out)) == "true", nil
}

// EvaluateReflect runs the driver's reflect evaluator, returning the
// variable bindings it exports to the dependent's configuration.
func (s *driverSkeleton) EvaluateReflect(clause string) ([]resolve.VarValue, error) {
	if clause == "" {
		return nil, nil
	}
	out, err := s.run("eval", "reflect", clause)
	if err != nil {
		return nil, err
	}
	return parseNameValueLines(out), nil
}

// EvaluatePreferAccept runs the driver's prefer/accept evaluator,
// passing each dependency's current config on stdin as
// "<dep>.<name>=<value>" lines, and parses the proposed bindings plus
// the accepted verdict from its output.
func (s *driverSkeleton) EvaluatePreferAccept(preferClause, acceptClause string, deps map[string][]resolve.VarValue) (map[string][]resolve.VarValue, bool, error) {
	cmd := exec.Command(s.driver, "info", s.srcHint, "eval", "prefer-accept", preferClause, acceptClause)
	cmd.Stdin = depsStdin(deps)
	out, err := cmd.Output()
	if err != nil {
		return nil, false, diag.Wrap(diag.KindSubprocess, err, "app: driver %s prefer-accept", s.driver)
	}
	return parsePreferAcceptOutput(out)
}

// EvaluateRequire asserts clause against deps, returning the bindings it
// sets. In laxMode (a system-package dependency whose defaults cannot be
// loaded) only boolean-true assignments are permitted.
func (s *driverSkeleton) EvaluateRequire(clause string, deps map[string][]resolve.VarValue, laxMode bool) (map[string][]resolve.VarValue, error) {
	args := []string{"eval", "require", clause}
	if laxMode {
		args = append(args, "--lax")
	}
	cmd := exec.Command(s.driver, append([]string{"info", s.srcHint}, args...)...)
	cmd.Stdin = depsStdin(deps)
	out, err := cmd.Output()
	if err != nil {
		return nil, diag.Wrap(diag.KindSubprocess, err, "app: driver %s require", s.driver)
	}
	bindings, _, err := parsePreferAcceptOutput(out)
	return bindings, err
}

// LoadOverrides returns user-specified variable overrides recorded
// against srcHint's configuration.
func (s *driverSkeleton) LoadOverrides() ([]resolve.VarValue, error) {
	out, err := s.run("config.list", "--overrides")
	if err != nil {
		return nil, err
	}
	return parseNameValueLines(out), nil
}

func depsStdin(deps map[string][]resolve.VarValue) *bytes.Buffer {
	var buf bytes.Buffer
	for dep, vars := range deps {
		for _, v := range vars {
			fmt.Fprintf(&buf, "%s.%s=%s\n", dep, v.Name, v.Value)
		}
	}
	return &buf
}

// parsePreferAcceptOutput parses a driver's "dep.name=value" proposal
// lines plus a trailing "accepted: true|false" line.
func parsePreferAcceptOutput(out []byte) (map[string][]resolve.VarValue, bool, error) {
	proposed := map[string][]resolve.VarValue{}
	accepted := false
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "accepted:") {
			v, _ := strconv.ParseBool(strings.TrimSpace(strings.TrimPrefix(line, "accepted:")))
			accepted = v
			continue
		}
		kv, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		dep, name, ok := strings.Cut(kv, ".")
		if !ok {
			continue
		}
		proposed[dep] = append(proposed[dep], resolve.VarValue{Name: name, Value: value})
	}
	return proposed, accepted, nil
}
