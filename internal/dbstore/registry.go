package dbstore

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// envOpenConfigs is the environment variable exported for cooperating
// external build tools, per spec.md §4.1.
const envOpenConfigs = "BPKG_OPEN_CONFIGS"

// Registry tracks every configuration directory opened by this process
// and keeps BPKG_OPEN_CONFIGS in sync.
type Registry struct {
	mu   sync.Mutex
	open map[string]*Handle
}

var defaultRegistry = &Registry{open: map[string]*Handle{}}

func (r *Registry) add(dir string, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open[dir] = h
	r.sync()
}

func (r *Registry) remove(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.open, dir)
	r.sync()
}

// sync must be called with r.mu held.
func (r *Registry) sync() {
	dirs := make([]string, 0, len(r.open))
	for d := range r.open {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	var b strings.Builder
	for i, d := range dirs {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%q", d)
	}
	os.Setenv(envOpenConfigs, b.String())
}

// OpenDirs returns the configuration directories currently open in this
// process, sorted.
func OpenDirs() []string {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	dirs := make([]string, 0, len(defaultRegistry.open))
	for d := range defaultRegistry.open {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// Lookup returns the already-open Handle for dir, if any.
func Lookup(dir string) (*Handle, bool) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	h, ok := defaultRegistry.open[dir]
	return h, ok
}
