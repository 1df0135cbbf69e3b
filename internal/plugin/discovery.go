package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wardenbot/warden/internal/logger"
)

const sourceExtension = ".lua"

// Scanner discovers plugin sources in a single directory. The scan is
// non-recursive and filters on the .lua extension; files with a leading
// underscore are skipped. One file's parse failure is recorded on its
// descriptor and never aborts the scan.
type Scanner struct {
	dir      string
	registry *Registry
	log      *logger.Logger
}

// NewScanner creates a scanner over the given plugin directory.
func NewScanner(dir string, registry *Registry, log *logger.Logger) *Scanner {
	return &Scanner{
		dir:      dir,
		registry: registry,
		log:      log.WithComponent("discovery"),
	}
}

// Dir returns the scanned plugin directory.
func (s *Scanner) Dir() string {
	return s.dir
}

// Scan walks the plugin directory and records one descriptor per candidate
// file. Rescans are idempotent: Loaded descriptors for still-present files
// are left untouched, new files are added as Discovered, and descriptors
// whose file disappeared are flagged Missing but kept until Prune. The
// context bounds directory and file I/O.
func (s *Scanner) Scan(ctx context.Context) ([]*Descriptor, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Warn(fmt.Sprintf("plugin directory %s does not exist", s.dir))
			entries = nil
		} else {
			return nil, fmt.Errorf("failed to scan plugin directory: %w", err)
		}
	}

	present := make(map[string]struct{})
	var scanned []*Descriptor

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return scanned, err
		}
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != sourceExtension || strings.HasPrefix(name, "_") {
			continue
		}

		desc := s.inspect(filepath.Join(s.dir, name))
		present[desc.Name] = struct{}{}

		if existing, ok := s.registry.Get(desc.Name); ok {
			if existing.State == StateLoaded {
				// Never force an unload from a rescan.
				existing.Missing = false
				s.registry.Upsert(existing)
				scanned = append(scanned, existing)
				continue
			}
			desc.AutoLoad = existing.AutoLoad
			desc.State = rescanState(existing.State, desc.State)
			if desc.State != StateError {
				desc.LastError = ""
			}
		}

		s.registry.Upsert(desc)
		scanned = append(scanned, desc)
	}

	// Flag registered descriptors whose backing file disappeared.
	for _, desc := range s.registry.All() {
		if _, ok := present[desc.Name]; ok {
			continue
		}
		if !desc.Missing {
			s.log.Warn(fmt.Sprintf("plugin %s source file is gone", desc.Name))
			desc.Missing = true
			s.registry.Upsert(desc)
		}
	}

	return scanned, nil
}

// inspect parses one candidate file into a descriptor. Parse failures yield
// an Error-state descriptor rather than an error.
func (s *Scanner) inspect(path string) *Descriptor {
	desc := &Descriptor{
		Source: path,
		State:  StateDiscovered,
	}

	if info, err := os.Stat(path); err == nil {
		desc.ModTime = info.ModTime()
	}

	src, err := os.ReadFile(path)
	if err != nil {
		desc.Name = pluginNameFromPath(path)
		desc.setError(fmt.Errorf("failed to read plugin source: %w", err))
		s.log.Error(err, fmt.Sprintf("failed to read %s", path))
		return desc
	}

	meta, _, err := ParseSource(path, src)
	desc.Metadata = meta
	if err != nil {
		desc.setError(err)
		s.log.Warn(fmt.Sprintf("plugin %s failed to parse: %v", desc.Name, err))
	}
	return desc
}

// Prune removes descriptors flagged Missing that are not currently Loaded.
// It returns the removed names.
func (s *Scanner) Prune() []string {
	var removed []string
	for _, desc := range s.registry.All() {
		if desc.Missing && desc.State != StateLoaded {
			s.registry.Remove(desc.Name)
			removed = append(removed, desc.Name)
		}
	}
	return removed
}

// rescanState decides the post-rescan state for a known, not-loaded plugin.
// A previously Unloaded plugin that still parses stays Unloaded so the
// distinction from never-loaded survives rescans.
func rescanState(previous, fresh State) State {
	if fresh == StateError {
		return StateError
	}
	if previous == StateUnloaded {
		return StateUnloaded
	}
	return fresh
}
