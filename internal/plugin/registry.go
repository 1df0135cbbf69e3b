package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/wardenbot/warden/internal/logger"
)

const snapshotVersion = "1.0"

// Registry is the authoritative mapping from plugin name to descriptor. It
// persists a reduced snapshot to disk so auto-load intent survives restarts;
// the snapshot is advisory, real state is re-derived by discovery.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
	path        string
	log         *logger.Logger
}

// snapshotFile is the on-disk registry format.
type snapshotFile struct {
	Version   string          `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Plugins   []snapshotEntry `json:"plugins"`
}

type snapshotEntry struct {
	Name     string     `json:"name"`
	Version  string     `json:"version,omitempty"`
	State    string     `json:"state"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
}

// NewRegistry creates an empty registry persisting to the given path.
func NewRegistry(path string, log *logger.Logger) *Registry {
	return &Registry{
		descriptors: make(map[string]*Descriptor),
		path:        path,
		log:         log.WithComponent("registry"),
	}
}

// Upsert inserts or replaces the descriptor under its name.
func (r *Registry) Upsert(desc *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[desc.Name] = desc.Clone()
}

// Get returns a copy of the named descriptor.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.descriptors[name]
	if !ok {
		return nil, false
	}
	return desc.Clone(), true
}

// All returns copies of every descriptor, sorted by name.
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Descriptor, 0, len(r.descriptors))
	for _, desc := range r.descriptors {
		all = append(all, desc.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// Descriptors returns a copied name-to-descriptor map for resolution.
func (r *Registry) Descriptors() map[string]*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := make(map[string]*Descriptor, len(r.descriptors))
	for name, desc := range r.descriptors {
		m[name] = desc.Clone()
	}
	return m
}

// Remove deletes the named descriptor. Removing an unknown name is a no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.descriptors, name)
}

// Persist writes the registry snapshot to disk atomically.
func (r *Registry) Persist() error {
	r.mu.RLock()
	file := snapshotFile{
		Version:   snapshotVersion,
		UpdatedAt: time.Now().UTC(),
		Plugins:   make([]snapshotEntry, 0, len(r.descriptors)),
	}
	for _, desc := range r.descriptors {
		entry := snapshotEntry{
			Name:    desc.Name,
			Version: desc.Version,
			State:   desc.State.String(),
		}
		if !desc.LoadedAt.IsZero() {
			at := desc.LoadedAt
			entry.LoadedAt = &at
		}
		file.Plugins = append(file.Plugins, entry)
	}
	r.mu.RUnlock()

	sort.Slice(file.Plugins, func(i, j int) bool { return file.Plugins[i].Name < file.Plugins[j].Name })

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	tmpPath := r.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Restore reads the snapshot from disk and returns the names recorded as
// loaded, the auto-load set for startup. A missing or corrupt snapshot
// yields an empty set with a logged warning; it is never fatal.
func (r *Registry) Restore() map[string]struct{} {
	autoload := make(map[string]struct{})

	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Error(err, "failed to read registry snapshot, starting empty")
		}
		return autoload
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		r.log.Error(err, "registry snapshot is corrupt, starting empty")
		return autoload
	}

	for _, entry := range file.Plugins {
		if entry.State == StateLoaded.String() {
			autoload[entry.Name] = struct{}{}
		}
	}
	return autoload
}
