package plugin

import (
	"fmt"
	"strings"
	"time"

	"github.com/wardenbot/warden/internal/permission"
)

// Metadata describes a plugin's identity and requirements as declared in its
// source header.
type Metadata struct {
	Name         string
	Version      string
	Author       string
	Description  string
	Dependencies []string
	Permission   permission.Level
}

// Validate ensures metadata is well-formed. Name is always set by the parser
// (it falls back to the file stem), so validation concentrates on the
// dependency list.
func (m Metadata) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("plugin metadata requires a non-empty name")
	}

	seen := make(map[string]struct{}, len(m.Dependencies))
	for _, dep := range m.Dependencies {
		if dep == m.Name {
			return fmt.Errorf("plugin '%s' cannot depend on itself", m.Name)
		}
		if _, dup := seen[dep]; dup {
			return fmt.Errorf("plugin '%s' lists dependency '%s' more than once", m.Name, dep)
		}
		seen[dep] = struct{}{}
	}
	return nil
}

// Descriptor is the registry's record for one plugin: declared metadata plus
// lifecycle state.
type Descriptor struct {
	Metadata

	// Source is the path of the backing file.
	Source string

	State     State
	LastError string
	LoadedAt  time.Time

	// AutoLoad records whether the plugin should be loaded at host startup.
	// It survives restarts through the registry snapshot.
	AutoLoad bool

	// Missing is set by a rescan whose backing file has disappeared. The
	// descriptor stays registered until an explicit prune.
	Missing bool

	// ModTime is the source file's modification time at parse.
	ModTime time.Time
}

// Clone returns an independent copy of the descriptor.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Dependencies = append([]string(nil), d.Dependencies...)
	return &cp
}

// setError moves the descriptor into the error state, recording the cause.
func (d *Descriptor) setError(err error) {
	d.State = StateError
	d.LastError = err.Error()
	d.LoadedAt = time.Time{}
}

// setLoaded moves the descriptor into the loaded state.
func (d *Descriptor) setLoaded(at time.Time) {
	d.State = StateLoaded
	d.LastError = ""
	d.LoadedAt = at
	d.AutoLoad = true
}

// setUnloaded moves the descriptor into the unloaded state.
func (d *Descriptor) setUnloaded() {
	d.State = StateUnloaded
	d.LastError = ""
	d.LoadedAt = time.Time{}
	d.AutoLoad = false
}
