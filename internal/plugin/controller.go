package plugin

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/wardenbot/warden/internal/host"
	"github.com/wardenbot/warden/internal/logger"
)

// Controller drives the plugin lifecycle against the live host tables. Every
// mutating operation runs under one mutex, so load, unload and reload-all
// never interleave, and a plugin's table mutations happen in the same
// critical section as its state transition: dispatchers observe either the
// fully-pre-change or fully-post-change binding set.
type Controller struct {
	mu        sync.Mutex
	registry  *Registry
	scanner   *Scanner
	tables    *host.Tables
	log       *logger.Logger
	instances map[string]*instance

	// autoLoadNew controls whether plugins discovered for the first time
	// during Bootstrap or ReloadAll are loaded automatically.
	autoLoadNew bool
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithAutoLoadNew makes newly discovered plugins load during Bootstrap and
// ReloadAll.
func WithAutoLoadNew(enabled bool) ControllerOption {
	return func(c *Controller) {
		c.autoLoadNew = enabled
	}
}

// NewController creates a lifecycle controller over the given collaborators.
func NewController(registry *Registry, scanner *Scanner, tables *host.Tables, log *logger.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		registry:  registry,
		scanner:   scanner,
		tables:    tables,
		log:       log.WithComponent("lifecycle"),
		instances: make(map[string]*instance),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BatchResult reports the per-plugin outcome of a batch operation. A nil
// Err means the plugin loaded.
type BatchResult struct {
	Entries []BatchEntry
}

// BatchEntry is one plugin's outcome within a batch.
type BatchEntry struct {
	Name string
	Err  error
}

func (r *BatchResult) add(name string, err error) {
	r.Entries = append(r.Entries, BatchEntry{Name: name, Err: err})
}

// Failed returns the entries that carry an error.
func (r *BatchResult) Failed() []BatchEntry {
	var failed []BatchEntry
	for _, entry := range r.Entries {
		if entry.Err != nil {
			failed = append(failed, entry)
		}
	}
	return failed
}

// Load loads the named plugin, loading its not-yet-loaded dependencies
// first. The bind is all-or-nothing per plugin: a failure leaves that
// plugin in the Error state with nothing attached.
func (c *Controller) Load(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.loadLocked(ctx, name)
	if err == nil {
		c.persist()
	}
	return err
}

func (c *Controller) loadLocked(ctx context.Context, name string) error {
	desc, ok := c.registry.Get(name)
	if !ok {
		return ErrPluginNotFound{Name: name}
	}
	if desc.State == StateLoaded {
		return ErrAlreadyLoaded{Plugin: name}
	}

	descriptors := c.registry.Descriptors()
	order, err := LoadOrder(descriptors, []string{name})
	if err != nil {
		return err
	}

	for _, member := range order {
		if descriptors[member].State == StateLoaded {
			continue
		}
		if err := c.loadOne(ctx, member); err != nil {
			if member != name {
				return ErrDependencyLoadFailed{Plugin: name, Dependency: member, Err: err}
			}
			return err
		}
	}
	return nil
}

// loadOne builds a fresh instance from freshly read source and attaches its
// bindings. The descriptor ends Loaded on success, Error otherwise.
func (c *Controller) loadOne(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	desc, ok := c.registry.Get(name)
	if !ok {
		return ErrPluginNotFound{Name: name}
	}

	src, err := os.ReadFile(desc.Source)
	if err != nil {
		readErr := fmt.Errorf("failed to read plugin source: %w", err)
		desc.setError(readErr)
		c.registry.Upsert(desc)
		return readErr
	}

	meta, body, parseErr := ParseSource(desc.Source, src)
	meta.Name = name // registry key wins over a renamed header
	desc.Metadata = meta
	if parseErr != nil {
		desc.setError(parseErr)
		c.registry.Upsert(desc)
		return parseErr
	}

	inst, err := newInstance(name, body, meta.Permission, c.log)
	if err != nil {
		bindErr := ErrBindFailed{Plugin: name, Err: err}
		desc.setError(bindErr)
		c.registry.Upsert(desc)
		return bindErr
	}

	if err := c.tables.Attach(name, inst.commands, inst.listeners); err != nil {
		inst.Close()
		bindErr := ErrBindFailed{Plugin: name, Err: err}
		desc.setError(bindErr)
		c.registry.Upsert(desc)
		return bindErr
	}

	desc.setLoaded(time.Now().UTC())
	desc.Missing = false
	c.registry.Upsert(desc)
	c.instances[name] = inst

	c.log.WithPlugin(name).Info("plugin loaded")
	return nil
}

// Unload detaches the named plugin. It fails with ErrDependentsStillLoaded
// while loaded plugins depend on it, unless cascade is requested, in which
// case dependents are unloaded first in reverse dependency order.
func (c *Controller) Unload(ctx context.Context, name string, cascade bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	desc, ok := c.registry.Get(name)
	if !ok {
		return ErrPluginNotFound{Name: name}
	}
	if desc.State != StateLoaded {
		return ErrNotLoaded{Plugin: name}
	}

	descriptors := c.registry.Descriptors()
	dependents := LoadedDependents(descriptors, name)
	if len(dependents) > 0 && !cascade {
		return ErrDependentsStillLoaded{Plugin: name, Dependents: dependents}
	}

	order := []string{name}
	if cascade {
		var err error
		order, err = UnloadOrder(descriptors, name)
		if err != nil {
			return err
		}
	}

	for _, member := range order {
		c.unloadOne(member)
	}
	c.persist()
	return nil
}

// unloadOne detaches one plugin's bindings, runs its teardown hook behind
// the boundary, and releases its Lua state. Teardown failures are logged,
// never fatal: the host must not keep stale bindings because a plugin's
// cleanup was buggy.
func (c *Controller) unloadOne(name string) {
	c.tables.Detach(name)

	if inst, ok := c.instances[name]; ok {
		if err := inst.Teardown(); err != nil {
			c.log.WithPlugin(name).Error(err, "teardown hook failed")
		}
		inst.Close()
		delete(c.instances, name)
	}

	if desc, ok := c.registry.Get(name); ok {
		desc.setUnloaded()
		c.registry.Upsert(desc)
	}
	c.log.WithPlugin(name).Info("plugin unloaded")
}

// Reload atomically unloads the named plugin and loads it again from
// freshly read source. If the load half fails, the plugin ends in Error
// with its prior bindings gone, and the failure is surfaced.
func (c *Controller) Reload(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	desc, ok := c.registry.Get(name)
	if !ok {
		return ErrPluginNotFound{Name: name}
	}
	if desc.State != StateLoaded {
		return ErrNotLoaded{Plugin: name}
	}

	c.unloadOne(name)
	err := c.loadOne(ctx, name)
	c.persist()
	return err
}

// ReloadAll unloads every loaded plugin in reverse dependency order,
// rescans the plugin directory, then loads every previously-loaded plugin
// (plus newly discovered ones when auto-load is enabled) in forward
// dependency order. One plugin's failure never aborts the rest; failures
// are collected in the batch result.
func (c *Controller) ReloadAll(ctx context.Context) (*BatchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := &BatchResult{}

	descriptors := c.registry.Descriptors()
	var loaded []string
	for name, desc := range descriptors {
		if desc.State == StateLoaded {
			loaded = append(loaded, name)
		}
	}
	sort.Strings(loaded)

	forward, err := LoadOrder(descriptors, loaded)
	if err != nil {
		// Loaded plugins always satisfy the dependency closure; a failure
		// here means registry corruption.
		return result, err
	}
	for i := len(forward) - 1; i >= 0; i-- {
		if descriptors[forward[i]].State == StateLoaded {
			c.unloadOne(forward[i])
		}
	}

	if _, err := c.scanner.Scan(ctx); err != nil {
		c.persist()
		return result, err
	}

	targets := c.batchTargets(loaded)
	c.loadBatch(ctx, targets, result)
	c.persist()
	return result, nil
}

// Bootstrap restores the registry snapshot, discovers plugins, and loads
// the ones the snapshot recorded as loaded (plus newly discovered ones when
// auto-load is enabled). Called once at host startup.
func (c *Controller) Bootstrap(ctx context.Context) (*BatchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := &BatchResult{}

	autoload := c.registry.Restore()
	if _, err := c.scanner.Scan(ctx); err != nil {
		return result, err
	}

	var prev []string
	for name := range autoload {
		if _, ok := c.registry.Get(name); ok {
			prev = append(prev, name)
		}
	}
	sort.Strings(prev)

	targets := c.batchTargets(prev)
	c.loadBatch(ctx, targets, result)
	c.persist()
	return result, nil
}

// Rescan re-runs discovery without touching loaded plugins.
func (c *Controller) Rescan(ctx context.Context) ([]*Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	scanned, err := c.scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	c.persist()
	return scanned, nil
}

// Prune drops descriptors whose backing source disappeared and that are not
// loaded. Returns the removed names.
func (c *Controller) Prune() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := c.scanner.Prune()
	if len(removed) > 0 {
		c.persist()
	}
	return removed
}

// Shutdown unloads every loaded plugin in reverse dependency order and
// writes a final registry snapshot.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	descriptors := c.registry.Descriptors()
	var loaded []string
	for name, desc := range descriptors {
		if desc.State == StateLoaded {
			loaded = append(loaded, name)
		}
	}
	sort.Strings(loaded)

	forward, err := LoadOrder(descriptors, loaded)
	if err != nil {
		return err
	}
	for i := len(forward) - 1; i >= 0; i-- {
		if descriptors[forward[i]].State == StateLoaded {
			c.unloadOne(forward[i])
		}
	}

	return c.registry.Persist()
}

// Stats summarizes the registry for status output.
type Stats struct {
	Total   int
	Loaded  int
	Errored int
}

// Stats returns aggregate plugin counts.
func (c *Controller) Stats() Stats {
	var stats Stats
	for _, desc := range c.registry.All() {
		stats.Total++
		switch desc.State {
		case StateLoaded:
			stats.Loaded++
		case StateError:
			stats.Errored++
		}
	}
	return stats
}

// batchTargets merges previously-loaded names with newly discovered ones
// when auto-load is enabled.
func (c *Controller) batchTargets(prev []string) []string {
	targets := append([]string(nil), prev...)
	if c.autoLoadNew {
		seen := make(map[string]struct{}, len(targets))
		for _, name := range targets {
			seen[name] = struct{}{}
		}
		for _, desc := range c.registry.All() {
			if desc.State == StateDiscovered && !desc.Missing {
				if _, dup := seen[desc.Name]; !dup {
					targets = append(targets, desc.Name)
				}
			}
		}
	}
	sort.Strings(targets)
	return targets
}

// loadBatch loads the target plugins in forward dependency order, recording
// one entry per plugin. A dependency's failure is propagated to its
// dependents as ErrDependencyLoadFailed without aborting the batch.
func (c *Controller) loadBatch(ctx context.Context, targets []string, result *BatchResult) {
	descriptors := c.registry.Descriptors()

	var resolvable []string
	for _, target := range targets {
		if _, err := LoadOrder(descriptors, []string{target}); err != nil {
			result.add(target, err)
			continue
		}
		resolvable = append(resolvable, target)
	}
	if len(resolvable) == 0 {
		return
	}

	order, err := LoadOrder(descriptors, resolvable)
	if err != nil {
		for _, target := range resolvable {
			result.add(target, err)
		}
		return
	}

	failed := make(map[string]error)
	for _, member := range order {
		if err := ctx.Err(); err != nil {
			result.add(member, err)
			continue
		}

		var depErr error
		for _, dep := range descriptors[member].Dependencies {
			if cause, bad := failed[dep]; bad {
				depErr = ErrDependencyLoadFailed{Plugin: member, Dependency: dep, Err: cause}
				break
			}
		}
		if depErr != nil {
			failed[member] = depErr
			result.add(member, depErr)
			continue
		}

		if desc, ok := c.registry.Get(member); ok && desc.State == StateLoaded {
			continue
		}
		if err := c.loadOne(ctx, member); err != nil {
			failed[member] = err
			result.add(member, err)
			continue
		}
		result.add(member, nil)
	}
}

// persist writes the registry snapshot, logging rather than failing the
// lifecycle operation when the write goes wrong.
func (c *Controller) persist() {
	if err := c.registry.Persist(); err != nil {
		c.log.Error(err, "failed to persist registry snapshot")
	}
}
