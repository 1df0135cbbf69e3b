package plugin

import (
	"fmt"
	"strings"
)

// ErrPluginNotFound is returned when the requested plugin is not registered.
type ErrPluginNotFound struct {
	Name string
}

func (e ErrPluginNotFound) Error() string {
	return fmt.Sprintf("plugin '%s' not found in registry\nHint: run a rescan if the file was added recently", e.Name)
}

// ErrMalformedMetadata is returned when a plugin source's header or body
// cannot be parsed.
type ErrMalformedMetadata struct {
	Plugin string
	Err    error
}

func (e ErrMalformedMetadata) Error() string {
	return fmt.Sprintf("plugin '%s' has malformed metadata or source: %v", e.Plugin, e.Err)
}

// Unwrap exposes the underlying parse error.
func (e ErrMalformedMetadata) Unwrap() error {
	return e.Err
}

// ErrMissingEntryPoint is returned when a plugin source defines no global
// setup function.
type ErrMissingEntryPoint struct {
	Plugin string
}

func (e ErrMissingEntryPoint) Error() string {
	return fmt.Sprintf("plugin '%s' defines no setup entry point\nHint: declare a top-level 'function setup(host)'", e.Plugin)
}

// ErrMissingDependency is returned when a declared dependency is absent from
// the registry. It is distinct from a cycle.
type ErrMissingDependency struct {
	Plugin     string
	Dependency string
}

func (e ErrMissingDependency) Error() string {
	return fmt.Sprintf("plugin '%s' declares dependency '%s' which is not registered\nHint: place the dependency in the plugin directory and rescan", e.Plugin, e.Dependency)
}

// ErrCircularDependency is returned when the dependency graph contains a
// cycle. The cycle path is reported in declaration order.
type ErrCircularDependency struct {
	Cycle []string
}

func (e ErrCircularDependency) Error() string {
	if len(e.Cycle) == 0 {
		return "circular plugin dependency detected\nHint: review plugin headers to remove the cycle"
	}

	sequence := append(append([]string{}, e.Cycle...), e.Cycle[0])
	return fmt.Sprintf(
		"circular plugin dependency detected: %s\nHint: break the cycle by removing one of the declared dependencies",
		strings.Join(sequence, " -> "),
	)
}

// ErrAlreadyLoaded is returned when loading a plugin that is already loaded.
type ErrAlreadyLoaded struct {
	Plugin string
}

func (e ErrAlreadyLoaded) Error() string {
	return fmt.Sprintf("plugin '%s' is already loaded", e.Plugin)
}

// ErrNotLoaded is returned when unloading or reloading a plugin that is not
// loaded.
type ErrNotLoaded struct {
	Plugin string
}

func (e ErrNotLoaded) Error() string {
	return fmt.Sprintf("plugin '%s' is not loaded", e.Plugin)
}

// ErrDependencyLoadFailed is returned when a plugin could not be loaded
// because one of its dependencies failed first.
type ErrDependencyLoadFailed struct {
	Plugin     string
	Dependency string
	Err        error
}

func (e ErrDependencyLoadFailed) Error() string {
	return fmt.Sprintf("plugin '%s' not loaded: dependency '%s' failed: %v", e.Plugin, e.Dependency, e.Err)
}

// Unwrap exposes the dependency's own failure.
func (e ErrDependencyLoadFailed) Unwrap() error {
	return e.Err
}

// ErrBindFailed is returned when running setup or attaching the plugin's
// bindings failed. Nothing remains attached when this is returned.
type ErrBindFailed struct {
	Plugin string
	Err    error
}

func (e ErrBindFailed) Error() string {
	return fmt.Sprintf("plugin '%s' failed to bind: %v", e.Plugin, e.Err)
}

// Unwrap exposes the underlying bind failure.
func (e ErrBindFailed) Unwrap() error {
	return e.Err
}

// ErrDependentsStillLoaded is returned when unloading a plugin that loaded
// plugins still depend on, without requesting a cascade.
type ErrDependentsStillLoaded struct {
	Plugin     string
	Dependents []string
}

func (e ErrDependentsStillLoaded) Error() string {
	return fmt.Sprintf(
		"plugin '%s' still has loaded dependents: %s\nHint: unload them first or request a cascade unload",
		e.Plugin,
		strings.Join(e.Dependents, ", "),
	)
}
