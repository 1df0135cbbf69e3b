package plugin

import "fmt"

// guard runs fn, which calls into plugin-authored code, and converts a panic
// into an ordinary error attributed to the plugin and operation. Lifecycle
// callers turn the error into a descriptor-level Error transition; dispatch
// callers report it per invocation. Faults never escape to sibling plugins
// or the host's own control flow.
func guard(plugin, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin '%s' panicked during %s: %v", plugin, op, r)
		}
	}()
	return fn()
}
