package plugin

import "github.com/charmbracelet/lipgloss"

// State represents the lifecycle state of a plugin descriptor.
type State int

const (
	// StateDiscovered - the source was found and parsed but never loaded.
	StateDiscovered State = iota

	// StateLoaded - commands and listeners are attached to the host tables.
	StateLoaded

	// StateUnloaded - previously loaded, currently detached.
	StateUnloaded

	// StateError - the last parse or lifecycle operation failed.
	StateError
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateLoaded:
		return "loaded"
	case StateUnloaded:
		return "unloaded"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Loadable reports whether a load operation may be attempted from this state.
func (s State) Loadable() bool {
	return s == StateDiscovered || s == StateUnloaded || s == StateError
}

// Icon returns the Unicode icon for the state.
func (s State) Icon() string {
	switch s {
	case StateLoaded:
		return "🟢"
	case StateError:
		return "🔴"
	case StateUnloaded:
		return "🟡"
	default:
		return "⚪"
	}
}

// IconFallback returns ASCII fallback when Unicode is not supported.
func (s State) IconFallback() string {
	switch s {
	case StateLoaded:
		return "[OK]"
	case StateError:
		return "[XX]"
	case StateUnloaded:
		return "[--]"
	default:
		return "[??]"
	}
}

// Color returns the Lipgloss color for the state.
func (s State) Color() lipgloss.Color {
	switch s {
	case StateLoaded:
		return lipgloss.Color("42") // green
	case StateError:
		return lipgloss.Color("196") // red
	case StateUnloaded:
		return lipgloss.Color("226") // yellow
	default:
		return lipgloss.Color("250") // light gray
	}
}
