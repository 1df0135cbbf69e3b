// Package host owns the live command and event-listener tables a running bot
// dispatches against. The plugin runtime is the single writer: it attaches a
// plugin's bindings when the plugin loads and detaches them when it unloads.
// The chat transport layer only reads, via Dispatch and Emit.
package host

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wardenbot/warden/internal/logger"
	"github.com/wardenbot/warden/internal/permission"
)

// Handler executes one command invocation and returns the reply text.
type Handler func(ctx context.Context, inv Invocation) (string, error)

// ListenerFunc reacts to one host event.
type ListenerFunc func(ctx context.Context, ev Event) error

// CommandSpec declares one command a plugin contributes.
type CommandSpec struct {
	Name        string
	Description string
	Permission  permission.Level
	Handler     Handler
}

// ListenerSpec declares one event listener a plugin contributes.
type ListenerSpec struct {
	Event   string
	Handler ListenerFunc
}

// Invocation carries the context of one command call.
type Invocation struct {
	ID      string
	Command string
	Caller  permission.Caller
	Args    []string
}

// Event carries the context of one host event.
type Event struct {
	ID      string
	Name    string
	Payload map[string]any
}

type boundCommand struct {
	plugin string
	spec   CommandSpec
}

type boundListener struct {
	plugin string
	spec   ListenerSpec
}

// ErrAlreadyAttached is returned when a plugin attaches twice without an
// intervening detach.
type ErrAlreadyAttached struct {
	Plugin string
}

func (e ErrAlreadyAttached) Error() string {
	return fmt.Sprintf("plugin '%s' is already attached", e.Plugin)
}

// ErrCommandConflict is returned when a command name is already owned by
// another plugin.
type ErrCommandConflict struct {
	Command string
	Owner   string
}

func (e ErrCommandConflict) Error() string {
	return fmt.Sprintf("command '%s' is already registered by plugin '%s'", e.Command, e.Owner)
}

// Tables is the shared dispatch surface. All mutation goes through Attach
// and Detach so a plugin's bindings appear and disappear atomically.
type Tables struct {
	mu        sync.RWMutex
	commands  map[string]boundCommand
	listeners map[string][]boundListener
	attached  map[string]struct{}

	eval permission.Evaluator
	log  *logger.Logger
}

// NewTables creates empty dispatch tables. A nil evaluator permits all
// callers.
func NewTables(eval permission.Evaluator, log *logger.Logger) *Tables {
	if eval == nil {
		eval = permission.AllowAll
	}
	return &Tables{
		commands:  make(map[string]boundCommand),
		listeners: make(map[string][]boundListener),
		attached:  make(map[string]struct{}),
		eval:      eval,
		log:       log.WithComponent("host"),
	}
}

// Attach binds a plugin's commands and listeners. The bind is all-or-nothing:
// conflicts are checked before any table is touched. Attaching an
// already-attached plugin is an error.
func (t *Tables) Attach(plugin string, cmds []CommandSpec, listeners []ListenerSpec) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.attached[plugin]; exists {
		return ErrAlreadyAttached{Plugin: plugin}
	}

	seen := make(map[string]struct{}, len(cmds))
	for _, cmd := range cmds {
		if cmd.Name == "" {
			return fmt.Errorf("plugin '%s' registered a command with no name", plugin)
		}
		if cmd.Handler == nil {
			return fmt.Errorf("plugin '%s' registered command '%s' with no handler", plugin, cmd.Name)
		}
		if _, dup := seen[cmd.Name]; dup {
			return fmt.Errorf("plugin '%s' registered command '%s' twice", plugin, cmd.Name)
		}
		seen[cmd.Name] = struct{}{}
		if owner, exists := t.commands[cmd.Name]; exists {
			return ErrCommandConflict{Command: cmd.Name, Owner: owner.plugin}
		}
	}
	for _, lst := range listeners {
		if lst.Event == "" || lst.Handler == nil {
			return fmt.Errorf("plugin '%s' registered an incomplete listener", plugin)
		}
	}

	for _, cmd := range cmds {
		t.commands[cmd.Name] = boundCommand{plugin: plugin, spec: cmd}
	}
	for _, lst := range listeners {
		t.listeners[lst.Event] = append(t.listeners[lst.Event], boundListener{plugin: plugin, spec: lst})
	}
	t.attached[plugin] = struct{}{}
	return nil
}

// Detach removes every binding owned by the plugin. Detaching a plugin that
// is not attached is a no-op.
func (t *Tables) Detach(plugin string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for name, cmd := range t.commands {
		if cmd.plugin == plugin {
			delete(t.commands, name)
		}
	}
	for event, bound := range t.listeners {
		kept := bound[:0]
		for _, lst := range bound {
			if lst.plugin != plugin {
				kept = append(kept, lst)
			}
		}
		if len(kept) == 0 {
			delete(t.listeners, event)
		} else {
			t.listeners[event] = kept
		}
	}
	delete(t.attached, plugin)
}

// IsAttached reports whether the plugin currently has bindings in the tables.
func (t *Tables) IsAttached(plugin string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.attached[plugin]
	return ok
}

// Commands returns the attached command names in sorted order.
func (t *Tables) Commands() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.commands))
	for name := range t.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CommandsOf returns the command names owned by one plugin, sorted.
func (t *Tables) CommandsOf(plugin string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var names []string
	for name, cmd := range t.commands {
		if cmd.plugin == plugin {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ListenersOf returns the event names the plugin listens to, sorted, with
// duplicates preserved per registration.
func (t *Tables) ListenersOf(plugin string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var events []string
	for event, bound := range t.listeners {
		for _, lst := range bound {
			if lst.plugin == plugin {
				events = append(events, event)
			}
		}
	}
	sort.Strings(events)
	return events
}
