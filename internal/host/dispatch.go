package host

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wardenbot/warden/internal/permission"
)

// RuntimeFault reports a fault raised by plugin-authored code during
// dispatch. It identifies the plugin and handler so the failure can be
// attributed without exposing internals to the invoking chat context.
type RuntimeFault struct {
	Plugin       string
	HandlerName  string
	InvocationID string
	Cause        error
}

func (e *RuntimeFault) Error() string {
	return fmt.Sprintf("plugin '%s' handler '%s' faulted (invocation %s): %v",
		e.Plugin, e.HandlerName, e.InvocationID, e.Cause)
}

// Unwrap exposes the underlying fault.
func (e *RuntimeFault) Unwrap() error {
	return e.Cause
}

// ErrUnknownCommand is returned when no attached plugin owns the command.
type ErrUnknownCommand struct {
	Command string
}

func (e ErrUnknownCommand) Error() string {
	return fmt.Sprintf("unknown command '%s'", e.Command)
}

// ErrPermissionDenied is returned when the caller does not meet the
// command's required level.
type ErrPermissionDenied struct {
	Command  string
	Required permission.Level
}

func (e ErrPermissionDenied) Error() string {
	return fmt.Sprintf("command '%s' requires %s permissions", e.Command, e.Required)
}

// Dispatch routes one command invocation to its owning plugin. The handler
// runs behind a recovery boundary: a panic or error inside plugin code is
// logged with the plugin and handler identity and surfaced as a
// *RuntimeFault, never allowed to take down the caller.
func (t *Tables) Dispatch(ctx context.Context, command string, caller permission.Caller, args []string) (string, error) {
	t.mu.RLock()
	bound, ok := t.commands[command]
	t.mu.RUnlock()

	if !ok {
		return "", ErrUnknownCommand{Command: command}
	}

	if !t.eval.Allow(ctx, caller, bound.spec.Permission) {
		return "", ErrPermissionDenied{Command: command, Required: bound.spec.Permission}
	}

	inv := Invocation{
		ID:      uuid.NewString(),
		Command: command,
		Caller:  caller,
		Args:    args,
	}

	reply, err := t.invoke(ctx, bound, inv)
	if err != nil {
		t.log.Error(err, "command handler faulted")
		return "", err
	}
	return reply, nil
}

func (t *Tables) invoke(ctx context.Context, bound boundCommand, inv Invocation) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RuntimeFault{
				Plugin:       bound.plugin,
				HandlerName:  bound.spec.Name,
				InvocationID: inv.ID,
				Cause:        fmt.Errorf("panic: %v", r),
			}
		}
	}()

	reply, err = bound.spec.Handler(ctx, inv)
	if err != nil {
		err = &RuntimeFault{
			Plugin:       bound.plugin,
			HandlerName:  bound.spec.Name,
			InvocationID: inv.ID,
			Cause:        err,
		}
	}
	return reply, err
}

// Emit fans an event out to every attached listener. Each listener runs
// behind its own boundary so one faulting plugin never starves its siblings.
// Faults are logged and returned for the caller to report; the slice is nil
// when every listener succeeded.
func (t *Tables) Emit(ctx context.Context, event string, payload map[string]any) []*RuntimeFault {
	t.mu.RLock()
	bound := make([]boundListener, len(t.listeners[event]))
	copy(bound, t.listeners[event])
	t.mu.RUnlock()

	ev := Event{
		ID:      uuid.NewString(),
		Name:    event,
		Payload: payload,
	}

	var faults []*RuntimeFault
	for _, lst := range bound {
		if fault := t.notify(ctx, lst, ev); fault != nil {
			t.log.Error(fault, "event listener faulted")
			faults = append(faults, fault)
		}
	}
	return faults
}

func (t *Tables) notify(ctx context.Context, lst boundListener, ev Event) (fault *RuntimeFault) {
	defer func() {
		if r := recover(); r != nil {
			fault = &RuntimeFault{
				Plugin:       lst.plugin,
				HandlerName:  lst.spec.Event,
				InvocationID: ev.ID,
				Cause:        fmt.Errorf("panic: %v", r),
			}
		}
	}()

	if err := lst.spec.Handler(ctx, ev); err != nil {
		return &RuntimeFault{
			Plugin:       lst.plugin,
			HandlerName:  lst.spec.Event,
			InvocationID: ev.ID,
			Cause:        err,
		}
	}
	return nil
}
