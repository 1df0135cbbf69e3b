package plugin

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/wardenbot/warden/internal/host"
	"github.com/wardenbot/warden/internal/logger"
	"github.com/wardenbot/warden/internal/permission"
)

// instance is one plugin's live Lua state. Reloading a plugin means building
// a fresh instance from freshly read source and swapping table entries, never
// mutating a running state in place.
//
// gopher-lua states are not goroutine safe; every call into the state goes
// through the instance mutex.
type instance struct {
	mu     sync.Mutex
	name   string
	L      *lua.LState
	log    *logger.Logger
	closed bool

	defaultPerm permission.Level
	commands    []host.CommandSpec
	listeners   []host.ListenerSpec
	hasTeardown bool
}

// newInstance executes the plugin body and runs its setup entry point,
// collecting the command and listener registrations made during setup. The
// returned instance has not been attached to any table yet; on error nothing
// is left running.
func newInstance(name, body string, defaultPerm permission.Level, log *logger.Logger) (*instance, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)

	inst := &instance{
		name:        name,
		L:           L,
		log:         log.WithPlugin(name),
		defaultPerm: defaultPerm,
	}

	if err := guard(name, "load", func() error {
		return L.DoString(body)
	}); err != nil {
		inst.Close()
		return nil, err
	}

	setup := L.GetGlobal(entryPointName)
	if setup.Type() != lua.LTFunction {
		inst.Close()
		return nil, ErrMissingEntryPoint{Plugin: name}
	}

	hostTable := inst.buildHostTable()
	if err := guard(name, "setup", func() error {
		return L.CallByParam(lua.P{Fn: setup, NRet: 0, Protect: true}, hostTable)
	}); err != nil {
		inst.Close()
		return nil, err
	}

	inst.hasTeardown = L.GetGlobal("teardown").Type() == lua.LTFunction

	return inst, nil
}

// openSafeLibraries opens only side-effect-free Lua standard libraries.
// io, os, debug and package stay closed.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// buildHostTable constructs the host reference passed to setup.
func (inst *instance) buildHostTable() *lua.LTable {
	tbl := inst.L.NewTable()
	inst.L.SetFuncs(tbl, map[string]lua.LGFunction{
		"register_command": inst.luaRegisterCommand,
		"on_event":         inst.luaOnEvent,
		"log":              inst.luaLog,
	})
	return tbl
}

// luaRegisterCommand implements host.register_command(name, handler[, opts]).
// opts may carry 'description' and 'permission'; the permission defaults to
// the plugin's declared minimum level.
func (inst *instance) luaRegisterCommand(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)
	opts := L.OptTable(3, nil)

	spec := host.CommandSpec{
		Name:       name,
		Permission: inst.defaultPerm,
	}

	if opts != nil {
		if desc, ok := opts.RawGetString("description").(lua.LString); ok {
			spec.Description = string(desc)
		}
		if level, ok := opts.RawGetString("permission").(lua.LString); ok {
			parsed, err := permission.ParseLevel(string(level))
			if err != nil {
				L.RaiseError("register_command %q: %v", name, err)
				return 0
			}
			spec.Permission = parsed
		}
	}

	spec.Handler = func(ctx context.Context, inv host.Invocation) (string, error) {
		return inst.callCommand(fn, inv)
	}

	inst.commands = append(inst.commands, spec)
	return 0
}

// luaOnEvent implements host.on_event(event, handler).
func (inst *instance) luaOnEvent(L *lua.LState) int {
	event := L.CheckString(1)
	fn := L.CheckFunction(2)

	inst.listeners = append(inst.listeners, host.ListenerSpec{
		Event: event,
		Handler: func(ctx context.Context, ev host.Event) error {
			return inst.callListener(fn, ev)
		},
	})
	return 0
}

// luaLog implements host.log(level, message).
func (inst *instance) luaLog(L *lua.LState) int {
	level := L.CheckString(1)
	msg := L.CheckString(2)

	switch level {
	case "debug":
		inst.log.Debug(msg)
	case "warn":
		inst.log.Warn(msg)
	case "error":
		inst.log.Error(nil, msg)
	default:
		inst.log.Info(msg)
	}
	return 0
}

// callCommand invokes a registered Lua command handler. A string return
// value becomes the reply text.
func (inst *instance) callCommand(fn *lua.LFunction, inv host.Invocation) (string, error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.closed {
		return "", ErrNotLoaded{Plugin: inst.name}
	}

	ctxTable := inst.L.NewTable()
	ctxTable.RawSetString("id", lua.LString(inv.ID))
	ctxTable.RawSetString("command", lua.LString(inv.Command))

	caller := inst.L.NewTable()
	caller.RawSetString("id", lua.LString(inv.Caller.ID))
	caller.RawSetString("name", lua.LString(inv.Caller.Name))
	ctxTable.RawSetString("caller", caller)

	args := inst.L.NewTable()
	for _, arg := range inv.Args {
		args.Append(lua.LString(arg))
	}
	ctxTable.RawSetString("args", args)

	var reply string
	err := guard(inst.name, "command "+inv.Command, func() error {
		if err := inst.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, ctxTable); err != nil {
			return err
		}
		ret := inst.L.Get(-1)
		inst.L.Pop(1)
		if s, ok := ret.(lua.LString); ok {
			reply = string(s)
		}
		return nil
	})
	return reply, err
}

// callListener invokes a registered Lua event listener.
func (inst *instance) callListener(fn *lua.LFunction, ev host.Event) error {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.closed {
		return ErrNotLoaded{Plugin: inst.name}
	}

	evTable := inst.L.NewTable()
	evTable.RawSetString("id", lua.LString(ev.ID))
	evTable.RawSetString("name", lua.LString(ev.Name))

	payload := inst.L.NewTable()
	for key, value := range ev.Payload {
		payload.RawSetString(key, lua.LString(fmt.Sprint(value)))
	}
	evTable.RawSetString("payload", payload)

	return guard(inst.name, "event "+ev.Name, func() error {
		return inst.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, evTable)
	})
}

// Teardown runs the plugin's optional teardown hook.
func (inst *instance) Teardown() error {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.closed || !inst.hasTeardown {
		return nil
	}

	fn := inst.L.GetGlobal("teardown")
	return guard(inst.name, "teardown", func() error {
		return inst.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
	})
}

// Close releases the Lua state. Further handler calls fail cleanly.
func (inst *instance) Close() {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.closed {
		return
	}
	inst.closed = true
	inst.L.Close()
}
