// Package luavm is the Lua sandbox backend, built on gopher-lua.
package luavm

import (
	"context"
	"fmt"
	"strings"

	"codeverifier/internal/verifier/sandbox/inprocess"

	lua "github.com/yuin/gopher-lua"
)

const (
	callStackSize     = 256
	maxDeepEqualDepth = 64
)

var openLibs = []struct {
	name string
	fn   lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

// Base library globals a submission must not reach. assert is removed so the
// solution starts without it and the harness can install its own.
var removedGlobals = []string{"dofile", "loadfile", "load", "loadstring", "print", "collectgarbage", "module", "require", "assert", "setfenv", "getfenv"}

// Sandbox is one isolated Lua state.
type Sandbox struct {
	L      *lua.LState
	cancel context.CancelFunc
}

// New returns a fresh state with only the base, table, string and math libraries.
func New() (inprocess.Sandbox, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true, CallStackSize: callStackSize})
	for _, lib := range openLibs {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.fn), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("open %s library: %w", lib.name, err)
		}
	}
	for _, name := range removedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	L.SetContext(ctx)
	return &Sandbox{L: L, cancel: cancel}, nil
}

// Evaluate runs source as a chunk in the global environment.
func (s *Sandbox) Evaluate(source string) error {
	return describe(s.L.DoString(source))
}

// Defined reports whether the globals table holds name. Lookups that no
// longer go straight to that table, through a metatable or a swapped
// environment, count as defining every name.
func (s *Sandbox) Defined(name string) bool {
	if !s.plainGlobals() {
		return true
	}
	return s.L.G.Global.RawGetString(name) != lua.LNil
}

func (s *Sandbox) plainGlobals() bool {
	g := s.L.G.Global
	return s.L.Env == g && s.L.GetMetatable(g) == lua.LNil
}

// Install binds assert, test and the __tests__ name list.
func (s *Sandbox) Install(register func(name string, body inprocess.Body)) error {
	L := s.L
	names := L.NewTable()

	test := L.NewFunction(func(L *lua.LState) int {
		name := lua.LVAsString(L.CheckAny(1))
		if fn, ok := L.Get(2).(*lua.LFunction); ok {
			register(name, s.body(fn))
		} else {
			register(name, func() inprocess.Settle {
				return inprocess.Settled(fmt.Errorf("test body is not a function"))
			})
		}
		names.Append(lua.LString(name))
		return 0
	})

	if !s.plainGlobals() {
		return fmt.Errorf("%w: globals table is not plain", inprocess.ErrHarnessReplaced)
	}
	bindings := []struct {
		name  string
		value lua.LValue
	}{
		{inprocess.AssertName, newAssert(L)},
		{inprocess.TestName, test},
		{inprocess.RegistryName, names},
	}
	g := L.G.Global
	for _, b := range bindings {
		g.RawSetString(b.name, b.value)
	}
	for _, b := range bindings {
		if g.RawGetString(b.name) != b.value {
			return fmt.Errorf("%w: %s", inprocess.ErrHarnessReplaced, b.name)
		}
	}
	return nil
}

// Interrupt cancels the state's context; the running chunk fails at its next instruction.
func (s *Sandbox) Interrupt(reason string) {
	s.cancel()
}

// Close releases the state.
func (s *Sandbox) Close() error {
	s.cancel()
	s.L.Close()
	return nil
}

func (s *Sandbox) body(fn *lua.LFunction) inprocess.Body {
	return func() inprocess.Settle {
		err := s.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
		return inprocess.Settled(describe(err))
	}
}

// describe reduces a Lua error to the raised value.
func describe(err error) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*lua.ApiError); ok && apiErr.Object != nil {
		return fmt.Errorf("%s", strings.TrimSpace(apiErr.Object.String()))
	}
	return err
}
