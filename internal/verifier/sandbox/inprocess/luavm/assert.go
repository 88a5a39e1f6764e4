package luavm

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// newAssert builds the assert table. Calling the table itself behaves like assert.ok.
func newAssert(L *lua.LState) *lua.LTable {
	assert := L.NewTable()

	compare := func(op string, pass func(L *lua.LState, x, y lua.LValue) bool) lua.LGFunction {
		return func(L *lua.LState) int {
			actual, expected := L.Get(1), L.Get(2)
			if !pass(L, actual, expected) {
				raise(L, L.Get(3), fmt.Sprintf("%s %s %s", inspect(actual), op, inspect(expected)))
			}
			return 0
		}
	}

	fns := map[string]lua.LGFunction{
		"ok": func(L *lua.LState) int {
			return ok(L, 1)
		},
		"equal":           compare("==", func(L *lua.LState, x, y lua.LValue) bool { return L.Equal(x, y) }),
		"notEqual":        compare("~=", func(L *lua.LState, x, y lua.LValue) bool { return !L.Equal(x, y) }),
		"strictEqual":     compare("==", func(L *lua.LState, x, y lua.LValue) bool { return L.RawEqual(x, y) }),
		"notStrictEqual":  compare("~=", func(L *lua.LState, x, y lua.LValue) bool { return !L.RawEqual(x, y) }),
		"deepEqual":       compare("deepEqual", func(L *lua.LState, x, y lua.LValue) bool { return deepEqual(x, y, 0) }),
		"notDeepEqual":    compare("notDeepEqual", func(L *lua.LState, x, y lua.LValue) bool { return !deepEqual(x, y, 0) }),
		"deepStrictEqual": compare("deepStrictEqual", func(L *lua.LState, x, y lua.LValue) bool { return deepEqual(x, y, 0) }),
		"throws": func(L *lua.LState) int {
			fn := L.CheckFunction(1)
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err == nil {
				raise(L, L.Get(2), "Missing expected exception.")
			}
			return 0
		},
		"doesNotThrow": func(L *lua.LState) int {
			fn := L.CheckFunction(1)
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				raise(L, L.Get(2), "Got unwanted exception: "+describe(err).Error())
			}
			return 0
		},
		"fail": func(L *lua.LState) int {
			raise(L, L.Get(1), "Failed")
			return 0
		},
	}
	for name, fn := range fns {
		assert.RawSetString(name, L.NewFunction(fn))
	}

	meta := L.NewTable()
	// __call receives the table itself first.
	meta.RawSetString("__call", L.NewFunction(func(L *lua.LState) int {
		return ok(L, 2)
	}))
	L.SetMetatable(assert, meta)
	return assert
}

func ok(L *lua.LState, base int) int {
	value := L.Get(base)
	if !lua.LVAsBool(value) {
		raise(L, L.Get(base+1), fmt.Sprintf("%s == true", inspect(value)))
	}
	return 0
}

// raise throws "AssertionError: <msg>" without position information.
func raise(L *lua.LState, message lua.LValue, fallback string) {
	msg := fallback
	if message != lua.LNil {
		msg = lua.LVAsString(message)
		if msg == "" {
			msg = message.String()
		}
	}
	L.Error(lua.LString("AssertionError: "+msg), 0)
}

func inspect(v lua.LValue) string {
	switch val := v.(type) {
	case lua.LString:
		return fmt.Sprintf("%q", string(val))
	case *lua.LNilType:
		return "nil"
	default:
		return v.String()
	}
}

// deepEqual compares tables key by key and everything else by value.
func deepEqual(x, y lua.LValue, depth int) bool {
	if depth > maxDeepEqualDepth {
		return false
	}
	xt, xIsTable := x.(*lua.LTable)
	yt, yIsTable := y.(*lua.LTable)
	if !xIsTable || !yIsTable {
		return x == y
	}
	if xt == yt {
		return true
	}

	equal := true
	count := 0
	xt.ForEach(func(k, v lua.LValue) {
		count++
		if equal && !deepEqual(v, yt.RawGet(k), depth+1) {
			equal = false
		}
	})
	if !equal {
		return false
	}
	yt.ForEach(func(lua.LValue, lua.LValue) { count-- })
	return count == 0
}
