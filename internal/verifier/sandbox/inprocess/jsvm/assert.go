package jsvm

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dop251/goja"
)

const maxDeepEqualDepth = 64

type asserter struct {
	vm        *goja.Runtime
	errorCtor goja.Value
}

// newAssert builds a callable assert object with the usual method set.
// Failures throw an AssertionError.
func newAssert(vm *goja.Runtime) (*goja.Object, error) {
	a := &asserter{vm: vm, errorCtor: vm.Get("Error")}

	obj := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return a.ok(call)
	}).ToObject(vm)

	methods := map[string]func(goja.FunctionCall) goja.Value{
		"ok":              a.ok,
		"equal":           a.compare("==", func(x, y goja.Value) bool { return x.Equals(y) }),
		"notEqual":        a.compare("!=", func(x, y goja.Value) bool { return !x.Equals(y) }),
		"strictEqual":     a.compare("===", func(x, y goja.Value) bool { return x.StrictEquals(y) }),
		"notStrictEqual":  a.compare("!==", func(x, y goja.Value) bool { return !x.StrictEquals(y) }),
		"deepEqual":       a.compare("deepEqual", func(x, y goja.Value) bool { return deepEqual(x, y, false, 0) }),
		"notDeepEqual":    a.compare("notDeepEqual", func(x, y goja.Value) bool { return !deepEqual(x, y, false, 0) }),
		"deepStrictEqual": a.compare("deepStrictEqual", func(x, y goja.Value) bool { return deepEqual(x, y, true, 0) }),
		"throws":          a.throws,
		"doesNotThrow":    a.doesNotThrow,
		"fail":            a.fail,
	}
	for name, fn := range methods {
		if err := obj.Set(name, fn); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

func (a *asserter) raise(message goja.Value, fallback string) {
	msg := fallback
	if message != nil && !goja.IsUndefined(message) {
		msg = message.String()
	}
	ctor, ok := a.errorCtor.(*goja.Object)
	if !ok {
		panic(a.vm.ToValue("AssertionError: " + msg))
	}
	errObj, err := a.vm.New(ctor, a.vm.ToValue(msg))
	if err != nil {
		panic(a.vm.ToValue("AssertionError: " + msg))
	}
	_ = errObj.Set("name", "AssertionError")
	panic(errObj)
}

func (a *asserter) ok(call goja.FunctionCall) goja.Value {
	value := call.Argument(0)
	if !value.ToBoolean() {
		a.raise(call.Argument(1), fmt.Sprintf("%s == true", a.inspect(value)))
	}
	return goja.Undefined()
}

func (a *asserter) compare(op string, pass func(x, y goja.Value) bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		actual, expected := call.Argument(0), call.Argument(1)
		if !pass(actual, expected) {
			a.raise(call.Argument(2), fmt.Sprintf("%s %s %s", a.inspect(actual), op, a.inspect(expected)))
		}
		return goja.Undefined()
	}
}

func (a *asserter) throws(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(a.vm.NewTypeError("The \"block\" argument must be a function"))
	}
	_, err := fn(goja.Undefined())
	if err == nil {
		a.raise(call.Argument(2), "Missing expected exception.")
	}
	exc, ok := err.(*goja.Exception)
	if !ok {
		panic(a.vm.NewGoError(err))
	}
	if ctor, isCtor := call.Argument(1).(*goja.Object); isCtor {
		if _, callable := goja.AssertFunction(ctor); callable && !a.vm.InstanceOf(exc.Value(), ctor) {
			panic(exc.Value())
		}
	}
	return goja.Undefined()
}

func (a *asserter) doesNotThrow(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(a.vm.NewTypeError("The \"block\" argument must be a function"))
	}
	if _, err := fn(goja.Undefined()); err != nil {
		exc, ok := err.(*goja.Exception)
		if !ok {
			panic(a.vm.NewGoError(err))
		}
		a.raise(call.Argument(1), "Got unwanted exception: "+stringify(exc.Value()))
	}
	return goja.Undefined()
}

func (a *asserter) fail(call goja.FunctionCall) goja.Value {
	a.raise(call.Argument(0), "Failed")
	return goja.Undefined()
}

// inspect renders a value for an assertion message.
func (a *asserter) inspect(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	if _, isFn := goja.AssertFunction(v); isFn {
		return "[Function]"
	}
	switch exported := v.Export().(type) {
	case string:
		return fmt.Sprintf("'%s'", exported)
	case map[string]interface{}, []interface{}:
		if data, err := json.Marshal(exported); err == nil {
			return string(data)
		}
	}
	return stringify(v)
}

// deepEqual compares own enumerable properties recursively. Primitives use
// == or === depending on strict.
func deepEqual(x, y goja.Value, strict bool, depth int) bool {
	if depth > maxDeepEqualDepth {
		return false
	}
	xo, xIsObj := x.(*goja.Object)
	yo, yIsObj := y.(*goja.Object)
	if !xIsObj || !yIsObj {
		if strict {
			return x.StrictEquals(y)
		}
		return x.Equals(y)
	}
	if xo.SameAs(yo) {
		return true
	}
	if xo.ClassName() != yo.ClassName() {
		return false
	}
	if strict && !prototypesMatch(xo, yo) {
		return false
	}

	xKeys, yKeys := xo.Keys(), yo.Keys()
	if len(xKeys) != len(yKeys) {
		return false
	}
	sort.Strings(xKeys)
	sort.Strings(yKeys)
	for i := range xKeys {
		if xKeys[i] != yKeys[i] {
			return false
		}
		if !deepEqual(xo.Get(xKeys[i]), yo.Get(yKeys[i]), strict, depth+1) {
			return false
		}
	}
	return true
}

func prototypesMatch(x, y *goja.Object) bool {
	xp, yp := x.Prototype(), y.Prototype()
	if xp == nil || yp == nil {
		return xp == yp
	}
	return xp.SameAs(yp)
}
