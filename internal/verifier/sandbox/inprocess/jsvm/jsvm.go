// Package jsvm is the JavaScript sandbox backend, built on goja.
//
// Every sandbox is a fresh goja runtime with only the ECMAScript built-ins:
// no module loader, no console, no timers and no host access.
package jsvm

import (
	"fmt"

	"codeverifier/internal/verifier/sandbox/inprocess"

	"github.com/dop251/goja"
)

const maxCallStackSize = 1024

// Sandbox is one isolated JavaScript global scope.
type Sandbox struct {
	vm *goja.Runtime
	// Built-ins as they were before any user code ran.
	hasOwn goja.Callable
	push   goja.Callable
}

// New returns a fresh sandbox.
func New() (inprocess.Sandbox, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)
	proto := vm.Get("Object").ToObject(vm).Get("prototype").ToObject(vm)
	hasOwn, ok := goja.AssertFunction(proto.Get("hasOwnProperty"))
	if !ok {
		return nil, fmt.Errorf("hasOwnProperty is not callable")
	}
	push, ok := goja.AssertFunction(vm.NewArray().Get("push"))
	if !ok {
		return nil, fmt.Errorf("array push is not callable")
	}
	return &Sandbox{vm: vm, hasOwn: hasOwn, push: push}, nil
}

// Evaluate runs source in the global scope.
func (s *Sandbox) Evaluate(source string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	_, err = s.vm.RunString(source)
	return describe(err)
}

// Defined reports whether the global scope declares name, either as an own
// property of the global object or as a global let, const or class binding.
// Accessors are never invoked.
func (s *Sandbox) Defined(name string) (defined bool) {
	defer func() {
		if r := recover(); r != nil {
			defined = true
		}
	}()
	global := s.vm.GlobalObject()
	own, err := s.hasOwn(global, s.vm.ToValue(name))
	if err != nil || own.ToBoolean() {
		return true
	}

	// A lexical binding shadows a global property of the same name, so a
	// temporary marker property is only visible when there is none.
	marker := s.vm.NewObject()
	if err := global.DefineDataProperty(name, marker, goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return true
	}
	defer func() {
		_ = global.Delete(name)
	}()
	return !marker.SameAs(s.vm.Get(name))
}

// Install binds assert, test and the __tests__ name list.
func (s *Sandbox) Install(register func(name string, body inprocess.Body)) error {
	names := s.vm.NewArray()

	testFn := func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			register(name, func() inprocess.Settle {
				return inprocess.Settled(fmt.Errorf("TypeError: test body is not a function"))
			})
		} else {
			register(name, s.body(fn))
		}
		if _, err := s.push(names, s.vm.ToValue(name)); err != nil {
			panic(s.vm.NewGoError(err))
		}
		return goja.Undefined()
	}

	assertObj, err := newAssert(s.vm)
	if err != nil {
		return err
	}
	bindings := []struct {
		name  string
		value *goja.Object
	}{
		{inprocess.AssertName, assertObj},
		{inprocess.TestName, s.vm.ToValue(testFn).ToObject(s.vm)},
		{inprocess.RegistryName, names},
	}
	global := s.vm.GlobalObject()
	for _, b := range bindings {
		if err := global.DefineDataProperty(b.name, b.value, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			return fmt.Errorf("%w: %s: %v", inprocess.ErrHarnessReplaced, b.name, describe(err))
		}
	}
	for _, b := range bindings {
		if !b.value.SameAs(s.resolve(b.name)) {
			return fmt.Errorf("%w: %s", inprocess.ErrHarnessReplaced, b.name)
		}
	}
	return nil
}

// resolve looks name up the way a script identifier would.
func (s *Sandbox) resolve(name string) (v goja.Value) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
		}
	}()
	return s.vm.Get(name)
}

// Interrupt stops the running script; the runtime is unusable afterwards.
func (s *Sandbox) Interrupt(reason string) {
	s.vm.Interrupt(reason)
}

// body invokes fn and, when it returns a promise, defers the verdict until
// the promise settles.
func (s *Sandbox) body(fn goja.Callable) inprocess.Body {
	return func() inprocess.Settle {
		v, err := fn(goja.Undefined())
		if err != nil {
			return inprocess.Settled(describe(err))
		}
		p, ok := promiseOf(v)
		if !ok {
			return inprocess.Settled(nil)
		}
		return func() error { return s.await(p) }
	}
}

func (s *Sandbox) await(p *goja.Promise) error {
	if p.State() == goja.PromiseStatePending {
		// Running an empty program drains the job queue.
		if _, err := s.vm.RunString(""); err != nil {
			return describe(err)
		}
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return nil
	case goja.PromiseStateRejected:
		return fmt.Errorf("%s", stringify(p.Result()))
	default:
		return fmt.Errorf("test did not settle")
	}
}

func promiseOf(v goja.Value) (*goja.Promise, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	p, ok := obj.Export().(*goja.Promise)
	return p, ok
}

// describe turns a goja error into the thrown value's string form.
func describe(err error) error {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case *goja.Exception:
		return fmt.Errorf("%s", stringify(e.Value()))
	case *goja.InterruptedError:
		return fmt.Errorf("interrupted: %v", e.Value())
	default:
		return err
	}
}

// stringify mirrors String(value), falling back when toString itself throws.
func stringify(v goja.Value) (s string) {
	if v == nil {
		return "undefined"
	}
	defer func() {
		if r := recover(); r != nil {
			s = "[object]"
		}
	}()
	return v.String()
}
