// Package jvmtitest provides an in-memory Introspector for tests and the
// selftest command. Classes and methods are registered up front; individual
// introspection calls can be made to fail on demand to exercise the
// transient-failure paths.
package jvmtitest

import (
	"sort"
	"sync"

	"github.com/lamprey-dbg/lamprey/internal/jvmti"
)

// Operation names accepted by FailNext and Calls.
const (
	OpDeclaringClass     = "DeclaringClass"
	OpMethodModifiers    = "MethodModifiers"
	OpClassSignature     = "ClassSignature"
	OpLocalVariableTable = "LocalVariableTable"
	OpArgumentsSize      = "ArgumentsSize"
	OpLoadedClasses      = "LoadedClasses"
	OpClassFile          = "ClassFile"
)

// MethodInfo describes a registered method.
type MethodInfo struct {
	Modifiers     int
	Table         []jvmti.LocalVariableEntry
	ArgumentsSize int

	// TableErr, when set, is returned by every LocalVariableTable call
	// for this method (e.g. jvmti.ErrAbsentInformation for a method
	// compiled without debug info).
	TableErr error
}

type classInfo struct {
	sig  jvmti.ClassSignature
	file []byte
}

type methodInfo struct {
	class jvmti.ClassID
	info  MethodInfo
}

// FakeIntrospector is a scriptable jvmti.Introspector. Safe for concurrent
// use.
type FakeIntrospector struct {
	mu         sync.Mutex
	nextClass  jvmti.ClassID
	nextMethod jvmti.MethodID
	classes    map[jvmti.ClassID]classInfo
	methods    map[jvmti.MethodID]methodInfo
	failures   map[string][]error
	calls      map[string]int
}

var _ jvmti.Introspector = (*FakeIntrospector)(nil)

// New creates an empty FakeIntrospector.
func New() *FakeIntrospector {
	return &FakeIntrospector{
		nextClass:  100,
		nextMethod: 1000,
		classes:    make(map[jvmti.ClassID]classInfo),
		methods:    make(map[jvmti.MethodID]methodInfo),
		failures:   make(map[string][]error),
		calls:      make(map[string]int),
	}
}

// AddClass registers a loaded class and returns its handle.
func (f *FakeIntrospector) AddClass(signature, generic string) jvmti.ClassID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextClass++
	id := f.nextClass
	f.classes[id] = classInfo{sig: jvmti.ClassSignature{Signature: signature, Generic: generic}}
	return id
}

// SetClassFile attaches class-file bytes to a registered class.
func (f *FakeIntrospector) SetClassFile(class jvmti.ClassID, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ci := f.classes[class]
	ci.file = data
	f.classes[class] = ci
}

// AddMethod registers a method on a class and returns its handle.
func (f *FakeIntrospector) AddMethod(class jvmti.ClassID, info MethodInfo) jvmti.MethodID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMethod++
	id := f.nextMethod
	f.methods[id] = methodInfo{class: class, info: info}
	return id
}

// UnloadMethod forgets a method, as the runtime does after a
// compiled-method-unload event. Subsequent introspection on the handle
// fails with jvmti.ErrInvalidMethod.
func (f *FakeIntrospector) UnloadMethod(method jvmti.MethodID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.methods, method)
}

// FailNext queues err to be returned by an upcoming call to the named
// operation. Queued failures are consumed in FIFO order, one per call.
func (f *FakeIntrospector) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], err)
}

// Calls reports how many times the named operation has been invoked.
func (f *FakeIntrospector) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// enter records the call and pops a queued failure, if any.
func (f *FakeIntrospector) enter(op string) error {
	f.calls[op]++
	if q := f.failures[op]; len(q) > 0 {
		err := q[0]
		f.failures[op] = q[1:]
		return err
	}
	return nil
}

func (f *FakeIntrospector) DeclaringClass(method jvmti.MethodID) (jvmti.ClassID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpDeclaringClass); err != nil {
		return 0, err
	}
	mi, ok := f.methods[method]
	if !ok {
		return 0, jvmti.ErrInvalidMethod
	}
	return mi.class, nil
}

func (f *FakeIntrospector) MethodModifiers(method jvmti.MethodID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpMethodModifiers); err != nil {
		return 0, err
	}
	mi, ok := f.methods[method]
	if !ok {
		return 0, jvmti.ErrInvalidMethod
	}
	return mi.info.Modifiers, nil
}

func (f *FakeIntrospector) ClassSignature(class jvmti.ClassID) (jvmti.ClassSignature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpClassSignature); err != nil {
		return jvmti.ClassSignature{}, err
	}
	ci, ok := f.classes[class]
	if !ok {
		return jvmti.ClassSignature{}, jvmti.ErrInvalidMethod
	}
	return ci.sig, nil
}

func (f *FakeIntrospector) LocalVariableTable(method jvmti.MethodID) ([]jvmti.LocalVariableEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpLocalVariableTable); err != nil {
		return nil, err
	}
	mi, ok := f.methods[method]
	if !ok {
		return nil, jvmti.ErrInvalidMethod
	}
	if mi.info.TableErr != nil {
		return nil, mi.info.TableErr
	}
	table := make([]jvmti.LocalVariableEntry, len(mi.info.Table))
	copy(table, mi.info.Table)
	return table, nil
}

func (f *FakeIntrospector) ArgumentsSize(method jvmti.MethodID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpArgumentsSize); err != nil {
		return 0, err
	}
	mi, ok := f.methods[method]
	if !ok {
		return 0, jvmti.ErrInvalidMethod
	}
	return mi.info.ArgumentsSize, nil
}

func (f *FakeIntrospector) LoadedClasses() ([]jvmti.ClassID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpLoadedClasses); err != nil {
		return nil, err
	}
	out := make([]jvmti.ClassID, 0, len(f.classes))
	for id := range f.classes {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *FakeIntrospector) ClassFile(class jvmti.ClassID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpClassFile); err != nil {
		return nil, err
	}
	ci, ok := f.classes[class]
	if !ok {
		return nil, jvmti.ErrInvalidMethod
	}
	if ci.file == nil {
		return nil, jvmti.ErrAbsentInformation
	}
	return ci.file, nil
}
