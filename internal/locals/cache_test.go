package locals

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamprey-dbg/lamprey/internal/jvmti"
	"github.com/lamprey-dbg/lamprey/internal/jvmti/jvmtitest"
)

var errBoom = errors.New("introspection exploded")

type stubPolicy struct {
	visible bool
}

func (p stubPolicy) IsLocalVariablesVisible(jvmti.ClassID, jvmti.MethodID) bool {
	return p.visible
}

// newMethod registers a class and a method with a four-slot variable table
// where the first two slots are parameters.
func newMethod(fake *jvmtitest.FakeIntrospector, modifiers int) jvmti.MethodID {
	cls := fake.AddClass("Lcom/example/Checkout;", "")
	return fake.AddMethod(cls, jvmtitest.MethodInfo{
		Modifiers: modifiers,
		Table: []jvmti.LocalVariableEntry{
			{Name: "order", Signature: "Lcom/example/Order;", Slot: 0},
			{Name: "retries", Signature: "I", Slot: 1},
			{Name: "total", Signature: "J", Slot: 2},
			{Name: "ok", Signature: "Z", Slot: 3},
		},
		ArgumentsSize: 2,
	})
}

func TestGetLocalVariablesClassification(t *testing.T) {
	fake := jvmtitest.New()
	method := newMethod(fake, jvmti.AccPublic|jvmti.AccStatic)
	cache := NewCache(fake, nil, zerolog.Nop())

	entry := cache.GetLocalVariables(method)
	require.Len(t, entry.Locals, 4)

	wantNames := []string{"order", "retries", "total", "ok"}
	wantArg := []bool{true, true, false, false}
	for i, v := range entry.Locals {
		assert.Equal(t, wantNames[i], v.Name, "slot %d", i)
		assert.Equal(t, wantArg[i], v.IsArgument, "slot %d", i)
		assert.Equal(t, i, v.Slot)
	}
}

func TestGetLocalVariablesIdempotent(t *testing.T) {
	fake := jvmtitest.New()
	method := newMethod(fake, jvmti.AccPublic)
	cache := NewCache(fake, nil, zerolog.Nop())

	first := cache.GetLocalVariables(method)
	second := cache.GetLocalVariables(method)

	assert.Same(t, first, second, "repeated lookups must share the cached entry")
	assert.Equal(t, 1, fake.Calls(jvmtitest.OpLocalVariableTable),
		"steady state performs at most one table load")
}

func TestInstanceDescriptor(t *testing.T) {
	fake := jvmtitest.New()
	cls := fake.AddClass("Lcom/example/Cart;", "<T:Ljava/lang/Object;>")
	method := fake.AddMethod(cls, jvmtitest.MethodInfo{Modifiers: jvmti.AccPublic})
	cache := NewCache(fake, nil, zerolog.Nop())

	entry := cache.GetLocalVariables(method)
	require.NotNil(t, entry.Instance)
	assert.Equal(t, "this", entry.Instance.Name)
	assert.Equal(t, "Lcom/example/Cart;", entry.Instance.Signature)
	assert.Equal(t, "<T:Ljava/lang/Object;>", entry.Instance.GenericSignature)
	assert.Equal(t, 0, entry.Instance.Slot)
	assert.Equal(t, int64(-1), entry.Instance.Length, "valid across the whole body")
	assert.True(t, entry.Instance.IsArgument)
}

func TestStaticMethodHasNoInstance(t *testing.T) {
	fake := jvmtitest.New()
	method := newMethod(fake, jvmti.AccPublic|jvmti.AccStatic)
	cache := NewCache(fake, nil, zerolog.Nop())

	entry := cache.GetLocalVariables(method)
	assert.Nil(t, entry.Instance)
}

func TestInstanceResolutionFailureIsNonFatal(t *testing.T) {
	fake := jvmtitest.New()
	method := newMethod(fake, jvmti.AccPublic)
	cache := NewCache(fake, nil, zerolog.Nop())

	fake.FailNext(jvmtitest.OpClassSignature, errBoom)

	entry := cache.GetLocalVariables(method)
	assert.Nil(t, entry.Instance, "signature failure degrades to no instance")
	assert.Len(t, entry.Locals, 4, "locals still load")
	assert.Equal(t, 1, cache.Len(), "degraded entry is still cacheable")
}

func TestTransientFailureIsNotCached(t *testing.T) {
	fake := jvmtitest.New()
	method := newMethod(fake, jvmti.AccStatic)
	cache := NewCache(fake, nil, zerolog.Nop())

	// Fail three consecutive loads, then let the fourth succeed.
	for i := 0; i < 3; i++ {
		fake.FailNext(jvmtitest.OpDeclaringClass, errBoom)
	}
	for i := 0; i < 3; i++ {
		entry := cache.GetLocalVariables(method)
		assert.Empty(t, entry.Locals)
		assert.Equal(t, 0, cache.Len(), "failures must never be cached")
	}

	entry := cache.GetLocalVariables(method)
	assert.Len(t, entry.Locals, 4)
	assert.Equal(t, 1, cache.Len())
}

func TestTransientTableErrorRetries(t *testing.T) {
	fake := jvmtitest.New()
	method := newMethod(fake, jvmti.AccStatic)
	cache := NewCache(fake, nil, zerolog.Nop())

	fake.FailNext(jvmtitest.OpLocalVariableTable, errBoom)

	entry := cache.GetLocalVariables(method)
	assert.Empty(t, entry.Locals)
	assert.Equal(t, 0, cache.Len())

	entry = cache.GetLocalVariables(method)
	assert.Len(t, entry.Locals, 4)
}

func TestPermanentAbsenceIsCached(t *testing.T) {
	tests := []struct {
		name     string
		tableErr error
	}{
		{name: "no debug information", tableErr: jvmti.ErrAbsentInformation},
		{name: "native method", tableErr: jvmti.ErrNativeMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := jvmtitest.New()
			cls := fake.AddClass("Lcom/example/Native;", "")
			method := fake.AddMethod(cls, jvmtitest.MethodInfo{
				Modifiers: jvmti.AccStatic,
				TableErr:  tt.tableErr,
			})
			cache := NewCache(fake, nil, zerolog.Nop())

			entry := cache.GetLocalVariables(method)
			assert.Empty(t, entry.Locals)
			assert.Equal(t, 1, cache.Len(), "absence is a permanent, cacheable result")

			cache.GetLocalVariables(method)
			assert.Equal(t, 1, fake.Calls(jvmtitest.OpLocalVariableTable),
				"table lookup must not repeat for a cached absence")
		})
	}
}

func TestArgumentsSizeFailureDegrades(t *testing.T) {
	fake := jvmtitest.New()
	method := newMethod(fake, jvmti.AccStatic)
	cache := NewCache(fake, nil, zerolog.Nop())

	fake.FailNext(jvmtitest.OpArgumentsSize, errBoom)

	entry := cache.GetLocalVariables(method)
	require.Len(t, entry.Locals, 4)
	for _, v := range entry.Locals {
		assert.False(t, v.IsArgument, "unknown argument size classifies everything as locals")
	}
	assert.Equal(t, 1, cache.Len())
}

func TestVisibilityDenialIsCached(t *testing.T) {
	fake := jvmtitest.New()
	method := newMethod(fake, jvmti.AccPublic)
	cache := NewCache(fake, stubPolicy{visible: false}, zerolog.Nop())

	entry := cache.GetLocalVariables(method)
	assert.Empty(t, entry.Locals)
	assert.NotNil(t, entry.Instance, "instance descriptor survives policy denial")
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 0, fake.Calls(jvmtitest.OpLocalVariableTable),
		"denied methods never touch the variable table")
}

func TestOnCompiledMethodUnloadEvicts(t *testing.T) {
	fake := jvmtitest.New()
	method := newMethod(fake, jvmti.AccStatic)
	cache := NewCache(fake, nil, zerolog.Nop())

	cache.GetLocalVariables(method)
	require.Equal(t, 1, cache.Len())

	cache.OnCompiledMethodUnload(method)
	assert.Equal(t, 0, cache.Len())

	cache.GetLocalVariables(method)
	assert.Equal(t, 2, fake.Calls(jvmtitest.OpLocalVariableTable),
		"lookup after unload must reload, not serve a stale entry")

	// Unload with nothing cached is a no-op.
	cache.OnCompiledMethodUnload(jvmti.MethodID(9999))
}

func TestConcurrentFirstAccess(t *testing.T) {
	fake := jvmtitest.New()
	method := newMethod(fake, jvmti.AccStatic)
	cache := NewCache(fake, nil, zerolog.Nop())

	const n = 32
	entries := make([]*Entry, n)
	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait()
			entries[i] = cache.GetLocalVariables(method)
		}(i)
	}
	start.Done()
	done.Wait()

	require.Equal(t, 1, cache.Len(), "exactly one entry instance is stored")
	for i, entry := range entries {
		require.NotNil(t, entry)
		assert.Equal(t, entries[0].Locals, entry.Locals, "goroutine %d", i)
	}

	winner := cache.GetLocalVariables(method)
	assert.Equal(t, entries[0].Locals, winner.Locals)
}
