package safecall

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamprey-dbg/lamprey/internal/classcache"
	"github.com/lamprey-dbg/lamprey/internal/config"
	"github.com/lamprey-dbg/lamprey/internal/jvmti"
	"github.com/lamprey-dbg/lamprey/internal/jvmti/jvmtitest"
)

type mapResolver map[string]jvmti.ClassID

func (r mapResolver) FindClassBySignature(signature string) (jvmti.ClassID, bool) {
	id, ok := r[signature]
	return id, ok
}

func newCaller(t *testing.T, quota config.Quota) (*Caller, mapResolver) {
	t.Helper()
	fake := jvmtitest.New()
	cls := fake.AddClass("Lcom/example/Helper;", "")
	fake.SetClassFile(cls, bytes.Repeat([]byte{0xCF}, 100))
	resolver := mapResolver{"Lcom/example/Helper;": cls}
	cache := classcache.New(fake, 1024, zerolog.Nop())
	return New(quota, resolver, cache, zerolog.Nop()), resolver
}

func TestCallBudget(t *testing.T) {
	caller, _ := newCaller(t, config.Quota{MaxCalls: 2, MaxInstructions: 1000, MaxClassLoadBytes: 1000})

	require.NoError(t, caller.BeginCall())
	require.NoError(t, caller.BeginCall())
	assert.ErrorIs(t, caller.BeginCall(), ErrQuotaExceeded)
	assert.True(t, caller.Exhausted())
}

func TestInstructionBudget(t *testing.T) {
	caller, _ := newCaller(t, config.Quota{MaxCalls: 10, MaxInstructions: 100, MaxClassLoadBytes: 1000})

	require.NoError(t, caller.ChargeInstructions(60))
	require.NoError(t, caller.ChargeInstructions(40))
	assert.ErrorIs(t, caller.ChargeInstructions(1), ErrQuotaExceeded)
}

func TestExhaustionPoisonsCaller(t *testing.T) {
	caller, _ := newCaller(t, config.Quota{MaxCalls: 1, MaxInstructions: 100, MaxClassLoadBytes: 1000})

	require.NoError(t, caller.BeginCall())
	require.ErrorIs(t, caller.BeginCall(), ErrQuotaExceeded)

	// Every budget fails fast once any budget is exceeded.
	assert.ErrorIs(t, caller.ChargeInstructions(1), ErrQuotaExceeded)
	_, _, err := caller.LoadClassFile("Lcom/example/Helper;")
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestLoadClassFile(t *testing.T) {
	caller, _ := newCaller(t, config.Quota{MaxCalls: 10, MaxInstructions: 100, MaxClassLoadBytes: 150})

	data, sum, err := caller.LoadClassFile("Lcom/example/Helper;")
	require.NoError(t, err)
	assert.Len(t, data, 100)
	assert.NotZero(t, sum)

	// A second load of 100 bytes overflows the 150-byte budget.
	_, _, err = caller.LoadClassFile("Lcom/example/Helper;")
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestLoadClassFileUnknownSignature(t *testing.T) {
	caller, _ := newCaller(t, config.Quota{MaxCalls: 10, MaxInstructions: 100, MaxClassLoadBytes: 1000})

	_, _, err := caller.LoadClassFile("Lcom/example/Missing;")
	assert.ErrorIs(t, err, ErrClassNotLoaded)
	assert.False(t, caller.Exhausted(), "resolution failure is not a quota event")
}
