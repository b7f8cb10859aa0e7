package debugger

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamprey-dbg/lamprey/internal/jvmti/jvmtitest"
)

func TestIndexerInitializeIndexesLoadedClasses(t *testing.T) {
	fake := jvmtitest.New()
	a := fake.AddClass("Lcom/example/A;", "")
	fake.AddClass("Lcom/example/B;", "")

	indexer := newClassIndexer(fake, zerolog.Nop())
	require.NoError(t, indexer.Initialize())

	assert.Equal(t, 2, indexer.Count())
	got, ok := indexer.FindClassBySignature("Lcom/example/A;")
	require.True(t, ok)
	assert.Equal(t, a, got)
}

func TestIndexerOnClassPrepare(t *testing.T) {
	fake := jvmtitest.New()
	indexer := newClassIndexer(fake, zerolog.Nop())

	cls := fake.AddClass("Lcom/example/Late;", "")
	indexer.OnClassPrepare(cls)

	got, ok := indexer.FindClassBySignature("Lcom/example/Late;")
	require.True(t, ok)
	assert.Equal(t, cls, got)
}

func TestIndexerSkipsUnreadableClass(t *testing.T) {
	fake := jvmtitest.New()
	cls := fake.AddClass("Lcom/example/Broken;", "")
	indexer := newClassIndexer(fake, zerolog.Nop())

	fake.FailNext(jvmtitest.OpClassSignature, errors.New("signature unavailable"))
	indexer.OnClassPrepare(cls)
	assert.Equal(t, 0, indexer.Count())

	// The next prepare event succeeds.
	indexer.OnClassPrepare(cls)
	assert.Equal(t, 1, indexer.Count())
}

func TestIndexerCleanup(t *testing.T) {
	fake := jvmtitest.New()
	cls := fake.AddClass("Lcom/example/A;", "")
	indexer := newClassIndexer(fake, zerolog.Nop())
	indexer.OnClassPrepare(cls)

	indexer.Cleanup()

	_, ok := indexer.FindClassBySignature("Lcom/example/A;")
	assert.False(t, ok)

	// A prepare event racing teardown is ignored.
	indexer.OnClassPrepare(cls)
	assert.Equal(t, 0, indexer.Count())
}
