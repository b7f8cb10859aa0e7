package debugger

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lamprey-dbg/lamprey/internal/jvmti"
)

// classIndexer is the in-process class index shared by every breakpoint
// evaluation. Classes are indexed by type signature as the runtime
// prepares them; classes loaded before the agent attached are indexed
// once during Initialize.
type classIndexer struct {
	introspector jvmti.Introspector
	logger       zerolog.Logger

	mu          sync.RWMutex
	bySignature map[string]jvmti.ClassID
	closed      bool
}

func newClassIndexer(introspector jvmti.Introspector, logger zerolog.Logger) *classIndexer {
	return &classIndexer{
		introspector: introspector,
		logger:       logger.With().Str("component", "class_indexer").Logger(),
		bySignature:  make(map[string]jvmti.ClassID),
	}
}

// Initialize indexes the classes already loaded by the runtime. Later
// classes arrive through OnClassPrepare.
func (x *classIndexer) Initialize() error {
	classes, err := x.introspector.LoadedClasses()
	if err != nil {
		return fmt.Errorf("list loaded classes: %w", err)
	}
	for _, class := range classes {
		x.OnClassPrepare(class)
	}
	x.logger.Info().Int("classes", x.Count()).Msg("indexed pre-attach classes")
	return nil
}

// OnClassPrepare indexes one prepared class. This runs for every class the
// host loads, so it does a single signature lookup and one map insert.
func (x *classIndexer) OnClassPrepare(class jvmti.ClassID) {
	sig, err := x.introspector.ClassSignature(class)
	if err != nil {
		x.logger.Debug().Err(err).Uint64("class", uint64(class)).
			Msg("skipping unindexable class")
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return
	}
	x.bySignature[sig.Signature] = class
}

// FindClassBySignature resolves a type signature to its loaded handle.
func (x *classIndexer) FindClassBySignature(signature string) (jvmti.ClassID, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	class, ok := x.bySignature[signature]
	return class, ok
}

// Count reports the number of indexed classes.
func (x *classIndexer) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.bySignature)
}

// Cleanup releases the index. The indexer accepts no lookups or updates
// afterwards.
func (x *classIndexer) Cleanup() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	x.bySignature = make(map[string]jvmti.ClassID)
}
