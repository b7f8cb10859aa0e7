// Package locals resolves and caches, per method, the set of local
// variables readable at a breakpoint plus the "this" pseudo-variable.
// Lookups are expensive introspection calls, so results are computed once
// per method handle and shared read-only across threads.
package locals

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/lamprey-dbg/lamprey/internal/jvmti"
)

// Variable describes one readable local variable or argument. Immutable
// once constructed.
type Variable struct {
	Name             string
	Signature        string
	GenericSignature string
	Slot             int
	StartLocation    jvmti.Location
	// Length is the validity range in code units; negative means the
	// whole method body.
	Length int64
	// IsArgument marks formal parameters and the instance reference so
	// they sort and filter with parameters rather than locals.
	IsArgument bool
}

// Entry is the cached metadata for one method handle. An Entry with no
// Locals is a valid, permanent result meaning "no debug information
// available", not a failure. Entries are never mutated after publication.
type Entry struct {
	// Instance is the "this" pseudo-variable. Nil for static methods and
	// when the class signature could not be resolved.
	Instance *Variable

	// Locals holds the method's variables in local-variable-table order.
	Locals []Variable
}

// VisibilityPolicy decides whether local variables may be shown for a
// given class/method pair.
type VisibilityPolicy interface {
	IsLocalVariablesVisible(class jvmti.ClassID, method jvmti.MethodID) bool
}

// Cache maps method handles to shared Entry values. The lock protects
// only the map; entries are immutable and loads run unlocked so a slow
// introspection call for one method never blocks readers of another.
type Cache struct {
	introspector jvmti.Introspector
	policy       VisibilityPolicy // optional
	logger       zerolog.Logger

	mu      sync.RWMutex
	entries map[jvmti.MethodID]*Entry
}

// NewCache creates an empty cache. policy may be nil, in which case local
// variables are always visible.
func NewCache(introspector jvmti.Introspector, policy VisibilityPolicy, logger zerolog.Logger) *Cache {
	return &Cache{
		introspector: introspector,
		policy:       policy,
		logger:       logger.With().Str("component", "method_locals").Logger(),
		entries:      make(map[jvmti.MethodID]*Entry),
	}
}

// GetLocalVariables returns the shared metadata entry for method, loading
// it on first access. On transient introspection failure it returns a
// fresh empty entry that is NOT cached, so the next call retries instead
// of being permanently poisoned.
func (c *Cache) GetLocalVariables(method jvmti.MethodID) *Entry {
	c.mu.RLock()
	entry, ok := c.entries[method]
	c.mu.RUnlock()
	if ok {
		return entry
	}

	loaded, err := c.loadEntry(method)
	if err != nil {
		// Retry the load on a future call.
		return &Entry{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another thread may have completed its own load while ours ran
	// unlocked. First insert wins; the duplicate work is discarded.
	if winner, ok := c.entries[method]; ok {
		return winner
	}
	c.entries[method] = loaded
	return loaded
}

// OnCompiledMethodUnload drops the cached entry for method. The runtime
// may reuse the numeric handle for a new method after this returns, so
// the mapping is removed synchronously. No-op if nothing is cached.
func (c *Cache) OnCompiledMethodUnload(method jvmti.MethodID) {
	c.mu.Lock()
	delete(c.entries, method)
	c.mu.Unlock()
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// loadEntry computes the metadata entry for method. It runs without any
// lock held. A nil error with an empty entry is a cacheable permanent
// result; a non-nil error is transient and must not be cached.
func (c *Cache) loadEntry(method jvmti.MethodID) (*Entry, error) {
	cls, err := c.introspector.DeclaringClass(method)
	if err != nil {
		c.logger.Error().Err(err).Uint64("method", uint64(method)).
			Msg("DeclaringClass failed")
		return nil, err
	}

	entry := &Entry{}
	entry.Instance = c.loadInstance(cls, method)

	if c.policy != nil && !c.policy.IsLocalVariablesVisible(cls, method) {
		// Policy hides local variables for this method. Permanent.
		return entry, nil
	}

	table, err := c.introspector.LocalVariableTable(method)
	if err != nil {
		if jvmti.IsAbsent(err) {
			// No debug information or a native method. Cache the empty
			// entry so the table lookup is not repeated.
			return entry, nil
		}
		c.logger.Error().Err(err).Uint64("method", uint64(method)).
			Msg("local variable table not available")
		return nil, err
	}

	// Slots below the argument size hold formal parameters.
	argumentsSize := 0
	if len(table) > 0 {
		argumentsSize, err = c.introspector.ArgumentsSize(method)
		if err != nil {
			c.logger.Error().Err(err).Uint64("method", uint64(method)).
				Msg("ArgumentsSize failed, assuming all entries are locals")
			argumentsSize = 0
		}
	}

	entry.Locals = make([]Variable, 0, len(table))
	for _, lv := range table {
		entry.Locals = append(entry.Locals, Variable{
			Name:             lv.Name,
			Signature:        lv.Signature,
			GenericSignature: lv.GenericSignature,
			Slot:             lv.Slot,
			StartLocation:    lv.StartLocation,
			Length:           lv.Length,
			IsArgument:       lv.Slot < argumentsSize,
		})
	}
	return entry, nil
}

// loadInstance synthesizes the "this" pseudo-variable for non-static
// methods. Failures here degrade to "no instance available" rather than
// failing the whole load.
func (c *Cache) loadInstance(cls jvmti.ClassID, method jvmti.MethodID) *Variable {
	modifiers, err := c.introspector.MethodModifiers(method)
	if err != nil {
		c.logger.Error().Err(err).Uint64("method", uint64(method)).
			Msg("MethodModifiers failed")
		return nil
	}
	if modifiers&jvmti.AccStatic != 0 {
		return nil
	}

	sig, err := c.introspector.ClassSignature(cls)
	if err != nil {
		c.logger.Error().Err(err).Uint64("class", uint64(cls)).
			Msg("ClassSignature failed")
		return nil
	}

	// The instance reference always occupies slot 0 and is valid across
	// the entire method body.
	return &Variable{
		Name:             "this",
		Signature:        sig.Signature,
		GenericSignature: sig.Generic,
		Slot:             0,
		StartLocation:    0,
		Length:           -1,
		IsArgument:       true,
	}
}
