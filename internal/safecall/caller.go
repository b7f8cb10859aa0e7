// Package safecall enforces resource quotas on sandboxed method calls
// made while evaluating breakpoint expressions. The interpreter itself
// lives outside this core; a Caller is the accounting object it charges
// every unit of work against. One Caller is manufactured per evaluation
// request and discarded afterwards.
package safecall

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lamprey-dbg/lamprey/internal/classcache"
	"github.com/lamprey-dbg/lamprey/internal/config"
	"github.com/lamprey-dbg/lamprey/internal/jvmti"
)

var (
	// ErrQuotaExceeded means the evaluation ran out of budget. Once
	// returned, every subsequent charge on the same Caller fails fast.
	ErrQuotaExceeded = errors.New("safecall: quota exceeded")

	// ErrClassNotLoaded means the requested class signature is not
	// indexed as loaded.
	ErrClassNotLoaded = errors.New("safecall: class not loaded")
)

// ClassResolver resolves a class type signature to its loaded handle.
type ClassResolver interface {
	FindClassBySignature(signature string) (jvmti.ClassID, bool)
}

// Factory manufactures a fresh quota-bounded Caller for one evaluation
// request in the given quota category.
type Factory func(category config.QuotaCategory) *Caller

// Caller tracks the remaining budget of a single sandboxed evaluation.
// Safe for concurrent use, though evaluations are normally single-threaded.
type Caller struct {
	quota      config.Quota
	resolver   ClassResolver
	classFiles *classcache.Cache
	logger     zerolog.Logger

	mu               sync.Mutex
	callsUsed        int
	instructionsUsed int64
	bytesLoaded      int64
	exhausted        bool
}

// New creates a Caller bound to the shared class resolver and class-file
// cache.
func New(quota config.Quota, resolver ClassResolver, classFiles *classcache.Cache, logger zerolog.Logger) *Caller {
	return &Caller{
		quota:      quota,
		resolver:   resolver,
		classFiles: classFiles,
		logger:     logger.With().Str("component", "safe_caller").Logger(),
	}
}

// BeginCall charges one method invocation against the call budget.
func (c *Caller) BeginCall() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exhausted {
		return ErrQuotaExceeded
	}
	if c.callsUsed >= c.quota.MaxCalls {
		return c.exhaust("method call budget")
	}
	c.callsUsed++
	return nil
}

// ChargeInstructions charges n interpreter instructions.
func (c *Caller) ChargeInstructions(n int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exhausted {
		return ErrQuotaExceeded
	}
	if c.instructionsUsed+n > c.quota.MaxInstructions {
		return c.exhaust("instruction budget")
	}
	c.instructionsUsed += n
	return nil
}

// LoadClassFile resolves a class signature and fetches its bytes through
// the shared cache, charging the byte budget.
func (c *Caller) LoadClassFile(signature string) ([]byte, uint64, error) {
	cls, ok := c.resolver.FindClassBySignature(signature)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrClassNotLoaded, signature)
	}

	data, sum, err := c.classFiles.ClassFile(cls)
	if err != nil {
		return nil, 0, fmt.Errorf("class file for %s: %w", signature, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exhausted {
		return nil, 0, ErrQuotaExceeded
	}
	if c.bytesLoaded+int64(len(data)) > c.quota.MaxClassLoadBytes {
		return nil, 0, c.exhaust("class load budget")
	}
	c.bytesLoaded += int64(len(data))
	return data, sum, nil
}

// Exhausted reports whether any budget has been exceeded.
func (c *Caller) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}

// exhaust marks the caller poisoned. Called with the lock held.
func (c *Caller) exhaust(what string) error {
	c.exhausted = true
	c.logger.Warn().
		Str("budget", what).
		Int("calls", c.callsUsed).
		Int64("instructions", c.instructionsUsed).
		Int64("class_bytes", c.bytesLoaded).
		Msg("sandboxed evaluation exceeded its quota")
	return ErrQuotaExceeded
}
