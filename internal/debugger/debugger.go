// Package debugger is the composition root of the agent. It owns every
// debugging subsystem, wires them together in dependency order, routes
// runtime instrumentation events to the subsystems that must react, and
// guarantees a safe teardown order.
package debugger

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lamprey-dbg/lamprey/internal/breakpoint"
	"github.com/lamprey-dbg/lamprey/internal/classcache"
	"github.com/lamprey-dbg/lamprey/internal/config"
	"github.com/lamprey-dbg/lamprey/internal/eval"
	"github.com/lamprey-dbg/lamprey/internal/jvmti"
	"github.com/lamprey-dbg/lamprey/internal/locals"
	"github.com/lamprey-dbg/lamprey/internal/safecall"
	"github.com/lamprey-dbg/lamprey/internal/stats"
)

// Deps carries the collaborators the Debugger does not construct itself.
// Introspector, MethodLocals, CallStack, ObjectEvaluator, ClassPathLookup
// and FormatQueue are required; the rest have working defaults or are
// optional.
type Deps struct {
	Introspector        jvmti.Introspector
	MethodLocals        *locals.Cache
	CallStack           eval.CallStack
	ClassMetadataReader eval.ClassMetadataReader
	ObjectEvaluator     eval.ObjectEvaluator
	ClassPathLookup     eval.ClassPathLookup
	LabelsFactory       func() eval.LabelsProvider
	FormatQueue         *breakpoint.FormatQueue

	// Scheduler defaults to runtime timers.
	Scheduler breakpoint.Scheduler
	// Canary gates breakpoint rollout; nil activates everything.
	Canary breakpoint.CanaryController
	// Stats defaults to a fresh registry.
	Stats *stats.Registry

	Logger zerolog.Logger
}

type cleanupStep struct {
	name string
	fn   func()
}

// Debugger owns the agent's subsystems. Event handlers are safe to call
// concurrently from arbitrary application threads once New returns.
type Debugger struct {
	logger zerolog.Logger

	indexer         *classIndexer
	classFiles      *classcache.Cache
	callStack       eval.CallStack
	methodLocals    *locals.Cache
	objectEvaluator eval.ObjectEvaluator
	dynamicLogger   *breakpoint.DynamicLogger
	evaluators      eval.Evaluators
	manager         *breakpoint.Manager
	stats           *stats.Registry

	// cleanup runs in slice order on Close. Breakpoints may reference
	// class metadata until released, so the manager entry precedes the
	// class indexer entry.
	cleanup   []cleanupStep
	closeOnce sync.Once
}

// New constructs and wires the full subsystem graph. It performs no
// expensive work; call Initialize exactly once afterwards.
func New(cfg *config.Config, deps Deps) (*Debugger, error) {
	switch {
	case deps.Introspector == nil:
		return nil, fmt.Errorf("debugger: Introspector is required")
	case deps.MethodLocals == nil:
		return nil, fmt.Errorf("debugger: MethodLocals is required")
	case deps.CallStack == nil:
		return nil, fmt.Errorf("debugger: CallStack is required")
	case deps.ObjectEvaluator == nil:
		return nil, fmt.Errorf("debugger: ObjectEvaluator is required")
	case deps.ClassPathLookup == nil:
		return nil, fmt.Errorf("debugger: ClassPathLookup is required")
	case deps.FormatQueue == nil:
		return nil, fmt.Errorf("debugger: FormatQueue is required")
	}

	scheduler := deps.Scheduler
	if scheduler == nil {
		scheduler = breakpoint.TimerScheduler{}
	}
	registry := deps.Stats
	if registry == nil {
		registry = stats.NewRegistry()
	}

	d := &Debugger{
		logger:          deps.Logger.With().Str("component", "debugger").Logger(),
		callStack:       deps.CallStack,
		methodLocals:    deps.MethodLocals,
		objectEvaluator: deps.ObjectEvaluator,
		stats:           registry,
	}
	d.indexer = newClassIndexer(deps.Introspector, deps.Logger)
	d.classFiles = classcache.New(deps.Introspector, cfg.ClassFilesCacheBytes, deps.Logger)
	d.dynamicLogger = breakpoint.NewDynamicLogger(deps.Logger)

	d.evaluators = eval.Evaluators{
		ClassPathLookup:     deps.ClassPathLookup,
		ClassIndexer:        d.indexer,
		CallStack:           deps.CallStack,
		MethodLocals:        deps.MethodLocals,
		ClassMetadataReader: deps.ClassMetadataReader,
		ObjectEvaluator:     deps.ObjectEvaluator,
		LabelsFactory:       deps.LabelsFactory,
	}
	// Each evaluation request gets a fresh quota-bounded caller sharing
	// the class index and class-file cache.
	d.evaluators.MethodCallerFactory = func(category config.QuotaCategory) *safecall.Caller {
		return safecall.New(cfg.Quota(category), d.indexer, d.classFiles, d.logger)
	}

	factory := func(def *breakpoint.Definition) *breakpoint.Breakpoint {
		return breakpoint.New(def, scheduler, &d.evaluators, deps.FormatQueue,
			d.dynamicLogger, deps.Logger)
	}
	d.manager = breakpoint.NewManager(factory, &d.evaluators, deps.FormatQueue,
		deps.Canary, deps.Logger)

	d.cleanup = []cleanupStep{
		{name: "breakpoints_manager", fn: d.manager.Cleanup},
		{name: "class_indexer", fn: d.indexer.Cleanup},
	}
	return d, nil
}

var _ jvmti.EventHandler = (*Debugger)(nil)

// Initialize performs the one-time expensive setup: indexing classes
// loaded before the agent attached, registering the object
// pretty-printers, and opening the dynamic log sink. Any failure aborts
// startup.
func (d *Debugger) Initialize() error {
	start := time.Now()
	d.logger.Info().Msg("initializing debug agent")

	if err := d.indexer.Initialize(); err != nil {
		return fmt.Errorf("initialize class indexer: %w", err)
	}
	if err := d.objectEvaluator.Initialize(); err != nil {
		return fmt.Errorf("initialize object evaluator: %w", err)
	}
	if err := d.dynamicLogger.Initialize(); err != nil {
		return fmt.Errorf("initialize dynamic log sink: %w", err)
	}

	d.logger.Info().
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("debug agent initialized")
	return nil
}

// OnClassPrepare indexes a newly prepared class. This fires for every
// class the host loads whether or not anything is being debugged; the
// elapsed time is recorded so the tax stays observable.
func (d *Debugger) OnClassPrepare(_ jvmti.ThreadID, class jvmti.ClassID) {
	start := time.Now()
	d.indexer.OnClassPrepare(class)
	d.stats.Record(stats.ClassPrepareTime, time.Since(start))
}

// OnCompiledMethodUnload forwards the unload to the three collaborators
// holding per-method state. Each evicts under its own lock; there is no
// cross-collaborator transaction.
func (d *Debugger) OnCompiledMethodUnload(method jvmti.MethodID) {
	start := time.Now()
	d.callStack.OnCompiledMethodUnload(method)
	d.methodLocals.OnCompiledMethodUnload(method)
	d.manager.OnCompiledMethodUnload(method)
	d.stats.Record(stats.MethodUnloadTime, time.Since(start))
}

// OnBreakpoint routes a breakpoint-hit event to the manager.
func (d *Debugger) OnBreakpoint(thread jvmti.ThreadID, method jvmti.MethodID, location jvmti.Location) {
	start := time.Now()
	d.manager.OnBreakpoint(thread, method, location)
	d.stats.Record(stats.BreakpointTime, time.Since(start))
}

// SetActiveBreakpointsList replaces the active breakpoint set wholesale.
// Ownership of the definitions transfers in.
func (d *Debugger) SetActiveBreakpointsList(defs []*breakpoint.Definition) {
	d.manager.SetActiveBreakpointsList(defs)
}

// Evaluators exposes the collaborator facade. Borrowed references only;
// the facade never outlives the Debugger.
func (d *Debugger) Evaluators() *eval.Evaluators {
	return &d.evaluators
}

// Stats exposes the event-latency registry.
func (d *Debugger) Stats() *stats.Registry {
	return d.stats
}

// Close tears the agent down synchronously in dependency order and blocks
// until all dependent cleanup completes. Safe to call more than once.
func (d *Debugger) Close() {
	d.closeOnce.Do(func() {
		for _, step := range d.cleanup {
			d.logger.Debug().Str("step", step.name).Msg("running cleanup")
			step.fn()
		}
		d.logger.Info().Msg("debug agent closed")
	})
}
