package breakpoint

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lamprey-dbg/lamprey/internal/eval"
	"github.com/lamprey-dbg/lamprey/internal/jvmti"
	"github.com/lamprey-dbg/lamprey/internal/locals"
)

// Breakpoint is the runtime object behind one Definition. It borrows the
// collaborator facade from the orchestrator and never outlives it.
type Breakpoint struct {
	def        *Definition
	scheduler  Scheduler
	evaluators *eval.Evaluators
	queue      *FormatQueue
	dynamicLog *DynamicLogger
	logger     zerolog.Logger

	mu           sync.Mutex
	method       jvmti.MethodID
	location     jvmti.Location
	resolved     bool
	completed    bool
	cancelExpire func()
}

// New creates an inactive breakpoint. Activate must be called before the
// breakpoint can match hits.
func New(def *Definition, scheduler Scheduler, evaluators *eval.Evaluators,
	queue *FormatQueue, dynamicLog *DynamicLogger, logger zerolog.Logger) *Breakpoint {
	return &Breakpoint{
		def:        def,
		scheduler:  scheduler,
		evaluators: evaluators,
		queue:      queue,
		dynamicLog: dynamicLog,
		logger: logger.With().
			Str("component", "breakpoint").
			Str("breakpoint_id", def.ID).
			Logger(),
	}
}

// Definition returns the persisted definition.
func (b *Breakpoint) Definition() *Definition {
	return b.def
}

// Activate resolves the definition's source location to a code location
// and arms expiry. The breakpoint stays pending on resolution failure and
// may be activated again later.
func (b *Breakpoint) Activate() error {
	method, location, err := b.evaluators.ClassPathLookup.ResolveSourceLocation(
		b.def.Location.Path, b.def.Location.Line)
	if err != nil {
		return fmt.Errorf("resolve %s:%d: %w", b.def.Location.Path, b.def.Location.Line, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.completed {
		return nil
	}
	b.method = method
	b.location = location
	b.resolved = true
	if b.def.ExpiresAfter > 0 && b.cancelExpire == nil {
		b.cancelExpire = b.scheduler.Schedule(b.def.ExpiresAfter, b.expire)
	}

	b.logger.Debug().
		Uint64("method", uint64(method)).
		Int64("location", int64(location)).
		Msg("breakpoint activated")
	return nil
}

// CodeLocation returns the resolved code location, if any.
func (b *Breakpoint) CodeLocation() (jvmti.MethodID, jvmti.Location, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.method, b.location, b.resolved && !b.completed
}

// Completed reports whether the breakpoint has finished its lifecycle.
func (b *Breakpoint) Completed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed
}

// Complete finishes the breakpoint and cancels any pending expiry. Safe to
// call more than once.
func (b *Breakpoint) Complete() {
	b.mu.Lock()
	cancel := b.cancelExpire
	b.cancelExpire = nil
	b.completed = true
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// OnHit evaluates the breakpoint on the hit thread. Capture breakpoints
// push one result and complete; log breakpoints emit through the dynamic
// log sink and stay active.
func (b *Breakpoint) OnHit(thread jvmti.ThreadID) {
	b.mu.Lock()
	if b.completed || !b.resolved {
		b.mu.Unlock()
		return
	}
	method := b.method
	location := b.location
	b.mu.Unlock()

	entry := b.evaluators.MethodLocals.GetLocalVariables(method)

	result := &Result{
		BreakpointID: b.def.ID,
		Thread:       thread,
		Method:       method,
		Location:     location,
		CapturedAt:   time.Now(),
	}
	if entry.Instance != nil {
		v := b.render(thread, *entry.Instance)
		result.Instance = &v
	}
	result.Variables = make([]VariableValue, 0, len(entry.Locals))
	for _, local := range entry.Locals {
		result.Variables = append(result.Variables, b.render(thread, local))
	}

	if frames, err := b.evaluators.CallStack.Frames(thread); err != nil {
		b.logger.Warn().Err(err).Msg("call stack unavailable for breakpoint hit")
	} else {
		result.Frames = frames
	}

	if b.evaluators.LabelsFactory != nil {
		result.Labels = b.evaluators.LabelsFactory().Labels()
	}

	switch b.def.Action {
	case ActionLog:
		b.dynamicLog.Log(b.def, b.formatLogMessage(result))
	default:
		b.queue.Push(result)
		b.Complete()
	}
}

// render resolves one variable's display value. A failed evaluation
// degrades to a placeholder instead of failing the breakpoint.
func (b *Breakpoint) render(thread jvmti.ThreadID, v locals.Variable) VariableValue {
	value, err := b.evaluators.ObjectEvaluator.Evaluate(thread, v)
	if err != nil {
		b.logger.Debug().Err(err).Str("variable", v.Name).Msg("variable evaluation failed")
		value = "<unavailable>"
	}
	return VariableValue{Name: v.Name, Value: value, IsArgument: v.IsArgument}
}

func (b *Breakpoint) formatLogMessage(result *Result) string {
	var sb strings.Builder
	if b.def.LogMessageFormat != "" {
		sb.WriteString(b.def.LogMessageFormat)
	} else {
		sb.WriteString("breakpoint hit")
	}
	for _, v := range result.Variables {
		sb.WriteString(" ")
		sb.WriteString(v.Name)
		sb.WriteString("=")
		sb.WriteString(v.Value)
	}
	return sb.String()
}

// expire runs on a scheduler thread when the breakpoint ages out.
func (b *Breakpoint) expire() {
	b.mu.Lock()
	if b.completed {
		b.mu.Unlock()
		return
	}
	b.completed = true
	b.cancelExpire = nil
	b.mu.Unlock()
	b.logger.Info().Msg("breakpoint expired without firing")
}
