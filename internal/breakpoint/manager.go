package breakpoint

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/lamprey-dbg/lamprey/internal/eval"
	"github.com/lamprey-dbg/lamprey/internal/jvmti"
)

// Factory manufactures the runtime breakpoint for one definition. The
// orchestrator installs a factory that wires in the scheduler, facade,
// format queue and dynamic log sink.
type Factory func(def *Definition) *Breakpoint

// CanaryController gates breakpoint activation during rollouts. Optional;
// a nil controller activates everything immediately.
type CanaryController interface {
	// RegisterBreakpoint asks for activation approval. A non-nil error
	// keeps the breakpoint pending for this update cycle.
	RegisterBreakpoint(id string) error
}

// Manager owns the active breakpoint set and matches instrumentation
// events against it. All entry points are safe to call concurrently from
// application threads.
type Manager struct {
	factory    Factory
	evaluators *eval.Evaluators
	queue      *FormatQueue
	canary     CanaryController
	logger     zerolog.Logger

	mu       sync.RWMutex
	active   map[string]*Breakpoint
	byMethod map[jvmti.MethodID]map[string]*Breakpoint
	shutdown bool

	// wg tracks in-flight hit evaluations so Cleanup can drain them.
	wg sync.WaitGroup
}

// NewManager creates an empty manager. canary may be nil.
func NewManager(factory Factory, evaluators *eval.Evaluators, queue *FormatQueue,
	canary CanaryController, logger zerolog.Logger) *Manager {
	return &Manager{
		factory:    factory,
		evaluators: evaluators,
		queue:      queue,
		canary:     canary,
		logger:     logger.With().Str("component", "breakpoints_manager").Logger(),
		active:     make(map[string]*Breakpoint),
		byMethod:   make(map[jvmti.MethodID]map[string]*Breakpoint),
	}
}

// SetActiveBreakpointsList replaces the active set wholesale. Definitions
// already active keep their runtime state; new ones are constructed and
// activated; missing ones are completed and released.
func (m *Manager) SetActiveBreakpointsList(defs []*Definition) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}

	desired := make(map[string]*Definition, len(defs))
	for _, def := range defs {
		desired[def.ID] = def
	}

	var removed []*Breakpoint
	for id, bp := range m.active {
		if _, ok := desired[id]; !ok {
			removed = append(removed, bp)
			delete(m.active, id)
			m.unindexLocked(bp)
		}
	}

	var added []*Breakpoint
	for id, def := range desired {
		if _, ok := m.active[id]; ok {
			continue
		}
		if m.canary != nil {
			if err := m.canary.RegisterBreakpoint(id); err != nil {
				m.logger.Info().Err(err).Str("breakpoint_id", id).
					Msg("breakpoint held back by canary control")
				continue
			}
		}
		bp := m.factory(def)
		m.active[id] = bp
		added = append(added, bp)
	}
	m.mu.Unlock()

	for _, bp := range removed {
		bp.Complete()
	}

	// Activation resolves code locations, so it runs outside the map lock
	// and successful activations are indexed afterwards.
	for _, bp := range added {
		if err := bp.Activate(); err != nil {
			m.logger.Warn().Err(err).Str("breakpoint_id", bp.Definition().ID).
				Msg("breakpoint left pending")
			continue
		}
		m.indexBreakpoint(bp)
	}

	m.logger.Info().
		Int("active", len(defs)).
		Int("removed", len(removed)).
		Msg("active breakpoints list replaced")
}

// OnBreakpoint routes a breakpoint-hit event to every matching active
// breakpoint. Evaluation happens synchronously on the hit thread.
func (m *Manager) OnBreakpoint(thread jvmti.ThreadID, method jvmti.MethodID, location jvmti.Location) {
	m.mu.RLock()
	if m.shutdown {
		m.mu.RUnlock()
		return
	}
	var matches []*Breakpoint
	for _, bp := range m.byMethod[method] {
		if bpMethod, bpLocation, ok := bp.CodeLocation(); ok &&
			bpMethod == method && bpLocation == location {
			matches = append(matches, bp)
		}
	}
	m.wg.Add(len(matches))
	m.mu.RUnlock()

	for _, bp := range matches {
		func(bp *Breakpoint) {
			defer m.wg.Done()
			bp.OnHit(thread)
		}(bp)
		if bp.Completed() {
			m.removeCompleted(bp)
		}
	}
}

// OnCompiledMethodUnload evicts the per-method match index. The
// breakpoints themselves stay in the active set, pending re-resolution.
func (m *Manager) OnCompiledMethodUnload(method jvmti.MethodID) {
	m.mu.Lock()
	delete(m.byMethod, method)
	m.mu.Unlock()
}

// Cleanup completes every breakpoint and blocks until in-flight hit
// evaluations drain. The manager accepts no events afterwards.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true
	remaining := make([]*Breakpoint, 0, len(m.active))
	for _, bp := range m.active {
		remaining = append(remaining, bp)
	}
	m.active = make(map[string]*Breakpoint)
	m.byMethod = make(map[jvmti.MethodID]map[string]*Breakpoint)
	m.mu.Unlock()

	for _, bp := range remaining {
		bp.Complete()
	}
	m.wg.Wait()
	m.logger.Info().Int("released", len(remaining)).Msg("breakpoints manager cleaned up")
}

// ActiveCount reports the number of breakpoints in the active set.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

func (m *Manager) indexBreakpoint(bp *Breakpoint) {
	method, _, ok := bp.CodeLocation()
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return
	}
	if m.byMethod[method] == nil {
		m.byMethod[method] = make(map[string]*Breakpoint)
	}
	m.byMethod[method][bp.Definition().ID] = bp
}

func (m *Manager) removeCompleted(bp *Breakpoint) {
	m.mu.Lock()
	delete(m.active, bp.Definition().ID)
	m.unindexLocked(bp)
	m.mu.Unlock()
}

// unindexLocked drops bp from the per-method index. Caller holds mu.
func (m *Manager) unindexLocked(bp *Breakpoint) {
	id := bp.Definition().ID
	for method, set := range m.byMethod {
		if _, ok := set[id]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(m.byMethod, method)
			}
		}
	}
}
