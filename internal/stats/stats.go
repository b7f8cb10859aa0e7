// Package stats collects latency aggregates for the instrumentation event
// handlers. The class-prepare handler fires for every class the host
// process loads whether or not anything is being debugged, so its cost is
// tracked explicitly as the tax the agent imposes.
package stats

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Well-known aggregate names.
const (
	ClassPrepareTime = "class_prepare_time"
	BreakpointTime   = "breakpoint_time"
	MethodUnloadTime = "method_unload_time"
)

// Aggregate is a running latency summary in microseconds.
type Aggregate struct {
	Count       int64
	TotalMicros int64
	MaxMicros   int64
}

// Mean returns the mean latency in microseconds, zero when empty.
func (a Aggregate) Mean() int64 {
	if a.Count == 0 {
		return 0
	}
	return a.TotalMicros / a.Count
}

// Registry holds named aggregates. Safe for concurrent use.
type Registry struct {
	mu         sync.Mutex
	aggregates map[string]*Aggregate
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{aggregates: make(map[string]*Aggregate)}
}

// Record adds one sample to the named aggregate.
func (r *Registry) Record(name string, elapsed time.Duration) {
	micros := elapsed.Microseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	agg := r.aggregates[name]
	if agg == nil {
		agg = &Aggregate{}
		r.aggregates[name] = agg
	}
	agg.Count++
	agg.TotalMicros += micros
	if micros > agg.MaxMicros {
		agg.MaxMicros = micros
	}
}

// Snapshot returns a copy of all aggregates.
func (r *Registry) Snapshot() map[string]Aggregate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Aggregate, len(r.aggregates))
	for name, agg := range r.aggregates {
		out[name] = *agg
	}
	return out
}

// ProcessMemory reports the host process resident set size. The agent
// shares the host's address space, so this is the number operators watch
// when judging agent overhead.
func ProcessMemory() (rssBytes uint64, err error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}
