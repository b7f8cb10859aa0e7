// Package eval defines the collaborator facade handed to every breakpoint
// object. It aggregates borrowed references owned by the orchestrator so
// breakpoints can reach the class indexer, metadata cache, evaluator and
// sandboxed caller without the orchestrator re-exposing each one.
package eval

import (
	"github.com/lamprey-dbg/lamprey/internal/jvmti"
	"github.com/lamprey-dbg/lamprey/internal/locals"
	"github.com/lamprey-dbg/lamprey/internal/safecall"
)

// ClassIndexer tracks loaded classes by signature.
type ClassIndexer interface {
	// Initialize indexes the classes loaded before the agent attached.
	Initialize() error
	// OnClassPrepare indexes one newly prepared class. Fires for every
	// class the runtime loads and must stay cheap.
	OnClassPrepare(class jvmti.ClassID)
	// FindClassBySignature resolves a type signature to its loaded handle.
	FindClassBySignature(signature string) (jvmti.ClassID, bool)
	// Cleanup releases runtime references. The indexer must not be used
	// after Cleanup returns.
	Cleanup()
}

// Frame is one resolved call-stack frame.
type Frame struct {
	Method   jvmti.MethodID
	Location jvmti.Location
	Function string
}

// CallStack resolves and caches call stacks of stopped threads.
type CallStack interface {
	Frames(thread jvmti.ThreadID) ([]Frame, error)
	// OnCompiledMethodUnload evicts per-method frame state.
	OnCompiledMethodUnload(method jvmti.MethodID)
}

// ClassMetadata is the indexed metadata of one class.
type ClassMetadata struct {
	Signature  string
	SourceFile string
}

// ClassMetadataReader reads indexed class metadata.
type ClassMetadataReader interface {
	ClassMetadata(class jvmti.ClassID) (ClassMetadata, error)
}

// ObjectEvaluator renders variable values through the pretty-printer
// registry.
type ObjectEvaluator interface {
	// Initialize registers the built-in pretty printers.
	Initialize() error
	// Evaluate formats the value of v as observed on thread.
	Evaluate(thread jvmti.ThreadID, v locals.Variable) (string, error)
}

// ClassPathLookup maps operator-facing source locations onto code
// locations in loaded classes.
type ClassPathLookup interface {
	ResolveSourceLocation(path string, line int) (jvmti.MethodID, jvmti.Location, error)
}

// LabelsProvider supplies the labels attached to every breakpoint result.
type LabelsProvider interface {
	Labels() map[string]string
}

// Evaluators is the facade itself: a flat aggregate of non-owning
// references. The orchestrator constructs it once and guarantees every
// field outlives every breakpoint that borrows it.
type Evaluators struct {
	ClassPathLookup     ClassPathLookup
	ClassIndexer        ClassIndexer
	CallStack           CallStack
	MethodLocals        *locals.Cache
	ClassMetadataReader ClassMetadataReader
	ObjectEvaluator     ObjectEvaluator
	MethodCallerFactory safecall.Factory
	LabelsFactory       func() LabelsProvider
}
