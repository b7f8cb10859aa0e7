// Package breakpoint implements the runtime breakpoint objects, the
// manager that matches instrumentation events against the active set, and
// the queue of formatted results awaiting the transmission layer.
package breakpoint

import (
	"time"

	"github.com/google/uuid"

	"github.com/lamprey-dbg/lamprey/internal/eval"
	"github.com/lamprey-dbg/lamprey/internal/jvmti"
)

// Action selects what a breakpoint does when hit.
type Action string

const (
	// ActionCapture takes a one-shot snapshot of locals and completes.
	ActionCapture Action = "capture"
	// ActionLog emits a dynamic log statement on every hit.
	ActionLog Action = "log"
)

// SourceLocation is an operator-facing source position.
type SourceLocation struct {
	Path string `yaml:"path"`
	Line int    `yaml:"line"`
}

// Definition is the persisted form of a breakpoint, as received from the
// operator-facing layer. Condition and Expressions are carried opaquely;
// their evaluation belongs to the external expression evaluator.
type Definition struct {
	ID          string         `yaml:"id"`
	Location    SourceLocation `yaml:"location"`
	Condition   string         `yaml:"condition,omitempty"`
	Expressions []string       `yaml:"expressions,omitempty"`

	Action           Action `yaml:"action"`
	LogMessageFormat string `yaml:"log_message_format,omitempty"`
	LogLevel         string `yaml:"log_level,omitempty"`

	// ExpiresAfter completes the breakpoint automatically if it has not
	// fired. Zero means no expiry.
	ExpiresAfter time.Duration `yaml:"expires_after,omitempty"`
}

// NewDefinition creates a capture breakpoint at the given source location
// with a fresh ID.
func NewDefinition(path string, line int) *Definition {
	return &Definition{
		ID:       uuid.NewString(),
		Location: SourceLocation{Path: path, Line: line},
		Action:   ActionCapture,
	}
}

// VariableValue is one rendered variable in a breakpoint result.
type VariableValue struct {
	Name       string
	Value      string
	IsArgument bool
}

// Result is a formatted breakpoint hit, ready for the transmission layer.
type Result struct {
	BreakpointID string
	Thread       jvmti.ThreadID
	Method       jvmti.MethodID
	Location     jvmti.Location
	CapturedAt   time.Time

	// Instance is the rendered "this" reference, nil in static methods.
	Instance  *VariableValue
	Variables []VariableValue

	Frames []eval.Frame
	Labels map[string]string
}
