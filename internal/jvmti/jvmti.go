// Package jvmti abstracts the runtime instrumentation interface of the
// attached virtual machine. The agent never talks to a process-global
// handle; every consumer receives an Introspector capability so tests can
// substitute a deterministic fake.
package jvmti

// ThreadID identifies a runtime thread for the duration of a callback.
type ThreadID uint64

// ClassID identifies a loaded class generation. The runtime may reuse the
// numeric value after the class is unloaded.
type ClassID uint64

// MethodID identifies a method within its class's loaded generation. It is
// invalid after the owning class is unloaded or the method is recompiled;
// the runtime reports that through the compiled-method-unload event.
type MethodID uint64

// Location is a code offset within a method body.
type Location int64

// Method modifier bits, matching the class-file access flags.
const (
	AccPublic  = 0x0001
	AccPrivate = 0x0002
	AccStatic  = 0x0008
	AccFinal   = 0x0010
	AccNative  = 0x0100
)

// LocalVariableEntry is one row of a method's local-variable table, in the
// order the runtime reports it.
type LocalVariableEntry struct {
	Name             string
	Signature        string
	GenericSignature string
	Slot             int
	StartLocation    Location
	// Length is the code range over which the variable is valid, starting
	// at StartLocation. A negative length means the whole method body.
	Length int64
}

// ClassSignature is a class's type signature pair.
type ClassSignature struct {
	Signature string
	Generic   string
}

// Introspector exposes the synchronous introspection queries the agent
// needs. Calls may block briefly on runtime internals but never perform
// network I/O. Every method reports permanent absence of information with
// an error satisfying IsAbsent; any other non-nil error is transient and
// safe to retry on a later call.
type Introspector interface {
	// DeclaringClass resolves the class that defines method.
	DeclaringClass(method MethodID) (ClassID, error)

	// MethodModifiers returns the method's access flags.
	MethodModifiers(method MethodID) (int, error)

	// ClassSignature returns the type signature of a loaded class.
	ClassSignature(class ClassID) (ClassSignature, error)

	// LocalVariableTable returns the method's local-variable table in
	// table order. Methods compiled without debug information and native
	// methods report ErrAbsentInformation and ErrNativeMethod.
	LocalVariableTable(method MethodID) ([]LocalVariableEntry, error)

	// ArgumentsSize returns the number of storage slots occupied by the
	// method's formal parameters, including the receiver.
	ArgumentsSize(method MethodID) (int, error)

	// LoadedClasses lists the classes already loaded by the runtime. Used
	// once at initialization to index classes that loaded before the
	// agent attached.
	LoadedClasses() ([]ClassID, error)

	// ClassFile returns the class-file bytes for a loaded class.
	ClassFile(class ClassID) ([]byte, error)
}

// EventHandler is the callback surface the runtime event source drives.
// All callbacks fire on arbitrary application threads, concurrently.
type EventHandler interface {
	OnClassPrepare(thread ThreadID, class ClassID)
	OnCompiledMethodUnload(method MethodID)
	OnBreakpoint(thread ThreadID, method MethodID, location Location)
}
