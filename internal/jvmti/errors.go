package jvmti

import "errors"

// Sentinel errors for permanent absence of information. Anything else
// returned by an Introspector is a transient infrastructure failure.
var (
	// ErrAbsentInformation means the class was compiled without debug
	// information. Stable for the lifetime of the loaded class.
	ErrAbsentInformation = errors.New("jvmti: absent debug information")

	// ErrNativeMethod means the method has no bytecode body.
	ErrNativeMethod = errors.New("jvmti: native method")

	// ErrInvalidMethod means the method handle does not name a live
	// method, typically because its class generation was unloaded.
	ErrInvalidMethod = errors.New("jvmti: invalid method handle")
)

// IsAbsent reports whether err represents a permanent, cacheable absence
// of information rather than a retryable failure.
func IsAbsent(err error) bool {
	return errors.Is(err, ErrAbsentInformation) || errors.Is(err, ErrNativeMethod)
}
