// Package errors contains the domain errors of the extension host broker.
package errors

import stderr "errors"

// New returns an error that formats as the given text.
// Each call to New returns a distinct error value even if the text is identical.
func New(msg string) error {
	return stderr.New(msg)
}

// InvalidCascadeError reports that a settings operation requires a valid settings cascade.
type InvalidCascadeError struct{}

// Error is an implementation of the error interface.
func (e *InvalidCascadeError) Error() string {
	return "invalid settings cascade"
}

// IsInvalidCascade reports whether InvalidCascadeError is part of the error chain.
func IsInvalidCascade(e error) bool {
	var ic *InvalidCascadeError
	return stderr.As(e, &ic)
}

// ConnectionReplacedError reports that a call was abandoned because its connection to the extension host was
// closed or replaced before a response arrived.
type ConnectionReplacedError struct {
	Method string
}

// Error is an implementation of the error interface.
func (e *ConnectionReplacedError) Error() string {
	if e.Method == "" {
		return "connection to extension host was replaced"
	}
	return "connection to extension host was replaced before " + e.Method + " completed"
}

// IsConnectionReplaced reports whether ConnectionReplacedError is part of the error chain.
func IsConnectionReplaced(e error) bool {
	var cr *ConnectionReplacedError
	return stderr.As(e, &cr)
}
