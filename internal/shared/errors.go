// Package shared provides types used across the piecewise-go packages.
package shared

import "fmt"

// InvariantError reports a violated data contract, such as a feature vector
// whose length disagrees with its scene signature. Callers can detect it
// with errors.As; it is never returned for recoverable statistical
// conditions.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "invariant violation: " + e.Msg
}

// Invariantf builds an InvariantError with a formatted message.
func Invariantf(format string, args ...interface{}) error {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}
