package infer

import (
	"errors"
	"fmt"
)

// Kind partitions inference failures into the two cases the pipeline cares
// about.
type Kind int

const (
	// KindUnavailable covers timeouts, connection failures and 5xx.
	KindUnavailable Kind = iota + 1
	// KindRejected covers 4xx and malformed response bodies.
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindRejected:
		return "rejected"
	}
	return "unknown"
}

// Error is the only error type the client returns.
type Error struct {
	Kind     Kind
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("infer: %s: %s: %v", e.Endpoint, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func IsUnavailable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindUnavailable
}

func IsRejected(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindRejected
}
