// Package xerrors implements the engine's error taxonomy described in spec
// §4.1/§7 (nine Kinds, from Ignored through IO), plus the ResponseError
// projection a service's error type may opt into so the engine can turn it
// directly into a Response instead of a generic 500.
//
// Grounded on the teacher's (badu-http) error values in types_server.go
// (ErrBodyNotAllowed, ErrHijacked, ...) and badRequestError, generalized
// into a typed Kind instead of ad-hoc sentinel values, and on
// actix-http-alt/src/error.rs's error enum from original_source.
package xerrors

import (
	"errors"
	"fmt"
)

// Kind classifies where an error came from and, implicitly, how the engine
// recovers from it.
type Kind int

const (
	// Ignored marks discarded information, logged at debug and otherwise
	// inert.
	Ignored Kind = iota
	// ServiceReady is returned when an upstream service declines readiness;
	// the connection is closed.
	ServiceReady
	// Timeout covers the TLS-accept, H2-handshake and keep-alive timers.
	Timeout
	// UnSupportedVersion is an ALPN/preface mismatch the acceptor can't
	// route anywhere.
	UnSupportedVersion
	// Body is a request or response body stream failure; it aborts the
	// current exchange.
	Body
	// TLS is a handshake failure.
	TLS
	// Protocol is malformed wire input (H1/H2/H3); the engine attempts a
	// best-effort error response then closes.
	Protocol
	// ServiceErr is an application service Err; it is projected to a
	// response via ResponseError, or defaulted to 500.
	ServiceErr
	// IO is a closed socket, reset, or write-zero; treated as a success
	// termination, never logged as a failure.
	IO
)

func (k Kind) String() string {
	switch k {
	case Ignored:
		return "ignored"
	case ServiceReady:
		return "service-ready"
	case Timeout:
		return "timeout"
	case UnSupportedVersion:
		return "unsupported-version"
	case Body:
		return "body"
	case TLS:
		return "tls"
	case Protocol:
		return "protocol"
	case ServiceErr:
		return "service"
	case IO:
		return "io"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so the engine can decide
// recovery without type-switching on concrete error values.
type Error struct {
	Kind  Kind
	Cause error
}

func New(kind Kind, cause error) *Error { return &Error{Kind: kind, Cause: cause} }

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// As reports whether err (or something it wraps) is an *Error of the given
// Kind, returning the wrapped cause.
func As(err error, kind Kind) (error, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == kind {
		return e.Cause, true
	}
	return nil, false
}

// ResponseError is the capability an application error type may implement
// to produce a Response directly instead of being defaulted to a generic
// 500 by the engine. Out is the module's Response type; it is left generic
// here so xerrors has no import-cycle on message.
type ResponseError[Out any] interface {
	error
	ResponseError() Out
}
