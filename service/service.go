// Package service implements the composable request/response abstraction the
// rest of this module is built on: a Service is an immutably-shared value
// with a single asynchronous Call operation, composed through the
// combinators in combinators.go instead of inheritance.
//
// The upstream design this package generalizes (see the actix-service crate
// referenced in DESIGN.md) parameterizes the request type over a borrow tied
// to the caller's stack frame, which makes the trait not object-safe without
// a boxed-future shadow trait. Go requests are ordinary values with no
// lifetime parameter, so that shadow trait collapses into an ordinary
// interface here; what survives is the erasure of the *response* type,
// handled by Object and IntoObject in object.go.
package service

import "context"

// Service is an asynchronous req -> (res, error) function object. It is
// called through a shared reference (by convention, implementations should
// be safe for concurrent Call invocations from multiple goroutines, since
// one Service value is shared across every connection a worker handles).
type Service[Req, Res any] interface {
	Call(ctx context.Context, req Req) (Res, error)
}

// Readier is implemented by services that want to shed load. Engines should
// check for it with AsReadier before each call; a service that doesn't
// implement it is always ready.
type Readier interface {
	Ready(ctx context.Context) error
}

// AsReadier returns the service's Ready method if it implements Readier, or
// a trivial always-ready function otherwise.
func AsReadier[Req, Res any](s Service[Req, Res]) func(context.Context) error {
	if r, ok := any(s).(Readier); ok {
		return r.Ready
	}
	return func(context.Context) error { return nil }
}

// Func adapts a plain function into a Service.
type Func[Req, Res any] func(ctx context.Context, req Req) (Res, error)

func (f Func[Req, Res]) Call(ctx context.Context, req Req) (Res, error) { return f(ctx, req) }
