package service

import "context"

// Factory builds a Service asynchronously from an argument, typically a
// configuration value. Factories compose before materialization (at
// worker/server start); services compose after. A factory's errors (for
// example, a middleware's NewTransform failing) are reported once at build
// time rather than on every call.
type Factory[Arg, S any] interface {
	NewService(ctx context.Context, arg Arg) (S, error)
}

// FactoryFunc adapts a plain function into a Factory.
type FactoryFunc[Arg, S any] func(ctx context.Context, arg Arg) (S, error)

func (f FactoryFunc[Arg, S]) NewService(ctx context.Context, arg Arg) (S, error) {
	return f(ctx, arg)
}

// StaticFactory wraps an already-built service so it can be composed
// wherever a Factory is expected; useful for leaf services with no
// per-worker construction step.
func StaticFactory[Arg, S any](s S) Factory[Arg, S] {
	return FactoryFunc[Arg, S](func(context.Context, Arg) (S, error) { return s, nil })
}
