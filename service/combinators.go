package service

import "context"

// Map maps the Ok response of inner through f. Readiness is propagated from
// inner, the only service in the chain.
func Map[Req, Res, Res2 any](inner Service[Req, Res], f func(Res) (Res2, error)) Service[Req, Res2] {
	return &mapService[Req, Res, Res2]{inner: inner, f: f}
}

type mapService[Req, Res, Res2 any] struct {
	inner Service[Req, Res]
	f     func(Res) (Res2, error)
}

func (m *mapService[Req, Res, Res2]) Call(ctx context.Context, req Req) (Res2, error) {
	res, err := m.inner.Call(ctx, req)
	if err != nil {
		var zero Res2
		return zero, err
	}
	return m.f(res)
}

func (m *mapService[Req, Res, Res2]) Ready(ctx context.Context) error {
	return AsReadier(m.inner)(ctx)
}

// MapErr maps the Err of inner through f.
func MapErr[Req, Res any, E1, E2 error](inner Service[Req, Res], f func(E1) E2) Service[Req, Res] {
	return &mapErrService[Req, Res, E1, E2]{inner: inner, f: f}
}

type mapErrService[Req, Res any, E1, E2 error] struct {
	inner Service[Req, Res]
	f     func(E1) E2
}

func (m *mapErrService[Req, Res, E1, E2]) Call(ctx context.Context, req Req) (Res, error) {
	res, err := m.inner.Call(ctx, req)
	if err == nil {
		return res, nil
	}
	e1, ok := err.(E1)
	if !ok {
		return res, err
	}
	return res, m.f(e1)
}

func (m *mapErrService[Req, Res, E1, E2]) Ready(ctx context.Context) error {
	return AsReadier(m.inner)(ctx)
}

// AndThen passes the response of first as the request to second on success.
// Per the readiness-propagation rule, only second's readiness is exposed:
// first is polled transiently by Call and never holds backpressure state
// across calls.
func AndThen[Req, Mid, Res any](first Service[Req, Mid], second Service[Mid, Res]) Service[Req, Res] {
	return &andThenService[Req, Mid, Res]{first: first, second: second}
}

type andThenService[Req, Mid, Res any] struct {
	first  Service[Req, Mid]
	second Service[Mid, Res]
}

func (a *andThenService[Req, Mid, Res]) Call(ctx context.Context, req Req) (Res, error) {
	mid, err := a.first.Call(ctx, req)
	if err != nil {
		var zero Res
		return zero, err
	}
	return a.second.Call(ctx, mid)
}

func (a *andThenService[Req, Mid, Res]) Ready(ctx context.Context) error {
	return AsReadier(a.second)(ctx)
}

// Transform is a middleware builder: NewTransform wraps an inner service in
// a new service the same shape, at factory-construction time. A middleware
// failing to build its wrapper short-circuits the whole factory chain.
type Transform[Req, Res any] interface {
	NewTransform(ctx context.Context, inner Service[Req, Res]) (Service[Req, Res], error)
}

// TransformFunc adapts a plain function into a Transform.
type TransformFunc[Req, Res any] func(ctx context.Context, inner Service[Req, Res]) (Service[Req, Res], error)

func (f TransformFunc[Req, Res]) NewTransform(ctx context.Context, inner Service[Req, Res]) (Service[Req, Res], error) {
	return f(ctx, inner)
}

// Enclosed applies a middleware builder to an inner factory: composing
// Enclosed(Enclosed(f, mw1), mw2) builds, at runtime, a request flow of
// mw2 -> mw1 -> inner, while the builder chain itself reads left to right
// (configuring a factory adds layers outward).
func Enclosed[Arg, Req, Res any](inner Factory[Arg, Service[Req, Res]], mw Transform[Req, Res]) Factory[Arg, Service[Req, Res]] {
	return FactoryFunc[Arg, Service[Req, Res]](func(ctx context.Context, arg Arg) (Service[Req, Res], error) {
		s, err := inner.NewService(ctx, arg)
		if err != nil {
			return nil, err
		}
		return mw.NewTransform(ctx, s)
	})
}

// EnclosedFunc is an async middleware function: it receives the inner
// service and the request and decides whether, and how, to invoke inner.
type EnclosedFunc[Req, Res any] func(ctx context.Context, inner Service[Req, Res], req Req) (Res, error)

// EnclosedFn wraps inner with an enclosure function. Unlike Enclosed, this
// operates at the value level since no construction step is required.
func EnclosedFn[Req, Res any](inner Service[Req, Res], f EnclosedFunc[Req, Res]) Service[Req, Res] {
	return &enclosedFnService[Req, Res]{inner: inner, f: f}
}

type enclosedFnService[Req, Res any] struct {
	inner Service[Req, Res]
	f     EnclosedFunc[Req, Res]
}

func (e *enclosedFnService[Req, Res]) Call(ctx context.Context, req Req) (Res, error) {
	return e.f(ctx, e.inner, req)
}

func (e *enclosedFnService[Req, Res]) Ready(ctx context.Context) error {
	return AsReadier(e.inner)(ctx)
}

// Group stacks enclosed/enclosed_fn layers into one reusable middleware
// bundle, applied to a factory with Build. Layers are added outward: the
// first layer added is the innermost wrapper.
type Group[Arg, Req, Res any] struct {
	layers []Transform[Req, Res]
}

func NewGroup[Arg, Req, Res any]() *Group[Arg, Req, Res] {
	return &Group[Arg, Req, Res]{}
}

func (g *Group[Arg, Req, Res]) Enclosed(mw Transform[Req, Res]) *Group[Arg, Req, Res] {
	g.layers = append(g.layers, mw)
	return g
}

func (g *Group[Arg, Req, Res]) EnclosedFn(f EnclosedFunc[Req, Res]) *Group[Arg, Req, Res] {
	g.layers = append(g.layers, TransformFunc[Req, Res](func(ctx context.Context, inner Service[Req, Res]) (Service[Req, Res], error) {
		return EnclosedFn(inner, f), nil
	}))
	return g
}

// Build applies every layer in this group to inner, outermost last.
func (g *Group[Arg, Req, Res]) Build(inner Factory[Arg, Service[Req, Res]]) Factory[Arg, Service[Req, Res]] {
	f := inner
	for _, mw := range g.layers {
		f = Enclosed(f, mw)
	}
	return f
}
