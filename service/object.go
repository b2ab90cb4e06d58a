package service

import "context"

// Object is the response-erased shadow of Service[Req, Res]: every route
// handler, regardless of its own response type, can be stored as an
// Object[Req, Out] once its response has been projected into a common Out
// (typically the module's Response type). This is the part of the upstream
// "object safety" story that survives translation to Go: there is no
// lifetime parameter to erase, but storing heterogeneous handlers in one
// routing table still requires erasing their distinct Res types behind one
// interface.
type Object[Req, Out any] interface {
	Call(ctx context.Context, req Req) (Out, error)
}

// IntoObject erases s's response type into Out via project, producing a
// value storable alongside other handlers with different Res types. project
// runs after a successful Call; a failing Call's error is passed through
// unchanged.
func IntoObject[Req, Res, Out any](s Service[Req, Res], project func(Res) (Out, error)) Object[Req, Out] {
	return &objectService[Req, Res, Out]{inner: s, project: project}
}

type objectService[Req, Res, Out any] struct {
	inner   Service[Req, Res]
	project func(Res) (Out, error)
}

func (o *objectService[Req, Res, Out]) Call(ctx context.Context, req Req) (Out, error) {
	res, err := o.inner.Call(ctx, req)
	if err != nil {
		var zero Out
		return zero, err
	}
	return o.project(res)
}

func (o *objectService[Req, Res, Out]) Ready(ctx context.Context) error {
	return AsReadier(o.inner)(ctx)
}
