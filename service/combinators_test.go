package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo() Service[int, int] {
	return Func[int, int](func(ctx context.Context, req int) (int, error) { return req, nil })
}

func TestMapTransformsResponse(t *testing.T) {
	s := Map[int, int, string](echo(), func(n int) (string, error) {
		return "n=" + string(rune('0'+n)), nil
	})
	got, err := s.Call(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "n=3", got)
}

type myErr struct{ msg string }

func (e myErr) Error() string { return e.msg }

func TestMapErrOnlyTranslatesMatchingType(t *testing.T) {
	failing := Func[int, int](func(ctx context.Context, req int) (int, error) {
		return 0, myErr{msg: "bad"}
	})
	s := MapErr[int, int, myErr, error](failing, func(e myErr) error {
		return errors.New("wrapped: " + e.msg)
	})
	_, err := s.Call(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, "wrapped: bad", err.Error())
}

func TestAndThenChainsServices(t *testing.T) {
	double := Func[int, int](func(ctx context.Context, req int) (int, error) { return req * 2, nil })
	addOne := Func[int, int](func(ctx context.Context, req int) (int, error) { return req + 1, nil })
	s := AndThen[int, int, int](double, addOne)

	got, err := s.Call(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 11, got)
}

func TestEnclosedFnWrapsCall(t *testing.T) {
	inner := echo()
	var calledWith int
	s := EnclosedFn[int, int](inner, func(ctx context.Context, inner Service[int, int], req int) (int, error) {
		calledWith = req
		res, err := inner.Call(ctx, req)
		return res + 100, err
	})

	got, err := s.Call(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 101, got)
	assert.Equal(t, 1, calledWith)
}

type readyService struct{ err error }

func (r readyService) Call(ctx context.Context, req int) (int, error) { return req, nil }
func (r readyService) Ready(ctx context.Context) error                { return r.err }

func TestAsReadierFallsBackWhenUnimplemented(t *testing.T) {
	assert.NoError(t, AsReadier[int, int](echo())(context.Background()))

	wantErr := errors.New("not ready")
	assert.Equal(t, wantErr, AsReadier[int, int](readyService{err: wantErr})(context.Background()))
}
