package xerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorWrapsCauseAndUnwraps(t *testing.T) {
	cause := errors.New("boom")
	e := New(Protocol, cause)

	assert.Equal(t, "protocol: boom", e.Error())
	assert.Equal(t, cause, errors.Unwrap(e))
}

func TestErrorWithoutCause(t *testing.T) {
	e := New(IO, nil)
	assert.Equal(t, "io", e.Error())
}

func TestAsMatchesKind(t *testing.T) {
	cause := errors.New("bad header")
	wrapped := fmt.Errorf("parsing: %w", New(Protocol, cause))

	got, ok := As(wrapped, Protocol)
	require := assert.New(t)
	require.True(ok)
	require.Equal(cause, got)

	_, ok = As(wrapped, Body)
	require.False(ok)
}

func TestKindStringCoversEveryValue(t *testing.T) {
	kinds := []Kind{Ignored, ServiceReady, Timeout, UnSupportedVersion, Body, TLS, Protocol, ServiceErr, IO}
	for _, k := range kinds {
		assert.NotEqual(t, "unknown", k.String())
	}
	assert.Equal(t, "unknown", Kind(999).String())
}

type respErr struct{ msg string }

func (e respErr) Error() string    { return e.msg }
func (e respErr) ResponseError() int { return 418 }

func TestResponseErrorCapability(t *testing.T) {
	var err error = respErr{msg: "teapot"}
	re, ok := err.(ResponseError[int])
	assert := assert.New(t)
	assert.True(ok)
	assert.Equal(418, re.ResponseError())
}
