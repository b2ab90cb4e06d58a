package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type userID string

func TestExtensionsSetAndGetByType(t *testing.T) {
	var e Extensions
	e.Set(userID("alice"))
	e.Set(RequestID("r-1"))

	uid, ok := ExtGet[userID](&e)
	assert.True(t, ok)
	assert.Equal(t, userID("alice"), uid)

	rid, ok := ExtGet[RequestID](&e)
	assert.True(t, ok)
	assert.Equal(t, RequestID("r-1"), rid)
}

func TestExtGetMissingType(t *testing.T) {
	var e Extensions
	_, ok := ExtGet[userID](&e)
	assert.False(t, ok)
}

func TestExtGetOnNilExtensions(t *testing.T) {
	rid, ok := ExtGet[RequestID](nil)
	assert.False(t, ok)
	assert.Equal(t, RequestID(""), rid)
}

func TestSetOverwritesSameType(t *testing.T) {
	var e Extensions
	e.Set(userID("alice"))
	e.Set(userID("bob"))

	uid, ok := ExtGet[userID](&e)
	assert.True(t, ok)
	assert.Equal(t, userID("bob"), uid)
}
