package xlog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func TestIgnoredLogsAtDebug(t *testing.T) {
	log, logs := newObserved()
	Ignored(log, "discarded", zap.String("reason", "test"))

	entries := logs.All()
	assert := assert.New(t)
	if assert.Len(entries, 1) {
		assert.Equal(zap.DebugLevel, entries[0].Level)
		assert.Equal("discarded", entries[0].Message)
	}
}

func TestProtocolLogsAtWarnWithError(t *testing.T) {
	log, logs := newObserved()
	Protocol(log, "bad header", errors.New("malformed"))

	entries := logs.All()
	assert := assert.New(t)
	if assert.Len(entries, 1) {
		assert.Equal(zap.WarnLevel, entries[0].Level)
		assert.Equal("malformed", entries[0].ContextMap()["error"])
	}
}

func TestServiceErrLogsAtError(t *testing.T) {
	log, logs := newObserved()
	ServiceErr(log, "unhandled", errors.New("boom"))

	entries := logs.All()
	assert := assert.New(t)
	if assert.Len(entries, 1) {
		assert.Equal(zap.ErrorLevel, entries[0].Level)
	}
}

func TestNewNopDiscardsSilently(t *testing.T) {
	log := NewNop()
	assert.NotPanics(t, func() { log.Info("anything") })
}
