package iobuf

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillAccumulatesAcrossCalls(t *testing.T) {
	b := NewReadBuffer(16)
	r := bytes.NewReader([]byte("hello world"))

	n, err := b.Fill(r)
	require.NoError(t, err)
	assert.True(t, n > 0)
	assert.Equal(t, n, b.Len())

	for b.Len() < len("hello world") {
		_, err := b.Fill(r)
		if err != nil && !errors.Is(err, io.EOF) {
			require.NoError(t, err)
		}
	}
	assert.Equal(t, "hello world", string(b.Bytes()))
}

// TestFillBackpressure covers invariant 5: Fill refuses to touch r once the
// buffer already holds Limit bytes, so the dispatcher must Advance (parse)
// before it can ask for more.
func TestFillBackpressure(t *testing.T) {
	b := NewReadBuffer(4)
	r := bytes.NewReader([]byte("abcdefgh"))

	for b.Len() < 4 {
		_, err := b.Fill(r)
		require.NoError(t, err)
	}

	_, err := b.Fill(r)
	assert.ErrorIs(t, err, ErrBackpressure)

	b.Advance(2)
	n, err := b.Fill(r)
	require.NoError(t, err)
	assert.True(t, n > 0)
}

func TestAdvanceAndReset(t *testing.T) {
	b := NewReadBuffer(16)
	_, _ = b.Fill(bytes.NewReader([]byte("abcdef")))
	require.Equal(t, 6, b.Len())

	b.Advance(2)
	assert.Equal(t, "cdef", string(b.Bytes()))

	b.Reset()
	assert.Equal(t, 0, b.Len())
}
