package iobuf

import (
	"bytes"
	"errors"
	"net"
)

// ErrWriteBufferFull is returned by WriteStatic when the list strategy
// already holds Limit queued slices and must be drained first.
var ErrWriteBufferFull = errors.New("iobuf: write buffer at capacity")

// WriteBuffer is implemented by both write strategies spec §4.2 describes.
// WriteBytes always copies (safe for transient slices the caller reuses);
// WriteStatic queues a reference without copying where the strategy
// supports it (List) or falls back to a copy (Flat).
type WriteBuffer interface {
	WriteBytes(p []byte) error
	WriteStatic(p []byte) error
	// Drain writes to w until the buffer is empty. It makes no separate
	// flush call on w.
	Drain(w net.Conn) error
	Len() int
}

// FlatWriteBuffer is a single contiguous growable buffer: all writes
// append, and Drain emits one vectored (in practice: single-slice) write.
// Favored for small responses, grounded on the teacher's bufio.Writer-backed
// chunkWriter (chunk_writer.go), generalized to batch the status line,
// headers and first body chunk into one buffer before the first syscall.
type FlatWriteBuffer struct {
	buf bytes.Buffer
}

func NewFlatWriteBuffer() *FlatWriteBuffer { return &FlatWriteBuffer{} }

func (f *FlatWriteBuffer) WriteBytes(p []byte) error  { _, err := f.buf.Write(p); return err }
func (f *FlatWriteBuffer) WriteStatic(p []byte) error { return f.WriteBytes(p) }
func (f *FlatWriteBuffer) Len() int                   { return f.buf.Len() }

func (f *FlatWriteBuffer) Drain(w net.Conn) error {
	for f.buf.Len() > 0 {
		n, err := w.Write(f.buf.Bytes())
		f.buf.Next(n)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListWriteBuffer is a queue of owned buffers up to Limit slots.
// WriteStatic queues p without copying, favored for streaming bodies and
// large static payloads; Drain issues one vectored write per flush via
// net.Buffers, which already performs writev on platforms that support it
// (the standard-library equivalent of the spec's "vectored write of up to N
// slices"), then advances the queue.
type ListWriteBuffer struct {
	Limit int
	bufs  net.Buffers
}

func NewListWriteBuffer(limit int) *ListWriteBuffer {
	return &ListWriteBuffer{Limit: limit}
}

func (l *ListWriteBuffer) WriteBytes(p []byte) error {
	cp := make([]byte, len(p))
	copy(cp, p)
	return l.WriteStatic(cp)
}

func (l *ListWriteBuffer) WriteStatic(p []byte) error {
	if len(l.bufs) >= l.Limit {
		return ErrWriteBufferFull
	}
	l.bufs = append(l.bufs, p)
	return nil
}

func (l *ListWriteBuffer) Len() int {
	n := 0
	for _, b := range l.bufs {
		n += len(b)
	}
	return n
}

func (l *ListWriteBuffer) Drain(w net.Conn) error {
	if len(l.bufs) == 0 {
		return nil
	}
	_, err := l.bufs.WriteTo(w)
	// net.Buffers.WriteTo removes the slices it has written; the reset
	// also drops any slices left unwritten after an error, so the next
	// Drain starts from an empty queue.
	l.bufs = l.bufs[:0]
	return err
}

// Shutdown drives the socket's half-close asynchronously (spec §4.2), used
// by the dispatcher's graceful-termination path. It does not close the
// read side, so a peer's own FIN is still observable.
func Shutdown(conn net.Conn) error {
	type closeWriter interface {
		CloseWrite() error
	}
	if cw, ok := conn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return conn.Close()
}
