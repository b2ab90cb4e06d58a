package h1

import (
	"net"

	"github.com/nazgrel/wyrdgate/iobuf"
)

// source adapts an iobuf.ReadBuffer over a net.Conn into a plain io.Reader
// so it can back a single persistent *bufio.Reader for the connection's
// whole lifetime (request-line, headers, and body all read through the same
// buffer, which is how the teacher's conn.go/conn_reader.go share one
// bufio.Reader across requestRead and the pipelined-body path). Read calls
// serve from already-buffered bytes first and only call ReadBuffer.Fill
// (which performs the bounded syscall per spec §4.2) once the buffer is
// drained.
//
// ReadBuffer.Fill's own backpressure check only sees bytes that are
// buffered but not yet Advance'd; since Read below always hands a Fill's
// entire yield straight to its caller (bufio.Reader, which consumes it
// immediately), the ReadBuffer itself never holds more than one
// conn.Read's worth of bytes, so that check alone can never catch a head
// assembled across many short reads. cum tracks bytes pulled through this
// source since the last setLimit call so a bounded phase -- currently only
// the head-read phase -- is bounded cumulatively, not just per-syscall.
type source struct {
	conn    net.Conn
	buf     *iobuf.ReadBuffer
	bounded bool
	limit   int
	cum     int
}

func newSource(conn net.Conn, limit int) *source {
	return &source{conn: conn, buf: iobuf.NewReadBuffer(limit)}
}

func (s *source) Read(p []byte) (int, error) {
	if s.buf.Len() == 0 {
		if s.bounded && s.cum >= s.limit {
			return 0, iobuf.ErrBackpressure
		}
		n, err := s.buf.Fill(s.conn)
		if err != nil {
			return 0, err
		}
		s.cum += n
	}
	n := copy(p, s.buf.Bytes())
	s.buf.Advance(n)
	return n, nil
}

// setLimit reconfigures the backing buffer's capacity ceiling and resets
// the cumulative counter for the next phase, mirroring the teacher's
// connReader.setReadLimit/setInfiniteReadLimit toggling between the
// head-read phase (bounded to HEAD_LIMIT, so overflow answers with 431)
// and the body-read phase (bounded to READ_BUF_LIMIT for buffer sizing).
// bounded controls whether cum is actually enforced: the head phase
// enforces it since HEAD_LIMIT is a hard ceiling on total head bytes, the
// body phase does not, since a body's total length is governed by
// Content-Length or chunked framing rather than by how many bytes ever
// pass through the buffer.
func (s *source) setLimit(limit int, bounded bool) {
	s.buf.Limit = limit
	s.limit = limit
	s.bounded = bounded
	s.cum = 0
}
