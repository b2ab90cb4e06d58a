package h1

import (
	"fmt"
	"io"
	"net/http/httputil"
	"strconv"
	"strings"

	"github.com/nazgrel/wyrdgate/xbody"
	"github.com/nazgrel/wyrdgate/xerrors"
)

// requestBody builds the request Body variant (length, chunked, upgrade, or
// none) from the parsed head and the connection's shared
// bufio.Reader. r must be the same reader future request heads are parsed
// from, so a chunked body's trailing CRLF (and any trailing headers) are
// consumed from the exact stream position the next request line starts at
// -- this is why httputil.NewChunkedReader is always called with the
// connection's persistent *bufio.Reader rather than a fresh wrapper (a
// fresh bufio.Reader would read ahead into the next pipelined request and
// never give those bytes back).
func requestBody(head *RequestHead, r io.Reader, w io.Writer) (xbody.Body, bool, error) {
	if strings.EqualFold(head.Method, "CONNECT") {
		return xbody.None, false, nil
	}

	te := head.Header.Get("Transfer-Encoding")
	if wantsUpgrade(head) {
		return xbody.NewUpgrade(rwPair{Reader: r, Writer: w}), true, nil
	}
	if strings.EqualFold(te, "chunked") {
		cr := httputil.NewChunkedReader(r)
		return xbody.NewStream(cr), false, nil
	}

	cl := head.Header.Get("Content-Length")
	if cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return nil, false, xerrors.New(xerrors.Protocol, fmt.Errorf("h1: malformed Content-Length %q", cl))
		}
		if n == 0 {
			return xbody.None, false, nil
		}
		return xbody.NewSized(io.LimitReader(r, n), n), false, nil
	}

	// HTTP/1.0 (or 1.1 with neither header): no framed length. A request
	// body with no Content-Length and no chunked encoding is empty per
	// RFC 7230 §3.3.3. This engine has no read-until-EOF body kind for
	// either direction.
	return xbody.None, false, nil
}

// rwPair pairs the connection's persistent *bufio.Reader (so any bytes
// already buffered past the request head, e.g. a pipelined first frame,
// aren't lost) with the raw net.Conn for writes, once an upgrade handler
// takes over framing for itself.
type rwPair struct {
	io.Reader
	io.Writer
}

func wantsUpgrade(head *RequestHead) bool {
	return hasToken(head.Header.Get("Connection"), "upgrade") && head.Header.Get("Upgrade") != ""
}

func hasToken(v, token string) bool {
	if v == "" {
		return false
	}
	for _, part := range strings.Split(v, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// responseBodyWriter mirrors requestBody but for the encode direction: a
// Content-Length, chunked, or absent body, chosen from the Response's Body
// Kind. It returns a WriteCloser; for chunked bodies Close writes the
// zero-length last chunk (no trailers, and not the CRLF that ends the
// trailer section, which encodeResponse writes), otherwise it is a no-op.
func newResponseBodyWriter(kind xbody.Kind, w io.Writer) io.WriteCloser {
	if kind == xbody.KindStream {
		return httputil.NewChunkedWriter(w)
	}
	return nopWriteCloser{w}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
