package h1

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nazgrel/wyrdgate/iobuf"
	"github.com/nazgrel/wyrdgate/message"
	"github.com/nazgrel/wyrdgate/service"
	"github.com/nazgrel/wyrdgate/xbody"
	"github.com/nazgrel/wyrdgate/xdate"
	"github.com/nazgrel/wyrdgate/xerrors"
	"go.uber.org/zap"
)

// App is the application-facing service boundary the dispatcher drives:
// one Request in, one Response out, per exchange.
type App = service.Service[*message.Request, *message.Response]

// Config is the subset of the module's configuration surface the H1
// dispatcher consults directly. It is kept local to this package (rather
// than importing xconfig.Config) so the protocol engines never depend on
// the configuration-loading layer above them; callers translate an
// xconfig.Config into this shape once at startup.
type Config struct {
	KeepAliveTimeout      time.Duration
	RequestHeadTimeout    time.Duration
	HTTP1Pipeline         bool
	HeadLimit             int
	ReadBufLimit          int
	WriteBufLimit         int
	HeaderLimit           int
	RequestBodyDrainLimit int64
}

// Dispatcher drives spec §4.3's ReadHead -> Dispatch -> Respond -> Finish
// -> Close state machine for one connection. A single Dispatcher value is
// shared across every connection a worker accepts; it holds no per-
// connection state of its own (that lives in Serve's local variables).
type Dispatcher struct {
	App    App
	Expect ExpectFunc
	Config Config
	Date   *xdate.Cache
	Log    *zap.Logger
}

// New builds a Dispatcher with DefaultExpect; callers that need an
// admission policy should set the returned value's Expect field afterward.
func New(app App, cfg Config, date *xdate.Cache, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{App: app, Expect: DefaultExpect, Config: cfg, Date: date, Log: log}
}

type connPolicy int

const (
	policyKeepAlive connPolicy = iota
	policyClose
	// policyUpgrade marks a successful Connection: Upgrade exchange (spec
	// §3's three-way H1 connection-state enum): the dispatcher writes the
	// application's response as-is, then cedes the connection -- no forced
	// Connection: close header, no socket teardown.
	policyUpgrade
)

type writeJob struct {
	head   *RequestHead
	resp   *message.Response
	policy connPolicy
	done   chan error
}

// Serve runs the dispatcher loop for one accepted connection until the
// peer disconnects, a protocol or I/O error forces closure, or the
// connection is ceded to an Upgrade body. It closes conn before returning
// unless the connection was ceded, and the returned error is nil for every ordinary termination
// (peer close, keep-alive timeout, Connection: close) per spec §4.1's "I/O
// error is a success termination, never logged as failure" rule.
func (d *Dispatcher) Serve(ctx context.Context, conn net.Conn) error {
	src := newSource(conn, d.Config.HeadLimit)
	br := bufio.NewReaderSize(src, 4096)

	var wbuf iobuf.WriteBuffer
	if d.Config.WriteBufLimit > 0 {
		wbuf = iobuf.NewListWriteBuffer(d.Config.WriteBufLimit)
	} else {
		wbuf = iobuf.NewFlatWriteBuffer()
	}

	ka := NewKeepAlive(d.Config.KeepAliveTimeout)

	writeCh := make(chan *writeJob, 1)
	writerDone := make(chan struct{})
	go d.writerLoop(conn, wbuf, writeCh, writerDone)
	writerClosed := false
	closeWriter := func() {
		if writerClosed {
			return
		}
		writerClosed = true
		close(writeCh)
		<-writerDone
	}
	// ceded marks that a Connection: Upgrade exchange handed conn to the
	// application; the dispatcher must not shut it down or close it out
	// from under the upgrade handler.
	var ceded bool
	defer func() {
		closeWriter()
		if ceded {
			return
		}
		_ = iobuf.Shutdown(conn)
		_ = conn.Close()
	}()

	var pending *writeJob
	waitPending := func() error {
		if pending == nil {
			return nil
		}
		err := <-pending.done
		pending = nil
		return err
	}

	firstRequest := true
	for {
		if firstRequest {
			if d.Config.RequestHeadTimeout > 0 {
				_ = conn.SetReadDeadline(time.Now().Add(d.Config.RequestHeadTimeout))
			}
		} else {
			_ = conn.SetReadDeadline(ka.Deadline())
		}
		src.setLimit(d.Config.HeadLimit, true)

		head, err := ParseRequestHead(br, HeadLimits{HeaderLimit: d.Config.HeaderLimit})
		if err != nil {
			werr := waitPending()
			closeWriter()
			if werr != nil {
				return werr
			}
			return d.abortHead(err, conn, wbuf)
		}
		firstRequest = false
		ka.Touch()
		_ = conn.SetReadDeadline(time.Time{})
		src.setLimit(d.Config.ReadBufLimit, false)

		major, minor := head.Major, head.Minor
		body, _, berr := requestBody(head, br, conn)
		if berr != nil {
			if werr := waitPending(); werr != nil {
				closeWriter()
				return werr
			}
			closeWriter()
			d.writeFinal(conn, wbuf, major, minor, 400, "Bad Request")
			return berr
		}

		version := message.HTTP11
		if major == 1 && minor == 0 {
			version = message.HTTP10
		}
		req := &message.Request{
			Method:     head.Method,
			URI:        head.URI,
			Version:    version,
			Header:     head.Header,
			RemoteAddr: conn.RemoteAddr(),
			Body:       body,
		}
		req.Extensions.Set(message.RequestID(uuid.NewString()))

		resp, servedByExpect, rerr := d.runExpect(ctx, req, conn, wbuf, waitPending, major, minor)
		if rerr != nil {
			closeWriter()
			return rerr
		}
		if !servedByExpect {
			var callErr error
			resp, callErr = d.App.Call(ctx, req)
			if callErr != nil {
				resp = d.errorResponse(req, callErr)
			}
		}
		if resp == nil {
			resp = message.NewResponse(http.StatusNoContent)
		}

		streaming := resp.Body != nil && resp.Body.Kind() == xbody.KindStream
		// A request answered by the Expect hook never got "100 Continue", so
		// its body is not read; the connection closes instead of draining it.
		drained := servedByExpect || d.drainRequestBody(req.Body, d.Config.RequestBodyDrainLimit)
		policy := decideConnPolicy(head, req, resp, drained)

		job := &writeJob{head: head, resp: resp, policy: policy, done: make(chan error, 1)}
		canOverlap := d.Config.HTTP1Pipeline && !streaming && policy == policyKeepAlive

		if werr := waitPending(); werr != nil {
			closeWriter()
			return werr
		}
		writeCh <- job
		if canOverlap {
			pending = job
		} else if werr := <-job.done; werr != nil {
			closeWriter()
			return werr
		}

		if policy == policyUpgrade {
			if werr := waitPending(); werr != nil {
				closeWriter()
				return werr
			}
			closeWriter()
			ceded = true
			return nil
		}
		if policy == policyClose {
			if werr := waitPending(); werr != nil {
				closeWriter()
				return werr
			}
			closeWriter()
			return nil
		}
	}
}

// abortHead classifies a ReadHead failure per spec §4.3: a bounded-buffer
// overflow gets 431, malformed input gets 400, and a timeout or peer close
// is a silent, non-error termination -- no partial request was ever read,
// so there is nothing to answer.
func (d *Dispatcher) abortHead(err error, conn net.Conn, wbuf iobuf.WriteBuffer) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return nil
	}
	if errors.Is(err, iobuf.ErrBackpressure) {
		d.writeFinal(conn, wbuf, 1, 1, http.StatusRequestHeaderFieldsTooLarge, "Request Header Fields Too Large")
		return err
	}
	if _, ok := xerrors.As(err, xerrors.Protocol); ok {
		d.writeFinal(conn, wbuf, 1, 1, http.StatusBadRequest, "Bad Request")
		return err
	}
	// Any other read failure (reset, broken pipe) is an I/O-kind
	// termination: never logged as a failure, per spec §4.1.
	return nil
}

// runExpect handles the Expect: 100-continue admission hook. When accepted
// it writes the interim "100 Continue" synchronously (waiting out any
// still-in-flight pipelined write first, since interim responses are never
// themselves overlapped) and returns servedByExpect=false so the caller
// proceeds to the application service; when rejected it returns the
// rejection response directly and the application service is never
// invoked.
func (d *Dispatcher) runExpect(ctx context.Context, req *message.Request, conn net.Conn, wbuf iobuf.WriteBuffer, waitPending func() error, major, minor int) (resp *message.Response, servedByExpect bool, err error) {
	if !req.ExpectsContinue() {
		return nil, false, nil
	}
	accept, reject, eerr := d.Expect(ctx, req)
	if eerr != nil {
		return d.errorResponse(req, eerr), true, nil
	}
	if !accept {
		if reject == nil {
			reject = message.NewResponse(http.StatusExpectationFailed)
		}
		return reject, true, nil
	}
	if werr := waitPending(); werr != nil {
		return nil, false, werr
	}
	if werr := d.writeContinue(conn, wbuf, major, minor); werr != nil {
		return nil, false, werr
	}
	return nil, false, nil
}

// errorResponse projects an application Service error to a Response,
// honoring xerrors.ResponseError when the error type implements it, and
// otherwise defaulting to 500 (spec §7: ServiceErr). The unhandled-error log
// line carries the request's correlation id so it can be tied back to
// whatever the client or an upstream log aggregator recorded for the same
// exchange.
func (d *Dispatcher) errorResponse(req *message.Request, err error) *message.Response {
	if re, ok := err.(xerrors.ResponseError[*message.Response]); ok {
		return re.ResponseError()
	}
	id, _ := message.ExtGet[message.RequestID](&req.Extensions)
	d.Log.Error("unhandled service error", zap.String("request_id", string(id)), zap.Error(err))
	r := message.NewResponse(http.StatusInternalServerError)
	r.Header.Set("Content-Length", "0")
	return r
}

// drainRequestBody consumes up to limit+1 bytes of an unconsumed request
// body after the application service has already produced its response
// (spec §9's open question on a bounded drain bound, resolved to
// Config.RequestBodyDrainLimit; see DESIGN.md). It reports whether the
// body could not be fully drained within the bound, or errored while
// draining, either of which forces the connection closed rather than risk
// desynchronizing the next pipelined request from stale body bytes.
func (d *Dispatcher) drainRequestBody(body xbody.Body, limit int64) bool {
	if body == nil {
		return false
	}
	switch body.Kind() {
	case xbody.KindNone, xbody.KindUpgrade:
		return false
	}
	n, err := io.CopyN(io.Discard, body, limit+1)
	if err != nil && !errors.Is(err, io.EOF) {
		return true
	}
	return n > limit
}

// decideConnPolicy folds spec §4.3's connection-policy rules into one
// decision. A request that asked to upgrade takes the connection out of
// the Close/KeepAlive choice entirely -- the engine already stopped
// framing it (h1/body.go's requestBody), so there is nothing left to
// decide but to cede it. Otherwise: an explicit Connection: close from
// either side, an HTTP/1.0 peer that didn't ask for keep-alive, or a
// caller-forced close (unconsumed body over the drain bound) all close;
// everything else keeps the connection alive for another pipelined
// exchange.
func decideConnPolicy(head *RequestHead, req *message.Request, resp *message.Response, forceClose bool) connPolicy {
	if req.WantsUpgrade() {
		return policyUpgrade
	}
	if forceClose {
		return policyClose
	}
	if req.WantsClose() {
		return policyClose
	}
	if hasToken(resp.Header.Get("Connection"), "close") {
		return policyClose
	}
	if head.Major == 1 && head.Minor == 0 && !hasToken(head.Header.Get("Connection"), "keep-alive") {
		return policyClose
	}
	return policyKeepAlive
}

func (d *Dispatcher) writerLoop(conn net.Conn, wb iobuf.WriteBuffer, ch <-chan *writeJob, done chan<- struct{}) {
	defer close(done)
	for job := range ch {
		err := d.encodeResponse(wb, job.head, job.resp, job.policy)
		if err == nil {
			err = wb.Drain(conn)
		}
		job.done <- err
	}
}

// encodeResponse serializes the status line, headers, and body into wb.
// Body framing mirrors requestBody's decode-side counterpart: a KindSized
// body gets Content-Length, a KindStream body gets Transfer-Encoding:
// chunked via httputil.NewChunkedWriter, and anything else gets an
// explicit Content-Length: 0 when the status allows a body at all.
func (d *Dispatcher) encodeResponse(wb iobuf.WriteBuffer, head *RequestHead, resp *message.Response, policy connPolicy) error {
	status := resp.Status
	text := http.StatusText(status)

	var hb bytes.Buffer
	bw := bufio.NewWriter(&hb)
	if err := WriteStatusLine(bw, head.Major, head.Minor, status, text); err != nil {
		return err
	}
	if d.Date != nil {
		fmt.Fprintf(bw, "Date: %s\r\n", d.Date.String())
	}
	for k, vs := range resp.Header {
		for _, v := range vs {
			fmt.Fprintf(bw, "%s: %s\r\n", k, v)
		}
	}

	bodyAllowed := message.BodyAllowed(status)
	bodyKind := xbody.KindNone
	if bodyAllowed && resp.Body != nil {
		bodyKind = resp.Body.Kind()
	}
	switch bodyKind {
	case xbody.KindSized:
		size, _ := resp.Body.Size()
		fmt.Fprintf(bw, "Content-Length: %d\r\n", size)
	case xbody.KindStream:
		bw.WriteString("Transfer-Encoding: chunked\r\n")
	default:
		if bodyAllowed {
			bw.WriteString("Content-Length: 0\r\n")
		}
	}
	if policy == policyClose {
		bw.WriteString("Connection: close\r\n")
	}
	bw.WriteString("\r\n")
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := wb.WriteBytes(hb.Bytes()); err != nil {
		return err
	}

	if bodyAllowed && bodyKind != xbody.KindNone {
		bodyWriter := newResponseBodyWriter(bodyKind, &writeBufferWriter{wb: wb})
		if _, err := io.Copy(bodyWriter, resp.Body); err != nil {
			return err
		}
		if err := bodyWriter.Close(); err != nil {
			return err
		}
		if bodyKind == xbody.KindStream {
			// The chunked writer's Close emits only the zero-length last
			// chunk; this CRLF ends the (empty) trailer section.
			if err := wb.WriteBytes([]byte("\r\n")); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeFinal writes a final, connection-closing status-line-only response
// (no application body) directly and synchronously -- used for errors that
// precede ever invoking the application service, so there is no pipelined
// write to interleave with.
func (d *Dispatcher) writeFinal(conn net.Conn, wb iobuf.WriteBuffer, major, minor, status int, text string) {
	var hb bytes.Buffer
	bw := bufio.NewWriter(&hb)
	_ = WriteStatusLine(bw, major, minor, status, text)
	bw.WriteString("Connection: close\r\nContent-Length: 0\r\n\r\n")
	_ = bw.Flush()
	_ = wb.WriteBytes(hb.Bytes())
	_ = wb.Drain(conn)
}

// writeContinue writes the interim "100 Continue" status line with no
// headers and no terminating Connection/Content-Length, per RFC 7231
// §6.2.1 (an interim response is not itself a complete message).
func (d *Dispatcher) writeContinue(conn net.Conn, wb iobuf.WriteBuffer, major, minor int) error {
	var hb bytes.Buffer
	bw := bufio.NewWriter(&hb)
	if err := WriteStatusLine(bw, major, minor, http.StatusContinue, "Continue"); err != nil {
		return err
	}
	bw.WriteString("\r\n")
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := wb.WriteBytes(hb.Bytes()); err != nil {
		return err
	}
	return wb.Drain(conn)
}

// writeBufferWriter adapts an iobuf.WriteBuffer to io.Writer so the stdlib
// chunked encoder (an io.Writer consumer) can write through it.
type writeBufferWriter struct{ wb iobuf.WriteBuffer }

func (w *writeBufferWriter) Write(p []byte) (int, error) {
	if err := w.wb.WriteBytes(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
