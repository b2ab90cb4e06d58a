package h2

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/nazgrel/wyrdgate/message"
	"github.com/nazgrel/wyrdgate/xbody"
	"github.com/nazgrel/wyrdgate/xerrors"
	"go.uber.org/zap"
)

// stream is the per-stream state the connection's frame loop consults
// while a request body is still arriving; once END_STREAM is seen (or the
// request had none to begin with) the connection loop's bookkeeping for it
// is limited to flow control and RST_STREAM/GOAWAY interruption, since
// decoding the body and calling the application runs on its own goroutine.
type stream struct {
	id     uint32
	bodyW  *io.PipeWriter
	closed bool
}

// openStream parses a MetaHeadersFrame into a Request and, if the
// concurrent-stream bound (spec §4.4, SETTINGS_MAX_CONCURRENT_STREAMS)
// isn't already saturated, spawns the goroutine that runs the application
// service and writes its response -- one goroutine per concurrently active
// stream, mirroring the one-goroutine-per-connection model h1 uses one
// level up.
func (c *Conn) openStream(ctx context.Context, f *http2.MetaHeadersFrame) {
	id := f.StreamID

	if !c.sem.TryAcquire(1) {
		c.writeRSTStream(id, http2.ErrCodeRefusedStream)
		return
	}

	req := &message.Request{
		Version: message.HTTP2,
		Header:  make(message.Header),
	}
	for _, hf := range f.RegularFields() {
		req.Header.Add(http.CanonicalHeaderKey(hf.Name), hf.Value)
	}
	req.Method = pseudoOr(f, ":method", "GET")
	req.URI = pseudoOr(f, ":path", "/")
	req.Extensions.Set(message.RequestID(uuid.NewString()))

	var body xbody.Body
	if f.StreamEnded() {
		body = xbody.None
	} else {
		pr, pw := io.Pipe()
		body = xbody.NewStream(pr)
		st := &stream{id: id, bodyW: pw}
		c.mu.Lock()
		c.streams[id] = st
		c.mu.Unlock()
	}
	req.Body = body

	initWin := c.cfg.InitialWindowSize
	if initWin == 0 {
		initWin = 65535
	}
	c.flow.streamOpened(id, initWin)

	go c.handleStream(ctx, id, req)
}

func pseudoOr(f *http2.MetaHeadersFrame, name, def string) string {
	for _, hf := range f.PseudoFields() {
		if hf.Name == name {
			return hf.Value
		}
	}
	return def
}

// handleData feeds an incoming DATA frame's payload to the stream's body
// pipe and replenishes both windows by the amount consumed, since this
// engine applies no additional read-side backpressure beyond what the
// application's own pace of Body.Read imposes on the pipe.
func (c *Conn) handleData(f *http2.DataFrame) {
	c.mu.Lock()
	st := c.streams[f.StreamID]
	c.mu.Unlock()

	data := f.Data()
	if st != nil && len(data) > 0 {
		_, _ = st.bodyW.Write(data)
	}
	if len(data) > 0 {
		c.writeMu.Lock()
		_ = c.framer.WriteWindowUpdate(0, uint32(len(data)))
		if st != nil {
			_ = c.framer.WriteWindowUpdate(f.StreamID, uint32(len(data)))
		}
		c.writeMu.Unlock()
	}
	if f.StreamEnded() && st != nil {
		_ = st.bodyW.Close()
		c.mu.Lock()
		delete(c.streams, f.StreamID)
		c.mu.Unlock()
	}
}

// closeStream abandons a stream's body pipe (an RST_STREAM arrived, or the
// engine itself is tearing one down) and wakes any flow-control wait for
// it so the response goroutine doesn't block forever on a half-aborted
// exchange.
func (c *Conn) closeStream(id uint32) {
	c.mu.Lock()
	st, ok := c.streams[id]
	delete(c.streams, id)
	c.mu.Unlock()
	if ok && !st.closed {
		st.closed = true
		_ = st.bodyW.CloseWithError(io.ErrClosedPipe)
	}
	c.flow.streamClosed(id)
}

// handleStream runs the application service for one stream and encodes its
// Response back onto the wire, then releases the stream's concurrency
// slot. Response headers are HPACK-encoded and frames are written under
// writeMu since both the encoder's dynamic table and the Framer's
// underlying writer are connection-global state shared by every
// concurrently responding stream, exactly the constraint baranov1ch-http2's
// single writeHeaderCh exists to serialize (see conn.go's package doc).
func (c *Conn) handleStream(ctx context.Context, id uint32, req *message.Request) {
	defer func() {
		c.sem.Release(1)
		c.flow.streamClosed(id)
	}()

	resp, err := c.app.Call(ctx, req)
	if err != nil {
		if re, ok := err.(xerrors.ResponseError[*message.Response]); ok {
			resp = re.ResponseError()
		} else {
			c.log.Error("h2: unhandled service error", zap.Error(err), zap.Uint32("stream", id))
			resp = message.NewResponse(http.StatusInternalServerError)
		}
	}
	if resp == nil {
		resp = message.NewResponse(http.StatusNoContent)
	}

	bodyAllowed := message.BodyAllowed(resp.Status)
	var bodyKind xbody.Kind
	if bodyAllowed && resp.Body != nil {
		bodyKind = resp.Body.Kind()
	}

	c.writeMu.Lock()
	c.encBuf.Reset()
	_ = c.enc.WriteField(hpack.HeaderField{Name: ":status", Value: strconv.Itoa(resp.Status)})
	for k, vs := range resp.Header {
		for _, v := range vs {
			_ = c.enc.WriteField(hpack.HeaderField{Name: http.CanonicalHeaderKey(k), Value: v})
		}
	}
	noBody := !bodyAllowed || bodyKind == xbody.KindNone
	headerErr := c.framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      id,
		BlockFragment: append([]byte(nil), c.encBuf.Bytes()...),
		EndStream:     noBody,
		EndHeaders:    true,
	})
	c.writeMu.Unlock()
	if headerErr != nil || noBody {
		return
	}

	c.writeBody(id, resp.Body)
}

// writeBody streams resp's body in flow-control-bounded DATA frames,
// acquiring send-window credit before each one; if the stream is RST or
// the connection's window controller reports it closed, the send is
// abandoned and no final empty DATA frame is sent (the RST already told
// the peer the stream is dead).
func (c *Conn) writeBody(id uint32, body xbody.Body) {
	const maxFrame = 16384
	buf := make([]byte, maxFrame)
	for {
		n, rerr := body.Read(buf)
		for n > 0 {
			granted, ok := c.flow.acquire(id, n)
			if !ok {
				return
			}
			c.writeMu.Lock()
			err := c.framer.WriteData(id, false, buf[:granted])
			c.writeMu.Unlock()
			if err != nil {
				return
			}
			copy(buf, buf[granted:n])
			n -= granted
		}
		if rerr != nil {
			if rerr != io.EOF {
				c.writeRSTStream(id, http2.ErrCodeInternal)
				return
			}
			break
		}
	}
	c.writeMu.Lock()
	_ = c.framer.WriteData(id, true, nil)
	c.writeMu.Unlock()
}
