// Package h2 implements the HTTP/2 connection engine from spec §4.4: the
// preface/SETTINGS handshake, HPACK header compression, per-stream
// concurrent dispatch, and RFC 7540 flow control.
//
// Grounded on baranov1ch-http2/server.go (an early, single-file Go HTTP/2
// server retrieved into this pack) for the overall shape of a
// serverConn -- one read loop demultiplexing frames to per-stream state,
// a flow controller guarding send windows, a single point of writer
// serialization because the HPACK encoder's dynamic table is connection-
// global state. Where that file hand-rolls its own Framer and hpack
// package (predating both living in the standard toolchain's extended
// library), this version uses golang.org/x/net/http2's Framer and
// golang.org/x/net/http2/hpack directly -- the actual current upstream
// descendant of that same code, already present in the retrieval pack's
// transitive dependency graph, so there is no reason to reimplement frame
// parsing by hand (see DESIGN.md).
package h2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
	"golang.org/x/sync/semaphore"

	"github.com/nazgrel/wyrdgate/message"
	"github.com/nazgrel/wyrdgate/service"
	"go.uber.org/zap"
)

// App is the application-facing service boundary, mirroring h1.App. H1 and
// H2 each declare their own alias rather than sharing one from a common
// package, since the two engines are otherwise independent and neither
// should import the other.
type App = service.Service[*message.Request, *message.Response]

// Config is the subset of the module's configuration surface the H2 engine
// consults directly.
type Config struct {
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	ConnectionWindowSize uint32
	FirstRequestTimeout  time.Duration
}

// Conn drives one HTTP/2 connection: handshake, frame read loop, and
// per-stream goroutines that each produce one response. A fresh Conn is
// created per accepted connection (unlike h1.Dispatcher, which is shared
// across connections) because it owns per-connection HPACK codec state.
type Conn struct {
	conn   net.Conn
	framer *http2.Framer
	app    App
	cfg    Config
	log    *zap.Logger

	enc   *hpack.Encoder
	encBuf bytes.Buffer

	writeMu sync.Mutex
	flow    *windowController

	mu      sync.Mutex
	streams map[uint32]*stream

	// sem bounds concurrently active streams to MaxConcurrentStreams.
	// openStream does a non-blocking TryAcquire (refusing the stream with
	// RST_STREAM(REFUSED_STREAM) when saturated, per spec §4.4) rather
	// than queuing, since SETTINGS_MAX_CONCURRENT_STREAMS is an admission
	// bound, not a scheduling one.
	sem *semaphore.Weighted
}

// New builds a Conn ready to Serve one accepted net.Conn.
func New(app App, cfg Config, log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}
	limit := int64(cfg.MaxConcurrentStreams)
	if limit == 0 {
		limit = 128
	}
	c := &Conn{app: app, cfg: cfg, log: log, streams: make(map[uint32]*stream), sem: semaphore.NewWeighted(limit)}
	c.enc = hpack.NewEncoder(&c.encBuf)
	return c
}

// Serve runs the connection preface and SETTINGS handshake, then the frame
// read loop, until the peer sends GOAWAY, a connection error forces
// closure, or the underlying socket fails. It always closes conn before
// returning.
func (c *Conn) Serve(ctx context.Context, conn net.Conn) error {
	c.conn = conn
	defer conn.Close()

	if c.cfg.FirstRequestTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.FirstRequestTimeout))
	}

	preface := make([]byte, len(http2.ClientPreface))
	if _, err := io.ReadFull(conn, preface); err != nil {
		return nil
	}
	if string(preface) != http2.ClientPreface {
		return fmt.Errorf("h2: bad client preface")
	}

	c.framer = http2.NewFramer(conn, conn)
	c.framer.ReadMetaHeaders = hpack.NewDecoder(4096, nil)
	c.framer.MaxHeaderListSize = 0 // 0 selects the Framer's built-in default (16 MiB)

	connInitial := c.cfg.ConnectionWindowSize
	if connInitial == 0 {
		connInitial = 1 << 20
	}
	c.flow = newWindowController(connInitial)

	if err := c.writeSettings(); err != nil {
		return nil
	}

	first := true
	for {
		frame, err := c.framer.ReadFrame()
		if err != nil {
			var se http2.StreamError
			if errors.As(err, &se) {
				// A stream error resets that stream only; the connection
				// stays open.
				c.writeRSTStream(se.StreamID, se.Code)
				continue
			}
			return c.handleReadError(err)
		}
		if first {
			first = false
			_ = conn.SetReadDeadline(time.Time{})
			if _, ok := frame.(*http2.SettingsFrame); !ok {
				c.goAway(http2.ErrCodeProtocol)
				return fmt.Errorf("h2: first frame was not SETTINGS")
			}
		}

		switch f := frame.(type) {
		case *http2.SettingsFrame:
			c.handleSettings(f)
		case *http2.MetaHeadersFrame:
			c.openStream(ctx, f)
		case *http2.DataFrame:
			c.handleData(f)
		case *http2.WindowUpdateFrame:
			c.handleWindowUpdate(f)
		case *http2.RSTStreamFrame:
			c.closeStream(f.StreamID)
		case *http2.PingFrame:
			c.handlePing(f)
		case *http2.GoAwayFrame:
			return nil
		case *http2.PriorityFrame:
			// Priority is advisory; this engine serves streams with equal
			// weight and ignores it, per spec §4.4's non-goal on priority
			// scheduling.
		default:
			// Unknown/extension frames are ignored per RFC 7540 §4.1.
		}
	}
}

func (c *Conn) handleReadError(err error) error {
	var ce http2.ConnectionError
	if errors.As(err, &ce) {
		c.goAway(http2.ErrCode(ce))
		return err
	}
	var se http2.StreamError
	if errors.As(err, &se) {
		c.writeRSTStream(se.StreamID, se.Code)
		return nil
	}
	// EOF / reset / closed: an ordinary connection termination.
	return nil
}

func (c *Conn) writeSettings() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	maxStreams := c.cfg.MaxConcurrentStreams
	if maxStreams == 0 {
		maxStreams = 128
	}
	initWin := c.cfg.InitialWindowSize
	if initWin == 0 {
		initWin = 65535
	}
	return c.framer.WriteSettings(
		http2.Setting{ID: http2.SettingMaxConcurrentStreams, Val: maxStreams},
		http2.Setting{ID: http2.SettingInitialWindowSize, Val: initWin},
	)
}

func (c *Conn) handleSettings(f *http2.SettingsFrame) {
	if f.IsAck() {
		return
	}
	c.writeMu.Lock()
	_ = c.framer.WriteSettingsAck()
	c.writeMu.Unlock()
}

func (c *Conn) handleWindowUpdate(f *http2.WindowUpdateFrame) {
	if f.StreamID == 0 {
		c.flow.updateConn(f.Increment)
		return
	}
	c.flow.updateStream(f.StreamID, f.Increment)
}

func (c *Conn) handlePing(f *http2.PingFrame) {
	if f.IsAck() {
		return
	}
	c.writeMu.Lock()
	_ = c.framer.WritePing(true, f.Data)
	c.writeMu.Unlock()
}

func (c *Conn) goAway(code http2.ErrCode) {
	c.writeMu.Lock()
	_ = c.framer.WriteGoAway(c.lastStreamID(), code, nil)
	c.writeMu.Unlock()
}

func (c *Conn) lastStreamID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var max uint32
	for id := range c.streams {
		if id > max {
			max = id
		}
	}
	return max
}

func (c *Conn) writeRSTStream(id uint32, code http2.ErrCode) {
	c.writeMu.Lock()
	_ = c.framer.WriteRSTStream(id, code)
	c.writeMu.Unlock()
	c.closeStream(id)
}
