// Package accept implements the connection-acceptance front door from spec
// §4.4/§5: TLS termination (or cleartext prior-knowledge detection),
// ALPN-or-preface version routing to the H1 or H2 engine, and an optional
// accept-rate limiter.
package accept

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/nazgrel/wyrdgate/h1"
	"github.com/nazgrel/wyrdgate/h2"
)

// Config is the acceptor's own slice of the module's configuration
// surface: TLS handshake and first-request timeouts, plus an optional
// accept-rate limit (grounded on golang.org/x/time/rate, already part of
// the retrieval pack's dependency graph).
type Config struct {
	TLSAcceptTimeout    time.Duration
	FirstRequestTimeout time.Duration
	AcceptRatePerSecond float64
	AcceptBurst         int
}

// H2Factory builds a fresh *h2.Conn for one connection; h2.Conn owns
// per-connection HPACK codec state so, unlike h1.Dispatcher, it cannot be
// shared across connections the way one Dispatcher value is.
type H2Factory func() *h2.Conn

// Acceptor is the TLS/ALPN (or cleartext-preface) version-routing front
// door: it owns the listener loop, runs the TLS handshake when TLSConfig
// is set, decides HTTP/1 vs HTTP/2 per connection, and hands the
// connection to the matching engine.
type Acceptor struct {
	TLSConfig *tls.Config
	H1        *h1.Dispatcher
	NewH2     H2Factory
	Config    Config
	Log       *zap.Logger

	limiter *rate.Limiter

	// active tracks accepted-and-not-yet-closed connections, exposed via
	// ActiveConns for callers wiring it into a metrics exporter. wg and
	// conns back Shutdown's drain: wg for "wait until idle", conns for
	// "force-close whatever's left once the grace period expires".
	active  atomic.Int64
	wg      sync.WaitGroup
	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

// New builds an Acceptor. TLSConfig may be nil for a plaintext listener;
// cleartext HTTP/2 is still detected via RFC 7540 §3.4 prior knowledge
// (the connection preface, with no ALPN negotiation available).
func New(tlsConfig *tls.Config, h1disp *h1.Dispatcher, newH2 H2Factory, cfg Config, log *zap.Logger) *Acceptor {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Acceptor{TLSConfig: tlsConfig, H1: h1disp, NewH2: newH2, Config: cfg, Log: log, conns: make(map[net.Conn]struct{})}
	if cfg.AcceptRatePerSecond > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRatePerSecond), cfg.AcceptBurst)
	}
	return a
}

// ActiveConns reports the number of connections currently accepted and not
// yet closed, for wiring into a metrics exporter.
func (a *Acceptor) ActiveConns() int64 {
	return a.active.Load()
}

// Shutdown waits for every in-flight connection to finish on its own
// (typically because its engine observed ctx cancellation and returned), and
// force-closes whatever is still open once ctx's deadline passes. Close
// errors collected during the force-close phase are aggregated with
// hashicorp/go-multierror rather than reporting only the first one, since a
// caller tearing down a whole listener wants to see all of them.
func (a *Acceptor) Shutdown(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
	}

	var result *multierror.Error
	a.connsMu.Lock()
	for c := range a.conns {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.connsMu.Unlock()

	<-idle
	return result.ErrorOrNil()
}

// Serve runs the accept loop until ln.Accept fails -- typically because the
// listener was closed as part of shutdown -- or ctx is already done by the
// time that happens.
func (a *Acceptor) Serve(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}
		go a.handle(ctx, conn)
	}
}

func (a *Acceptor) handle(ctx context.Context, conn net.Conn) {
	if a.limiter != nil && !a.limiter.Allow() {
		_ = conn.Close()
		return
	}

	a.wg.Add(1)
	a.active.Inc()
	a.connsMu.Lock()
	a.conns[conn] = struct{}{}
	a.connsMu.Unlock()
	defer func() {
		a.connsMu.Lock()
		delete(a.conns, conn)
		a.connsMu.Unlock()
		a.active.Dec()
		a.wg.Done()
	}()

	if a.TLSConfig != nil {
		a.handleTLS(ctx, conn)
		return
	}
	a.handlePlaintext(ctx, conn)
}

func (a *Acceptor) handleTLS(ctx context.Context, conn net.Conn) {
	tlsConn := tls.Server(conn, a.TLSConfig)
	if a.Config.TLSAcceptTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(a.Config.TLSAcceptTimeout))
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		a.Log.Debug("tls handshake failed", zap.Error(err))
		_ = tlsConn.Close()
		return
	}
	_ = conn.SetDeadline(time.Time{})

	switch tlsConn.ConnectionState().NegotiatedProtocol {
	case "h2":
		a.serveH2(ctx, tlsConn)
	default:
		a.serveH1(ctx, tlsConn)
	}
}

// handlePlaintext implements RFC 7540 §3.4's "prior knowledge" cleartext
// upgrade: read exactly len(ClientPreface) bytes and compare; whichever
// engine is chosen sees those bytes again first via io.MultiReader, the
// same stitching technique this pack's h2c example
// (httpserver.h2cHandler, other_examples) uses so a protocol-detection
// peek never silently consumes bytes the chosen engine still needs to
// parse.
func (a *Acceptor) handlePlaintext(ctx context.Context, conn net.Conn) {
	if a.Config.FirstRequestTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(a.Config.FirstRequestTimeout))
	}
	peek := make([]byte, len(http2.ClientPreface))
	n, err := io.ReadFull(conn, peek)
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		_ = conn.Close()
		return
	}

	stitched := &stitchedConn{Conn: conn, r: io.MultiReader(bytes.NewReader(peek[:n]), conn)}
	if string(peek[:n]) == http2.ClientPreface {
		a.serveH2(ctx, stitched)
		return
	}
	a.serveH1(ctx, stitched)
}

func (a *Acceptor) serveH1(ctx context.Context, conn net.Conn) {
	if a.H1 == nil {
		_ = conn.Close()
		return
	}
	if err := a.H1.Serve(ctx, conn); err != nil {
		a.Log.Debug("h1 connection ended", zap.Error(err))
	}
}

func (a *Acceptor) serveH2(ctx context.Context, conn net.Conn) {
	if a.NewH2 == nil {
		_ = conn.Close()
		return
	}
	c := a.NewH2()
	if err := c.Serve(ctx, conn); err != nil {
		a.Log.Debug("h2 connection ended", zap.Error(err))
	}
}

// stitchedConn replays peeked bytes in front of the live connection stream
// so a connection-preface check doesn't silently eat protocol bytes the
// chosen engine needs to see again.
type stitchedConn struct {
	net.Conn
	r io.Reader
}

func (s *stitchedConn) Read(p []byte) (int, error) { return s.r.Read(p) }
