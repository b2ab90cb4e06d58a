package h1

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazgrel/wyrdgate/message"
	"github.com/nazgrel/wyrdgate/service"
	"github.com/nazgrel/wyrdgate/xbody"
	"go.uber.org/zap"
)

func testConfig() Config {
	return Config{
		KeepAliveTimeout:      2 * time.Second,
		RequestHeadTimeout:    2 * time.Second,
		HeadLimit:             1 << 16,
		ReadBufLimit:          1 << 16,
		WriteBufLimit:         64,
		HeaderLimit:           64,
		RequestBodyDrainLimit: 1 << 16,
	}
}

func echoApp() App {
	return service.Func[*message.Request, *message.Response](func(ctx context.Context, req *message.Request) (*message.Response, error) {
		resp := message.NewResponse(http.StatusOK)
		resp.Header.Set("X-Method", req.Method)
		resp.WithBody(xbody.NewSized(strings.NewReader("ok"), 2))
		return resp, nil
	})
}

// TestSimpleGetKeepAlive covers spec §8 scenario 1: two requests sent one
// after the other over the same connection both get served and the
// connection is left open after each, closing only once the client hangs
// up.
func TestSimpleGetKeepAlive(t *testing.T) {
	client, server := net.Pipe()
	d := New(echoApp(), testConfig(), nil, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- d.Serve(context.Background(), server) }()

	go func() {
		_, _ = client.Write([]byte("GET /one HTTP/1.1\r\nHost: x\r\n\r\n"))
	}()

	cr := bufio.NewReader(client)
	resp, err := http.ReadResponse(cr, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "GET", resp.Header.Get("X-Method"))
	_ = resp.Body.Close()

	go func() {
		_, _ = client.Write([]byte("GET /two HTTP/1.1\r\nHost: x\r\n\r\n"))
	}()
	resp2, err := http.ReadResponse(cr, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, resp2.StatusCode)
	_ = resp2.Body.Close()

	_ = client.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after client close")
	}
}

// TestHeadTooLarge covers spec §8 scenario 2: a request line plus headers
// exceeding HeadLimit gets 431 and the connection closes.
func TestHeadTooLarge(t *testing.T) {
	client, server := net.Pipe()
	cfg := testConfig()
	cfg.HeadLimit = 64
	d := New(echoApp(), cfg, nil, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- d.Serve(context.Background(), server) }()

	big := strings.Repeat("a", 1024)
	go func() {
		_, _ = client.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\nX-Big: " + big + "\r\n\r\n"))
	}()

	cr := bufio.NewReader(client)
	resp, err := http.ReadResponse(cr, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusRequestHeaderFieldsTooLarge, resp.StatusCode)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after 431")
	}
}

// TestUpgradeCedesConnection covers spec §3's Upgrade connection state: the
// dispatcher writes the application's own 101 response verbatim (no forced
// Connection: close), Serve returns without closing the socket, and the
// request Body handed to the application exposes genuine write access so an
// upgrade handler can keep talking on the same connection afterward.
func TestUpgradeCedesConnection(t *testing.T) {
	client, server := net.Pipe()
	var gotBody xbody.Body
	app := service.Func[*message.Request, *message.Response](func(ctx context.Context, req *message.Request) (*message.Response, error) {
		gotBody = req.Body
		resp := message.NewResponse(http.StatusSwitchingProtocols)
		resp.Header.Set("Connection", "Upgrade")
		resp.Header.Set("Upgrade", "websocket")
		return resp, nil
	})
	d := New(app, testConfig(), nil, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- d.Serve(context.Background(), server) }()

	go func() {
		_, _ = client.Write([]byte("GET /ws HTTP/1.1\r\nHost: x\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n\r\n"))
	}()

	cr := bufio.NewReader(client)
	resp, err := http.ReadResponse(cr, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	assert.Equal(t, []string{"Upgrade"}, resp.Header["Connection"])

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after upgrade")
	}

	require.NotNil(t, gotBody)
	assert.Equal(t, xbody.KindUpgrade, gotBody.Kind())
	w, ok := gotBody.(io.Writer)
	require.True(t, ok, "upgrade body must expose write access")

	written := make(chan struct{})
	go func() {
		_, _ = w.Write([]byte("hello"))
		close(written)
	}()
	buf := make([]byte, 5)
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
	<-written

	_ = client.Close()
}

// TestExpectContinueReject covers spec §4.3's Expect admission hook:
// rejecting returns 417 directly and never invokes the application
// service.
func TestExpectContinueReject(t *testing.T) {
	client, server := net.Pipe()
	called := false
	app := service.Func[*message.Request, *message.Response](func(ctx context.Context, req *message.Request) (*message.Response, error) {
		called = true
		return message.NewResponse(http.StatusOK), nil
	})
	d := New(app, testConfig(), nil, zap.NewNop())
	d.Expect = func(ctx context.Context, req *message.Request) (bool, *message.Response, error) {
		return false, nil, nil
	}

	done := make(chan error, 1)
	go func() { done <- d.Serve(context.Background(), server) }()

	go func() {
		_, _ = client.Write([]byte("PUT /upload HTTP/1.1\r\nHost: x\r\nExpect: 100-continue\r\nContent-Length: 4\r\n\r\n"))
	}()

	cr := bufio.NewReader(client)
	resp, err := http.ReadResponse(cr, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusExpectationFailed, resp.StatusCode)
	assert.False(t, called)

	_ = client.Close()
	<-done
}

// TestKeepAliveTimeout covers spec §8 scenario 4: an idle connection past
// keep_alive_timeout is closed with no error and no partial request.
func TestKeepAliveTimeout(t *testing.T) {
	client, server := net.Pipe()
	cfg := testConfig()
	cfg.KeepAliveTimeout = 50 * time.Millisecond
	d := New(echoApp(), cfg, nil, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- d.Serve(context.Background(), server) }()

	go func() {
		_, _ = client.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	}()
	cr := bufio.NewReader(client)
	resp, err := http.ReadResponse(cr, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not time out the idle connection")
	}
}
