package h2

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/nazgrel/wyrdgate/message"
	"github.com/nazgrel/wyrdgate/service"
	"github.com/nazgrel/wyrdgate/xbody"
	"go.uber.org/zap"
)

func testConfig() Config {
	return Config{
		MaxConcurrentStreams: 16,
		InitialWindowSize:    65535,
		ConnectionWindowSize: 1 << 20,
		FirstRequestTimeout:  2 * time.Second,
	}
}

// TestSimpleRequestResponse drives one GET over a hand-rolled HTTP/2
// client using golang.org/x/net/http2's own Framer/hpack, exercising the
// preface/SETTINGS handshake and a single stream's HEADERS->HEADERS+DATA
// round trip.
func TestSimpleRequestResponse(t *testing.T) {
	// A loopback TCP connection rather than net.Pipe: the server writes its
	// SETTINGS and SETTINGS ACK from its read loop, which would block on an
	// unbuffered pipe while this client is itself blocked writing.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server, err := ln.Accept()
	require.NoError(t, err)

	app := service.Func[*message.Request, *message.Response](func(ctx context.Context, req *message.Request) (*message.Response, error) {
		resp := message.NewResponse(http.StatusOK)
		resp.WithBody(xbody.NewSized(bytes.NewReader([]byte("hi")), 2))
		return resp, nil
	})
	c := New(app, testConfig(), zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- c.Serve(context.Background(), server) }()

	_, _ = client.Write([]byte(http2.ClientPreface))

	cf := http2.NewFramer(client, client)
	cf.ReadMetaHeaders = hpack.NewDecoder(4096, nil)

	require.NoError(t, cf.WriteSettings())

	var buf bytes.Buffer
	enc := hpack.NewEncoder(&buf)
	_ = enc.WriteField(hpack.HeaderField{Name: ":method", Value: "GET"})
	_ = enc.WriteField(hpack.HeaderField{Name: ":path", Value: "/"})
	require.NoError(t, cf.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      1,
		BlockFragment: buf.Bytes(),
		EndStream:     true,
		EndHeaders:    true,
	}))

	var status string
	var body []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_ = client.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		frame, err := cf.ReadFrame()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			break
		}
		switch f := frame.(type) {
		case *http2.SettingsFrame:
			if !f.IsAck() {
				_ = cf.WriteSettingsAck()
			}
		case *http2.MetaHeadersFrame:
			status = f.PseudoValue(":status")
		case *http2.DataFrame:
			body = append(body, f.Data()...)
			if f.StreamEnded() {
				goto done_reading
			}
		case *http2.WindowUpdateFrame:
		}
	}
done_reading:

	assert.Equal(t, "200", status)
	assert.Equal(t, "hi", string(body))

	_ = client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server Serve did not return after client close")
	}
}
