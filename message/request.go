package message

import (
	"net"
	"net/http"
	"strings"

	"github.com/nazgrel/wyrdgate/xbody"
)

// Header is the wire header map. Its semantics (canonicalization, multi-
// value fields) are owed to net/http per spec §1 ("the HTTP semantic layer
// ... is owed to an external types library"); this module only owns the
// wire codec that reads and writes it (see package h1/h2), not the map type
// itself.
type Header = http.Header

// Version is the protocol version of a Request or Response.
type Version int

const (
	HTTP10 Version = iota
	HTTP11
	HTTP2
)

func (v Version) String() string {
	switch v {
	case HTTP10:
		return "HTTP/1.0"
	case HTTP11:
		return "HTTP/1.1"
	case HTTP2:
		return "HTTP/2.0"
	default:
		return "HTTP/?.?"
	}
}

// Request is the engine-facing request: method, URI, version, header map,
// a typed extension bag, the peer address, and a lazy body. Unlike
// net/http.Request it carries no client-side fields (cookie jar, URL
// resolution helpers): those belong to the external HTTP client the spec
// explicitly keeps out of this module's scope.
type Request struct {
	Method     string
	URI        string
	Version    Version
	Header     Header
	Extensions Extensions
	RemoteAddr net.Addr
	Body       xbody.Body
}

// ExpectsContinue reports whether the request carries Expect:
// 100-continue, grounded on the teacher's Request.ExpectsContinue
// (types_request.go).
func (r *Request) ExpectsContinue() bool {
	return hasToken(r.Header.Get("Expect"), "100-continue")
}

// WantsClose reports whether the request explicitly asked for the
// connection to close, independent of its protocol version.
func (r *Request) WantsClose() bool {
	return hasToken(r.Header.Get("Connection"), "close")
}

// WantsUpgrade reports whether the request is a Connection: Upgrade
// handshake.
func (r *Request) WantsUpgrade() bool {
	return hasToken(r.Header.Get("Connection"), "upgrade") && r.Header.Get("Upgrade") != ""
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
