package message

import (
	"net/http"

	"github.com/nazgrel/wyrdgate/xbody"
)

// Response is the engine-facing response: status, version, header map,
// extensions, and a body that is either absent, a single contiguous byte
// buffer, or a lazy byte stream (spec §3's three Body kinds apply equally
// here).
type Response struct {
	Status     int
	Version    Version
	Header     Header
	Extensions Extensions
	Body       xbody.Body
}

// NewResponse builds a Response with an initialized header map and no body,
// mirroring the teacher's response{} zero-value conventions in
// types_response.go.
func NewResponse(status int) *Response {
	return &Response{
		Status: status,
		Header: make(Header),
		Body:   xbody.None,
	}
}

// WithBody attaches body and returns r for chaining.
func (r *Response) WithBody(body xbody.Body) *Response {
	r.Body = body
	return r
}

// bodyAllowed mirrors net/http's bodyAllowedForStatus: 1xx, 204 and 304
// responses never carry a body on the wire regardless of what the handler
// wrote, grounded on the teacher's bodyAllowedForStatus (utils_response.go).
func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent:
		return false
	case status == http.StatusNotModified:
		return false
	}
	return true
}

// BodyAllowed exports bodyAllowed for use by the H1/H2 encoders.
func BodyAllowed(status int) bool { return bodyAllowed(status) }
