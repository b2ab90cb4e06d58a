package h1

import (
	"context"

	"github.com/nazgrel/wyrdgate/message"
)

// ExpectFunc is the Expect: 100-continue hook from spec §4.3: invoked
// before the request body is read when the client sent Expect:
// 100-continue. Returning accept=true tells the dispatcher to write "100
// Continue" and proceed to the application service; accept=false supplies
// the final response directly (typically 417 Expectation Failed) and the
// application service is never invoked, grounded on the teacher's
// sendExpectationFailed (response.go) and expectContinueReader
// (types_response.go).
type ExpectFunc func(ctx context.Context, req *message.Request) (accept bool, reject *message.Response, err error)

// DefaultExpect always accepts, the common case for a server with no
// special admission policy.
func DefaultExpect(context.Context, *message.Request) (bool, *message.Response, error) {
	return true, nil, nil
}
