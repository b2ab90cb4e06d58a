package h2

import "sync"

// windowController tracks the connection-wide and per-stream HTTP/2 flow
// control send windows (RFC 7540 §6.9). acquire blocks the calling
// goroutine (one per active stream, see stream.go) until both the
// connection window and the named stream's window have at least 1 byte
// available, then debits up to want bytes from both and returns the
// granted amount -- callers loop, writing one DATA frame per grant, until
// the whole body is sent.
//
// Grounded on baranov1ch-http2's serverConn.flow (a single *flow per
// connection plus one per stream); this generalizes that into one type
// that owns both scopes, since our per-stream sender is a plain goroutine
// rather than a cooperative single-threaded serve loop and needs to block
// rather than requeue itself.
type windowController struct {
	mu      sync.Mutex
	cond    *sync.Cond
	conn    int64
	streams map[uint32]int64
	closed  map[uint32]bool
}

func newWindowController(connInitial uint32) *windowController {
	w := &windowController{
		conn:    int64(connInitial),
		streams: make(map[uint32]int64),
		closed:  make(map[uint32]bool),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *windowController) streamOpened(id uint32, initial uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.streams[id] = int64(initial)
	delete(w.closed, id)
}

// streamClosed marks id as no longer sendable and wakes any goroutine still
// blocked in acquire for it (e.g. an RST_STREAM arrived mid-send).
func (w *windowController) streamClosed(id uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.streams, id)
	w.closed[id] = true
	w.cond.Broadcast()
}

func (w *windowController) updateConn(n uint32) {
	w.mu.Lock()
	w.conn += int64(n)
	w.cond.Broadcast()
	w.mu.Unlock()
}

func (w *windowController) updateStream(id uint32, n uint32) {
	w.mu.Lock()
	if _, ok := w.streams[id]; ok {
		w.streams[id] += int64(n)
		w.cond.Broadcast()
	}
	w.mu.Unlock()
}

// acquire blocks until the stream and connection windows both have
// positive balance (or the stream is closed), debits min(want, available)
// from both, and returns the granted size. ok is false once the stream has
// been closed out from under the caller, telling it to abandon the send.
func (w *windowController) acquire(id uint32, want int) (granted int, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for {
		if w.closed[id] {
			return 0, false
		}
		sw, tracked := w.streams[id]
		if !tracked {
			return 0, false
		}
		if w.conn > 0 && sw > 0 {
			g := int64(want)
			if g > w.conn {
				g = w.conn
			}
			if g > sw {
				g = sw
			}
			w.conn -= g
			w.streams[id] = sw - g
			return int(g), true
		}
		w.cond.Wait()
	}
}
