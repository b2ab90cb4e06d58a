// Package xdate implements the worker-local preformatted HTTP-date buffer
// from spec §5: refreshed every 500ms by a per-worker task, read lock-free
// by every connection on that worker to avoid a time.Now/Format syscall
// pair per response. Grounded on the teacher's TimeFormat constant and
// appendTime helper (types_server.go, chunk_writer.go), lifted out of the
// per-response hot path into a background refresher.
package xdate

import (
	"sync/atomic"
	"time"
)

// TimeFormat is RFC1123 with a hard-coded GMT zone, matching the teacher's
// TimeFormat constant byte-for-byte.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

const refreshInterval = 500 * time.Millisecond

// Cache holds the current preformatted Date header value. It is owned by
// one worker (single-threaded ownership suffices per spec §5 design notes)
// but read from via an atomic pointer so a connection goroutine never
// blocks on the refresher.
type Cache struct {
	current atomic.Pointer[string]
	stop    chan struct{}
}

// NewCache creates a Cache already holding the current formatted time and
// starts its background refresh goroutine. Call Stop when the worker shuts
// down.
func NewCache() *Cache {
	c := &Cache{stop: make(chan struct{})}
	c.refresh()
	go c.loop()
	return c
}

func (c *Cache) loop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.refresh()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) refresh() {
	s := time.Now().UTC().Format(TimeFormat)
	c.current.Store(&s)
}

// Bytes returns the current formatted date as a byte slice, safe to append
// directly into a response header buffer.
func (c *Cache) Bytes() []byte {
	return []byte(*c.current.Load())
}

// String returns the current formatted date.
func (c *Cache) String() string {
	return *c.current.Load()
}

// Stop halts the background refresh goroutine.
func (c *Cache) Stop() {
	close(c.stop)
}
