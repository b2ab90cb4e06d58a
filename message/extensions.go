package message

import (
	"reflect"
	"sync"
)

// Extensions is the typed attribute bag carried by Request and Response,
// keyed by the concrete Go type stored so callers never collide on string
// keys the way context.Value often does. Grounded on the same "typed bag"
// shape request/response extensions take in most Go web toolkits (and the
// teacher's own per-request context.Context use in types_request.go),
// generalized to a dedicated struct since this module's Request isn't
// layered over context.Context for its body lifetime.
type Extensions struct {
	mu     sync.RWMutex
	values map[reflect.Type]any
}

// Set stores v, keyed by its dynamic type. A second Set of the same type
// replaces the previous value.
func (e *Extensions) Set(v any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.values == nil {
		e.values = make(map[reflect.Type]any)
	}
	e.values[reflect.TypeOf(v)] = v
}

// ExtGet retrieves a value of type T previously stored with Set.
func ExtGet[T any](e *Extensions) (T, bool) {
	var zero T
	if e == nil {
		return zero, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.values[reflect.TypeOf(zero)]
	if !ok {
		return zero, false
	}
	return v.(T), true
}
