// Package xconfig loads the per-service configuration surface from spec
// §6 via github.com/knadh/koanf, grounded on tomtom215-cartographus's
// internal/config layering (file provider for a base YAML file, env
// provider for overrides, unmarshaled into a typed struct) rather than the
// teacher's hard-coded Server struct fields, since badu-http has no
// external configuration story to generalize from.
package xconfig

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config carries every recognized option from spec §6's configuration
// surface table. The four "compile-time" fields are lifted to ordinary
// struct fields per the Design Notes (§9 "Compile-time bounds"): a target
// language without const generics moves them to runtime fields and checks
// the same boundaries with asserts instead of the type system.
type Config struct {
	KeepAliveTimeout  time.Duration `koanf:"keep_alive_timeout"`
	RequestHeadTimeout time.Duration `koanf:"request_head_timeout"`
	TLSAcceptTimeout  time.Duration `koanf:"tls_accept_timeout"`
	HTTP1Pipeline     bool          `koanf:"http1_pipeline"`

	HeadLimit      int `koanf:"head_limit"`
	ReadBufLimit   int `koanf:"read_buf_limit"`
	WriteBufLimit  int `koanf:"write_buf_limit"`
	HeaderLimit    int `koanf:"header_limit"`

	// RequestBodyDrainLimit bounds how much of an unconsumed request body
	// the H1 dispatcher will drain before forcing Connection: close (spec
	// §9's open question; see DESIGN.md for why 64 KiB was chosen).
	RequestBodyDrainLimit int64 `koanf:"request_body_drain_limit"`

	// H2ConcurrentStreams is the per-connection concurrent-stream bound
	// the H2 engine negotiates via SETTINGS_MAX_CONCURRENT_STREAMS.
	H2ConcurrentStreams uint32 `koanf:"h2_concurrent_streams"`

	// H2InitialWindowSize is the per-stream flow-control window the H2
	// engine advertises in its initial SETTINGS frame.
	H2InitialWindowSize uint32 `koanf:"h2_initial_window_size"`

	// H2ConnectionWindowSize is the per-connection flow-control window.
	H2ConnectionWindowSize uint32 `koanf:"h2_connection_window_size"`

	// FirstRequestTimeout bounds the H2 handshake and the first H1 request
	// head read after the acceptor hands the stream to an engine.
	FirstRequestTimeout time.Duration `koanf:"first_request_timeout"`
}

// Default returns the config surface's documented defaults (spec §6
// table).
func Default() Config {
	return Config{
		KeepAliveTimeout:       5 * time.Second,
		RequestHeadTimeout:     5 * time.Second,
		TLSAcceptTimeout:       3 * time.Second,
		HTTP1Pipeline:          false,
		HeadLimit:              1 << 20,
		ReadBufLimit:           64 * 1024,
		WriteBufLimit:          64,
		HeaderLimit:            96,
		RequestBodyDrainLimit:  64 * 1024,
		H2ConcurrentStreams:    128,
		H2InitialWindowSize:    65535,
		H2ConnectionWindowSize: 1 << 20,
		FirstRequestTimeout:    5 * time.Second,
	}
}

// Load starts from Default, then layers a YAML file (if path is non-empty)
// and WYRDGATE_-prefixed environment variables on top, following
// tomtom215-cartographus's koanf provider order (file, then env, so env
// always wins).
func Load(path string) (Config, error) {
	cfg := Default()

	k := koanf.New(".")
	if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
		return cfg, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, err
		}
	}
	envProvider := env.Provider("WYRDGATE_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "WYRDGATE_"))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return cfg, err
	}

	var out Config
	if err := k.Unmarshal("", &out); err != nil {
		return cfg, err
	}
	return out, nil
}
