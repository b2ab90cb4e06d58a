// Command wyrdgate wires the engine's ambient stack (config, logging, date
// cache) to the H1 dispatcher and the TLS/version-routing acceptor, and
// serves a trivial diagnostic application service. It exists as a runnable
// example of how the packages in this module compose, not as a product in
// its own right.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/nazgrel/wyrdgate/accept"
	"github.com/nazgrel/wyrdgate/h1"
	"github.com/nazgrel/wyrdgate/message"
	"github.com/nazgrel/wyrdgate/service"
	"github.com/nazgrel/wyrdgate/xbody"
	"github.com/nazgrel/wyrdgate/xconfig"
	"github.com/nazgrel/wyrdgate/xdate"
	"github.com/nazgrel/wyrdgate/xlog"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	log, err := xlog.New()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := xconfig.Load(*configPath)
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	date := xdate.NewCache()
	defer date.Stop()

	const greeting = "wyrdgate\n"
	app := service.Func[*message.Request, *message.Response](func(ctx context.Context, req *message.Request) (*message.Response, error) {
		resp := message.NewResponse(http.StatusOK)
		resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
		resp.WithBody(xbody.NewSized(strings.NewReader(greeting), int64(len(greeting))))
		return resp, nil
	})

	disp := h1.New(app, h1.Config{
		KeepAliveTimeout:      cfg.KeepAliveTimeout,
		RequestHeadTimeout:    cfg.RequestHeadTimeout,
		HTTP1Pipeline:         cfg.HTTP1Pipeline,
		HeadLimit:             cfg.HeadLimit,
		ReadBufLimit:          cfg.ReadBufLimit,
		WriteBufLimit:         cfg.WriteBufLimit,
		HeaderLimit:           cfg.HeaderLimit,
		RequestBodyDrainLimit: cfg.RequestBodyDrainLimit,
	}, date, log)

	acceptor := accept.New(nil, disp, nil, accept.Config{
		FirstRequestTimeout: cfg.FirstRequestTimeout,
	}, log)

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatal("listen failed", zap.Error(err))
	}
	log.Info("listening", zap.String("addr", *addr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- acceptor.Serve(ctx, ln) }()

	select {
	case <-ctx.Done():
		_ = ln.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.KeepAliveTimeout)
		defer cancel()
		if err := acceptor.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown forced some connections closed", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil {
			log.Error("accept loop ended", zap.Error(err))
		}
	}
}
