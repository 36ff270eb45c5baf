package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"go-device-stream/internal/application/statecache"
	"go-device-stream/internal/application/task"
	"go-device-stream/internal/infrastructure/broadcast"
	"go-device-stream/internal/infrastructure/config"
	"go-device-stream/internal/infrastructure/delivery"
	"go-device-stream/internal/infrastructure/gateway"
	"go-device-stream/internal/infrastructure/logger"
	"go-device-stream/internal/infrastructure/metrics"
	"go-device-stream/internal/infrastructure/registry"
	"go-device-stream/internal/infrastructure/server"
	streamtransport "go-device-stream/internal/infrastructure/stream"
)

func main() {
	ctx := context.Background()
	sctx := WithSignal(ctx)

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	lCfg := logger.NewDefaultConfig()
	lCfg.Level = logger.ParseLevel(cfg.LogLevel)
	lCfg.Format = cfg.LogFormat
	lCfg.Output = cfg.LogOutput
	lCfg.FilePath = cfg.LogFile
	log := logger.NewLogrusLogger(lCfg)

	rec := metrics.NewRecorder()

	var (
		transport      delivery.Transport
		localTransport *streamtransport.Transport
	)
	if cfg.TransportMode == config.ModeGateway {
		transport = gateway.NewClient(cfg.GatewayTimeout, log)
	} else {
		localTransport = streamtransport.NewTransport(log)
		transport = localTransport
	}

	reg := registry.New(transport, rec, log)
	broadcaster := broadcast.New(reg, transport, rec, log)

	states := statecache.New(broadcaster, nil, statecache.Options{
		BroadcastGlobal: cfg.StateBroadcastGlobal,
	}, log)
	reg.RegisterOnConnect(states)

	tasks := task.NewProducer(broadcaster, log)

	router := InitRouter(routerDeps{
		registry:       reg,
		broadcaster:    broadcaster,
		states:         states,
		tasks:          tasks,
		localTransport: localTransport,
	}, log)

	httpSrv := server.NewHTTPServer(cfg.ListenAddr, router)
	app := newApplication(log, httpSrv, reg, states)
	if err := app.Run(sctx); err != nil {
		log.Errorf("failed to run application: %v", err)
	}
}

type Application struct {
	logger  logger.Logger
	httpSrv server.Server
	reg     *registry.Registry
	states  *statecache.Cache
}

func newApplication(
	log logger.Logger,
	httpSrv *server.HTTPServer,
	reg *registry.Registry,
	states *statecache.Cache,
) *Application {
	return &Application{
		logger:  log.WithField("app", "device-stream"),
		httpSrv: httpSrv,
		reg:     reg,
		states:  states,
	}
}

func (app *Application) Run(ctx context.Context) error {
	eg := errgroup.Group{}

	eg.Go(func() error {
		return app.httpSrv.Start(ctx)
	})

	eg.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Stop accepting publishes and connects before the listener goes
		// away, draining in dependency order.
		app.states.Close()
		app.reg.Close(shutdownCtx)

		return app.httpSrv.Stop(shutdownCtx)
	})

	return eg.Wait()
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}
