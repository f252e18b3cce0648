package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"speedliner/internal/usecase"
	"speedliner/pkg/config"
	xhttp "speedliner/pkg/http"
	pkgkafka "speedliner/pkg/kafka"
	applogger "speedliner/pkg/logger"
)

type closer struct {
	name string
	fn   func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	httpServer *xhttp.Server
	hub        *usecase.SessionHub
	routeSync  *usecase.RouteSync
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	closers    []closer

	bg sync.WaitGroup
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, httpServer *xhttp.Server, hub *usecase.SessionHub) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		logger:     l,
		httpServer: httpServer,
		hub:        hub,
	}
}

// WithRouteSync polls the route source while the app runs.
func (a *App) WithRouteSync(rs *usecase.RouteSync) { a.routeSync = rs }

// WithConsumer consumes route updates from Kafka while the app runs.
func (a *App) WithConsumer(c *pkgkafka.Consumer, kh pkgkafka.MessageHandler) {
	a.consumer = c
	a.kh = kh
}

// OnClose registers a resource released during shutdown, in registration order.
func (a *App) OnClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.routeSync != nil {
		a.bg.Add(1)
		go func() {
			defer a.bg.Done()
			a.routeSync.Run(bgCtx)
		}()
		a.logger.Info("route sync started", applogger.String("source", a.cfg.Routes.SourceURL))
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.logger.Error("kafka consumer error", applogger.Error(err))
			return err
		}
		a.logger.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}
	a.logger.Info("speedliner started",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("cooldown_store", a.cfg.CooldownStore.Type),
		applogger.String("audit", a.cfg.Audit.Backend),
	)

	<-ctx.Done()
	a.logger.Info("shutdown signal received")

	cancel()
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting requests first; open sockets end when the hub closes their sessions.
	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}
	a.hub.Shutdown()

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	a.bg.Wait()

	for _, c := range a.closers {
		if err := c.fn(); err != nil {
			a.logger.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
