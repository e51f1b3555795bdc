package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TradeCast/internal/gateway"
	"TradeCast/internal/usecase"
	pkgch "TradeCast/pkg/clickhouse"
	"TradeCast/pkg/config"
	xhttp "TradeCast/pkg/http"
	pkgkafka "TradeCast/pkg/kafka"
	applogger "TradeCast/pkg/logger"
	pkgpg "TradeCast/pkg/postgres"
)

// App encapsulates the entire application lifecycle: HTTP server, websocket
// gateway, fan-out broadcaster, and the supervised Kafka consumer.
type App struct {
	cfg         *config.Config
	logger      *applogger.Logger
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
	hub         *gateway.Hub
	broadcaster *usecase.Broadcaster
	consumer    *pkgkafka.Consumer
	fanout      pkgkafka.MessageHandler
	pgClient    *pkgpg.Client
	chClient    *pkgch.Client
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	handler xhttp.Handler,
	hub *gateway.Hub,
	broadcaster *usecase.Broadcaster,
	consumer *pkgkafka.Consumer,
	fanout pkgkafka.MessageHandler,
	pgClient *pkgpg.Client,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:         cfg,
		logger:      logger,
		httpHandler: handler,
		hub:         hub,
		broadcaster: broadcaster,
		consumer:    consumer,
		fanout:      fanout,
		pgClient:    pgClient,
		chClient:    chClient,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.logger
	if l == nil {
		l = applogger.Nop()
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout.Duration(), a.cfg.Server.WriteTimeout.Duration(), a.cfg.Server.ShutdownTimeout.Duration()),
		xhttp.WithLogger(l),
	)

	a.broadcaster.Start()
	l.Info("broadcaster started")

	if a.consumer != nil && a.fanout != nil {
		a.consumer.RegisterHandler(a.fanout)
		go a.superviseConsumer(ctx, l)
		l.Info("kafka consumer started", applogger.String("topic", a.fanout.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	cancel()
	return a.shutdown(l)
}

// superviseConsumer restarts the consumer loop if Start returns, with a short
// delay so a broken broker connection cannot spin.
func (a *App) superviseConsumer(ctx context.Context, l *applogger.Logger) {
	for {
		if err := a.consumer.Start(); err != nil {
			l.Error("kafka consumer error", applogger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
			l.Warn("restarting kafka consumer")
		}
	}
}

// shutdown gracefully stops all services in dependency order: stop accepting
// HTTP, drain the broadcaster, stop the consumer, close sockets, then close
// storage clients.
func (a *App) shutdown(l *applogger.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if err := a.broadcaster.Stop(shutdownCtx); err != nil {
		l.Warn("broadcaster stop error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.hub != nil {
		a.hub.Stop()
	}

	if a.pgClient != nil {
		if err := a.pgClient.Close(); err != nil {
			l.Warn("postgres close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
