// Package server wires the messaging backend together: configuration,
// Postgres, the realtime broker, the event sink, object storage, and the gRPC
// and HTTP servers, with graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/agrolink/agrolink/internal/logging"
	"github.com/agrolink/agrolink/internal/server/config"
	"github.com/agrolink/agrolink/internal/server/events"
	gs "github.com/agrolink/agrolink/internal/server/grpc"
	"github.com/agrolink/agrolink/internal/server/httpapi"
	"github.com/agrolink/agrolink/internal/server/metrics"
	"github.com/agrolink/agrolink/internal/server/realtime"
	"github.com/agrolink/agrolink/internal/server/repositories/repomanager"
	"github.com/agrolink/agrolink/internal/server/services"
	"github.com/agrolink/agrolink/internal/server/storage"
)

// openPostgres is a seam for tests.
var openPostgres = repomanager.OpenPostgres

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	broker      realtime.Broker
	sink        events.Sink
	metrics     *metrics.Metrics
	users       *services.UserService
	messaging   *services.MessagingService
	attachments *services.AttachmentService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(c.LogLevel)

	db, err := openPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	broker, err := newBroker(ctx, c, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	sink := newSink(c, logger)
	m := metrics.New()

	var presigner storage.Presigner
	if c.StorageEnabled {
		presigner = storage.NewS3Storage(c)
	}

	messaging := services.NewMessagingService(db, rm, broker, sink, m, logger.With("module", "messaging"))

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		broker:      broker,
		sink:        sink,
		metrics:     m,
		users:       services.NewUserService(db, rm, c),
		messaging:   messaging,
		attachments: services.NewAttachmentService(messaging, presigner),
	}, nil
}

// newBroker uses Redis pub/sub when an address is configured, so several
// server instances share realtime events.
func newBroker(ctx context.Context, c *config.Config, l logging.Logger) (realtime.Broker, error) {
	if c.RedisAddr == "" {
		return realtime.NewMemoryBroker(l), nil
	}
	b, err := realtime.NewRedisBroker(ctx, c.RedisAddr, l)
	if err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}
	return b, nil
}

func newSink(c *config.Config, l logging.Logger) events.Sink {
	if len(c.KafkaBrokers) == 0 {
		return events.NopSink{}
	}
	return events.NewKafkaSink(c.KafkaBrokers, c.KafkaTopic, l.With("module", "events"))
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.users, app.messaging, app.attachments,
		app.metrics, app.config.SecretKey)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "gRPC server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s, err := httpapi.NewServer(app.config.EndpointAddrHTTP, app.logger, app.metrics, app.config.ProxyUpstream)
	if err != nil {
		app.logger.Error(ctx, "HTTP server init failed", "error", err)
		cancelFunc()
		return
	}
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "HTTP server failed", "error", err)
		cancelFunc()
	}
}

// Run blocks until a signal arrives, ctx is cancelled or a server fails,
// then releases all resources.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.close(ctx)
}

func (app *App) close(ctx context.Context) {
	if err := app.broker.Close(); err != nil {
		app.logger.Warn(ctx, "broker close", "error", err)
	}
	if err := app.sink.Close(); err != nil {
		app.logger.Warn(ctx, "event sink close", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
