package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/DRSN-tech/kaspi-conveyor/internal/cfg"
	v1Http "github.com/DRSN-tech/kaspi-conveyor/internal/delivery/v1/http"
	"github.com/DRSN-tech/kaspi-conveyor/internal/infrastructure/ai"
	"github.com/DRSN-tech/kaspi-conveyor/internal/infrastructure/erp"
	"github.com/DRSN-tech/kaspi-conveyor/internal/infrastructure/kafka"
	"github.com/DRSN-tech/kaspi-conveyor/internal/infrastructure/kaspi"
	"github.com/DRSN-tech/kaspi-conveyor/internal/infrastructure/process"
	"github.com/DRSN-tech/kaspi-conveyor/internal/infrastructure/scripts"
	"github.com/DRSN-tech/kaspi-conveyor/internal/metrics"
	"github.com/DRSN-tech/kaspi-conveyor/internal/repository/pgdb"
	"github.com/DRSN-tech/kaspi-conveyor/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/kaspi-conveyor/internal/repository/redis"
	"github.com/DRSN-tech/kaspi-conveyor/internal/settings"
	"github.com/DRSN-tech/kaspi-conveyor/internal/usecase"
	"github.com/DRSN-tech/kaspi-conveyor/internal/worker"
	"github.com/DRSN-tech/kaspi-conveyor/migrations"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/clients"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/closer"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/postgres"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
)

const (
	initTimeout     = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// App собирает зависимости один раз; RunAPI и RunWorker запускают соответствующий процесс.
type App struct {
	cfg     *config.Config
	logger  logger.Logger
	closer  *closer.Closer
	metrics *metrics.Metrics
	uc      v1Http.Usecases
	worker  *worker.Worker
}

func NewApp(cfg *config.Config, logger logger.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	cl := closer.NewCloser(0)

	db, err := initPGDB(ctx, logger, cfg)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	cl.AddSimple("postgres", func() error {
		db.Close()
		return nil
	})

	trManager := manager.Must(trmpgx.NewDefaultFactory(db.Pool))

	productRepo := pgdb.NewProductRepo(db.Pool, converter.NewProductConverter())
	jobRepo := pgdb.NewJobRepo(db.Pool, converter.NewJobConverter())

	feedCache, err := initFeedCache(ctx, logger, cfg, cl)
	if err != nil {
		_ = cl.Close(ctx)
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	publisher := initPublisher(logger, cfg, cl)

	settingsSvc := settings.NewService(pgdb.NewSettingsRepo(db.Pool), settings.DefaultsFromConfig(cfg.Pricing), logger)
	if err := settingsSvc.Refresh(ctx); err != nil {
		logger.Warnf("failed to load stored settings, using defaults: %v", err)
	}

	m := metrics.New()

	runner := process.NewRunner(cfg.Scripts, logger.With("component", "scripts"))
	gateway := scripts.NewGateway(runner, cfg.Scripts, logger)

	feedUC := usecase.NewFeedUC(
		productRepo,
		kaspi.NewBaseCatalogSource(cfg.Feed, logger),
		erp.NewClient(cfg.ERP, logger.With("component", "erp")),
		feedCache,
		settingsSvc,
		m,
		logger,
	)
	settingsSvc.OnUpdate(feedUC.Invalidate)

	conveyorUC := usecase.NewConveyorUC(productRepo, gateway, settingsSvc, publisher, m, feedUC, logger)
	moderationUC := usecase.NewModerationUC(
		productRepo,
		trManager,
		ai.NewProviders(cfg.AI, logger),
		cfg.AI.ProviderTimeout,
		publisher,
		m,
		feedUC,
		logger,
	)
	jobUC := usecase.NewJobUC(jobRepo, productRepo, gateway, publisher, m, logger)
	statsUC := usecase.NewStatsUC(productRepo, jobRepo, logger)

	return &App{
		cfg:     cfg,
		logger:  logger,
		closer:  cl,
		metrics: m,
		uc: v1Http.Usecases{
			Conveyor:   conveyorUC,
			Moderation: moderationUC,
			Feed:       feedUC,
			Jobs:       jobUC,
			Stats:      statsUC,
			Settings:   settingsSvc,
		},
		worker: worker.New(jobUC, conveyorUC, moderationUC, settingsSvc, cfg.Worker, logger.With("component", "worker")),
	}, nil
}

// RunAPI обслуживает HTTP API до сигнала остановки или фатальной ошибки сервера.
func (a *App) RunAPI() error {
	r := chi.NewRouter()
	v1Http.NewRouter(r, a.metrics, a.cfg.Feed.CacheControl, a.logger).Init(a.uc)

	httpSrv := v1Http.NewServer(r, a.cfg.Http)
	a.closer.Add("http server", httpSrv.Stop)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("HTTP server listening on %s", httpSrv.Addr())
		if err := httpSrv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	appErr := a.wait(errCh)
	a.shutdown()
	return appErr
}

// RunWorker разбирает очередь заданий и конвейер; /metrics воркера слушает отдельный порт.
func (a *App) RunWorker() error {
	ctx, cancel := context.WithCancel(context.Background())

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	metricsSrv := v1Http.NewServer(r, &config.HTTPConfig{
		Port:         a.cfg.Worker.MetricsPort,
		ReadTimeout:  a.cfg.Http.ReadTimeout,
		WriteTimeout: a.cfg.Http.WriteTimeout,
		IdleTimeout:  a.cfg.Http.IdleTimeout,
	})
	a.closer.Add("metrics server", metricsSrv.Stop)

	errCh := make(chan error, 2)
	go func() {
		a.logger.Infof("worker metrics listening on %s", metricsSrv.Addr())
		if err := metricsSrv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	appErr := a.wait(errCh)
	cancel()

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		a.logger.Warnf("worker did not stop in %s, current unit of work is abandoned", shutdownTimeout)
	}

	a.shutdown()
	return appErr
}

func (a *App) wait(errCh <-chan error) error {
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-errCh:
		a.logger.Errorf(err, "fatal error")
		return err
	case <-shutdown:
		a.logger.Infof("Received shutdown signal, stopping gracefully...")
		return nil
	}
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.closer.Close(ctx); err != nil {
		a.logger.Errorf(err, "shutdown finished with errors")
		return
	}
	a.logger.Infof("Application shutdown complete")
}

func initPGDB(ctx context.Context, logger logger.Logger, cfg *config.Config) (*postgres.PgDatabase, error) {
	db, err := postgres.Connect(ctx, cfg.Db)
	if err != nil {
		logger.Errorf(err, "failed to connect to database")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err := db.RunMigrations(migrations.FS, logger); err != nil {
		logger.Errorf(err, "failed to run migrations")
		db.Close()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return db, nil
}

// initFeedCache подключает Redis, если он включён; иначе фид собирается на каждый запрос.
func initFeedCache(ctx context.Context, logger logger.Logger, cfg *config.Config, cl *closer.Closer) (usecase.FeedCacheRepository, error) {
	if !cfg.Redis.Enabled {
		logger.Infof("redis disabled, feed cache is off")
		return redis.NewNopFeedCache(), nil
	}

	redisClient := clients.NewRedisClient(cfg.Redis)
	if err := redisClient.Ping(ctx); err != nil {
		logger.Errorf(err, "failed to connect to redis")
		_ = redisClient.Close()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	cl.AddSimple("redis", redisClient.Close)

	return redis.NewFeedCacheRepo(redisClient, cfg.Redis, logger), nil
}

func initPublisher(logger logger.Logger, cfg *config.Config, cl *closer.Closer) usecase.EventPublisher {
	if !cfg.Kafka.Enabled {
		return kafka.NewNopPublisher(logger)
	}

	producer := kafka.NewProducer(logger, cfg.Kafka)
	cl.AddSimple("kafka producer", producer.Close)
	return producer
}
