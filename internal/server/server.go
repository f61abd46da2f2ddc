// Package server builds the application graph from configuration and owns
// its lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gazette-watcher/internal/api"
	"github.com/JakeFAU/gazette-watcher/internal/clock/system"
	"github.com/JakeFAU/gazette-watcher/internal/config"
	collyfetcher "github.com/JakeFAU/gazette-watcher/internal/fetcher/colly"
	"github.com/JakeFAU/gazette-watcher/internal/gazette"
	"github.com/JakeFAU/gazette-watcher/internal/hash/sha256"
	"github.com/JakeFAU/gazette-watcher/internal/id/uuid"
	"github.com/JakeFAU/gazette-watcher/internal/live"
	"github.com/JakeFAU/gazette-watcher/internal/logging"
	"github.com/JakeFAU/gazette-watcher/internal/metrics"
	"github.com/JakeFAU/gazette-watcher/internal/notifier/telegram"
	"github.com/JakeFAU/gazette-watcher/internal/policy/ratelimit"
	"github.com/JakeFAU/gazette-watcher/internal/publisher/fanout"
	kafkapublisher "github.com/JakeFAU/gazette-watcher/internal/publisher/kafka"
	gcppublisher "github.com/JakeFAU/gazette-watcher/internal/publisher/pubsub"
	redispublisher "github.com/JakeFAU/gazette-watcher/internal/publisher/redis"
	"github.com/JakeFAU/gazette-watcher/internal/scheduler"
	gcsstorage "github.com/JakeFAU/gazette-watcher/internal/storage/gcs"
	localstorage "github.com/JakeFAU/gazette-watcher/internal/storage/local"
	memorystorage "github.com/JakeFAU/gazette-watcher/internal/storage/memory"
	mongostore "github.com/JakeFAU/gazette-watcher/internal/storage/mongo"
	pgstore "github.com/JakeFAU/gazette-watcher/internal/storage/postgres"
	s3storage "github.com/JakeFAU/gazette-watcher/internal/storage/s3"
	"github.com/JakeFAU/gazette-watcher/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     gazette.PostStore
	watcher   *watcher.Watcher
	apiServer *api.Server
	scheduler *scheduler.Scheduler
	liveHub   *live.Hub
	// closers release infrastructure in reverse construction order.
	closers   []namedCloser
	closeOnce sync.Once
}

type namedCloser struct {
	name  string
	close func(context.Context) error
}

// Build creates the application's dependencies, including the zap logger.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger creates the application's dependencies around an existing
// logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("archive_backend", cfg.Archive.Backend),
	)

	clock := system.New()

	store, err := setupStore(ctx, app, clock)
	if err != nil {
		app.closeAll(ctx)
		return nil, err
	}
	app.store = store

	archive, err := setupArchive(ctx, app)
	if err != nil {
		app.closeAll(ctx)
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.closeAll(ctx)
		return nil, err
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Gazette.UserAgent,
		Timeout:   cfg.GazetteTimeout(),
	})
	var clientOpts []gazette.ClientOption
	if archive != nil {
		clientOpts = append(clientOpts, gazette.WithSnapshots(archive, sha256.New(), clock))
	}
	client := gazette.NewClient(fetcher, gazette.ClientConfig{
		ListingURL:     cfg.Gazette.URL,
		Origin:         cfg.Gazette.Origin,
		UserAgent:      cfg.Gazette.UserAgent,
		SnapshotPrefix: cfg.Archive.Prefix,
	}, logger.Named("gazette"), clientOpts...)

	limiter := ratelimit.New(ratelimit.Config{
		PerSecond: cfg.Notify.RatePerSecond,
		Burst:     cfg.Notify.Burst,
	})
	notifier := telegram.New(telegram.Config{
		APIBaseURL: cfg.Notify.APIBaseURL,
		Timeout:    cfg.NotifyTimeout(),
	}, limiter, logger.Named("telegram"))

	var liveFeed http.Handler
	if cfg.Server.LiveFeed {
		hub := live.NewHub(logger.Named("live"))
		app.onClose("live", func(context.Context) error { return hub.Close() })
		publisher = fanout.New(publisher, hub)
		app.liveHub = hub
		liveFeed = hub
	}

	app.watcher = watcher.New(client, store, notifier, publisher, clock, watcher.Config{
		NotifyBatchSize: cfg.Notify.BatchSize,
		Topic:           cfg.PubSub.TopicName,
	}, logger.Named("watcher"))

	app.apiServer = api.NewServer(app.watcher, api.Config{
		RequestTimeout: cfg.RequestTimeout(),
		LiveFeed:       liveFeed,
	}, logger.Named("api"))

	app.scheduler = scheduler.New(func(ctx context.Context) error {
		_, err := app.watcher.FetchAndStore(ctx, metrics.TriggerScheduler)
		return err
	}, scheduler.Config{
		Warmup:   cfg.SchedulerWarmup(),
		Interval: cfg.SchedulerInterval(),
	}, logger.Named("scheduler"))

	return app, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Watcher returns the use-case service.
func (a *App) Watcher() *watcher.Watcher {
	return a.watcher
}

// Handler returns the HTTP handler tree.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and, when enabled, the scheduler until ctx is canceled or
// the process receives SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.Storage.Backend == config.BackendMemory {
		a.logger.Warn("serving with the in-memory post store; posts and notification state are lost on restart and every listed post is treated as new again",
			zap.String("hint", "set storage.backend to mongo or postgres"))
	}

	if a.cfg.Scheduler.Enabled {
		a.scheduler.Start(ctx)
	} else {
		a.logger.Info("scheduler disabled")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.scheduler.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close stops the scheduler and releases infrastructure. Only the first call
// has any effect.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if a.scheduler != nil {
			a.scheduler.Stop()
		}
		a.closeAll(ctx)
		a.logger.Info("shutdown complete")
		// Sync fails on stderr/stdout for some platforms; nothing to act on.
		_ = a.logger.Sync()
	})
	return nil
}

func (a *App) closeAll(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

func setupStore(ctx context.Context, app *App, clock gazette.Clock) (gazette.PostStore, error) {
	cfg := app.cfg.Storage
	switch cfg.Backend {
	case config.BackendMongo:
		store, err := mongostore.NewPostStore(ctx, mongostore.Config{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		}, clock)
		if err != nil {
			return nil, fmt.Errorf("mongo post store init failed: %w", err)
		}
		app.onClose("mongo", store.Close)
		app.logger.Info("using mongo post store",
			zap.String("database", cfg.Mongo.Database),
			zap.String("collection", cfg.Mongo.Collection),
		)
		return store, nil
	case config.BackendPostgres:
		store, err := pgstore.NewPostStore(ctx, pgstore.Config{
			DSN:      cfg.Postgres.DSN,
			Table:    cfg.Postgres.Table,
			MaxConns: cfg.Postgres.MaxConns,
		}, uuid.New(), clock)
		if err != nil {
			return nil, fmt.Errorf("postgres post store init failed: %w", err)
		}
		app.onClose("postgres", store.Close)
		app.logger.Info("using postgres post store", zap.String("table", cfg.Postgres.Table))
		return store, nil
	default:
		app.logger.Warn("using in-memory post store; posts are lost on restart")
		return memorystorage.NewPostStore(uuid.New(), clock), nil
	}
}

func setupArchive(ctx context.Context, app *App) (gazette.BlobStore, error) {
	cfg := app.cfg.Archive
	switch cfg.Backend {
	case config.ArchiveGCS:
		store, err := gcsstorage.NewWithOptions(ctx, gcsstorage.Config{Bucket: cfg.GCS.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		app.onClose("gcs", func(context.Context) error { return store.Close() })
		app.logger.Info("archiving listing snapshots to gcs", zap.String("bucket", cfg.GCS.Bucket))
		return store, nil
	case config.ArchiveS3:
		store, err := s3storage.New(s3storage.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 archive init failed: %w", err)
		}
		app.logger.Info("archiving listing snapshots to s3",
			zap.String("bucket", cfg.S3.Bucket),
			zap.String("region", cfg.S3.Region),
		)
		return store, nil
	case config.ArchiveLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		app.logger.Info("archiving listing snapshots locally", zap.String("path", cfg.Local.BaseDir))
		return store, nil
	case config.ArchiveMemory:
		app.logger.Info("archiving listing snapshots in memory")
		return memorystorage.NewBlobStore(), nil
	default:
		app.logger.Debug("listing snapshots disabled")
		return nil, nil
	}
}

func setupPublisher(ctx context.Context, app *App) (gazette.Publisher, error) {
	if kcfg := app.cfg.Kafka; len(kcfg.Brokers) > 0 {
		pub, err := kafkapublisher.New(kafkapublisher.Config{
			Brokers:  kcfg.Brokers,
			Topic:    kcfg.Topic,
			ClientID: kcfg.ClientID,
		})
		if err != nil {
			return nil, fmt.Errorf("kafka publisher init failed: %w", err)
		}
		app.onClose("kafka", func(context.Context) error { return pub.Close() })
		app.logger.Info("Kafka publisher initialized",
			zap.Strings("brokers", kcfg.Brokers),
			zap.String("topic", kcfg.Topic),
		)
		return pub, nil
	}

	if rcfg := app.cfg.Redis; rcfg.Addr != "" {
		pub, err := redispublisher.New(ctx, redispublisher.Config{
			Addr:     rcfg.Addr,
			Password: rcfg.Password,
			DB:       rcfg.DB,
			Stream:   rcfg.Stream,
			MaxLen:   rcfg.MaxLen,
		})
		if err != nil {
			return nil, fmt.Errorf("redis publisher init failed: %w", err)
		}
		app.onClose("redis", func(context.Context) error { return pub.Close() })
		app.logger.Info("Redis stream publisher initialized",
			zap.String("addr", rcfg.Addr),
			zap.String("stream", rcfg.Stream),
		)
		return pub, nil
	}

	cfg := app.cfg.PubSub
	if cfg.ProjectID == "" || cfg.TopicName == "" {
		app.logger.Info("no event bus configured, new-post events are not published")
		return nil, nil
	}
	pub, err := gcppublisher.New(ctx, gcppublisher.Config{
		ProjectID: cfg.ProjectID,
		TopicName: cfg.TopicName,
	})
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.onClose("pubsub", func(context.Context) error { return pub.Close() })
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", cfg.ProjectID),
		zap.String("topic", cfg.TopicName),
	)
	return pub, nil
}
