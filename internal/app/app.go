// Package app builds the timeline components from configuration and owns
// their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "github.com/arkilian/timeline/internal/api/grpc"
	httpapi "github.com/arkilian/timeline/internal/api/http"
	"github.com/arkilian/timeline/internal/archive"
	"github.com/arkilian/timeline/internal/changefeed"
	"github.com/arkilian/timeline/internal/config"
	"github.com/arkilian/timeline/internal/engine"
	"github.com/arkilian/timeline/internal/observability"
	"github.com/arkilian/timeline/internal/partition"
	"github.com/arkilian/timeline/internal/server"
	"github.com/arkilian/timeline/internal/snl"
	"github.com/arkilian/timeline/internal/storage"
	"github.com/arkilian/timeline/internal/timeline"
)

// ScanStatsWindow is how long an unused scan scope stays in ScanStats.
const ScanStatsWindow = time.Hour

// App holds the wired components of one process.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	registry  *prometheus.Registry
	scanStats *observability.ScanStats
	engine    *engine.Engine
	executor  snl.Executor
	archiver  *archive.Archiver
	store     *timeline.Store
	closers   []io.Closer

	// Serving state, set by Start.
	mu       sync.Mutex
	running  bool
	shutdown *server.ShutdownManager
	httpLis  net.Listener
	grpcLis  net.Listener
	wg       sync.WaitGroup
}

// New resolves and validates cfg and builds the executor, observers,
// archiver and store. The caller must Close the App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	a := &App{
		cfg:       cfg,
		logger:    logger,
		registry:  prometheus.NewRegistry(),
		scanStats: observability.NewScanStats(ScanStatsWindow),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	exec, err := a.buildExecutor()
	if err != nil {
		return fmt.Errorf("failed to initialize executor: %w", err)
	}
	a.executor = exec

	metrics, err := observability.NewMetrics(a.registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	observers := []observability.Observer{
		observability.NewLogObserver(a.logger),
		metrics,
		a.scanStats,
	}

	if a.cfg.ChangeFeed.Enabled {
		feed := changefeed.New(changefeed.NewKafkaProducer(a.cfg.ChangeFeed.Brokers),
			changefeed.WithTopic(a.cfg.ChangeFeed.Topic),
			changefeed.WithTimeout(a.cfg.ChangeFeed.Timeout),
			changefeed.WithLogger(a.logger))
		a.closers = append(a.closers, feed)
		observers = append(observers, feed)
		a.logger.Info("change feed enabled", "brokers", a.cfg.ChangeFeed.Brokers, "topic", a.cfg.ChangeFeed.Topic)
	}

	scheme, err := partition.NewScheme(partition.Config{
		Strategy:    partition.Strategy(a.cfg.Store.Strategy),
		IncludeTime: a.cfg.Store.IncludeTime,
	})
	if err != nil {
		return err
	}

	opts := []timeline.Option{
		timeline.WithDatabase(a.cfg.Store.Database),
		timeline.WithScheme(scheme),
		timeline.WithCredential(a.cfg.Store.Credential),
		timeline.WithObserver(observability.Multi(observers...)),
	}

	if a.cfg.Archive.Enabled {
		objects, err := a.buildStorage(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize archive storage: %w", err)
		}
		a.archiver = archive.New(objects, archive.WithPrefix(a.cfg.Archive.Prefix))
		opts = append(opts, timeline.WithArchiver(a.archiver))
		a.logger.Info("archive before purge enabled", "type", a.cfg.Archive.Type)
	}

	a.store = timeline.New(a.executor, opts...)
	return nil
}

func (a *App) buildExecutor() (snl.Executor, error) {
	switch a.cfg.Executor.Type {
	case config.ExecutorLocal:
		var backend engine.Backend
		switch a.cfg.Engine.Backend {
		case "memory":
			backend = engine.NewMemoryBackend(a.cfg.Engine.Shards)
		case "sqlite":
			b, err := engine.NewSQLiteBackend(a.cfg.Engine.Path)
			if err != nil {
				return nil, err
			}
			backend = b
		default:
			return nil, fmt.Errorf("unsupported engine backend: %s", a.cfg.Engine.Backend)
		}
		a.engine = engine.New(backend,
			engine.WithTokens(a.cfg.Engine.Tokens...),
			engine.WithLogger(a.logger))
		a.closers = append(a.closers, a.engine)
		a.logger.Debug("reference engine initialized", "backend", a.cfg.Engine.Backend, "path", a.cfg.Engine.Path)
		return a.engine, nil

	case config.ExecutorHTTP:
		return httpapi.NewClient(a.cfg.Executor.Endpoint,
			httpapi.WithHTTPClient(&http.Client{Timeout: a.cfg.Executor.Timeout})), nil

	case config.ExecutorGRPC:
		conn, err := grpc.NewClient(a.cfg.Executor.Endpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn)
		return grpcapi.NewClient(conn), nil

	default:
		return nil, fmt.Errorf("unsupported executor type: %s", a.cfg.Executor.Type)
	}
}

func (a *App) buildStorage(ctx context.Context) (storage.ObjectStorage, error) {
	switch a.cfg.Archive.Type {
	case "local":
		return storage.NewLocalStorage(a.cfg.Archive.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Archive.S3.Region != "" {
			s3Cfg.Region = a.cfg.Archive.S3.Region
		}
		s3Cfg.Endpoint = a.cfg.Archive.S3.Endpoint
		s3Cfg.UsePathStyle = a.cfg.Archive.S3.UsePathStyle
		a.logger.Debug("s3 archive storage", "bucket", a.cfg.Archive.S3.Bucket,
			"region", s3Cfg.Region, "endpoint", s3Cfg.Endpoint)
		return storage.NewS3Storage(ctx, a.cfg.Archive.S3.Bucket, s3Cfg)
	default:
		return nil, fmt.Errorf("unsupported archive type: %s", a.cfg.Archive.Type)
	}
}

// Store returns the timeline store.
func (a *App) Store() *timeline.Store { return a.store }

// Executor returns the executor the store talks to.
func (a *App) Executor() snl.Executor { return a.executor }

// Archiver returns the archiver, or nil when archiving is disabled.
func (a *App) Archiver() *archive.Archiver { return a.archiver }

// ScanStats returns the scan frequency tracker fed by the store.
func (a *App) ScanStats() *observability.ScanStats { return a.scanStats }

// Registry returns the metrics registry.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Start serves the reference engine over HTTP and gRPC. It requires the
// local executor.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("app is already running")
	}
	if a.engine == nil {
		return fmt.Errorf("serving requires the %s executor, got %s", config.ExecutorLocal, a.cfg.Executor.Type)
	}

	served, err := observability.InstrumentExecutor(a.engine, a.registry)
	if err != nil {
		return fmt.Errorf("failed to register executor metrics: %w", err)
	}

	a.shutdown = server.NewShutdownManager(server.ShutdownConfig{
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
		Logger:          a.logger,
	})

	if err := a.startHTTP(served); err != nil {
		return err
	}
	if a.cfg.Server.GRPCAddr != "" {
		if err := a.startGRPC(served); err != nil {
			a.shutdown.Shutdown(ctx, "startup failed")
			return err
		}
	}
	a.running = true
	return nil
}

func (a *App) startHTTP(exec snl.Executor) error {
	lis, err := net.Listen("tcp", a.cfg.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on HTTP address: %w", err)
	}
	a.httpLis = lis

	mux := http.NewServeMux()
	mux.Handle("/v1/", server.ShutdownMiddleware(a.shutdown)(httpapi.NewHandler(exec, a.logger)))
	mux.HandleFunc("/healthz", httpapi.HealthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}
	a.shutdown.RegisterCloser(server.HTTPServerCloser(srv, a.cfg.Server.ShutdownTimeout))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("HTTP server listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", "err", err)
		}
	}()
	return nil
}

func (a *App) startGRPC(exec snl.Executor) error {
	lis, err := net.Listen("tcp", a.cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC address: %w", err)
	}
	a.grpcLis = lis

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		server.UnaryShutdownInterceptor(a.shutdown),
		grpcapi.LoggingInterceptor(a.logger),
	))
	grpcapi.RegisterExecutorServer(srv, grpcapi.NewServer(exec, a.logger))
	a.shutdown.RegisterCloser(server.GRPCServerCloser(srv, a.cfg.Server.ShutdownTimeout))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("gRPC server listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			a.logger.Error("gRPC server error", "err", err)
		}
	}()
	return nil
}

// HTTPAddr returns the bound HTTP address once started.
func (a *App) HTTPAddr() string {
	if a.httpLis == nil {
		return ""
	}
	return a.httpLis.Addr().String()
}

// GRPCAddr returns the bound gRPC address once started, or "" when gRPC is
// disabled.
func (a *App) GRPCAddr() string {
	if a.grpcLis == nil {
		return ""
	}
	return a.grpcLis.Addr().String()
}

// Wait blocks until a signal arrives or ctx is cancelled, then stops the
// servers.
func (a *App) Wait(ctx context.Context) error {
	if a.shutdown == nil {
		return fmt.Errorf("app is not running")
	}
	err := a.shutdown.ListenForSignals(ctx)
	a.wg.Wait()
	return err
}

// Stop stops the servers without waiting for a signal.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	sm := a.shutdown
	a.running = false
	a.mu.Unlock()
	if sm == nil {
		return nil
	}
	err := sm.Shutdown(ctx, "stop requested")
	a.wg.Wait()
	return err
}

// Close releases the store, change feed and executor.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
