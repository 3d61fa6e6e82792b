package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/skald/internal/config"
	"github.com/friendsincode/skald/internal/eventbus"
	"github.com/friendsincode/skald/internal/events"
	"github.com/friendsincode/skald/internal/logbuffer"
	"github.com/friendsincode/skald/internal/logging"
	"github.com/friendsincode/skald/internal/server"
	"github.com/friendsincode/skald/internal/storage"
	"github.com/friendsincode/skald/internal/store"
	"github.com/friendsincode/skald/internal/telemetry"
	"github.com/friendsincode/skald/internal/version"
	"github.com/friendsincode/skald/internal/worker"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "skald",
	Short: "Skald - Media transform service",
	Long:  "Skald transforms media sample logs: transcoding, slow-motion flattening, rotation and resizing, served as an HTTP job API or run one-shot from the command line.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Skald server",
	Long:  "Start the HTTP job API and the worker pool that executes queued transforms",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the Skald version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(transformCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

// loadConfigWithLogBuffer is loadConfig plus log capture for the serve
// command's log query endpoints.
func loadConfigWithLogBuffer() (*logbuffer.Buffer, error) {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logBuf := logbuffer.New(10000)
	logger = logging.SetupWithWriter(cfg.Environment, logbuffer.NewWriter(logBuf, nil))
	return logBuf, nil
}

// bus abstracts the event bus backends so serve can close whichever one is
// configured.
type bus interface {
	events.Publisher
	Close() error
}

// memoryBus wraps the in-process bus with a no-op Close.
type memoryBus struct {
	*events.Bus
}

func (memoryBus) Close() error { return nil }

func newBus() (bus, error) {
	switch cfg.BusBackend {
	case config.BusNATS:
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		return eventbus.NewNATSBus(natsCfg, cfg.InstanceID, logger)
	case config.BusRedis:
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		return eventbus.NewRedisBus(redisCfg, cfg.InstanceID, logger)
	default:
		return memoryBus{events.NewBus()}, nil
	}
}

func newStorage(ctx context.Context) (storage.Store, error) {
	if cfg.S3Bucket != "" {
		return storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
	}
	if err := os.MkdirAll(cfg.WorkRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create work root %s: %w", cfg.WorkRoot, err)
	}
	return storage.NewFilesystem(cfg.WorkRoot, logger), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	logBuf, err := loadConfigWithLogBuffer()
	if err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("Skald starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "skald",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	jobs, err := store.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect job store: %w", err)
	}
	defer jobs.Close()

	eventBus, err := newBus()
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer eventBus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blobs, err := newStorage(ctx)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}

	checker := version.NewChecker(logger)
	checker.Start(ctx)
	defer checker.Stop()

	pool := worker.NewPool(worker.Config{
		Workers:      cfg.Workers,
		PollInterval: time.Second,
		JobTimeout:   cfg.JobTimeout,
		WorkRoot:     cfg.WorkRoot,
	}, jobs, blobs, eventBus, logger)
	pool.Start(ctx)

	srv := server.New(cfg, jobs, eventBus, pool, logBuf, logger)
	httpServer := srv.HTTPServer()

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	metricsServer := &http.Server{
		Addr:              cfg.MetricsBind,
		Handler:           telemetry.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.MetricsBind).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer timeoutCancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := metricsServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("metrics shutdown failed")
	}

	cancel()
	pool.Wait()

	logger.Info().Msg("Skald stopped")
	return nil
}
