package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/meridianbio/pipeline"
	"github.com/meridianbio/pipeline/api"
	"github.com/meridianbio/pipeline/cache"
	"github.com/meridianbio/pipeline/config"
	"github.com/meridianbio/pipeline/engine"
	"github.com/meridianbio/pipeline/health"
	"github.com/meridianbio/pipeline/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Logging)

	stateStore, err := buildStore(cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize state store")
	}

	cacheManager, err := buildCache(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache")
	}

	p, err := buildPipeline(cfg.Stages)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build pipeline")
	}

	opts := []engine.Option{
		engine.WithLogger(log.Logger),
		engine.WithMetrics(health.NewMetrics()),
	}
	if cacheManager != nil {
		opts = append(opts, engine.WithCache(cacheManager))
	}

	eng, err := engine.New(p, stateStore, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize engine")
	}

	app := fiber.New()
	api.NewServer(eng, log.Logger).Register(app)

	// Prometheus metrics on a separate listener
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		log.Info().Str("address", addr).Msg("Starting metrics server")
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info().Str("address", addr).Msg("Starting HTTP server")
		if err := app.Listen(addr); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}

func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func setupLogger(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
}

func buildStore(cfg config.StoreConfig) (pipeline.StateStore, error) {
	switch cfg.Backend {
	case "dynamodb":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg)
		return store.NewDynamoDBStore(client, cfg.DynamoDB.TableName), nil
	default:
		return store.NewMemoryStore(), nil
	}
}

func buildCache(cfg config.CacheConfig) (*cache.Manager, error) {
	metrics := cache.NewMetrics()
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "redis":
		backend, err := cache.NewRedisBackend(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return cache.NewManager(backend, nil, log.Logger, metrics), nil
	default:
		return cache.NewManager(cache.NewMemoryBackend(cfg.Capacity), nil, log.Logger, metrics), nil
	}
}

// buildPipeline wires the stock descriptors to HTTP collaborators. Every
// stage needs an endpoint in the config.
func buildPipeline(stages []config.StageConfig) (*pipeline.Pipeline, error) {
	endpoints := make(map[string]config.StageConfig, len(stages))
	for _, sc := range stages {
		endpoints[sc.Name] = sc
	}

	p := pipeline.NewPipeline()
	for _, desc := range pipeline.DefaultDescriptors() {
		sc, ok := endpoints[desc.Name]
		if !ok || sc.URL == "" {
			return nil, fmt.Errorf("no endpoint configured for stage %s", desc.Name)
		}
		if sc.Timeout > 0 {
			desc.Timeout = sc.Timeout
		}
		executor := pipeline.NewHTTPExecutor(sc.URL, sc.APIKey, nil)
		if err := p.Register(desc, executor); err != nil {
			return nil, err
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
