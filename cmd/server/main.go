package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/openclob/pointsbook/config"
	"github.com/openclob/pointsbook/pkg/core"
	"github.com/openclob/pointsbook/pkg/db/queue"
	"github.com/openclob/pointsbook/pkg/messaging"
	"github.com/openclob/pointsbook/pkg/messaging/kafka"
	"github.com/openclob/pointsbook/pkg/otel"
	"github.com/openclob/pointsbook/pkg/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}

	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.Server.LogFormat == "pretty" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	ctx := logger.WithContext(context.Background())

	if cfg.Otel.Enabled {
		cleanup, err := otel.Init(otel.Config{
			ServiceName:      otel.ServiceEngine,
			ServiceVersion:   "1.0.0",
			Endpoint:         cfg.Otel.Endpoint,
			CollectorEnabled: true,
		})
		if err != nil {
			log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
		}
		defer cleanup()

		if err := otel.StartRuntimeMetrics(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start runtime metrics")
		}
	}

	// Event publication goes to Kafka when enabled, otherwise trades are
	// only visible on the websocket feed.
	var sender messaging.MessageSender
	if cfg.Kafka.Enabled {
		sender, err = queue.NewQueueMessageSender()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Kafka producer")
		}
		defer sender.Close()

		// Developer convenience: pretty-print everything published.
		consumer := kafka.SetupConsumer(ctx, cfg.Kafka.BrokerAddr, cfg.Kafka.Topic, "pointsbook-dev", logger)
		defer consumer.Close()
	}

	feed := server.NewFeed()
	manager := server.NewEngineManager(sender, feed)
	manager.SetTreasury(core.UserID(cfg.Engine.Treasury))
	defer manager.Close()

	var info *server.EngineInfo
	switch cfg.Engine.Backend {
	case "redis":
		info, err = manager.CreateRedisEngine(ctx, cfg.Engine.Name, map[string]string{
			"addr":     cfg.Redis.Addr,
			"password": cfg.Redis.Password,
			"db":       strconv.Itoa(cfg.Redis.DB),
			"prefix":   cfg.Redis.Prefix,
		})
	default:
		info, err = manager.CreateMemoryEngine(ctx, cfg.Engine.Name)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create default engine")
	}
	server.LogEngineSummary(logger, info)

	api := server.NewAPI(manager, feed)
	httpServer := setupHTTPServer(ctx, cfg.Server.HTTPAddr, api.Routes())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("Server shutdown complete")
}

// setupHTTPServer starts the API server in a goroutine.
func setupHTTPServer(ctx context.Context, addr string, handler http.Handler) *http.Server {
	logger := zerolog.Ctx(ctx)

	httpServer := &http.Server{
		Addr: addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logger.With().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Logger()
			handler.ServeHTTP(w, r.WithContext(reqLogger.WithContext(r.Context())))
		}),
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	return httpServer
}
