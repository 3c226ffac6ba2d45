package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"live-avatar-demo/internal/api"
	"live-avatar-demo/internal/config"
	"live-avatar-demo/internal/db"
	"live-avatar-demo/internal/mic"
	"live-avatar-demo/internal/openapi"
	"live-avatar-demo/internal/session"
	"live-avatar-demo/internal/status"
	"live-avatar-demo/internal/transport/relay"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		newLogger("info").Fatalw("failed to load config", "err", err)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		logger.Fatalw("failed to create data directory", "err", err)
	}

	// Initialize database
	database, err := db.NewDB(cfg.DBPath, db.WithLogger(logger.Named("store")))
	if err != nil {
		logger.Fatalw("failed to open database", "path", cfg.DBPath, "err", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(); err != nil {
		logger.Fatalw("failed to migrate database", "err", err)
	}
	logger.Infow("database migrated", "path", cfg.DBPath)

	// Initialize provisioning client (optional)
	var (
		provisioner session.Provisioner
		catalog     api.Catalog
	)
	if cfg.OpenAPI.Configured() {
		client := openapi.NewClient(cfg.OpenAPI.Host, cfg.OpenAPI.Token, openapi.WithLogger(logger.Named("openapi")))
		provisioner, catalog = client, client
		logger.Infow("provisioning client initialized", "host", cfg.OpenAPI.Host)
	} else {
		logger.Warnw("provisioning API token not configured, sessions cannot be started")
	}

	// RTC agent bridge
	bridge := relay.NewBridge(relay.WithLogger(logger.Named("relay")))
	microphone := mic.NewController(bridge, mic.WithLogger(logger.Named("mic")))

	// Notifiers
	broadcaster := api.NewEventBroadcaster(logger.Named("sse"))
	notifiers := session.MultiNotifier{broadcaster}

	if cfg.RedisURL != "" {
		rdb, err := connectRedis(cfg.RedisURL)
		if err != nil {
			logger.Warnw("redis unavailable, status publishing disabled", "err", err)
		} else {
			defer rdb.Close()
			notifiers = append(notifiers, status.NewPublisher(rdb, logger.Named("status")))
			logger.Infow("connected to redis")
		}
	}

	manager := session.NewManager(bridge, provisioner,
		session.WithNotifier(notifiers),
		session.WithStore(database),
		session.WithMicrophone(microphone),
		session.WithLogger(logger.Named("session")),
	)

	router := api.NewRouter(api.Dependencies{
		Manager:     manager,
		Broadcaster: broadcaster,
		Defaults:    cfg.Defaults,
		Catalog:     catalog,
		History:     database,
		Agent:       relay.Handler(bridge, cfg.AgentOrigins),
	}, cfg.StaticDir, logger.Named("api"))

	// Setup server
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Handle graceful shutdown
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Infow("server is shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Close the vendor session before the agent goes away
		if err := manager.Stop(ctx); err != nil {
			logger.Warnw("session teardown had errors", "err", err)
		}
		if err := bridge.Close(); err != nil {
			logger.Warnw("failed to close agent bridge", "err", err)
		}

		if err := server.Shutdown(ctx); err != nil {
			logger.Fatalw("server forced to shutdown", "err", err)
		}

		close(done)
	}()

	logger.Infow("server starting", "port", cfg.Port, "static_dir", cfg.StaticDir)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalw("server failed to start", "err", err)
	}

	<-done
	logger.Infow("server stopped gracefully")
}

func newLogger(level string) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	if level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	}
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger.Sugar()
}

func connectRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}
