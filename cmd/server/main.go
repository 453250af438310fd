package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kavia-common/data-insight-assistant/internal/handlers"
	"github.com/kavia-common/data-insight-assistant/internal/store"
	"github.com/kavia-common/data-insight-assistant/pkg/config"
	"github.com/kavia-common/data-insight-assistant/pkg/logger"
)

// AppConfig holds the service configuration
type AppConfig struct {
	Port int `mapstructure:"port"`
	CORS struct {
		Origin string `mapstructure:"origin"`
	} `mapstructure:"cors"`
	NLQ struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"nlq"`
	RateLimit struct {
		PerMinute int `mapstructure:"perminute"`
		Burst     int `mapstructure:"burst"`
	} `mapstructure:"ratelimit"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Store store.Config `mapstructure:"store"`
}

func main() {
	// Set defaults only if not set
	if os.Getenv("INSIGHT_PORT") == "" {
		os.Setenv("INSIGHT_PORT", "8080")
	}
	if os.Getenv("INSIGHT_CORS_ORIGIN") == "" {
		os.Setenv("INSIGHT_CORS_ORIGIN", "*")
	}
	if os.Getenv("INSIGHT_NLQ_ENABLED") == "" {
		os.Setenv("INSIGHT_NLQ_ENABLED", "true")
	}
	if os.Getenv("INSIGHT_RATELIMIT_PERMINUTE") == "" {
		os.Setenv("INSIGHT_RATELIMIT_PERMINUTE", "120")
	}
	if os.Getenv("INSIGHT_RATELIMIT_BURST") == "" {
		os.Setenv("INSIGHT_RATELIMIT_BURST", "30")
	}
	if os.Getenv("INSIGHT_LOG_LEVEL") == "" {
		os.Setenv("INSIGHT_LOG_LEVEL", "INFO")
	}
	if os.Getenv("INSIGHT_LOG_FORMAT") == "" {
		os.Setenv("INSIGHT_LOG_FORMAT", "json")
	}

	var cfg AppConfig
	if err := config.Load("INSIGHT_", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logger.Get()
	log.Info("starting data insight assistant", "port", cfg.Port, "driver", cfg.Store.Driver)

	st, err := store.Open(cfg.Store)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	router := handlers.NewRouter(st, handlers.RouterConfig{
		CORSOrigin:         cfg.CORS.Origin,
		RateLimitPerMinute: cfg.RateLimit.PerMinute,
		RateLimitBurst:     cfg.RateLimit.Burst,
		NLQEnabled:         cfg.NLQ.Enabled,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", "error", err)
	}
	log.Info("server stopped")
}
