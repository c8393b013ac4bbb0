package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/salah0eldin/autonmous-iot-car/internal/carlink"
	"github.com/salah0eldin/autonmous-iot-car/internal/config"
	"github.com/salah0eldin/autonmous-iot-car/internal/control"
	"github.com/salah0eldin/autonmous-iot-car/internal/httpapi"
	"github.com/salah0eldin/autonmous-iot-car/internal/journal"
	"github.com/salah0eldin/autonmous-iot-car/internal/layout"
	"github.com/salah0eldin/autonmous-iot-car/internal/mqtt"
	"github.com/salah0eldin/autonmous-iot-car/internal/observability"
	"github.com/salah0eldin/autonmous-iot-car/internal/ratelimit"
	"github.com/salah0eldin/autonmous-iot-car/internal/realtime"
)

func main() {
	cfgPath := getEnv("CAR_REMOTE_CONFIG", "config/car-remote.yaml")
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat)
	slog.Info("config loaded", "listen", cfg.ListenAddr, "transport", cfg.Car.Transport, "journal", cfg.Journal.Driver)

	buttons, err := layout.Load(cfg.LayoutPath)
	if err != nil {
		slog.Error("failed to load layout", "error", err)
		os.Exit(1)
	}

	shutdownObs, promHandler, tracer := observability.SetupObservability("car-remote")
	defer shutdownObs()

	link, closeLink := setupCarLink(cfg)
	defer closeLink()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	senders := carlink.Fanout{link}
	var repo *journal.Repo
	if cfg.Journal.Driver != "none" {
		db, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
		if err != nil {
			slog.Error("failed to open journal", "error", err)
			os.Exit(1)
		}
		repo, err = journal.New(db)
		if err != nil {
			slog.Error("failed to migrate journal", "error", err)
			os.Exit(1)
		}
		recorder := journal.NewRecorder(repo, cfg.Journal.Buffer)
		recorder.Start(context.Background())
		defer recorder.Close()
		senders = append(senders, recorder)

		pruner := journal.NewPruner(repo, cfg.Journal.Retention)
		if err := pruner.Start(cfg.Journal.PruneSchedule); err != nil {
			slog.Error("invalid journal prune schedule", "error", err)
			os.Exit(1)
		}
		defer pruner.Stop()
	}

	decoder, err := realtime.NewDecoder()
	if err != nil {
		slog.Error("failed to compile event schema", "error", err)
		os.Exit(1)
	}
	hub := realtime.NewHub(decoder, buttons, senders)

	restSession := control.NewSession("rest", buttons, senders)
	go restSession.Run(ctx)

	var controlMW []func(http.Handler) http.Handler
	if cfg.RateLimitActive() {
		rdb := setupRedisClient(cfg.Redis)
		defer rdb.Close()
		limiter := ratelimit.New(rdb, "car-remote:rl", ratelimit.LimiterConfig{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst})
		controlMW = append(controlMW, limiter.Middleware(ratelimit.KeyByIP))
	}

	srv := httpapi.NewServer(httpapi.Options{
		Layout:            buttons,
		Session:           restSession,
		Control:           hub,
		Journal:           repo,
		ControlMiddleware: controlMW,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(observability.MetricsAndTracingMiddleware(tracer, "car-remote"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promHandler)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv.RegisterRoutes(r)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("car-remote starting", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", "error", err)
			stopCh <- syscall.SIGTERM
		}
	}()

	<-stopCh
	slog.Info("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}

	// Sessions release held buttons on the way out, so the link must still
	// be open here.
	hub.Close()
	cancel()
	<-restSession.Done()
	slog.Info("car-remote stopped")
}

func setupLogging(level, format string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func setupCarLink(cfg *config.Config) (control.Sender, func()) {
	switch cfg.Car.Transport {
	case carlink.TransportMQTT:
		client, err := mqtt.Connect(cfg.MQTT.BrokerURL, cfg.MQTT.ClientID)
		if err != nil {
			slog.Error("failed to connect to mqtt broker", "error", err)
			os.Exit(1)
		}
		link := carlink.NewMQTTLink(client, cfg.MQTT.Topic)
		return link, func() {
			link.Close()
			client.Close()
		}
	default:
		link, err := carlink.NewHTTPLink(cfg.Car.BaseURL, cfg.Car.SendTimeout)
		if err != nil {
			slog.Error("invalid car base url", "error", err)
			os.Exit(1)
		}
		slog.Info("car link ready", "base_url", cfg.Car.BaseURL)
		return link, link.Close
	}
}

func setupRedisClient(cfg config.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       0,
	})
	if pong, err := client.Ping(context.Background()).Result(); err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	} else {
		slog.Info("connected to redis", "pong", pong)
	}
	return client
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
