package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"strikedesk/internal/api"
	"strikedesk/internal/auth"
	"strikedesk/internal/booking"
	"strikedesk/internal/bookingapi"
	"strikedesk/internal/config"
	"strikedesk/internal/desk"
	"strikedesk/internal/events"
	"strikedesk/internal/export"
	"strikedesk/internal/journal"
	"strikedesk/internal/lifecycle"
	"strikedesk/internal/lookup"
	"strikedesk/internal/metrics"
	"strikedesk/internal/notify"
	"strikedesk/internal/slots"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load(".env")

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("DESK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		logger = logger.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog := config.NewCatalogHolder(config.DefaultCatalog())
	if err := config.WatchCatalog(ctx, cfg.Booking.CatalogPath, 30*time.Second, catalog, &logger); err != nil {
		logger.Warn().Err(err).Msg("catalog file not loaded, using built-in catalog")
	}
	logger.Info().Str("catalog", catalog.Get().String()).Msg("catalog ready")

	client := bookingapi.New(cfg.Service.BaseURL, cfg.Service.APIKey, cfg.ServiceTimeout(), &logger)
	client.UseRateLimit(cfg.Service.RequestsPerSecond, cfg.Service.Burst)
	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.CacheTTL() > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		client.UseRedisCache(rdb, cfg.CacheTTL())
	}

	jr, err := journal.Open(cfg.Journal.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open journal error")
	}
	defer jr.Close()

	if cfg.Backup.Enabled {
		backups := journal.NewBackupService(jr, cfg.Backup.Path, cfg.Backup.Interval(), cfg.Backup.Retention(), &logger)
		go backups.Start(ctx)
	}

	bus := events.NewEventBus(&logger)
	if cfg.TelegramEnabled() {
		n, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.Managers, catalog.Get, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("telegram notifications disabled")
		} else {
			n.Subscribe(bus)
		}
	}

	clock := slots.LocationTimeProvider{Loc: cfg.Location()}

	manager := lifecycle.NewManager(client, lifecycle.NewStore(), jr, bus, clock, cfg.ActivationWindow(), &logger)
	scheduler := lifecycle.NewScheduler(manager, cfg.SweepInterval(), &logger)
	go func() {
		scheduler.RunNow(ctx)
		scheduler.Start(ctx)
	}()
	defer scheduler.Stop()

	submitter := booking.NewSubmitter(client, jr, bus, catalog, clock, &logger)
	frontDesk := desk.New(catalog, client, lookup.NewService(client, &logger), submitter, clock, 30*time.Minute, &logger)
	go frontDesk.RunCleanup(ctx, time.Minute)

	deps := api.Deps{
		Auth:           auth.NewService(cfg.Auth.Username, cfg.Auth.PasswordHash, cfg.Auth.Role, &logger),
		Catalog:        catalog,
		Sessions:       frontDesk,
		Lifecycle:      manager,
		Reconciliation: jr,
		Replayer:       client,
		Memberships:    client,
	}
	if cfg.SheetsEnabled() {
		sheets, err := export.NewSheetsSync(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, cfg.Sheets.Range, catalog.Get, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("google sheets export disabled")
		} else {
			deps.Sheets = sheets
		}
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, jr, rdb, client, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().Str("service", cfg.Service.BaseURL).Msg("booking desk started")
	if err := api.NewHTTPServer(cfg.HTTP.Port, deps, &logger).Start(ctx); err != nil {
		logger.Error().Err(err).Msg("api server stopped")
	}
	logger.Info().Msg("booking desk stopped")
}

func startHealthServer(ctx context.Context, port int, jr *journal.DB, rdb *redis.Client, client *bookingapi.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := jr.PingContext(ctxPing); err != nil {
			http.Error(w, "journal not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		if err := client.HealthCheck(ctxPing); err != nil {
			http.Error(w, "booking service not reachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
