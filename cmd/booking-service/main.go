package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"qsmart/booking-service/internal/config"
	"qsmart/booking-service/internal/httpapi"
	"qsmart/booking-service/internal/hub"
	"qsmart/booking-service/internal/ledger"
	"qsmart/booking-service/internal/notify"
	"qsmart/booking-service/internal/store"
	"qsmart/booking-service/internal/store/memory"
	"qsmart/booking-service/internal/store/postgres"
	"qsmart/booking-service/internal/store/sqlite"
	"qsmart/booking-service/internal/telemetry"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "booking-service"

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", serviceName).Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}
	logger = configureLogger(logger, cfg)

	shutdownTracing := telemetry.Setup(serviceName, logger)

	bookingStore, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("store open")
	}
	defer closeStore()

	cal, cat, loc, err := cfg.Branch.Build()
	if err != nil {
		logger.Fatal().Err(err).Msg("branch config")
	}

	realtime := hub.New(logger)
	broadcasters := []ledger.Broadcaster{realtime}
	publisher := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	if publisher != nil {
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn().Err(err).Msg("kafka writer close")
			}
		}()
		broadcasters = append(broadcasters, publisher)
	}

	provider := notify.NewProvider(notify.ProviderConfig{
		Kind:         cfg.MailProvider,
		WebhookURL:   cfg.MailWebhookURL,
		WebhookToken: cfg.MailWebhookToken,
	}, logger)
	mailer := notify.NewMailer(provider, cfg.MailTemplate, loc, logger)

	bookings := ledger.New(bookingStore, ledger.Options{
		Branch:             cfg.Branch.Name,
		Location:           loc,
		Calendar:           cal,
		Catalog:            cat,
		MinutesPerCustomer: cfg.Branch.MinutesPerCustomer,
		Broadcaster:        notify.NewFanout(broadcasters...),
		Mailer:             mailer,
	})

	handler := httpapi.NewHandler(bookings, httpapi.Options{StaffToken: cfg.StaffToken})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:       cfg.RateLimitPerMinute,
		IPBurst:           cfg.RateLimitBurst,
		CustomerPerMinute: cfg.CustomerRateLimitPerMinute,
		CustomerBurst:     cfg.CustomerRateLimitBurst,
		TrustProxy:        cfg.TrustProxy,
	})

	var api http.Handler = limiter.Middleware(handler.Routes())
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable at startup")
		}
		cancel()
		shared := httpapi.NewRedisRateLimiter(rdb, cfg.RedisRateLimitPerMinute, time.Minute, "booking:rl", cfg.TrustProxy)
		api = shared.Middleware(logger, cfg.RedisFailOpen, api)
	}
	api = httpapi.LoggingMiddleware(logger, api)

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/realtime/", realtime.Handler("/realtime", cfg.StaffToken))
	mux.Handle("/", api)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(mux, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Str("branch", cfg.Branch.Name).Msg("booking-service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	scanCtx, stopScan := context.WithCancel(context.Background())
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		ledger.NewExpiryScanner(bookings).Loop(scanCtx, cfg.ExpiryInterval, func(count int, err error) {
			if err != nil {
				logger.Error().Err(err).Msg("expiry sweep failed")
				return
			}
			if count > 0 {
				logger.Info().Int("count", count).Msg("expired pending bookings")
			}
		})
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopScan()
	<-scanDone

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	mailer.Wait()
	if err := shutdownTracing(ctx); err != nil {
		logger.Warn().Err(err).Msg("tracer shutdown")
	}
}

func configureLogger(logger zerolog.Logger, cfg config.Config) zerolog.Logger {
	if cfg.LogFormat == "console" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func openStore(cfg config.Config) (store.BookingStore, func(), error) {
	switch cfg.StoreDriver {
	case "sqlite":
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case "memory":
		return memory.New(), func() {}, nil
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pool, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.Options{MaxConns: int32(cfg.DBMaxConns)})
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewStore(pool), pool.Close, nil
	}
}
