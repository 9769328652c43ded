package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courtbook/internal/api"
	"courtbook/internal/auth"
	"courtbook/internal/captcha"
	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/google"
	"courtbook/internal/logging"
	"courtbook/internal/media"
	"courtbook/internal/metrics"
	"courtbook/internal/notify"
	"courtbook/internal/payment"
	"courtbook/internal/repository"
	"courtbook/internal/service"
	"courtbook/internal/tracing"
	"courtbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, baseLogger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := *logging.Component(&baseLogger, "api-main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	db, err := database.NewDB(cfg.Database.Path, &baseLogger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if err := loadSeed(ctx, db, cfg.Auth.BcryptCost, &logger); err != nil {
		return err
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	sessions := initSessions(redisClient, &baseLogger)
	loc := cfg.Location()

	bus := events.NewEventBus(&baseLogger)
	initNotifications(cfg, bus, loc, &baseLogger, &logger)
	if bridge := initAMQP(cfg, bus, &logger); bridge != nil {
		defer func() { _ = bridge.Close() }()
	}

	var ledgerQueue domain.LedgerQueue
	if ledger := initLedger(ctx, cfg, loc, &logger); ledger != nil {
		ledgerWorker := worker.NewLedgerWorker(db, ledger, redisClient, worker.RetryPolicy{}, &baseLogger)
		go ledgerWorker.Start(ctx)
		ledgerQueue = ledgerWorker
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTTL)

	var verifier domain.CaptchaVerifier
	if cfg.Captcha.Enabled {
		verifier = captcha.NewVerifier(cfg.Captcha, nil)
	}

	var mediaStore domain.MediaStore
	if cfg.Media.Enabled() {
		store, err := media.NewStore(cfg.Media)
		if err != nil {
			return fmt.Errorf("init media store: %w", err)
		}
		mediaStore = store
	}

	var gateway domain.PaymentGateway
	if cfg.Payment.Enabled() {
		gw, err := payment.NewGateway(cfg.Payment)
		if err != nil {
			return fmt.Errorf("init payment gateway: %w", err)
		}
		gateway = gw
	} else {
		logger.Warn().Msg("payment gateway not configured, checkout is disabled")
	}

	bookings := service.NewBookingService(db, db, bus, ledgerQueue, cfg.Booking, loc, &baseLogger)
	services := api.Services{
		Auth:         service.NewAuthService(db, sessions, tokens, verifier, bus, cfg.Auth, &baseLogger),
		Users:        service.NewUserService(db, sessions, bus, &baseLogger),
		Facilities:   service.NewFacilityService(db, mediaStore, bus, cfg.Media.Folder, &baseLogger),
		Availability: service.NewAvailabilityService(db, db, loc),
		Bookings:     bookings,
		Payments:     service.NewPaymentService(gateway, bookings, db, &baseLogger),
		Reports:      service.NewReportService(db, db, db, loc),
	}

	sweeper := worker.NewSweeper(db, bookings, cfg.Booking.SweepInterval, cfg.Booking.SweepBatch, &baseLogger)
	go sweeper.Start(ctx)

	backup := database.NewBackupService(db, cfg.Backup, &baseLogger)
	go backup.Start(ctx)

	startMetrics(ctx, cfg, &logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, db, &baseLogger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go grpcServer.RunHealthChecks(ctx, 15*time.Second)
	}

	httpServer := api.NewHTTPServer(cfg.API, services, db, loc, &baseLogger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, *baseLogger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing with in-memory sessions")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initSessions prefers redis and falls back to process memory when it is absent or failing.
func initSessions(client *redis.Client, logger *zerolog.Logger) domain.SessionRepository {
	memory := repository.NewMemorySessionRepository()
	if client == nil {
		return memory
	}
	return repository.NewFailoverSessionRepository(repository.NewRedisSessionRepository(client), memory, logger)
}

func initNotifications(cfg *config.Config, bus *events.EventBus, loc *time.Location, base, logger *zerolog.Logger) {
	var sender domain.MessageSender
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewBotAPI(cfg.Telegram.BotToken, cfg.Telegram.Debug)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, admin alerts are log-only")
		} else {
			sender = tg
		}
	}
	notify.NewNotifier(sender, cfg.Telegram.AdminChatIDs, loc, base).Register(bus)
}

func initAMQP(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) *events.AMQPBridge {
	if cfg.RabbitMQ.URL == "" {
		return nil
	}
	bridge, err := events.DialAMQP(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq unavailable, events stay in-process")
		return nil
	}
	bus.Subscribe(events.AllEvents, bridge.Handle)
	logger.Info().Str("exchange", cfg.RabbitMQ.Exchange).Msg("rabbitmq bridge connected")
	return bridge
}

func initLedger(ctx context.Context, cfg *config.Config, loc *time.Location, logger *zerolog.Logger) domain.LedgerWriter {
	if cfg.Google.CredentialsFile == "" || cfg.Google.SpreadsheetID == "" {
		return nil
	}

	ledger, err := google.NewSheetsLedger(ctx, cfg.Google.CredentialsFile, cfg.Google.SpreadsheetID, cfg.Google.SheetName, loc)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without ledger")
		return nil
	}
	if err := ledger.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("ledger header check failed")
	}
	if err := ledger.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("ledger cache warm-up failed")
	}

	logger.Info().Str("sheet", cfg.Google.SheetName).Msg("google sheets ledger connected")
	return ledger
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("http server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return runErr
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
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
