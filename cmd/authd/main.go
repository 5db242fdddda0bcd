// Command authd serves the authcore HTTP API.
//
// Configuration comes from AUTHD_* environment variables, optionally loaded
// from a .env file. Without AUTHD_REDIS_ADDR an embedded miniredis is used,
// and without AUTHD_DATABASE_URL accounts live in memory (seeded from
// AUTHD_DEV_ACCOUNT); both are for local development only.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/directory"
	otelexport "github.com/MrEthical07/authcore/metrics/export/otel"
	promexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/observability"
	"github.com/MrEthical07/authcore/transport/httpapi"
	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "authd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	svc, err := loadServiceConfig()
	if err != nil {
		return err
	}

	logger, closeLog, err := observability.NewLogger(observability.LogConfig{
		Level:       svc.LogLevel,
		Dev:         svc.LogDev,
		FilePattern: svc.LogFile,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	if err := observability.InitSentry(svc.SentryDSN, svc.Environment); err != nil {
		logger.Warn("sentry init failed", zap.Error(err))
	}
	defer observability.FlushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// -------- REDIS --------
	var rdb redis.UniversalClient
	if svc.RedisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		logger.Warn("AUTHD_REDIS_ADDR not set; using in-process miniredis", zap.String("addr", mr.Addr()))
		rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:     svc.RedisAddr,
			Password: svc.RedisPassword,
			DB:       svc.RedisDB,
		})
	}
	defer rdb.Close()

	// -------- DIRECTORY --------
	var dir authcore.Directory
	var mem *directory.Memory
	if svc.DatabaseURL != "" {
		pg, pool, err := directory.OpenPostgres(ctx, svc.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if svc.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
		}
		dir = pg
	} else {
		logger.Warn("AUTHD_DATABASE_URL not set; using in-memory directory")
		mem = directory.NewMemory()
		dir = mem
	}

	// -------- ENGINE --------
	cfg, err := svc.engineConfig()
	if err != nil {
		return err
	}

	var sink authcore.AuditSink = authcore.NewJSONWriterSink(os.Stdout)
	if svc.SentryDSN != "" {
		sink = authcore.MultiSink{sink, observability.NewSentrySink(nil, nil)}
	}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(dir).
		WithAuditSink(sink).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if mem != nil && svc.DevAccount != "" {
		if err := seedDevAccount(engine, mem, svc.DevAccount); err != nil {
			return err
		}
	}

	// -------- METRICS --------
	provider := sdkmetric.NewMeterProvider()
	otel.SetMeterProvider(provider)
	defer provider.Shutdown(context.Background())

	otelExp, err := otelexport.NewOTelExporter(otel.Meter("github.com/MrEthical07/authcore"), engine)
	if err != nil {
		return err
	}
	defer otelExp.Close()

	// -------- HTTP --------
	router := httpapi.NewHandler(engine, logger).Router()
	router.Handle("/metrics", promexport.NewPrometheusExporter(engine).Handler()).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:    svc.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authd listening", zap.String("addr", svc.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), svc.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func seedDevAccount(engine *authcore.Engine, mem *directory.Memory, account string) error {
	identifier, secret, ok := strings.Cut(account, ":")
	if !ok || identifier == "" || secret == "" {
		return errors.New("AUTHD_DEV_ACCOUNT must be identifier:password")
	}
	hash, err := engine.PasswordHasher().Hash(secret)
	if err != nil {
		return fmt.Errorf("hash dev account password: %w", err)
	}

	acct := authcore.Account{
		ID:           "dev-1",
		PasswordHash: hash,
		Status:       authcore.AccountActive,
	}
	if strings.Contains(identifier, "@") {
		acct.Email = strings.ToLower(identifier)
	} else {
		acct.Username = identifier
	}
	mem.Put(acct)
	return nil
}
