// Command otpgate serves the two-leg login API over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/credential"
	"github.com/MrEthical07/otpgate/httpapi"
	otelexport "github.com/MrEthical07/otpgate/metrics/export/otel"
	promexport "github.com/MrEthical07/otpgate/metrics/export/prometheus"
	"github.com/MrEthical07/otpgate/notify"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

// serverConfig holds process settings. Engine tunables are read separately by
// otpgate.LoadConfigFromEnv.
type serverConfig struct {
	HTTPAddr        string        `env:"HTTP_ADDR" env-default:":8080"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" env-default:"15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	LogFormat       string        `env:"LOG_FORMAT" env-default:"text"`
	LogLevel        string        `env:"LOG_LEVEL" env-default:"info"`

	RedisAddr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	DatabaseURL   string `env:"DATABASE_URL" env-required:"true"`
	RunMigrations bool   `env:"DB_MIGRATE" env-default:"true"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" env-default:"587"`
	SMTPTLS      bool   `env:"SMTP_TLS" env-default:"true"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`

	CookieSecure bool   `env:"COOKIE_SECURE" env-default:"true"`
	CookieDomain string `env:"COOKIE_DOMAIN"`

	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" env-default:"false"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("otpgate stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var sc serverConfig
	if err := cleanenv.ReadEnv(&sc); err != nil {
		return fmt.Errorf("read server config: %w", err)
	}
	logger := newLogger(sc.LogFormat, sc.LogLevel)
	slog.SetDefault(logger)

	cfg, err := otpgate.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     sc.RedisAddr,
		Password: sc.RedisPassword,
		DB:       sc.RedisDB,
	})
	defer rdb.Close()

	pool, err := pgxpool.New(ctx, sc.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if sc.RunMigrations {
		db := stdlib.OpenDBFromPool(pool)
		err := credential.Migrate(ctx, db)
		_ = db.Close()
		if err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	tables, err := credential.ParseRoleTables(cfg.Roles.Tables)
	if err != nil {
		return err
	}
	users, err := credential.NewPostgresStore(pool, tables)
	if err != nil {
		return err
	}

	sender, err := newSender(sc, cfg, logger)
	if err != nil {
		return err
	}

	engine, err := otpgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(users).
		WithCodeSender(sender).
		WithAuditSink(otpgate.NewSlogSink(logger.With("component", "audit"))).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	otelExporter, err := otelexport.New(otel.Meter("github.com/MrEthical07/otpgate"), engine)
	if err != nil {
		return fmt.Errorf("register otel instruments: %w", err)
	}
	defer otelExporter.Close()

	api := httpapi.NewHandler(engine, httpapi.Options{
		Cookies: httpapi.CookieConfig{
			Secure: sc.CookieSecure,
			Domain: sc.CookieDomain,
		},
		Logger: logger,
		Health: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			return nil
		},
		RequestTimeout:    sc.RequestTimeout,
		TrustProxyHeaders: sc.TrustProxyHeaders,
	})

	router := api.Router()
	router.Method(http.MethodGet, "/metrics", promexport.New(engine).Handler())

	srv := &http.Server{
		Addr:              sc.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", sc.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newSender(sc serverConfig, cfg otpgate.Config, logger *slog.Logger) (notify.Sender, error) {
	if sc.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set, codes will be logged instead of mailed")
		return notify.LogSender{Logger: logger}, nil
	}
	return notify.NewSMTPSender(notify.SMTPConfig{
		Host:     sc.SMTPHost,
		Port:     sc.SMTPPort,
		TLS:      sc.SMTPTLS,
		Username: sc.SMTPUsername,
		Password: sc.SMTPPassword,
		From:     sc.SMTPFrom,
		CodeTTL:  cfg.Challenge.CodeTTL,
	})
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: lvl, TimeFormat: time.Kitchen}))
}
