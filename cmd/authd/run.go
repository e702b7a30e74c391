package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/MrEthical07/sessionauth"
	kafkaaudit "github.com/MrEthical07/sessionauth/audit/kafka"
	"github.com/MrEthical07/sessionauth/google"
	"github.com/MrEthical07/sessionauth/internal/httpapi"
	"github.com/MrEthical07/sessionauth/mail"
	otelexport "github.com/MrEthical07/sessionauth/metrics/export/otel"
	promexport "github.com/MrEthical07/sessionauth/metrics/export/prometheus"
	"github.com/MrEthical07/sessionauth/secrets"
	"github.com/MrEthical07/sessionauth/store/gormstore"
)

// run wires every collaborator, serves until ctx is canceled, and then
// drains in reverse order.
func run(ctx context.Context, cfg serviceConfig, logger *slog.Logger) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	store := gormstore.New(db)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	secretSource, err := signingSecret(cfg)
	if err != nil {
		return err
	}

	b := sessionauth.New().
		WithConfig(cfg.engineConfig()).
		WithAccountStore(store).
		WithSecretProvider(secretSource).
		WithLogger(logger)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		b.WithRedis(rdb)
	}

	sender, err := emailSender(cfg, logger)
	if err != nil {
		return err
	}
	b.WithEmailSender(sender)

	if cfg.GoogleClientID != "" {
		idp, err := google.New(google.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
		if err != nil {
			return err
		}
		b.WithIdentityProvider(idp)
	}

	var sinks sessionauth.AuditMultiSink
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := kafkaaudit.New(kafkaaudit.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		defer sink.Close()
		sinks = append(sinks, sink)
	}
	if cfg.AuditStdout {
		sinks = append(sinks, sessionauth.NewJSONWriterSink(os.Stdout))
	}
	if len(sinks) > 0 {
		b.WithAuditSink(sinks)
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	e := httpapi.NewServer(engine, logger)
	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promexport.NewExporter(engine).Handler()))

		otelExp, err := otelexport.NewExporter(otel.Meter("github.com/MrEthical07/sessionauth"), engine)
		if err != nil {
			return fmt.Errorf("otel exporter: %w", err)
		}
		defer otelExp.Close()
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: e}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("authd listening", "addr", cfg.Addr, "db", cfg.DBDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	engine.Close()
	st := engine.AuditStats()
	logger.Info("audit drained", "delivered", st.Delivered, "dropped", st.Dropped, "panicked", st.Panicked)
	return nil
}

func openDatabase(cfg serviceConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DBDSN)
	default:
		dialector = sqlite.Open(gormstore.SQLiteDSN(cfg.DBDSN))
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}
	return db, nil
}

func signingSecret(cfg serviceConfig) (sessionauth.SecretProvider, error) {
	var source secrets.Provider = secrets.Static(cfg.SigningSecret)
	if cfg.SigningSecretFile != "" {
		source = secrets.File{Path: cfg.SigningSecretFile}
	}
	cached, err := secrets.NewCached(source, cfg.SecretCacheTTL, nil)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

func emailSender(cfg serviceConfig, logger *slog.Logger) (sessionauth.EmailSender, error) {
	if cfg.SMTPHost == "" {
		logger.Warn("no SMTP relay configured; outbound mail is logged only")
		return mail.LogSender{Logger: logger}, nil
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	if err != nil {
		return nil, err
	}
	return sender, nil
}
