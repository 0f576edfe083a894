// Command accountd runs the account service: OTP-gated registration and
// password reset, login with access/refresh tokens, and user administration
// over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davitran/accountd/internal/account"
	"github.com/davitran/accountd/internal/challenge"
	"github.com/davitran/accountd/internal/config"
	"github.com/davitran/accountd/internal/httpapi"
	"github.com/davitran/accountd/internal/mailer"
	"github.com/davitran/accountd/internal/observability/logger"
	"github.com/davitran/accountd/internal/password"
	"github.com/davitran/accountd/internal/store/postgres"
	"github.com/davitran/accountd/internal/token"
)

func main() {
	configPath := flag.String("config", "", "optional path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "accountd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
	defer logger.Sync()
	log := logger.Named("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	codes, readiness, err := buildChallengeEngine(ctx, cfg)
	if err != nil {
		return err
	}
	readiness = append(readiness, store.Ping)

	hasher, err := password.NewHasher(password.DefaultConfig())
	if err != nil {
		return err
	}
	tokens, err := token.NewManager(token.Config{
		AccessSecret:  []byte(cfg.Token.AccessSecret),
		RefreshSecret: []byte(cfg.Token.RefreshSecret),
		Issuer:        cfg.Token.Issuer,
	})
	if err != nil {
		return err
	}

	svc := account.NewService(store, codes, hasher, tokens,
		mailer.NewSMTPSender(mailer.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		}),
		account.Config{
			AccessTTL:  cfg.Token.AccessTTL,
			RefreshTTL: cfg.Token.RefreshTTL,
		})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router := httpapi.NewRouter(httpapi.NewHandler(svc, registry), registry, httpapi.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Readiness:          readiness,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

// buildChallengeEngine picks the code store backend. Redis is the default;
// the in-process store suits single-instance and test deployments.
func buildChallengeEngine(ctx context.Context, cfg *config.Config) (*challenge.Engine, []func(context.Context) error, error) {
	switch cfg.Challenge.Kind {
	case "memory":
		return challenge.NewEngine(challenge.NewMemoryStore(), cfg.Challenge.TTL, cfg.Challenge.Digits), nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Named("main").Warn("redis startup ping failed", zap.Error(err))
		}
		probe := func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return challenge.NewEngine(challenge.NewRedisStore(client), cfg.Challenge.TTL, cfg.Challenge.Digits),
			[]func(context.Context) error{probe}, nil
	default:
		return nil, nil, fmt.Errorf("unknown challenge store %q", cfg.Challenge.Kind)
	}
}
