package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nkiryanov/accounts/internal/db"
	"github.com/nkiryanov/accounts/internal/handlers"
	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/mail"
	"github.com/nkiryanov/accounts/internal/metrics"
	"github.com/nkiryanov/accounts/internal/repository/postgres"
	"github.com/nkiryanov/accounts/internal/service/auth"
	"github.com/nkiryanov/accounts/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/accounts/internal/service/passwordreset"
	"github.com/nkiryanov/accounts/internal/service/sweeper"
	"github.com/nkiryanov/accounts/internal/service/user"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	pool    *pgxpool.Pool
	sweeper *sweeper.Sweeper
	resets  *passwordreset.Service
	logger  logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	app, err := newServerApp(c, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return app, nil
}

func newServerApp(c *Config, pool *pgxpool.Pool, l logger.Logger) (*ServerApp, error) {
	storage := postgres.NewStorage(pool)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	var mailer mail.Sender = mail.LogSender{Logger: l}
	if c.SMTPHost != "" {
		mailer = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     c.SMTPHost,
			Port:     c.SMTPPort,
			Username: c.SMTPUser,
			Password: c.SMTPPassword,
			From:     c.MailFrom,
		})
	}

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		AccessSecret:  c.AccessSecret,
		RefreshSecret: c.RefreshSecret,
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	// One hashing pool for logins and reset tokens
	hasher := auth.NewPooledHasher(auth.BcryptHasher{Cost: c.HashCost}, 0)

	authService, err := auth.NewService(auth.Config{Hasher: hasher, Logger: l, Metrics: m}, tokenManager, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	resetService, err := passwordreset.NewService(passwordreset.Config{
		Window:       c.ResetWindow,
		FrontendURL:  c.FrontendURL,
		SupportEmail: c.SupportEmail,
		Logger:       l,
		Metrics:      m,
	}, storage, hasher, mailer)
	if err != nil {
		return nil, fmt.Errorf("error while creating password reset service. Err: %w", err)
	}

	userService, err := user.NewService(storage, l)
	if err != nil {
		return nil, fmt.Errorf("error while creating user service. Err: %w", err)
	}

	sw, err := sweeper.New(sweeper.Config{
		Interval:   c.SweepInterval,
		SessionTTL: c.RefreshTTL,
		Logger:     l,
		Metrics:    m,
	}, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating sweeper. Err: %w", err)
	}

	mux := handlers.NewRouter(authService, resetService, userService, handlers.Config{
		SecureCookie:  c.Environment == logger.EnvProduction,
		AuthRateLimit: c.AuthRateLimit,
		Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	}, l)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		pool:       pool,
		sweeper:    sw,
		resets:     resetService,
		logger:     l,
	}, nil
}

// Run starts http server and sweeper, closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.pool.Close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	sweeperStopped := s.sweeper.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-sweeperStopped

	// Reset emails accepted before shutdown are still sent
	s.resets.Wait()

	return err
}
