package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/metrics"
	"github.com/nkiryanov/accounts/internal/repository"
)

const (
	defaultInterval   = 10 * time.Minute
	defaultResetGrace = time.Hour
)

type Config struct {
	// How often to sweep, 10 minutes if not set
	Interval time.Duration

	// Sessions older than refresh token lifetime can't be rotated anymore
	SessionTTL time.Duration

	// Expired reset tokens are kept a bit to answer "expired" instead of "invalid"
	ResetGrace time.Duration

	Now     func() time.Time
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// Sweeper deletes sessions and reset tokens that can never be used again
// Tokens pointing to them already fail, so sweeping changes nothing visible
type Sweeper struct {
	storage    repository.Storage
	interval   time.Duration
	sessionTTL time.Duration
	resetGrace time.Duration
	now        func() time.Time
	logger     logger.Logger
	metrics    *metrics.Metrics
}

func New(cfg Config, storage repository.Storage) (*Sweeper, error) {
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("session ttl must be positive")
	}

	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.ResetGrace <= 0 {
		cfg.ResetGrace = defaultResetGrace
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	return &Sweeper{
		storage:    storage,
		interval:   cfg.Interval,
		sessionTTL: cfg.SessionTTL,
		resetGrace: cfg.ResetGrace,
		now:        cfg.Now,
		logger:     cfg.Logger.With("component", "sweeper"),
		metrics:    cfg.Metrics,
	}, nil
}

// Run sweeps on every tick until ctx done
// Returned channel is closed when sweeper stopped
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})
	s.logger.Debug("Starting sweeper", "interval", s.interval)

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Sweeper stopped by context")
				return

			case <-ticker.C:
				if _, _, err := s.Sweep(ctx); err != nil {
					s.logger.Error("Sweep failed", "error", err)
				}
			}
		}
	}()

	return stopped
}

// Sweep once, return how many sessions and reset tokens deleted
func (s *Sweeper) Sweep(ctx context.Context) (sessions int64, resets int64, err error) {
	now := s.now()

	sessions, err = s.storage.Session().DeleteCreatedBefore(ctx, now.Add(-s.sessionTTL))
	if err != nil {
		return 0, 0, err
	}

	resets, err = s.storage.Reset().DeleteExpiredBefore(ctx, now.Add(-s.resetGrace))
	if err != nil {
		return sessions, 0, err
	}

	s.metrics.Swept("sessions", sessions)
	s.metrics.Swept("reset_tokens", resets)
	if sessions > 0 || resets > 0 {
		s.logger.Info("Swept dead records", "sessions", sessions, "reset_tokens", resets)
	}

	return sessions, resets, nil
}
