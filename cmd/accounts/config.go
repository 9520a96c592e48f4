package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/accounts/internal/logger"
)

const (
	defaultListenAddr    = "localhost:8000"
	defaultLoggingLevel  = logger.LevelInfo
	defaultEnvironment   = logger.EnvProduction
	defaultAccessTTL     = 15 * time.Minute
	defaultRefreshTTL    = 14 * 24 * time.Hour
	defaultHashCost      = bcrypt.DefaultCost
	defaultResetWindow   = 15 * time.Minute
	defaultFrontendURL   = "http://localhost:3000"
	defaultSMTPPort      = 587
	defaultAuthRateLimit = 20
	defaultSweepInterval = 10 * time.Minute
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the accounts service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Keys to sign access and refresh tokens, both required and must differ
	AccessSecret  string
	RefreshSecret string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Bcrypt cost for passwords and reset secrets
	HashCost int

	// Password reset link lifetime and the page it points to
	ResetWindow  time.Duration
	FrontendURL  string
	SupportEmail string

	// Emails are only logged if SMTP host is empty
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	MailFrom     string

	// Requests per minute from one IP to auth endpoints
	AuthRateLimit int

	// How often dead sessions and reset tokens are removed
	SweepInterval time.Duration

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:      defaultLoggingLevel,
		ListenAddr:    defaultListenAddr,
		Environment:   defaultEnvironment,
		AccessTTL:     defaultAccessTTL,
		RefreshTTL:    defaultRefreshTTL,
		HashCost:      defaultHashCost,
		ResetWindow:   defaultResetWindow,
		FrontendURL:   defaultFrontendURL,
		SMTPPort:      defaultSMTPPort,
		AuthRateLimit: defaultAuthRateLimit,
		SweepInterval: defaultSweepInterval,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			v, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = v
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			v, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = v
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":     setString(&c.ListenAddr),
		"DATABASE_URI":    setString(&c.DatabaseDSN),
		"ACCESS_SECRET":   setString(&c.AccessSecret),
		"REFRESH_SECRET":  setString(&c.RefreshSecret),
		"ACCESS_TTL":      setDuration(&c.AccessTTL),
		"REFRESH_TTL":     setDuration(&c.RefreshTTL),
		"HASH_COST":       setInt(&c.HashCost),
		"RESET_WINDOW":    setDuration(&c.ResetWindow),
		"FRONTEND_URL":    setString(&c.FrontendURL),
		"SUPPORT_EMAIL":   setString(&c.SupportEmail),
		"SMTP_HOST":       setString(&c.SMTPHost),
		"SMTP_PORT":       setInt(&c.SMTPPort),
		"SMTP_USER":       setString(&c.SMTPUser),
		"SMTP_PASSWORD":   setString(&c.SMTPPassword),
		"MAIL_FROM":       setString(&c.MailFrom),
		"AUTH_RATE_LIMIT": setInt(&c.AuthRateLimit),
		"SWEEP_INTERVAL":  setDuration(&c.SweepInterval),
		"LOG_LEVEL":       setString(&c.LogLevel),
		"ENVIRONMENT":     setString(&c.Environment),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("accounts", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVar(&c.AccessSecret, "access-secret", c.AccessSecret, "Access token secret key")
	fs.StringVar(&c.RefreshSecret, "refresh-secret", c.RefreshSecret, "Refresh token secret key")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token and session lifetime")
	fs.IntVar(&c.HashCost, "hash-cost", c.HashCost, "Bcrypt cost")
	fs.DurationVar(&c.ResetWindow, "reset-window", c.ResetWindow, "Password reset link lifetime")
	fs.StringVar(&c.FrontendURL, "frontend-url", c.FrontendURL, "Frontend base url used in reset links")
	fs.StringVar(&c.SupportEmail, "support-email", c.SupportEmail, "Support address shown in emails")
	fs.StringVar(&c.SMTPHost, "smtp-host", c.SMTPHost, "SMTP host, emails are only logged if empty")
	fs.IntVar(&c.SMTPPort, "smtp-port", c.SMTPPort, "SMTP port")
	fs.StringVar(&c.SMTPUser, "smtp-user", c.SMTPUser, "SMTP username")
	fs.StringVar(&c.SMTPPassword, "smtp-password", c.SMTPPassword, "SMTP password")
	fs.StringVar(&c.MailFrom, "mail-from", c.MailFrom, "Sender address")
	fs.IntVar(&c.AuthRateLimit, "auth-rate-limit", c.AuthRateLimit, "Requests per minute from one IP to auth endpoints, 0 disables")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "How often expired sessions and reset tokens are removed")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (development, production)")

	return fs.Parse(args)
}

// Validate settings the service can't start without
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	if c.AccessSecret == "" || c.RefreshSecret == "" {
		errs = append(errs, errors.New("access and refresh secrets are required"))
	} else if c.AccessSecret == c.RefreshSecret {
		errs = append(errs, errors.New("access and refresh secrets must differ"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.ResetWindow <= 0 || c.SweepInterval <= 0 {
		errs = append(errs, errors.New("token lifetimes, reset window and sweep interval must be positive"))
	}
	if c.HashCost < bcrypt.MinCost || c.HashCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("hash cost must be in [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.SMTPHost != "" && (c.SMTPPort <= 0 || c.SMTPPort > 65535 || c.MailFrom == "") {
		errs = append(errs, errors.New("smtp needs valid port and sender address"))
	}
	if c.AuthRateLimit < 0 {
		errs = append(errs, errors.New("auth rate limit must not be negative"))
	}

	return errors.Join(errs...)
}
