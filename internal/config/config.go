package config

import (
	"errors"
	"log"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "change-me-in-production"

type DatabaseDriver string

const (
	DriverPostgres DatabaseDriver = "postgres"
	DriverSQLite   DatabaseDriver = "sqlite"
)

type (
	Config struct {
		HTTP
		Database
		Auth
		Redis
		Borrow
		Scheduler
		Env string
	}

	HTTP struct {
		Addr            string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
	}
	Database struct {
		Driver       DatabaseDriver
		URL          string // postgres DSN
		SQLitePath   string
		MaxOpenConns int
		MaxIdleConns int
		StoreTimeout time.Duration // upper bound for a single service call against the store
	}
	Auth struct {
		JWTSecret     string
		TokenExpiry   time.Duration
		BcryptCost    int
		AdminEmail    string
		AdminPassword string
		AdminName     string
	}
	Redis struct {
		URL string // empty disables rate limiting
	}
	Borrow struct {
		LoanPeriodDays  int
		FinePerDay      int
		RateLimit       int
		RateLimitWindow time.Duration
	}
	Scheduler struct {
		OverdueSweepSchedule string // cron format, empty disables the sweep
	}
)

// LoanPeriod is the time between acceptance and the due date.
func (b Borrow) LoanPeriod() time.Duration {
	return time.Duration(b.LoanPeriodDays) * 24 * time.Hour
}

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("app_env", "development")
	v.SetDefault("server_addr", ":8080")
	v.SetDefault("http_read_timeout", "15s")
	v.SetDefault("http_write_timeout", "15s")
	v.SetDefault("shutdown_timeout", "5s")

	v.SetDefault("database_driver", string(DriverPostgres))
	v.SetDefault("database_url", "")
	v.SetDefault("sqlite_path", "./library.db")
	v.SetDefault("db_max_open_conns", 20)
	v.SetDefault("db_max_idle_conns", 10)
	v.SetDefault("store_timeout", "5s")

	v.SetDefault("jwt_secret", defaultJWTSecret)
	v.SetDefault("jwt_expiry", "24h")
	v.SetDefault("bcrypt_cost", 10)
	v.SetDefault("admin_email", "")
	v.SetDefault("admin_password", "")
	v.SetDefault("admin_name", "Administrator")

	v.SetDefault("redis_url", "")

	v.SetDefault("loan_period_days", 14)
	v.SetDefault("fine_per_day", 20)
	v.SetDefault("borrow_rate_limit", 10)
	v.SetDefault("borrow_rate_window", "1m")

	v.SetDefault("overdue_sweep_schedule", "0 * * * *") // hourly

	return &Config{
		Env: v.GetString("APP_ENV"),
		HTTP: HTTP{
			Addr:            v.GetString("SERVER_ADDR"),
			ReadTimeout:     v.GetDuration("HTTP_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("HTTP_WRITE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Database: Database{
			Driver:       DatabaseDriver(v.GetString("DATABASE_DRIVER")),
			URL:          v.GetString("DATABASE_URL"),
			SQLitePath:   v.GetString("SQLITE_PATH"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
			StoreTimeout: v.GetDuration("STORE_TIMEOUT"),
		},
		Auth: Auth{
			JWTSecret:     v.GetString("JWT_SECRET"),
			TokenExpiry:   v.GetDuration("JWT_EXPIRY"),
			BcryptCost:    v.GetInt("BCRYPT_COST"),
			AdminEmail:    v.GetString("ADMIN_EMAIL"),
			AdminPassword: v.GetString("ADMIN_PASSWORD"),
			AdminName:     v.GetString("ADMIN_NAME"),
		},
		Redis: Redis{
			URL: v.GetString("REDIS_URL"),
		},
		Borrow: Borrow{
			LoanPeriodDays:  v.GetInt("LOAN_PERIOD_DAYS"),
			FinePerDay:      v.GetInt("FINE_PER_DAY"),
			RateLimit:       v.GetInt("BORROW_RATE_LIMIT"),
			RateLimitWindow: v.GetDuration("BORROW_RATE_WINDOW"),
		},
		Scheduler: Scheduler{
			OverdueSweepSchedule: v.GetString("OVERDUE_SWEEP_SCHEDULE"),
		},
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return errors.New("DATABASE_DRIVER must be postgres or sqlite")
	}
	if c.Borrow.LoanPeriodDays <= 0 {
		return errors.New("LOAN_PERIOD_DAYS must be positive")
	}
	if c.Borrow.FinePerDay < 0 {
		return errors.New("FINE_PER_DAY must not be negative")
	}
	if c.Database.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be positive")
	}

	if c.Env == "production" {
		if c.Auth.JWTSecret == defaultJWTSecret || len(c.Auth.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be changed and at least 32 characters in production")
		}
	} else if c.Auth.JWTSecret == defaultJWTSecret {
		log.Printf("[WARN] config: using the default JWT_SECRET, do not run like this in production")
	}
	return nil
}
