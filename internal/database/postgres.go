package database

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (c Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// NewPool opens a pool for config and pings it.
func NewPool(ctx context.Context, config Config) (*pgxpool.Pool, error) {
	return NewPoolFromDSN(ctx, config.DSN())
}

// NewPoolFromDSN opens a pool for a postgres:// connection string and pings it.
func NewPoolFromDSN(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// The bridge does one short statement per session change.
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func NewDefaultConfig() Config {
	return Config{
		Host:     "localhost",
		Port:     5432,
		User:     "calq",
		Password: "calq",
		Database: "calq_bridge",
		SSLMode:  "disable",
	}
}

// LoadConfig overlays CALQ_DB_HOST, CALQ_DB_PORT, CALQ_DB_USER, CALQ_DB_PASSWORD,
// CALQ_DB_NAME and CALQ_DB_SSLMODE on the defaults.
func LoadConfig() Config {
	c := NewDefaultConfig()
	if v := os.Getenv("CALQ_DB_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("CALQ_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("CALQ_DB_USER"); v != "" {
		c.User = v
	}
	if v := os.Getenv("CALQ_DB_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("CALQ_DB_NAME"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("CALQ_DB_SSLMODE"); v != "" {
		c.SSLMode = v
	}
	return c
}
