// Package bootstrap builds the shared runtime pieces used by the binaries.
package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/randevu-desk/internal/bookingapi"
	appconfig "github.com/wolfman30/randevu-desk/internal/config"
	"github.com/wolfman30/randevu-desk/internal/tenancy"
	"github.com/wolfman30/randevu-desk/pkg/logging"
)

// BuildLogger returns the process logger for cfg.
func BuildLogger(cfg *appconfig.Config) *logging.Logger {
	if cfg == nil {
		return logging.Default()
	}
	return logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// ResolveSession reads the configured token sources (env var first, then
// file) and decodes the session. A missing token yields an empty session and
// no error; the caller decides whether that is fatal.
func ResolveSession(ctx context.Context, cfg *appconfig.Config) (tenancy.Session, error) {
	if cfg == nil {
		return tenancy.Session{}, nil
	}
	session, err := tenancy.Resolve(ctx,
		tenancy.EnvSource(cfg.TokenEnvVar),
		tenancy.FileSource(cfg.TokenFile),
	)
	if errors.Is(err, tenancy.ErrNoToken) {
		return tenancy.Session{}, nil
	}
	return session, err
}

// BuildBookingClient returns the REST client for the booking API.
func BuildBookingClient(cfg *appconfig.Config, session tenancy.Session, logger *logging.Logger) *bookingapi.Client {
	return bookingapi.NewClient(cfg.APIBaseURL, session, logger, bookingapi.WithTimeout(cfg.APITimeout))
}
