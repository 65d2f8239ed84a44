package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/trackchat-backend/internal/data/db"
	"github.com/yungbote/trackchat-backend/internal/observability"
	"github.com/yungbote/trackchat-backend/internal/platform/envutil"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
	"github.com/yungbote/trackchat-backend/internal/services"
)

const (
	PresenceCacheMemory = "memory"
	PresenceCacheRedis  = "redis"
)

type Config struct {
	Port string

	DB db.Options

	PresenceThreshold   time.Duration
	PresenceCache       string
	RedisAddr           string
	RedisPresencePrefix string

	OperatorJWTSecret string
	CORSOrigins       []string

	WSSendBuffer   int
	WSWriteTimeout time.Duration
	WSPingInterval time.Duration

	TrackRatePerSec float64
	TrackRateBurst  int

	MetricsEnabled bool
	MetricsAddr    string

	ShutdownGrace time.Duration

	Otel observability.OtelConfig
}

// LoadConfig reads the process environment, falling back to the YAML file
// named by CONFIG_FILE for keys the environment leaves unset.
func LoadConfig(log *logger.Logger) (Config, error) {
	fallback, err := readConfigFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}
	env := envutil.Source{Fallback: fallback, Log: log}

	cfg := Config{
		Port: env.String("PORT", "8080"),
		DB: db.Options{
			Driver:           env.String("DB_DRIVER", db.DriverPostgres),
			PostgresHost:     env.String("POSTGRES_HOST", "localhost"),
			PostgresPort:     env.String("POSTGRES_PORT", "5432"),
			PostgresUser:     env.String("POSTGRES_USER", "postgres"),
			PostgresPassword: env.String("POSTGRES_PASSWORD", ""),
			PostgresName:     env.String("POSTGRES_NAME", "trackchat"),
			PostgresSSLMode:  env.String("POSTGRES_SSLMODE", "disable"),
			SQLitePath:       env.String("SQLITE_PATH", "trackchat.db"),
		},
		PresenceThreshold:   env.Duration("PRESENCE_THRESHOLD", services.DefaultPresenceThreshold),
		PresenceCache:       strings.ToLower(env.String("PRESENCE_CACHE", PresenceCacheMemory)),
		RedisAddr:           env.String("REDIS_ADDR", ""),
		RedisPresencePrefix: env.String("REDIS_PRESENCE_PREFIX", "trackchat"),
		OperatorJWTSecret:   env.String("OPERATOR_JWT_SECRET", ""),
		CORSOrigins:         env.List("CORS_ALLOWED_ORIGINS", nil),
		WSSendBuffer:        env.Int("WS_SEND_BUFFER", 64),
		WSWriteTimeout:      env.Duration("WS_WRITE_TIMEOUT", 10*time.Second),
		WSPingInterval:      env.Duration("WS_PING_INTERVAL", 30*time.Second),
		TrackRatePerSec:     env.Float("TRACK_RATE_PER_SEC", 5),
		TrackRateBurst:      env.Int("TRACK_RATE_BURST", 20),
		MetricsEnabled:      env.Bool("METRICS_ENABLED", false),
		MetricsAddr:         env.String("METRICS_ADDR", ""),
		ShutdownGrace:       env.Duration("SHUTDOWN_GRACE", 10*time.Second),
		Otel: observability.OtelConfig{
			Enabled:     env.Bool("OTEL_ENABLED", false),
			ServiceName: env.String("OTEL_SERVICE_NAME", "trackchat"),
			Environment: env.String("OTEL_ENVIRONMENT", "development"),
			Version:     env.String("OTEL_SERVICE_VERSION", ""),
			Endpoint:    env.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:     observability.ParseHeaders(env.String("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    env.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio: env.Float("OTEL_SAMPLE_RATIO", 1),
		},
	}

	switch cfg.PresenceCache {
	case PresenceCacheMemory:
	case PresenceCacheRedis:
		if cfg.RedisAddr == "" {
			return Config{}, fmt.Errorf("PRESENCE_CACHE=redis requires REDIS_ADDR")
		}
	default:
		return Config{}, fmt.Errorf("unsupported PRESENCE_CACHE %q", cfg.PresenceCache)
	}
	if cfg.OperatorJWTSecret == "" && log != nil {
		log.Warn("OPERATOR_JWT_SECRET not set; operator routes are open")
	}
	return cfg, nil
}

// readConfigFile flattens a YAML mapping of KEY: value into strings.
func readConfigFile(path string) (map[string]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(doc))
	for k, v := range doc {
		switch val := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			out[strings.ToUpper(k)] = strings.Join(parts, ",")
		default:
			out[strings.ToUpper(k)] = fmt.Sprint(val)
		}
	}
	return out, nil
}
