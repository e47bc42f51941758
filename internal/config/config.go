package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Invite   InviteConfig
	Room     RoomConfig
	Session  SessionConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	PublicWSURL string // base URL clients use to open game-session sockets
	Debug       bool
	Environment string // "development", "production", "test"
	// InternalToken authenticates server-to-server calls. Empty disables
	// the internal endpoints.
	InternalToken string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
	// How long a token-less notification socket may wait for its auth
	// frame, and the clock-skew leeway granted when verifying tokens.
	HandshakeGrace time.Duration
}

type InviteConfig struct {
	Expiry     time.Duration // hard invitation expiry
	RateLimit  int           // creations per window per sender
	RateWindow time.Duration
}

type RoomConfig struct {
	ReadyTimeout     time.Duration // room torn down if no ready transition
	CountdownSeconds int
	AbandonedAge     time.Duration // empty rooms older than this are swept
	CleanupInterval  time.Duration
}

type SessionConfig struct {
	HandshakeTimeout time.Duration // second-layer ready must complete in this bound
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:          getEnv("SERVER_HOST", "0.0.0.0"),
			Port:          getEnvInt("SERVER_PORT", 8080),
			PublicWSURL:   getEnv("PUBLIC_WS_URL", "ws://localhost:8080"),
			Debug:         getEnvBool("SERVER_DEBUG", false),
			Environment:   getEnv("APP_ENV", "development"),
			InternalToken: getEnv("INTERNAL_API_TOKEN", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "matchpoint"),
			Password: getEnv("DB_PASSWORD", "matchpoint"),
			DBName:   getEnv("DB_NAME", "matchpoint"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			HandshakeGrace: getEnvDuration("AUTH_HANDSHAKE_GRACE", 5*time.Second),
		},
		Invite: InviteConfig{
			Expiry:     getEnvDuration("INVITE_EXPIRY", 2*time.Minute),
			RateLimit:  getEnvInt("INVITE_RATE_LIMIT", 5),
			RateWindow: getEnvDuration("INVITE_RATE_WINDOW", 10*time.Second),
		},
		Room: RoomConfig{
			ReadyTimeout:     getEnvDuration("ROOM_READY_TIMEOUT", 5*time.Minute),
			CountdownSeconds: getEnvInt("ROOM_COUNTDOWN_SECONDS", 3),
			AbandonedAge:     getEnvDuration("ROOM_ABANDONED_AGE", time.Minute),
			CleanupInterval:  getEnvDuration("ROOM_CLEANUP_INTERVAL", 5*time.Minute),
		},
		Session: SessionConfig{
			HandshakeTimeout: getEnvDuration("SESSION_HANDSHAKE_TIMEOUT", 30*time.Second),
		},
	}

	if cfg.Server.Environment == "production" && cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required in production")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
