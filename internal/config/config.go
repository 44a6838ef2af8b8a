package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server holds the dev server configuration.
type Server struct {
	Host string
	Port int

	JWTSecret    string
	SessionHours int

	// StoreDriver selects the backend: "memory" (seeded fixtures) or
	// "sqlite".
	StoreDriver string
	SQLiteDSN   string

	// RedisAddr enables the Redis presence tracker when non-empty;
	// otherwise presence is tracked in process.
	RedisAddr string

	CORSOrigins []string
	LogLevel    string
}

// Client holds the terminal client configuration.
type Client struct {
	// ServerURL points at a dev server; empty selects the in-process mock
	// backend.
	ServerURL string
	// UserID selects the session user; 0 means the server default.
	UserID   int64
	LogLevel string
}

// LoadServer reads server settings from the environment, with .env support.
func LoadServer() (*Server, error) {
	_ = godotenv.Load()

	cfg := &Server{
		Host:         getEnv("HTTP_HOST", "0.0.0.0"),
		Port:         getEnvAsInt("HTTP_PORT", 8000),
		JWTSecret:    getEnv("JWT_SECRET", "chatline-dev-secret"),
		SessionHours: getEnvAsInt("SESSION_EXPIRE_HOURS", 24),
		StoreDriver:  getEnv("STORE_DRIVER", "memory"),
		SQLiteDSN:    getEnv("SQLITE_DSN", "chatline.db"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	switch cfg.StoreDriver {
	case "memory", "sqlite":
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (want memory or sqlite)", cfg.StoreDriver)
	}

	cors := getEnv("CORS_ORIGINS", "")
	if cors != "" {
		parts := strings.Split(cors, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	return cfg, nil
}

// LoadClient reads client settings from the environment, with .env support.
func LoadClient() (*Client, error) {
	_ = godotenv.Load()

	return &Client{
		ServerURL: os.Getenv("CHATLINE_SERVER"),
		UserID:    int64(getEnvAsInt("CHATLINE_USER", 0)),
		LogLevel:  getEnv("LOG_LEVEL", "warn"),
	}, nil
}

func (c *Server) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Server) SessionTTL() time.Duration {
	return time.Duration(c.SessionHours) * time.Hour
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
