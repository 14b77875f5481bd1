// Package config validates the small set of environment-variable
// tunables this service accepts, following the same
// validate-and-accumulate-errors pattern used throughout this
// codebase's ambient configuration layer.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropwire/signalbridge/internal/logging"
)

// Config holds the validated tunables for the signaling broker and
// transfer engine.
type Config struct {
	Port string

	RoomExpiry      time.Duration
	ChunkSize       int
	HeartbeatPeriod time.Duration
	HighWaterMark   int64

	GoEnv    string
	LogLevel string
}

// ValidateEnv validates all environment variables and returns a
// Config, applying documented defaults where a variable is unset.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var problems []string

	cfg.Port = getEnvOrDefault("PORT", "8080")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	roomExpiryMS := getEnvOrDefaultInt("ROOM_EXPIRY_MS", 600000)
	if roomExpiryMS <= 0 {
		problems = append(problems, "ROOM_EXPIRY_MS must be positive")
	}
	cfg.RoomExpiry = time.Duration(roomExpiryMS) * time.Millisecond

	cfg.ChunkSize = getEnvOrDefaultInt("CHUNK_SIZE", 65536)
	if cfg.ChunkSize <= 0 {
		problems = append(problems, "CHUNK_SIZE must be positive")
	}

	heartbeatSeconds := getEnvOrDefaultInt("HEARTBEAT_PERIOD_S", 30)
	if heartbeatSeconds <= 0 {
		problems = append(problems, "HEARTBEAT_PERIOD_S must be positive")
	}
	cfg.HeartbeatPeriod = time.Duration(heartbeatSeconds) * time.Second

	cfg.HighWaterMark = int64(getEnvOrDefaultInt("BACKPRESSURE_HIGH_WATER_MARK", 1<<20))
	if cfg.HighWaterMark <= 0 {
		problems = append(problems, "BACKPRESSURE_HIGH_WATER_MARK must be positive")
	}

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	if len(problems) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return n
}

func logValidatedConfig(cfg *Config) {
	logging.Info(context.Background(), "environment configuration validated",
		zap.String("port", cfg.Port),
		zap.Duration("room_expiry", cfg.RoomExpiry),
		zap.Int("chunk_size", cfg.ChunkSize),
		zap.Duration("heartbeat_period", cfg.HeartbeatPeriod),
		zap.Int64("high_water_mark", cfg.HighWaterMark),
		zap.String("go_env", cfg.GoEnv),
	)
}
