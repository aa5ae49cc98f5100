package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type Config struct {
	Port                     string
	PublicURL                string
	StoreURL                 string
	DatabaseURL              string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeSeconds int
	DBConnMaxIdleTimeSeconds int
	TimerTickMillis          int
	VoteDurationSeconds      int
	MediaChannel             string
	VivoxSecret              string
	VivoxIssuer              string
	VivoxDomain              string
	LogLevel                 string
	LogFormat                string
}

func Default() Config {
	return Config{
		Port:                     "8080",
		PublicURL:                "http://localhost:8080",
		StoreURL:                 "ws://localhost:8080/ws",
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           10,
		DBConnMaxLifetimeSeconds: 300,
		DBConnMaxIdleTimeSeconds: 60,
		TimerTickMillis:          1000,
		VoteDurationSeconds:      120,
		MediaChannel:             "subversion-traitors-main",
		LogLevel:                 "info",
		LogFormat:                "console",
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("PORT"); raw != "" {
		cfg.Port = raw
	}
	if raw := os.Getenv("PUBLIC_URL"); raw != "" {
		cfg.PublicURL = raw
	}
	if raw := os.Getenv("STORE_URL"); raw != "" {
		cfg.StoreURL = raw
	}
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		cfg.DatabaseURL = raw
	}
	if raw := os.Getenv("DB_MAX_OPEN_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxOpenConns = value
		}
	}
	if raw := os.Getenv("DB_MAX_IDLE_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxIdleConns = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_LIFETIME_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxLifetimeSeconds = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_IDLE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxIdleTimeSeconds = value
		}
	}
	if raw := os.Getenv("TIMER_TICK_MS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.TimerTickMillis = value
		}
	}
	if raw := os.Getenv("VOTE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value >= 0 {
			cfg.VoteDurationSeconds = value
		}
	}
	if raw := os.Getenv("MEDIA_CHANNEL"); raw != "" {
		cfg.MediaChannel = raw
	}
	if raw := os.Getenv("VIVOX_SECRET"); raw != "" {
		cfg.VivoxSecret = raw
	}
	if raw := os.Getenv("VIVOX_ISSUER"); raw != "" {
		cfg.VivoxIssuer = raw
	}
	if raw := os.Getenv("VIVOX_DOMAIN"); raw != "" {
		cfg.VivoxDomain = raw
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("LOG_FORMAT"); raw != "" {
		cfg.LogFormat = raw
	}
	return cfg
}
