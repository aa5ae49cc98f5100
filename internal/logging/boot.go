package logging

import (
	"io"

	"traitors-table/internal/config"

	"github.com/rs/zerolog"
)

// Boot loads the .env file at envPath, then the config, then builds the
// process logger from it. A bad .env is logged and otherwise ignored.
func Boot(envPath string, out io.Writer) (config.Config, zerolog.Logger) {
	envErr := config.LoadDotEnv(envPath)
	cfg := config.Load()
	log := NewWithWriter(out, cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		log.Warn().Err(envErr).Str("path", envPath).Msg("failed to load .env")
	}
	return cfg, log
}
