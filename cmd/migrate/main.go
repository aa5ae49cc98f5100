package main

import (
	"errors"
	"flag"
	"os"

	"traitors-table/internal/db"
	"traitors-table/internal/logging"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	down := flag.Bool("down", false, "roll back the most recent migration")
	auto := flag.Bool("auto", false, "sync tables from the gorm models instead of db/migrations (local databases only)")
	flag.Parse()

	cfg, log := logging.Boot(".env", os.Stdout)
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	if *auto {
		conn, err := db.Open(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		if err := db.Migrate(conn); err != nil {
			log.Fatal().Err(err).Msg("auto migration failed")
		}
		log.Info().Msg("tables synced from models")
		return
	}

	m, err := migrate.New("file://db/migrations", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("migration setup failed")
	}
	defer m.Close()

	if *down {
		err = m.Steps(-1)
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal().Err(err).Msg("database migration failed")
	}
	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		log.Warn().Err(verr).Msg("could not read schema version")
	}
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("database migrations applied")
}
