package main

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ottkdev/standoff2com-sub001/internal/infra/logging"
	"github.com/ottkdev/standoff2com-sub001/internal/infra/pgutils"
	"github.com/ottkdev/standoff2com-sub001/pkg/envconf"
)

//go:embed migrations/*.sql
var baseFS embed.FS

//go:embed test_data/*.sql
var devFS embed.FS

// seeds keep their own version table so they never collide with schema
// versions
const seedMigrationsTable = "seed_migrations"

type migratorConfig struct {
	DSN      string        `env:"PG_DSN"`
	LogLevel zapcore.Level `env:"APP_LOG_LEVEL" default:"info"`
	AppEnv   string        `env:"APP_ENV" default:"PROD"`
}

func main() {
	cfg := new(migratorConfig)

	err := envconf.LoadWithDotenv(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.Must(cfg.LogLevel, "migrator")
	defer func() { _ = log.Sync() }()

	err = migrateAll(cfg, log)
	if err != nil {
		log.Error("migration run failed", zap.Error(err))
		//nolint:gocritic
		os.Exit(1)
	}

	log.Info("migration run finished successfully")
}

func migrateAll(cfg *migratorConfig, log *zap.Logger) error {
	if cfg.DSN == "" {
		return errors.New("PG_DSN is required")
	}

	db, err := sql.Open(pgutils.DriverName, cfg.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	//nolint:errcheck
	defer db.Close()

	err = db.Ping()
	if err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	err = runMigrations(db, &postgres.Config{}, baseFS, "migrations")
	if err != nil {
		return fmt.Errorf("base migrations failed: %w", err)
	}

	log.Info("base migrations applied")

	if cfg.AppEnv == "DEV" {
		err = runMigrations(db, &postgres.Config{MigrationsTable: seedMigrationsTable}, devFS, "test_data")
		if err != nil {
			return fmt.Errorf("dev seed migrations failed: %w", err)
		}

		log.Info("dev seed migrations applied")
	}

	return nil
}

func runMigrations(db *sql.DB, pgCfg *postgres.Config, fsys embed.FS, dir string) error {
	driver, err := postgres.WithInstance(db, pgCfg)
	if err != nil {
		return fmt.Errorf("init postgres driver: %w", err)
	}

	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("m.Up: %w", err)
	}

	return nil
}
