package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/phonestore/internal/models"
)

const sqlitePrefix = "sqlite:"

// Options tweak how the connection is opened.
type Options struct {
	Debug   bool
	Migrate bool
}

// Connect opens the database named by dsn and optionally runs migrations.
// Postgres URLs go through the postgres driver (creating the database when it
// is missing); "sqlite:<path>" opens a local SQLite file for development.
func Connect(dsn string, opts Options) (*gorm.DB, error) {
	level := logger.Warn
	if opts.Debug {
		level = logger.Info
	}
	gcfg := &gorm.Config{
		Logger:                                   logger.Default.LogMode(level),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	}

	var (
		conn *gorm.DB
		err  error
	)
	if strings.HasPrefix(dsn, sqlitePrefix) {
		conn, err = OpenSQLite(strings.TrimPrefix(dsn, sqlitePrefix), gcfg)
	} else {
		if err := ensureDatabase(dsn); err != nil {
			return nil, fmt.Errorf("ensure database: %w", err)
		}
		conn, err = gorm.Open(postgres.Open(dsn), gcfg)
		if err == nil {
			if xerr := conn.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; xerr != nil {
				log.Warn().Err(xerr).Msg("failed to ensure uuid-ossp extension")
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if sqlDB, err := conn.DB(); err == nil {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if opts.Migrate {
		if err := Migrate(conn); err != nil {
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
	}
	return conn, nil
}

// OpenSQLite opens a SQLite database with foreign keys and WAL enabled.
// Use "file:<name>?mode=memory&cache=shared" for an in-memory database.
func OpenSQLite(path string, gcfg *gorm.Config) (*gorm.DB, error) {
	if gcfg == nil {
		gcfg = &gorm.Config{
			Logger:                                   logger.Default.LogMode(logger.Silent),
			DisableForeignKeyConstraintWhenMigrating: true,
			TranslateError:                           true,
		}
	}
	conn, err := gorm.Open(sqlite.Open(path), gcfg)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if err := conn.Exec(pragma).Error; err != nil {
			return nil, err
		}
	}
	if !strings.Contains(path, "mode=memory") {
		if err := conn.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
			return nil, err
		}
	}
	return conn, nil
}

// Migrate creates or updates every table.
func Migrate(conn *gorm.DB) error {
	for _, model := range models.All() {
		if err := conn.AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %T: %w", model, err)
		}
	}
	return nil
}

func ensureDatabase(dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return nil
	}

	parsed.Path = "/postgres"
	sqlDB, err := sql.Open("postgres", parsed.String())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return err
	}

	var exists bool
	if err := sqlDB.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}

	log.Info().Str("database", dbName).Msg("creating database")
	_, err = sqlDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName))
	return err
}
