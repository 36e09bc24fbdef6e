package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/ginthi/docregistry/pkg/ha"
)

//go:embed migrations/postgres/*.sql migrations/mysql/*.sql
var migrationFS embed.FS

// AutoMigrator is implemented by stores that can create their own tables.
type AutoMigrator interface {
	AutoMigrate() error
}

// Migrate brings the schema up to date while holding the migration lock.
// PostgreSQL and MySQL run the embedded SQL migrations; SQLite, used for
// development and tests, runs each store's AutoMigrate instead.
func Migrate(ctx context.Context, gdb *gorm.DB, cfg Config, locker ha.MigrationLocker, stores []AutoMigrator, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if locker == nil {
		locker = ha.NewMigrationLocker(gdb, nil)
	}
	return locker.WithLock(ctx, func() error {
		if cfg.Type == TypeSQLite {
			for _, s := range stores {
				if err := s.AutoMigrate(); err != nil {
					return err
				}
			}
			logger.Info("auto-migrated sqlite schema", "stores", len(stores))
			return nil
		}

		m, err := newMigrate(cfg)
		if err != nil {
			return err
		}
		defer m.Close()

		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("apply migrations: %w", err)
		}
		version, dirty, _ := m.Version()
		logger.Info("database migrated", "type", cfg.Type, "dsn", redact(cfg.DSN), "version", version, "dirty", dirty)
		return nil
	})
}

// Rollback reverts the given number of SQL migrations.
func Rollback(cfg Config, steps int) error {
	if cfg.Type == TypeSQLite {
		return fmt.Errorf("rollback is not supported for sqlite")
	}
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	m, err := newMigrate(cfg)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("roll back migrations: %w", err)
	}
	return nil
}

// newMigrate opens a dedicated connection for golang-migrate. The caller
// must Close the returned instance.
func newMigrate(cfg Config) (*migrate.Migrate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	src, err := iofs.New(migrationFS, "migrations/"+cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}

	var driver database.Driver
	switch cfg.Type {
	case TypePostgres:
		connector, err := pq.NewConnector(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("invalid postgres DSN: %w", err)
		}
		driver, err = migratepg.WithInstance(sql.OpenDB(connector), &migratepg.Config{})
		if err != nil {
			return nil, fmt.Errorf("init postgres migration driver: %w", err)
		}
	case TypeMySQL:
		dsn, err := mysqlDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		driver, err = migratemysql.WithInstance(sqlDB, &migratemysql.Config{})
		if err != nil {
			return nil, fmt.Errorf("init mysql migration driver: %w", err)
		}
	default:
		return nil, fmt.Errorf("no SQL migrations for %q", cfg.Type)
	}

	m, err := migrate.NewWithInstance("iofs", src, cfg.Type, driver)
	if err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	return m, nil
}
