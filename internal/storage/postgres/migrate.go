package postgres

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// MigrationSchema is the schema the embedded migrations create.
const MigrationSchema = defaultSchema

// ApplyMigrations runs every pending up migration found in fsys against
// pool. It reports whether anything was applied.
func ApplyMigrations(pool *pgxpool.Pool, fsys fs.FS, logger *zap.Logger) (bool, error) {
	if pool == nil {
		return false, errors.New("database pool is nil, cannot apply migrations")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sourceDriver, err := iofs.New(fsys, ".")
	if err != nil {
		return false, fmt.Errorf("create embed source driver: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Warn("close migration connection", zap.Error(closeErr))
		}
	}()

	dbDriver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return false, fmt.Errorf("create pgx migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, "pgx5", dbDriver)
	if err != nil {
		return false, fmt.Errorf("create migrate instance: %w", err)
	}

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no database migrations to apply")
			return false, nil
		}
		return false, fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, err := migrator.Version()
	if err != nil {
		return true, fmt.Errorf("read migration version: %w", err)
	}
	logger.Info("database migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return true, nil
}
