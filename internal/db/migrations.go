package db

import (
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// gooseLogger routes goose output through zap
type gooseLogger struct {
	logger *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...any) { l.logger.Infof(format, v...) }
func (l gooseLogger) Fatalf(format string, v ...any) { l.logger.Fatalf(format, v...) }

// Migrate applies all pending schema migrations
func (d *DB) Migrate() error {
	return d.WithLock(func() error {
		goose.SetBaseFS(migrations)
		goose.SetLogger(gooseLogger{logger: d.logger})
		if err := goose.SetDialect("sqlite3"); err != nil {
			return fmt.Errorf("set goose dialect: %w", err)
		}
		if err := goose.Up(d.db, "migrations"); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	})
}

// Version returns the current schema version
func (d *DB) Version() (int64, error) {
	return WithLockResult(d, func() (int64, error) {
		goose.SetBaseFS(migrations)
		if err := goose.SetDialect("sqlite3"); err != nil {
			return 0, err
		}
		return goose.GetDBVersion(d.db)
	})
}
