package db

import (
	"database/sql"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DB wraps the SQLite session history database with exclusive access
type DB struct {
	db     *sql.DB
	mutex  sync.Mutex
	logger *zap.SugaredLogger
}

// Option configures a DB
type Option func(*DB)

// WithLogger sets the store logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(d *DB) {
		d.logger = logger
	}
}

// NewDB opens the database at dbPath
func NewDB(dbPath string, opts ...Option) (*DB, error) {
	// WAL and foreign keys via connection string
	dsn := dbPath + "?_journal_mode=WAL&_foreign_keys=on"

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	// Single connection; the mutex serializes callers on top of it.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	d := &DB{db: sqlDB, logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// WithLock executes fn with exclusive database access
func (d *DB) WithLock(fn func() error) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return fn()
}

// WithLockResult executes fn with exclusive database access and returns its result
func WithLockResult[T any](d *DB, fn func() (T, error)) (T, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return fn()
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) tableExists(tableName string) (bool, error) {
	return WithLockResult(d, func() (bool, error) {
		var count int
		err := d.db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
			tableName,
		).Scan(&count)
		if err != nil {
			return false, err
		}
		return count > 0, nil
	})
}
