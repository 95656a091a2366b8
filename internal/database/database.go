// Package database provides SQLite storage for the feed reader.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB implements Store on top of database/sql. The SQL dialect is chosen by flavor.
type DB struct {
	conn       *sql.DB
	flavor     sqlbuilder.Flavor
	backend    string
	concurrent bool
	isConflict func(error) bool
	now        func() time.Time
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// sqliteDSN enables foreign keys, WAL and a sortable UTC time format.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

// New opens or creates an SQLite database at the given path and migrates it.
func New(path string) (*DB, error) {
	if err := Migrate(DriverSQLite, path); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	conn, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite only supports one writer at a time; item workers queue on this connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	log.WithField("path", path).Debug("Opened SQLite database")
	return &DB{
		conn:       conn,
		flavor:     sqlbuilder.SQLite,
		backend:    "SQLite",
		concurrent: false,
		isConflict: isSQLiteConflict,
		now:        time.Now,
	}, nil
}

func isSQLiteConflict(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return db.backend
}

// SupportsHighConcurrency reports whether concurrent writers are worthwhile.
func (db *DB) SupportsHighConcurrency() bool {
	return db.concurrent
}

// timestamp returns the current time in UTC so stored values sort lexically.
func (db *DB) timestamp() time.Time {
	return db.now().UTC()
}

// translate maps driver errors to package sentinels.
func (db *DB) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case db.isConflict(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}
