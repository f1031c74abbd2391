package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// New opens a PostgreSQL connection pool and verifies it with a ping.
func New(dsn string, maxConns, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Close closes the pool, tolerating a nil handle.
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
