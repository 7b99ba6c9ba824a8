// Package health provides health check implementations for external dependencies.
package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single dependency check.
const DefaultTimeout = 2 * time.Second

// DBChecker implements health checking for the listings database.
type DBChecker struct {
	db      *sql.DB
	timeout time.Duration
}

// NewDBChecker creates a new database health checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{
		db:      db,
		timeout: DefaultTimeout,
	}
}

// HealthCheck pings the database.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}
