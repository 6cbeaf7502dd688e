// Package health provides readiness checks for the optional molrank
// backends.
package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single check when the caller's context has no
// earlier deadline.
const DefaultTimeout = 2 * time.Second

// DBChecker implements health checking for SQL databases.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a new database health checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}
