package health

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func TestDBChecker(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	checker := NewDBChecker(db)
	if err := checker.HealthCheck(context.Background()); err != nil {
		t.Fatalf("expected healthy database, got %v", err)
	}

	db.Close()
	if err := checker.HealthCheck(context.Background()); err == nil {
		t.Error("expected an error from a closed database")
	}
}

func TestDBChecker_ContextCancellation(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewDBChecker(db).HealthCheck(ctx); err == nil {
		t.Error("expected error with cancelled context")
	}
}
