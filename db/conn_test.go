package db

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestNewPoolRejectsEmptyConnString(t *testing.T) {
	if _, err := NewPool(context.Background(), "", 4); err == nil {
		t.Fatal("expected error for empty connection string")
	}
}

func TestNewPoolRejectsMalformedConnString(t *testing.T) {
	if _, err := NewPool(context.Background(), "postgres://%zz", 4); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNewPoolAppliesMaxConns(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, dsn, 3)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer pool.Close()
	if got := pool.Config().MaxConns; got != 3 {
		t.Fatalf("expected max conns 3, got %d", got)
	}
}
