// Package dbtest starts a throwaway PostgreSQL container for integration tests.
package dbtest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/loginguard/internal/database"
)

// TestDB manages a PostgreSQL testcontainer with the schema applied
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	DB         *database.DB
}

// Setup creates a PostgreSQL testcontainer and runs migrations
func Setup(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("loginguard"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	db := database.NewFromPool(pool, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err := db.Ping(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &TestDB{Container: container, ConnString: connStr, DB: db}, nil
}

// Start is Setup for tests: it skips under -short or when docker is unavailable
// and registers teardown with t.Cleanup
func Start(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	tdb, err := Setup(ctx)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}

	t.Cleanup(func() {
		_ = tdb.Teardown(context.Background())
	})
	return tdb
}

// Teardown stops the container and closes the connection pool
func (tdb *TestDB) Teardown(ctx context.Context) error {
	if tdb.DB != nil {
		tdb.DB.Pool.Close()
	}
	if tdb.Container != nil {
		return tdb.Container.Terminate(ctx)
	}
	return nil
}

// Truncate empties the security event table for test isolation
func (tdb *TestDB) Truncate(ctx context.Context) error {
	if _, err := tdb.DB.Pool.Exec(ctx, "TRUNCATE TABLE security_events"); err != nil {
		return fmt.Errorf("failed to truncate security_events: %w", err)
	}
	return nil
}
