//go:build integration

package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers Postgres instance seeded with scenario data.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	Pool      *pgxpool.Pool
}

// NewPostgres starts Postgres, creates the registry tables and seeds the scenarios.
// DATABASE_URL, when set, is used instead of starting a container.
func NewPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	pc := &PostgresContainer{}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pc.DSN = dsn
	} else {
		container, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("patientcheck_test"),
			postgres.WithUsername("patientcheck"),
			postgres.WithPassword("patientcheck_test_password"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			t.Fatalf("failed to start postgres container: %v", err)
		}
		t.Cleanup(func() { _ = container.Terminate(context.Background()) })
		pc.Container = container

		pc.DSN, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			t.Fatalf("failed to get postgres connection string: %v", err)
		}
	}

	pool, err := pgxpool.New(ctx, pc.DSN)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(pool.Close)
	pc.Pool = pool

	unlock, err := AcquireDBLock(ctx, pool)
	if err != nil {
		t.Fatalf("failed to lock database: %v", err)
	}
	t.Cleanup(func() { _ = unlock() })

	if err := ResetSchema(ctx, pool); err != nil {
		t.Fatalf("failed to reset schema: %v", err)
	}
	if err := SeedScenarios(ctx, pool); err != nil {
		t.Fatalf("failed to seed scenarios: %v", err)
	}

	return pc
}

// RedisContainer wraps a testcontainers Redis instance.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	Client    *redis.Client
}

// NewRedis starts Redis. REDIS_URL, when set, is used instead of starting a container.
func NewRedis(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	rc := &RedisContainer{}
	if url := os.Getenv("REDIS_URL"); url != "" {
		rc.URL = url
	} else {
		container, err := tcredis.Run(ctx, "redis:7-alpine")
		if err != nil {
			t.Fatalf("failed to start redis container: %v", err)
		}
		t.Cleanup(func() { _ = container.Terminate(context.Background()) })
		rc.Container = container

		rc.URL, err = container.ConnectionString(ctx)
		if err != nil {
			t.Fatalf("failed to get redis connection string: %v", err)
		}
	}

	opts, err := redis.ParseURL(rc.URL)
	if err != nil {
		t.Fatalf("failed to parse redis URL: %v", err)
	}
	rc.Client = redis.NewClient(opts)
	t.Cleanup(func() { _ = rc.Client.Close() })

	if err := rc.Client.Ping(ctx).Err(); err != nil {
		t.Fatalf("failed to ping redis: %v", err)
	}
	if err := FlushRedis(ctx, rc.Client); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}

	return rc
}
