// Package database provides a shared Postgres test-fixture helper, used by
// every package whose tests need a real database (Store, cleanup sweeper).
package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	appdatabase "github.com/salesbroker/funnelbroker/pkg/database"
)

// NewTestClient creates a test database client.
// In CI (when CI_DATABASE_URL is set): connects to an external PostgreSQL
// service container. In local dev: spins up a testcontainer with PostgreSQL.
// Either way, migrations run before the client is returned, and the
// container/connection is cleaned up automatically when the test ends.
func NewTestClient(t *testing.T) *appdatabase.Client {
	t.Helper()
	ctx := context.Background()

	if ciURL := os.Getenv("CI_DATABASE_URL"); ciURL != "" {
		t.Log("using external PostgreSQL from CI_DATABASE_URL")
		client, err := appdatabase.NewClientWithDSN(ctx, ciURL, "funnelbroker_test")
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })
		return client
	}

	t.Log("using testcontainers for PostgreSQL")
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("funnelbroker_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := appdatabase.NewClientWithDSN(ctx, connStr, "funnelbroker_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}
