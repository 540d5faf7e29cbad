//go:build integration

// Package integration exercises the PostgreSQL store against a real server.
// Both CI and local dev use per-test schemas for isolation: CI connects to an
// external PostgreSQL service via CI_DATABASE_URL, local dev starts one shared
// testcontainer per package run.
package integration

import (
	"context"
	"crypto/rand"
	stdsql "database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lvlup-dev/ascent/pkg/database"
	"github.com/lvlup-dev/ascent/pkg/store/postgres"
)

var (
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

// testDB is one isolated schema inside the shared database. DSN carries the
// search_path, so dedicated connections (the NOTIFY listener's pgx.Conn) land
// in the same schema as the pooled store.
type testDB struct {
	DSN    string
	schema string
}

// newTestDB creates a schema for this test, migrates it, and registers a
// cleanup that drops it. Call newStore to open store pools against it.
func newTestDB(t *testing.T) *testDB {
	t.Helper()
	ctx := context.Background()

	baseConnStr := baseConnectionString(t)
	schema := generateSchemaName(t)

	db, err := stdsql.Open("pgx", baseConnStr)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	require.NoError(t, err)
	_ = db.Close()
	t.Logf("created test schema %s", schema)

	dsn := addSearchPath(baseConnStr, schema)

	// Migrate once; every pool opened by newStore shares the schema.
	db, err = stdsql.Open("pgx", dsn)
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(ctx, db))
	_ = db.Close()

	t.Cleanup(func() {
		cleanDB, err := stdsql.Open("pgx", baseConnStr)
		if err != nil {
			t.Logf("warning: could not connect to drop schema %s: %v", schema, err)
			return
		}
		defer func() { _ = cleanDB.Close() }()
		_, err = cleanDB.ExecContext(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema))
		if err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema, err)
		}
	})

	return &testDB{DSN: dsn, schema: schema}
}

// newStore opens an independent connection pool into the test schema. Each
// caller gets its own pool so multi-pod tests can exercise cross-pool
// visibility; the pool is closed via t.Cleanup.
func (d *testDB) newStore(t *testing.T) *postgres.Store {
	t.Helper()

	db, err := stdsql.Open("pgx", d.DSN)
	require.NoError(t, err)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	st := postgres.New(db)
	t.Cleanup(func() { _ = db.Close() })
	return st
}

// newTestStore is the single-pool fast path used by most tests.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	return newTestDB(t).newStore(t)
}

// baseConnectionString returns the connection string without a search_path.
// In CI it comes from CI_DATABASE_URL; locally a shared container is started
// once per package.
func baseConnectionString(t *testing.T) string {
	if ciDatabaseURL := os.Getenv("CI_DATABASE_URL"); ciDatabaseURL != "" {
		t.Log("using external PostgreSQL from CI_DATABASE_URL")
		return ciDatabaseURL
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("starting shared PostgreSQL testcontainer")

		pgContainer, err := tcpostgres.Run(ctx,
			"postgres:17-alpine",
			tcpostgres.WithDatabase("test"),
			tcpostgres.WithUsername("test"),
			tcpostgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("failed to start postgres container: %w", err)
			return
		}

		connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			containerErr = fmt.Errorf("failed to get connection string: %w", err)
			return
		}
		sharedConnStr = connStr
	})

	require.NoError(t, containerErr, "failed to set up shared test container")
	return sharedConnStr
}

// generateSchemaName creates a unique, PostgreSQL-safe schema name scoped to
// the running test. Format: test_<sanitized_test_name>_<random_hex>.
func generateSchemaName(t *testing.T) string {
	name := strings.ToLower(t.Name())
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)

	// Stay under PostgreSQL's 63 char identifier limit.
	if len(name) > 40 {
		name = name[:40]
	}

	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		t.Fatalf("failed to generate schema name suffix: %v", err)
	}
	return fmt.Sprintf("test_%s_%s", name, hex.EncodeToString(randomBytes))
}

// addSearchPath appends a search_path parameter so every pooled connection
// lands in the test schema.
func addSearchPath(connStr, schema string) string {
	separator := "?"
	if strings.Contains(connStr, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%ssearch_path=%s", connStr, separator, schema)
}
