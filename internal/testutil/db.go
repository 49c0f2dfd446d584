package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sciventures/bitmarket-gateway/internal/database"
	"github.com/sciventures/bitmarket-gateway/internal/domain"
)

// NewTestDB spins up a throwaway Postgres container with the gateway schema
// applied. The container and connection are cleaned up with the test.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("bitmarket_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	require.NoError(t, database.Bootstrap(ctx, db))
	return db
}

// InsertOrder seeds an order row the way the host would have created it.
func InsertOrder(t *testing.T, db *sql.DB, order domain.Order) {
	t.Helper()

	if order.Amount == "" {
		order.Amount = "25.00"
	}
	if order.Currency == "" {
		order.Currency = "USD"
	}
	if order.Status == "" {
		order.Status = domain.OrderPending
	}
	if order.Key == "" {
		order.Key = "wc_key_" + order.ID
	}
	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}

	_, err := db.Exec(
		`INSERT INTO orders (id, order_key, amount, currency, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		order.ID, order.Key, order.Amount, order.Currency, order.Status, order.CreatedAt, order.UpdatedAt,
	)
	require.NoError(t, err)
}

// OrderStatus reads back the current status of an order.
func OrderStatus(t *testing.T, db *sql.DB, id string) domain.OrderStatus {
	t.Helper()

	var status domain.OrderStatus
	require.NoError(t, db.QueryRow(`SELECT status FROM orders WHERE id = $1`, id).Scan(&status))
	return status
}

// NoteCount counts the notes recorded for an order.
func NoteCount(t *testing.T, db *sql.DB, id string) int {
	t.Helper()

	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM order_notes WHERE order_id = $1`, id).Scan(&n))
	return n
}
