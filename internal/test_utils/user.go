package test_utils

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// InsertUser stores a user row directly, bypassing the services.
func InsertUser(t *testing.T, pool *pgxpool.Pool, uuid string, username string, role string) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (uuid, username, role) VALUES ($1, $2, $3)`, uuid, username, role)
	require.NoError(t, err)
}
