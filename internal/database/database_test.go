package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/culsys/valet-service/internal/config"
)

// mockDBTX verifies at compile time that the DBTX interface covers both
// pool and transaction shapes.
type mockDBTX struct{}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockDBTX) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}

var _ DBTX = (*mockDBTX)(nil)

func TestHealthStatus_JSON(t *testing.T) {
	health := HealthStatus{
		Status:        "healthy",
		TotalConns:    5,
		AcquiredConns: 1,
		IdleConns:     4,
		MaxConns:      20,
	}

	data, err := json.Marshal(health)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"healthy"`)
	assert.NotContains(t, string(data), "error")

	unhealthy := HealthStatus{Status: "unhealthy", Error: "connection refused"}
	data, err = json.Marshal(unhealthy)
	require.NoError(t, err)
	assert.Contains(t, string(data), "connection refused")
}

func TestNew_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// 192.0.2.1 is TEST-NET-1 (RFC 5737), guaranteed unroutable.
	cfg := &config.DatabaseConfig{
		Host:              "192.0.2.1",
		Port:              5432,
		Name:              "testdb",
		User:              "user",
		Password:          "pass",
		SSLMode:           "disable",
		MaxConns:          5,
		MinConns:          1,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
		ConnectTimeout:    2 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := New(ctx, cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Nil(t, db)
}

func TestNew_InvalidDSN(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:    "local host with spaces",
		Port:    5432,
		Name:    "testdb",
		SSLMode: "disable",
	}

	db, err := New(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Nil(t, db)
}
