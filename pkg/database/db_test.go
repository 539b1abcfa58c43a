package database

import (
	"context"
	"net/url"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func TestSessionDSN(t *testing.T) {
	got, err := sessionDSN("postgres://u:p@db:5432/app?sslmode=disable", "Asia/Kathmandu", "UTF8")
	require.NoError(t, err)
	u, err := url.Parse(got)
	require.NoError(t, err)
	require.Equal(t, "disable", u.Query().Get("sslmode"))
	require.Equal(t, "Asia/Kathmandu", u.Query().Get("TimeZone"))
	require.Equal(t, "UTF8", u.Query().Get("client_encoding"))

	got, err = sessionDSN("host=db dbname=app", "America/New_York", "")
	require.NoError(t, err)
	require.Equal(t, "host=db dbname=app TimeZone='America/New_York'", got)

	got, err = sessionDSN("host=db", "", "")
	require.NoError(t, err)
	require.Equal(t, "host=db", got)

	require.Equal(t, `'it\'s'`, quoteConnValue("it's"))
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig("", "Asia/Kathmandu", "")
	require.Contains(t, cfg.DSN, "localhost:5432")
	require.Equal(t, "Asia/Kathmandu", cfg.TimeZone)
	require.Equal(t, 10, cfg.MaxConns)
}

func TestConnectIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := Connect(NewConfig(dsn, "Asia/Kathmandu", ""))
	require.NoError(t, err)
	defer db.Close()

	var one int
	require.NoError(t, db.Get(&one, "SELECT 1"))
	require.Equal(t, 1, one)

	// hold several connections at once so each one comes from the pool
	ctx := context.Background()
	var conns []*sqlx.Conn
	for i := 0; i < 3; i++ {
		c, err := db.Connx(ctx)
		require.NoError(t, err)
		conns = append(conns, c)
	}
	for _, c := range conns {
		var tz string
		require.NoError(t, c.GetContext(ctx, &tz, "SHOW TimeZone"))
		require.Equal(t, "Asia/Kathmandu", tz)
		require.NoError(t, c.Close())
	}
}
