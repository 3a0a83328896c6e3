package migrations

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"presale-vesting/internal/storage/postgres"
)

func TestLoad_OrdersAndSkipsEmpty(t *testing.T) {
	fsys := fstest.MapFS{
		"pg/002_b.sql": {Data: []byte("SELECT 2;")},
		"pg/001_a.sql": {Data: []byte("SELECT 1;")},
		"pg/003_c.sql": {Data: []byte("  \n")},
		"pg/README.md": {Data: []byte("docs")},
		"pg/sub/x.sql": {Data: []byte("SELECT 9;")},
	}
	got, err := load(fsys, "pg")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "001_a.sql", got[0].name)
	assert.Equal(t, "002_b.sql", got[1].name)
}

func TestEmbeddedClickhouseMigrationsSplit(t *testing.T) {
	files, err := load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.NoError(t, validateNoSemicolonInStrings(files[0].sql))

	stmts := splitStatements(files[0].sql)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS ledger_events")
}

func TestEmbeddedPostgresMigrations(t *testing.T) {
	files, err := load(PostgresFS, "postgres")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, table := range []string{"presales", "participants", "mints", "token_accounts"} {
		assert.Contains(t, files[0].sql, "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- header\nCREATE TABLE a (x UInt8);\n\nCREATE TABLE b (y UInt8)\n;\n")
	assert.Equal(t, []string{"CREATE TABLE a (x UInt8)", "CREATE TABLE b (y UInt8)"}, stmts)
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.Error(t, validateNoSemicolonInStrings("SELECT 'a;b'"))
	assert.NoError(t, validateNoSemicolonInStrings("SELECT 'it''s'; SELECT 1;"))
	assert.NoError(t, validateNoSemicolonInStrings("SELECT ''; SELECT 2;"))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default@localhost:9000/presale")
	require.NoError(t, err)
	assert.Equal(t, "presale", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)

	_, err = databaseFromDSN("clickhouse://localhost:9000/x;DROP")
	assert.Error(t, err)
}

func TestRunPostgresMigrations_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	applied, err := RunPostgresMigrations(ctx, pool)
	require.NoError(t, err)
	require.NotEmpty(t, applied)
	assert.True(t, strings.HasSuffix(applied[0], ".sql"))

	applied, err = RunPostgresMigrations(ctx, pool)
	require.NoError(t, err)
	assert.Empty(t, applied)

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&n))
	files, err := load(PostgresFS, "postgres")
	require.NoError(t, err)
	assert.Equal(t, len(files), n)
}
