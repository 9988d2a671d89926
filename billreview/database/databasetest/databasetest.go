package databasetest

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/go-testfixtures/testfixtures/v3"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pborman/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarity-dx/bill-review/billreview/database"
)

var dsnPattern *regexp.Regexp = regexp.MustCompile(`(?P<conn>postgres(?:ql)?\:\/\/\S+\:\S+\@\S+\:\d+\/)(?P<dbname>[^?]*)(?P<options>\?.*)?`)

// CreateDatabase creates a fresh database next to the one referenced by DATABASE_URL
// and applies the migrations found at migrationPath.
// It returns the sql.DB connection, pgx pool connection, and the created database name
func CreateDatabase(t *testing.T, migrationPath string, cleanup bool) (*sql.DB, *pgxpool.Pool, string) {
	cfg, err := database.LoadConfig()
	require.NoError(t, err)
	dsn := cfg.DatabaseURL

	db, err := database.ConnectWithConfig(context.Background(), cfg)
	require.NoError(t, err)

	newDBName := strings.ReplaceAll(fmt.Sprintf("%s_%s", dbName(dsn), uuid.New()), "-", "_")
	newDSN := dsnPattern.ReplaceAllString(dsn, fmt.Sprintf("${conn}%s${options}", newDBName))

	// CREATE DATABASE ... WITH TEMPLATE requires that nobody is connected to the
	// template, so the schema is rebuilt from migrations instead.
	_, err = db.Exec(fmt.Sprintf("CREATE DATABASE %s", newDBName))
	require.NoError(t, err)
	setupTables(t, migrationPath, newDSN)

	newCfg := *cfg
	newCfg.DatabaseURL = newDSN
	newDB, err := database.ConnectWithConfig(context.Background(), &newCfg)
	require.NoError(t, err)

	newPool, err := database.ConnectPool(context.Background(), &newCfg)
	require.NoError(t, err)

	if cleanup {
		t.Cleanup(func() {
			newPool.Close()
			assert.NoError(t, newDB.Close())
			_, err = db.Exec(fmt.Sprintf("DROP DATABASE %s", newDBName))
			assert.NoError(t, err)
			database.Close(db)
		})
	}
	return newDB, newPool, newDBName
}

// LoadFixtures loads every YAML fixture file in dir into db.
func LoadFixtures(t *testing.T, db *sql.DB, dir string) {
	fixtures, err := testfixtures.New(
		testfixtures.Database(db),
		testfixtures.Dialect("postgres"),
		testfixtures.Directory(dir),
		testfixtures.DangerousSkipTestDatabaseCheck(),
		testfixtures.ResetSequencesTo(1000),
	)
	require.NoError(t, err)
	require.NoError(t, fixtures.Load())
}

func dbName(dsn string) string {
	return dsnPattern.FindStringSubmatch(dsn)[2]
}

func setupTables(t *testing.T, migrationPath, dsn string) {
	m, err := migrate.New("file://"+migrationPath, setMigrationsTable(dsn, "schema_migrations"))
	require.NoError(t, err)
	assert.NoError(t, m.Up())
	srcErr, dbErr := m.Close()
	assert.NoError(t, srcErr)
	assert.NoError(t, dbErr)
}

func setMigrationsTable(dsn, migrationsTable string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sx-migrations-table=%s", dsn, sep, migrationsTable)
}
