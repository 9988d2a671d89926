package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// BaseSnapshot is taken right after migrations and seed data are applied.
const BaseSnapshot = "Base"

type TestDatabaseContainer struct {
	Container        *postgres.PostgresContainer
	ConnectionString string
}

// ExecuteFile will execute a *.sql file for a database container.
// Sql files for testing purposes should be under a package's 'testdata' directory.
func (td *TestDatabaseContainer) ExecuteFile(path string) (int64, error) {
	ctx := context.Background()

	if filepath.Ext(path) != ".sql" {
		return 0, fmt.Errorf("%s is not a sql file", path)
	}

	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, errors.Wrap(err, "failed to open file")
	}
	if len(content) == 0 {
		return 0, fmt.Errorf("%s is empty", path)
	}

	conn, err := td.NewPgxConnection()
	if err != nil {
		return 0, err
	}
	defer conn.Close(ctx)

	result, err := conn.Exec(ctx, string(content))
	if err != nil {
		return 0, errors.Wrapf(err, "failed to execute %s", path)
	}

	return result.RowsAffected(), nil
}

// ExecuteDir will execute every *.sql file directly under dirpath, in name order.
func (td *TestDatabaseContainer) ExecuteDir(dirpath string) error {
	info, err := os.Stat(dirpath)
	if err != nil {
		return errors.Wrap(err, "failed to read directory")
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dirpath)
	}

	files, err := filepath.Glob(filepath.Join(dirpath, "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, f := range files {
		if _, err := td.ExecuteFile(f); err != nil {
			return err
		}
	}
	return nil
}

// CreateSnapshot will create a snapshot for a given name. Close any active connections to the database
// before taking a snapshot.
func (td *TestDatabaseContainer) CreateSnapshot(name string) error {
	err := td.Container.Snapshot(context.Background(), postgres.WithSnapshotName(name))
	return errors.Wrap(err, "failed to create container database snapshot")
}

// RestoreSnapshot restores the named snapshot. An empty name restores the most recent snapshot.
func (td *TestDatabaseContainer) RestoreSnapshot(name string) error {
	err := td.Container.Restore(context.Background(), postgres.WithSnapshotName(name))
	return errors.Wrap(err, "failed to restore container database snapshot")
}

// Return a pgx connection for a given database container.
func (td *TestDatabaseContainer) NewPgxConnection() (*pgx.Conn, error) {
	conn, err := pgx.Connect(context.Background(), td.ConnectionString)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open connection to container database")
	}
	return conn, nil
}

// Return a sql/db connection for a given database container.
func (td *TestDatabaseContainer) NewSqlDbConnection() (*sql.DB, error) {
	return sql.Open("pgx", td.ConnectionString)
}

// Return a pgx pool for a given database container.
func (td *TestDatabaseContainer) NewPgxPoolConnection() (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(context.Background(), td.ConnectionString)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pool for container database")
	}
	return pool, nil
}

// runMigrations applies db/migrations/billreview so containers match the deployed schema.
func (td *TestDatabaseContainer) runMigrations() error {
	dir, err := findDir(filepath.Join("db", "migrations", "billreview"))
	if err != nil {
		return err
	}

	m, err := migrate.New("file://"+dir, td.ConnectionString)
	if err != nil {
		return errors.Wrap(err, "failed to load migrations")
	}
	defer m.Close()

	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "failed to apply migrations")
	}
	return nil
}

// initSeed applies the baseline reference data. Scenario specific data should go
// through ExecuteFile or ExecuteDir.
func (td *TestDatabaseContainer) initSeed() error {
	dir, err := findDir(filepath.Join("db", "testdata"))
	if err != nil {
		return err
	}

	rowsAffected, err := td.ExecuteFile(filepath.Join(dir, "seed.sql"))
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return errors.New("failed to seed init data; zero affected rows")
	}
	return nil
}

// NewTestDatabaseContainer returns a postgres container with the billreview
// migrations and db/testdata/seed.sql applied.
func NewTestDatabaseContainer() (TestDatabaseContainer, error) {
	ctx := context.Background()
	c, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("bill_review"),
		postgres.WithUsername("toor"),
		postgres.WithPassword("foobar"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return TestDatabaseContainer{}, errors.Wrap(err, "failed to create database container")
	}

	conn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return TestDatabaseContainer{}, errors.Wrap(err, "failed to get connection string for container database")
	}

	tdc := TestDatabaseContainer{
		Container:        c,
		ConnectionString: conn,
	}

	if err = tdc.runMigrations(); err != nil {
		return TestDatabaseContainer{}, err
	}
	if err = tdc.initSeed(); err != nil {
		return TestDatabaseContainer{}, err
	}
	if err = tdc.CreateSnapshot(BaseSnapshot); err != nil {
		return TestDatabaseContainer{}, err
	}

	return tdc, nil
}

// findDir walks up from the working directory until rel exists, so helpers
// work no matter which package the test runs from.
func findDir(rel string) (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}

	for {
		targetPath := filepath.Join(currentDir, rel)
		_, err := os.Stat(targetPath)
		if err == nil {
			return targetPath, nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("error checking path %s: %w", targetPath, err)
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return "", fmt.Errorf("file or directory '%s' not found in parent directories", rel)
		}
		currentDir = parentDir
	}
}
