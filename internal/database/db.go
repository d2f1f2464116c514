package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrUnknownDriver = errors.New("unknown database driver")
	ErrInvalidStatus = errors.New("invalid alert status")
)

//go:embed migrations/*/*.sql
var migrationFS embed.FS

// DB wraps the database connection
type DB struct {
	*sql.DB
	driver string
}

// Connect establishes a connection to the database
func Connect(driver, connectionString string) (*DB, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}

	db, err := sql.Open(driver, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	if driver == DriverSQLite {
		// single writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}

	return &DB{DB: db, driver: driver}, nil
}

// Driver returns the SQL driver name
func (db *DB) Driver() string {
	return db.driver
}

// RunMigrations executes the embedded SQL migrations for the driver in order
func (db *DB) RunMigrations(ctx context.Context) ([]string, error) {
	dir := path.Join("migrations", db.driver)
	entries, err := migrationFS.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		content, err := migrationFS.ReadFile(path.Join(dir, filename))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return nil, fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	return sqlFiles, nil
}

// rebind rewrites ? placeholders into $n for PostgreSQL
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
