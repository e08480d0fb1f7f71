package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const memoryDSN = ":memory:"

var ErrUnsupportedClient = errors.New("unsupported database client")

// Dialect names the client family of a connection
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DialectOf normalizes the client aliases (pg, postgresql, sqlite3)
func DialectOf(client string) (Dialect, error) {
	switch strings.ToLower(client) {
	case "pg", "postgres", "postgresql":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedClient, client)
}

func dialector(cfg ConnectionConfig) (gorm.Dialector, error) {
	dialect, err := DialectOf(cfg.Client)
	if err != nil {
		return nil, err
	}

	switch dialect {
	case DialectPostgres:
		return postgres.Open(postgresDSN(cfg.Connection)), nil
	default:
		dsn, err := sqliteDSN(cfg.Connection)
		if err != nil {
			return nil, err
		}
		return sqlite.Open(dsn), nil
	}
}

func postgresDSN(opts ConnectionOptions) string {
	if opts.URL != "" {
		return opts.URL
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := opts.Host
	if host == "" {
		host = "127.0.0.1"
	}

	port := opts.Port
	if port == 0 {
		port = 5432
	}

	sslMode := opts.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("dbname=%s host=%s port=%d user=%s password=%s sslmode=%s",
		opts.Database,
		host,
		port,
		opts.User,
		opts.Password,
		sslMode,
	)
}

// sqliteDSN defaults to an in memory database and creates the folder of file databases
func sqliteDSN(opts ConnectionOptions) (string, error) {
	filename := opts.Filename
	if filename == "" {
		filename = opts.URL
	}

	if filename == "" || filename == memoryDSN {
		return memoryDSN, nil
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}

	return filename, nil
}

func isMemory(cfg ConnectionConfig) bool {
	if dialect, _ := DialectOf(cfg.Client); dialect != DialectSQLite {
		return false
	}

	filename := cfg.Connection.Filename
	if filename == "" {
		filename = cfg.Connection.URL
	}
	return filename == "" || filename == memoryDSN
}
