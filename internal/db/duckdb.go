package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// Extensions are loaded into every connection opened by this package.
var Extensions = []string{"spatial", "parquet"}

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
}

// Get returns the shared DuckDB connection of the server.
func Get(cfg Config) (*sql.DB, error) {
	once.Do(func() {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			initErr = fmt.Errorf("failed to create duckdb directory: %w", err)
			return
		}
		instance, initErr = Open(filepath.Join(duckdbDir, cfg.DBName+".duckdb"))
	})
	return instance, initErr
}

// Open opens a DuckDB database at path (in memory when empty) and loads
// Extensions. Extensions that fail to load are skipped; queries that need
// them will fail later with a clearer error.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	for _, ext := range Extensions {
		conn.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext))
	}
	return conn, nil
}

// Close closes the shared connection.
func Close() error {
	if instance != nil {
		return instance.Close()
	}
	return nil
}
