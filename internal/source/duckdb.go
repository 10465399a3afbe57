package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/paulmach/orb/encoding/wkb"

	"github.com/joeblew999/plat-rog/internal/db"
)

// DuckDB reads any file the DuckDB spatial and parquet extensions can scan.
// Row ids are scan positions.
type DuckDB struct {
	DB     *sql.DB
	Path   string
	Format Format
	// Column holds the geometry. Defaults to "geometry" for GeoParquet and
	// "geom" for files read through ST_Read.
	Column string
}

func (s *DuckDB) query() string {
	path := "'" + strings.ReplaceAll(s.Path, "'", "''") + "'"
	column := s.Column
	if s.Format == FormatGeoParquet {
		if column == "" {
			column = "geometry"
		}
		return fmt.Sprintf("SELECT ST_AsWKB(%q) FROM read_parquet(%s)", column, path)
	}
	if column == "" {
		column = "geom"
	}
	return fmt.Sprintf("SELECT ST_AsWKB(%q) FROM ST_Read(%s)", column, path)
}

func (s *DuckDB) Visit(ctx context.Context, fn func(Record) error) error {
	conn := s.DB
	if conn == nil {
		var err error
		if conn, err = db.Open(""); err != nil {
			return fmt.Errorf("source: opening duckdb: %w", err)
		}
		defer conn.Close()
	}

	rows, err := conn.QueryContext(ctx, s.query())
	if err != nil {
		return fmt.Errorf("source: %s: %w", s.Path, err)
	}
	defer rows.Close()

	var row int64
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("source: %s row %d: %w", s.Path, row, err)
		}
		if data != nil {
			g, err := wkb.Unmarshal(data)
			if err != nil {
				return fmt.Errorf("source: %s row %d: %w", s.Path, row, err)
			}
			if err := fn(Record{RowID: row, Geometry: g}); err != nil {
				return err
			}
		}
		row++
	}
	return rows.Err()
}
