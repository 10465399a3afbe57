// Package source reads input geometries for a build. Every source yields
// records in a stable row order so that two builds of the same input are
// identical.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
)

var ErrUnsupportedFormat = errors.New("source: unsupported format")

// Record is one input geometry.
type Record struct {
	RowID      int64
	Geometry   orb.Geometry
	Properties map[string]any
}

// Source yields records in row order. Visit stops at the first error
// returned by fn.
type Source interface {
	Visit(ctx context.Context, fn func(Record) error) error
}

// Format names a supported file type.
type Format string

const (
	FormatGeoJSON    Format = "GeoJSON"
	FormatShapefile  Format = "Shapefile"
	FormatGeoParquet Format = "GeoParquet"
	FormatGeoPackage Format = "GeoPackage"
	FormatFlatGeobuf Format = "FlatGeobuf"
)

var extToFormat = map[string]Format{
	".geojson":    FormatGeoJSON,
	".json":       FormatGeoJSON,
	".shp":        FormatShapefile,
	".parquet":    FormatGeoParquet,
	".geoparquet": FormatGeoParquet,
	".gpkg":       FormatGeoPackage,
	".fgb":        FormatFlatGeobuf,
}

// DetectFormat returns the format of path from its extension.
func DetectFormat(path string) (Format, bool) {
	f, ok := extToFormat[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// Options configure Open.
type Options struct {
	// DB is the DuckDB connection used for GeoParquet, GeoPackage and
	// FlatGeobuf files. A private in-memory database is opened when nil.
	DB *sql.DB
}

// Open returns a source reading path, choosing the reader by extension.
func Open(path string, opts Options) (Source, error) {
	format, ok := DetectFormat(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
	switch format {
	case FormatGeoJSON:
		return &GeoJSON{Path: path}, nil
	case FormatShapefile:
		return &Shapefile{Path: path}, nil
	default:
		return &DuckDB{DB: opts.DB, Path: path, Format: format}, nil
	}
}

// Memory is a source over records held in memory.
type Memory []Record

// Geometries builds a Memory source numbering gs from zero.
func Geometries(gs ...orb.Geometry) Memory {
	m := make(Memory, len(gs))
	for i, g := range gs {
		m[i] = Record{RowID: int64(i), Geometry: g}
	}
	return m
}

func (m Memory) Visit(ctx context.Context, fn func(Record) error) error {
	for i, r := range m {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}
