// Package service contains the file-level operations behind the plat-rog
// API: listing sources, building ROG files and inspecting them.
package service

import (
	"github.com/joeblew999/plat-rog/internal/builder"
	"github.com/joeblew999/plat-rog/internal/rog"
)

// SourceFile represents a source data file (GeoJSON, Shapefile, etc.).
type SourceFile struct {
	Name     string `json:"name" doc:"File name" example:"buildings.geojson"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	FileType string `json:"fileType" doc:"Detected source format" example:"GeoJSON"`
}

// RogFile represents a built ROG file.
type RogFile struct {
	Name string `json:"name" doc:"ROG file name" example:"buildings.rog"`
	Size string `json:"size" doc:"Human-readable file size" example:"5.4 MB"`
}

// LevelInfo summarises the blocks of one level of a ROG file.
type LevelInfo struct {
	Zoom    int   `json:"zoom" yaml:"zoom" doc:"Zoom level, -1 for raw geometries"`
	Blocks  int   `json:"blocks" yaml:"blocks" doc:"Number of blocks"`
	Members int   `json:"members" yaml:"members" doc:"Number of stored geometries"`
	Bytes   int64 `json:"bytes" yaml:"bytes" doc:"Encoded size of the blocks"`
}

// RogInfo describes the contents of a ROG file without its geometries.
type RogInfo struct {
	Name          string      `json:"name" yaml:"name" doc:"ROG file name"`
	Size          int64       `json:"size" yaml:"size" doc:"File size in bytes"`
	Version       int32       `json:"version" yaml:"version" doc:"Format version"`
	NoOverlapping bool        `json:"noOverlapping" yaml:"no_overlapping" doc:"Polygons are known not to overlap"`
	MinZoom       int         `json:"minZoom" yaml:"min_zoom" doc:"Coarsest zoom level"`
	MaxZoom       int         `json:"maxZoom" yaml:"max_zoom" doc:"Finest zoom level"`
	Objects       int         `json:"objects" yaml:"objects" doc:"Number of objects"`
	Blocks        int         `json:"blocks" yaml:"blocks" doc:"Number of blocks"`
	Bounds        [4]float64  `json:"bounds" yaml:"bounds" doc:"Geographic bounds [minLon, minLat, maxLon, maxLat]"`
	Levels        []LevelInfo `json:"levels" yaml:"levels" doc:"Per-level block summary, raw level first"`
}

// ObjectInfo is one object's index entry.
type ObjectInfo struct {
	Index     int        `json:"index" yaml:"index" doc:"Object index in the file"`
	RowID     int64      `json:"rowId" yaml:"row_id" doc:"Source row id"`
	Bounds    [4]float64 `json:"bounds" yaml:"bounds" doc:"Geographic bounds"`
	Centroid  [2]float64 `json:"centroid" yaml:"centroid" doc:"Geographic centroid"`
	Raw       string     `json:"raw" yaml:"raw" doc:"Position of the raw geometry"`
	Positions []string   `json:"positions" yaml:"positions" doc:"Per-zoom position, coarsest first"`
}

// BuildRequest asks for a ROG file to be built from a source file.
// Unset settings keep the service's base configuration.
type BuildRequest struct {
	Source         string   `json:"source" required:"true" doc:"Source file name" example:"buildings.geojson"`
	Output         string   `json:"output,omitempty" doc:"Output ROG name, defaults to the source name" example:"buildings.rog"`
	MinZoom        *int     `json:"minZoom,omitempty" minimum:"0" maximum:"30" doc:"First zoom level"`
	MaxZoom        *int     `json:"maxZoom,omitempty" minimum:"0" maximum:"30" doc:"Last zoom level"`
	Tolerance      *float64 `json:"tolerance,omitempty" minimum:"0" doc:"Simplification tolerance in pixels"`
	KeepProperties *bool    `json:"keepProperties,omitempty" doc:"Store source attributes as object metadata"`
}

// BuildResult reports a finished build.
type BuildResult struct {
	ID     string         `json:"id" doc:"Build job id"`
	Output string         `json:"output" doc:"Output ROG name"`
	Stats  *builder.Stats `json:"stats" doc:"Build statistics"`
}

// ValidationResult reports a validation run.
type ValidationResult struct {
	Name   string               `json:"name" doc:"ROG file name"`
	Valid  bool                 `json:"valid" doc:"Whether the file passed validation"`
	Error  string               `json:"error,omitempty" doc:"First problem found"`
	Report rog.ValidationReport `json:"report" doc:"Counts gathered during validation"`
}
