package builder

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-rog/internal/rog"
	"github.com/joeblew999/plat-rog/internal/rog/spec"
	"github.com/joeblew999/plat-rog/internal/tilescheme"
)

// Config holds the build parameters. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	MinZoom int `yaml:"min_zoom" json:"minZoom" minimum:"0" maximum:"30" doc:"First zoom level"`
	MaxZoom int `yaml:"max_zoom" json:"maxZoom" minimum:"0" maximum:"30" doc:"Last zoom level"`

	// Tolerance is the simplification tolerance in destination pixels.
	Tolerance float64 `yaml:"tolerance" json:"tolerance" minimum:"0" doc:"Simplification tolerance in pixels"`
	TileSize  int     `yaml:"tile_size" json:"tileSize" minimum:"1" doc:"Tile size in pixels"`

	MinSizePixels float64 `yaml:"min_size_pixels" json:"minSizePixels" doc:"Smallest block width or height in pixels"`
	MinSizeBytes  int     `yaml:"min_size_bytes" json:"minSizeBytes" doc:"Blocks below this size are never split"`
	MaxSizeBytes  int     `yaml:"max_size_bytes" json:"maxSizeBytes" doc:"Blocks above this size are split"`
	MaxDepth      int     `yaml:"max_depth" json:"maxDepth" doc:"Quadtree depth limit"`

	// ReductionFraction: a level reuses the last stored level when its point
	// count n stays within this fraction of the stored count p both ways,
	// n >= fraction*p and fraction*n <= p. Otherwise it is stored.
	ReductionFraction float64 `yaml:"reduction_fraction" json:"reductionFraction" minimum:"0" maximum:"1" doc:"A level is reused while its point count stays within this fraction of the last stored level's, in both directions"`

	Workers               int    `yaml:"workers" json:"workers" doc:"Worker goroutines per zoom level"`
	NoOverlappingPolygons bool   `yaml:"no_overlapping_polygons" json:"noOverlappingPolygons" doc:"Header flag for renderers"`
	KeepProperties        bool   `yaml:"keep_properties" json:"keepProperties" doc:"Store source attributes as object metadata"`
	TempDir               string `yaml:"temp_dir" json:"-"`
}

func DefaultConfig() Config {
	q := rog.DefaultQuadParams()
	return Config{
		MinZoom:           0,
		MaxZoom:           14,
		Tolerance:         1.0,
		TileSize:          tilescheme.DefaultTileSize,
		MinSizePixels:     q.MinSizePixels,
		MinSizeBytes:      q.MinSizeBytes,
		MaxSizeBytes:      q.MaxSizeBytes,
		MaxDepth:          q.MaxDepth,
		ReductionFraction: 0.9,
		Workers:           runtime.NumCPU(),
	}
}

// LoadConfig reads a YAML file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("builder: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

var ErrInvalidConfig = errors.New("builder: invalid config")

func (c Config) Validate() error {
	var errs []error
	if c.MinZoom < 0 || c.MaxZoom < c.MinZoom {
		errs = append(errs, fmt.Errorf("zoom range [%d, %d]", c.MinZoom, c.MaxZoom))
	}
	if c.MaxZoom-c.MinZoom+1 > spec.MaxLevels {
		errs = append(errs, fmt.Errorf("more than %d zoom levels", spec.MaxLevels))
	}
	if c.Tolerance < 0 {
		errs = append(errs, fmt.Errorf("tolerance %v", c.Tolerance))
	}
	if c.TileSize <= 0 {
		errs = append(errs, fmt.Errorf("tile size %d", c.TileSize))
	}
	if c.MinSizeBytes < 0 || c.MaxSizeBytes < c.MinSizeBytes {
		errs = append(errs, fmt.Errorf("block size range [%d, %d]", c.MinSizeBytes, c.MaxSizeBytes))
	}
	if c.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("max depth %d", c.MaxDepth))
	}
	if c.ReductionFraction <= 0 || c.ReductionFraction > 1 {
		errs = append(errs, fmt.Errorf("reduction fraction %v", c.ReductionFraction))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (c Config) quadParams() rog.QuadParams {
	return rog.QuadParams{
		MinSizePixels: c.MinSizePixels,
		MinSizeBytes:  c.MinSizeBytes,
		MaxSizeBytes:  c.MaxSizeBytes,
		MaxDepth:      c.MaxDepth,
	}
}

func (c Config) workers() int {
	if c.Workers <= 0 {
		return 1
	}
	return c.Workers
}
