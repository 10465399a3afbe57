package source

import (
	"context"
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"
)

// GeoJSON reads a FeatureCollection. Row ids are feature positions;
// features without geometry are skipped but keep their row number.
type GeoJSON struct {
	Path string
}

func (s *GeoJSON) Visit(ctx context.Context, fn func(Record) error) error {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("source: %s: %w", s.Path, err)
	}
	for i, f := range fc.Features {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if f.Geometry == nil {
			continue
		}
		if err := fn(Record{RowID: int64(i), Geometry: f.Geometry, Properties: f.Properties}); err != nil {
			return err
		}
	}
	return nil
}
