package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

// Shapefile reads an ESRI shapefile and its .dbf attributes. Row ids are
// record numbers; null shapes are skipped.
type Shapefile struct {
	Path string
}

func (s *Shapefile) Visit(ctx context.Context, fn func(Record) error) error {
	r, err := shp.Open(s.Path)
	if err != nil {
		return fmt.Errorf("source: %s: %w", s.Path, err)
	}
	defer r.Close()

	fields := r.Fields()
	for r.Next() {
		n, shape := r.Shape()
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		g := shapeGeometry(shape)
		if g == nil {
			continue
		}
		props := make(map[string]any, len(fields))
		for i, f := range fields {
			props[f.String()] = strings.TrimSpace(r.ReadAttribute(n, i))
		}
		if err := fn(Record{RowID: int64(n), Geometry: g, Properties: props}); err != nil {
			return err
		}
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("source: %s: %w", s.Path, err)
	}
	return nil
}

func shapeGeometry(shape shp.Shape) orb.Geometry {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}
	case *shp.PointZ:
		return orb.Point{s.X, s.Y}
	case *shp.PointM:
		return orb.Point{s.X, s.Y}
	case *shp.MultiPoint:
		mp := make(orb.MultiPoint, len(s.Points))
		for i, p := range s.Points {
			mp[i] = orb.Point{p.X, p.Y}
		}
		return mp
	case *shp.PolyLine:
		return lines(s.Parts, s.Points)
	case *shp.PolyLineZ:
		return lines(s.Parts, s.Points)
	case *shp.Polygon:
		return polygons(s.Parts, s.Points)
	case *shp.PolygonZ:
		return polygons(s.Parts, s.Points)
	}
	return nil
}

func parts(starts []int32, points []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(starts))
	for i, start := range starts {
		end := int32(len(points))
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			continue
		}
		part := make([]orb.Point, 0, end-start)
		for _, p := range points[start:end] {
			part = append(part, orb.Point{p.X, p.Y})
		}
		out = append(out, part)
	}
	return out
}

func lines(starts []int32, points []shp.Point) orb.Geometry {
	ps := parts(starts, points)
	if len(ps) == 0 {
		return nil
	}
	if len(ps) == 1 {
		return orb.LineString(ps[0])
	}
	mls := make(orb.MultiLineString, len(ps))
	for i, p := range ps {
		mls[i] = orb.LineString(p)
	}
	return mls
}

// polygons groups rings into polygons: clockwise rings are outer rings,
// counter-clockwise rings are holes of the preceding outer ring.
func polygons(starts []int32, points []shp.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for _, p := range parts(starts, points) {
		ring := orb.Ring(p)
		if ring.Orientation() == orb.CCW && len(mp) > 0 {
			last := len(mp) - 1
			mp[last] = append(mp[last], ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}
	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	}
	return mp
}
