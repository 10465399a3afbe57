// Package tilescheme describes how geographic coordinates map to the pixel
// space of each zoom level.
package tilescheme

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
)

// DefaultTileSize is the width and height of one tile in pixels.
const DefaultTileSize = 256

// MaxLatitude is the latitude limit of the Web Mercator square.
const MaxLatitude = 85.05112877980659

const earthRadius = 6378137.0

// maptile.Fraction puts latitudes south of this on the last tile row
// instead of its bottom edge.
const fractionLimit = 85.0511

// Scheme is a tile-scheme descriptor.
type Scheme interface {
	// TileSize returns the size of one tile in pixels.
	TileSize() int
	// Extent returns the pixel bounds of the whole map at zoom.
	Extent(zoom int) orb.Bound
	// ToPixel returns the forward transform from geographic to pixel
	// coordinates at zoom.
	ToPixel(zoom int) orb.Projection
	// FromPixel returns the inverse of ToPixel.
	FromPixel(zoom int) orb.Projection
}

// WebMercator is the XYZ tiling of spherical Mercator used by web maps.
// Pixel y grows southwards.
type WebMercator struct {
	tileSize int
}

func NewWebMercator(tileSize int) *WebMercator {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	return &WebMercator{tileSize: tileSize}
}

func (w *WebMercator) TileSize() int { return w.tileSize }

func (w *WebMercator) worldSize(zoom int) float64 {
	return float64(w.tileSize) * math.Exp2(float64(zoom))
}

func (w *WebMercator) Extent(zoom int) orb.Bound {
	size := w.worldSize(zoom)
	return orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{size, size}}
}

func (w *WebMercator) ToPixel(zoom int) orb.Projection {
	z := maptile.Zoom(zoom)
	size := float64(w.tileSize)
	tiles := math.Exp2(float64(zoom))
	return func(p orb.Point) orb.Point {
		f := maptile.Fraction(p, z)
		if p[1] < -fractionLimit {
			f[1] = tiles
		}
		return orb.Point{f[0] * size, f[1] * size}
	}
}

func (w *WebMercator) FromPixel(zoom int) orb.Projection {
	size := w.worldSize(zoom)
	circumference := 2 * math.Pi * earthRadius
	return func(p orb.Point) orb.Point {
		m := orb.Point{
			(p[0]/size - 0.5) * circumference,
			(0.5 - p[1]/size) * circumference,
		}
		return project.Mercator.ToWGS84(m)
	}
}

// Transform returns a copy of g with proj applied to every point.
func Transform(g orb.Geometry, proj orb.Projection) orb.Geometry {
	return project.Geometry(orb.Clone(g), proj)
}

// Rescale converts g from the pixel space of one zoom to another.
func Rescale(s Scheme, g orb.Geometry, from, to int) orb.Geometry {
	if from == to {
		return g
	}
	inverse, forward := s.FromPixel(from), s.ToPixel(to)
	return Transform(g, func(p orb.Point) orb.Point {
		return forward(inverse(p))
	})
}

// PixelBound transforms a geographic bound to the pixel space of zoom.
func PixelBound(s Scheme, b orb.Bound, zoom int) orb.Bound {
	proj := s.ToPixel(zoom)
	return proj(b.Min).Bound().Extend(proj(b.Max))
}
