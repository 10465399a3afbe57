// Package rog builds and reads ROG files: a per-geometry object index plus
// quadtree-bucketed blocks of WKB geometries, one simplified copy per zoom
// level and one unsimplified raw copy.
package rog

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/joeblew999/plat-rog/internal/rog/spec"
)

// RawLevel is the pseudo zoom level of the unsimplified geographic copy.
const RawLevel = -1

// PositionKind tags the four states of a level slot.
type PositionKind uint8

const (
	Unassigned PositionKind = iota
	UseLastLevel
	Subpixel
	Concrete
)

func (k PositionKind) String() string {
	switch k {
	case Unassigned:
		return "unassigned"
	case UseLastLevel:
		return "use-last-level"
	case Subpixel:
		return "subpixel"
	case Concrete:
		return "concrete"
	}
	return fmt.Sprintf("PositionKind(%d)", uint8(k))
}

// Position locates one stored copy of a geometry. Block and Index are only
// meaningful for Concrete positions.
type Position struct {
	Kind  PositionKind
	Block int32
	Index int32
}

// At returns a concrete position.
func At(block, index int32) Position {
	return Position{Kind: Concrete, Block: block, Index: index}
}

func (p Position) String() string {
	if p.Kind == Concrete {
		return fmt.Sprintf("block %d #%d", p.Block, p.Index)
	}
	return p.Kind.String()
}

func (p Position) slot() spec.Slot {
	switch p.Kind {
	case Concrete:
		return spec.Slot{Block: p.Block, Index: p.Index}
	case UseLastLevel:
		return spec.Slot{Block: spec.SlotUseLastLevel}
	case Subpixel:
		return spec.Slot{Block: spec.SlotSubpixel}
	}
	return spec.Slot{Block: spec.SlotUnassigned}
}

func positionFromSlot(s spec.Slot) Position {
	switch s.Block {
	case spec.SlotUnassigned:
		return Position{}
	case spec.SlotUseLastLevel:
		return Position{Kind: UseLastLevel}
	case spec.SlotSubpixel:
		return Position{Kind: Subpixel}
	}
	return At(s.Block, s.Index)
}

// ShapeCounts counts the parts of a geometry by kind.
type ShapeCounts struct {
	Points   int `json:"points" yaml:"points"`
	Lines    int `json:"lines" yaml:"lines"`
	Polygons int `json:"polygons" yaml:"polygons"`
}

// ShapeIndex is the per-geometry metadata record. It is created once per
// source geometry; the level slots are filled in by the build.
type ShapeIndex struct {
	RowID       int64
	Bounds      orb.Bound // geographic envelope
	Centroid    orb.Point // geographic centroid
	PointCount  int
	ShapeCounts ShapeCounts
	Metadata    []byte

	Raw Position

	minZoom     int
	levels      []Position
	levelPoints []int
}

// NewShapeIndex computes the bounds, centroid and point counts of g and
// allocates one unassigned slot per zoom in [minZoom, maxZoom].
func NewShapeIndex(rowID int64, g orb.Geometry, minZoom, maxZoom int) *ShapeIndex {
	if minZoom < 0 || maxZoom < minZoom || maxZoom-minZoom+1 > spec.MaxLevels {
		panic(fmt.Sprintf("rog: invalid zoom range [%d, %d]", minZoom, maxZoom))
	}
	n := maxZoom - minZoom + 1
	s := &ShapeIndex{
		RowID:       rowID,
		Bounds:      g.Bound(),
		Centroid:    Centroid(g),
		minZoom:     minZoom,
		levels:      make([]Position, n),
		levelPoints: make([]int, n),
	}
	s.PointCount, s.ShapeCounts = CountPoints(g)
	return s
}

func (s *ShapeIndex) MinZoom() int { return s.minZoom }

func (s *ShapeIndex) MaxZoom() int { return s.minZoom + len(s.levels) - 1 }

func (s *ShapeIndex) slot(zoom int) int {
	i := zoom - s.minZoom
	if i < 0 || i >= len(s.levels) {
		panic(fmt.Sprintf("rog: zoom %d outside [%d, %d]", zoom, s.minZoom, s.MaxZoom()))
	}
	return i
}

// Position returns the slot for zoom, or the raw position for RawLevel.
func (s *ShapeIndex) Position(zoom int) Position {
	if zoom == RawLevel {
		return s.Raw
	}
	return s.levels[s.slot(zoom)]
}

// SetPosition records where the copy for zoom (or RawLevel) was written.
func (s *ShapeIndex) SetPosition(zoom int, block, index int32) {
	if zoom == RawLevel {
		s.Raw = At(block, index)
		return
	}
	s.levels[s.slot(zoom)] = At(block, index)
}

func (s *ShapeIndex) MarkUseLastLevel(zoom int) {
	s.levels[s.slot(zoom)] = Position{Kind: UseLastLevel}
}

func (s *ShapeIndex) MarkSubpixel(zoom int) {
	s.levels[s.slot(zoom)] = Position{Kind: Subpixel}
}

// SetLevelPointCount records the number of points of the copy stored for
// zoom. It is only known while building.
func (s *ShapeIndex) SetLevelPointCount(zoom, n int) {
	s.levelPoints[s.slot(zoom)] = n
}

// LevelPointCount returns the point count recorded for zoom, or -1 when
// unknown (for example on an index loaded from a file).
func (s *ShapeIndex) LevelPointCount(zoom int) int {
	if s.levelPoints == nil {
		return -1
	}
	return s.levelPoints[s.slot(zoom)]
}

// FindLastDefinedLevel scans downward from zoom-1, skipping USE_LAST_LEVEL
// slots, and returns the nearest zoom holding a concrete position together
// with its stored point count. The scan stops at a SUBPIXEL or unassigned
// slot.
func (s *ShapeIndex) FindLastDefinedLevel(zoom int) (level, points int, ok bool) {
	for z := zoom - 1; z >= s.minZoom; z-- {
		i := s.slot(z)
		switch s.levels[i].Kind {
		case UseLastLevel:
			continue
		case Concrete:
			points = -1
			if s.levelPoints != nil {
				points = s.levelPoints[i]
			}
			return z, points, true
		}
		return 0, 0, false
	}
	return 0, 0, false
}

// Resolve returns the level whose copy should be rendered at zoom and its
// position. Zooms above the stored range use the finest level; zooms below
// use the raw copy. ok is false when nothing is to be rendered.
func (s *ShapeIndex) Resolve(zoom int) (level int, pos Position, ok bool) {
	if zoom < s.minZoom {
		return RawLevel, s.Raw, s.Raw.Kind == Concrete
	}
	if zoom > s.MaxZoom() {
		zoom = s.MaxZoom()
	}
	for z := zoom; z >= s.minZoom; z-- {
		p := s.levels[s.slot(z)]
		switch p.Kind {
		case Concrete:
			return z, p, true
		case UseLastLevel:
			continue
		}
		return z, p, false
	}
	return RawLevel, s.Raw, s.Raw.Kind == Concrete
}

// Record converts the index entry to its on-disk form.
func (s *ShapeIndex) Record() spec.ObjectRecord {
	r := spec.ObjectRecord{
		RowID:      s.RowID,
		PointCount: int32(s.PointCount),
		ShapeCounts: [3]int32{
			int32(s.ShapeCounts.Points),
			int32(s.ShapeCounts.Lines),
			int32(s.ShapeCounts.Polygons),
		},
		Bounds: [4]float64{
			s.Bounds.Min[0], s.Bounds.Min[1],
			s.Bounds.Max[0] - s.Bounds.Min[0], s.Bounds.Max[1] - s.Bounds.Min[1],
		},
		Centroid: [2]float64{s.Centroid[0], s.Centroid[1]},
		Raw:      s.Raw.slot(),
		Levels:   make([]spec.Slot, len(s.levels)),
		Metadata: s.Metadata,
	}
	for i, p := range s.levels {
		r.Levels[i] = p.slot()
	}
	return r
}

func shapeIndexFromRecord(r spec.ObjectRecord, minZoom int) *ShapeIndex {
	s := &ShapeIndex{
		RowID:      r.RowID,
		PointCount: int(r.PointCount),
		ShapeCounts: ShapeCounts{
			Points:   int(r.ShapeCounts[0]),
			Lines:    int(r.ShapeCounts[1]),
			Polygons: int(r.ShapeCounts[2]),
		},
		Bounds: orb.Bound{
			Min: orb.Point{r.Bounds[0], r.Bounds[1]},
			Max: orb.Point{r.Bounds[0] + r.Bounds[2], r.Bounds[1] + r.Bounds[3]},
		},
		Centroid: orb.Point{r.Centroid[0], r.Centroid[1]},
		Metadata: r.Metadata,
		Raw:      positionFromSlot(r.Raw),
		minZoom:  minZoom,
		levels:   make([]Position, len(r.Levels)),
	}
	for i, slot := range r.Levels {
		s.levels[i] = positionFromSlot(slot)
	}
	return s
}

// Centroid returns the area-weighted centroid of g, falling back to the
// center of its bound for degenerate input.
func Centroid(g orb.Geometry) orb.Point {
	c, _ := planar.CentroidArea(g)
	if math.IsNaN(c[0]) || math.IsNaN(c[1]) || math.IsInf(c[0], 0) || math.IsInf(c[1], 0) {
		return g.Bound().Center()
	}
	return c
}

// CountPoints returns the total number of vertices of g and the number of
// point, line and polygon parts.
func CountPoints(g orb.Geometry) (int, ShapeCounts) {
	c := ShapeCounts{}
	n := countPoints(g, &c)
	return n, c
}

func countPoints(g orb.Geometry, c *ShapeCounts) int {
	switch g := g.(type) {
	case orb.Point:
		c.Points++
		return 1
	case orb.MultiPoint:
		c.Points += len(g)
		return len(g)
	case orb.LineString:
		c.Lines++
		return len(g)
	case orb.MultiLineString:
		n := 0
		for _, ls := range g {
			n += countPoints(ls, c)
		}
		return n
	case orb.Ring:
		c.Polygons++
		return len(g)
	case orb.Polygon:
		c.Polygons++
		n := 0
		for _, r := range g {
			n += len(r)
		}
		return n
	case orb.MultiPolygon:
		n := 0
		for _, p := range g {
			n += countPoints(p, c)
		}
		return n
	case orb.Collection:
		n := 0
		for _, child := range g {
			n += countPoints(child, c)
		}
		return n
	case orb.Bound:
		c.Polygons++
		return 5
	}
	return 0
}
