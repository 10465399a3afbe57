package builder

import (
	"slices"

	"github.com/paulmach/orb"
)

type edge struct {
	a, b  orb.Point
	ring  int
	index int
	count int
	isNew bool
	minX  float64
	maxX  float64
	minY  float64
	maxY  float64
}

// ringCrosses reports whether r intersects itself or touches any of others.
// Segments sharing a vertex along r are not counted. Pairs among others are
// assumed already checked.
func ringCrosses(r orb.Ring, others []orb.Ring) bool {
	var edges []edge
	edges = appendEdges(edges, r, 0, true)
	for i, o := range others {
		edges = appendEdges(edges, o, i+1, false)
	}
	slices.SortFunc(edges, func(x, y edge) int {
		switch {
		case x.minX < y.minX:
			return -1
		case x.minX > y.minX:
			return 1
		}
		return 0
	})

	for i := range edges {
		e := &edges[i]
		for j := i + 1; j < len(edges) && edges[j].minX <= e.maxX; j++ {
			f := &edges[j]
			if !e.isNew && !f.isNew {
				continue
			}
			if f.minY > e.maxY || f.maxY < e.minY {
				continue
			}
			if e.ring == f.ring && adjacent(e.index, f.index, e.count) {
				continue
			}
			if segmentsIntersect(e.a, e.b, f.a, f.b) {
				return true
			}
		}
	}
	return false
}

// appendEdges numbers the non-degenerate segments of r consecutively so that
// repeated points do not hide a shared vertex.
func appendEdges(edges []edge, r orb.Ring, ring int, isNew bool) []edge {
	start := len(edges)
	for i := 1; i < len(r); i++ {
		a, b := r[i-1], r[i]
		if a == b {
			continue
		}
		edges = append(edges, edge{
			a: a, b: b,
			ring:  ring,
			index: len(edges) - start,
			isNew: isNew,
			minX:  min(a[0], b[0]),
			maxX:  max(a[0], b[0]),
			minY:  min(a[1], b[1]),
			maxY:  max(a[1], b[1]),
		})
	}
	count := len(edges) - start
	for i := start; i < len(edges); i++ {
		edges[i].count = count
	}
	return edges
}

// adjacent treats the first and last segment of a closed ring as neighbours.
func adjacent(i, j, count int) bool {
	d := i - j
	if d < 0 {
		d = -d
	}
	return d <= 1 || d == count-1
}

func orientation(a, b, c orb.Point) int {
	v := (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// onSegment reports whether p, collinear with a and b, lies between them.
func onSegment(a, b, p orb.Point) bool {
	return min(a[0], b[0]) <= p[0] && p[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= p[1] && p[1] <= max(a[1], b[1])
}

func segmentsIntersect(a, b, c, d orb.Point) bool {
	o1 := orientation(a, b, c)
	o2 := orientation(a, b, d)
	o3 := orientation(c, d, a)
	o4 := orientation(c, d, b)
	if o1 != o2 && o3 != o4 {
		return true
	}
	return o1 == 0 && onSegment(a, b, c) ||
		o2 == 0 && onSegment(a, b, d) ||
		o3 == 0 && onSegment(c, d, a) ||
		o4 == 0 && onSegment(c, d, b)
}
