package builder

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"

	"github.com/joeblew999/plat-rog/internal/rog"
	"github.com/joeblew999/plat-rog/internal/tilescheme"
)

// Outcome is what happened to one geometry at one zoom level.
type Outcome uint8

const (
	Written Outcome = iota
	Reused
	Dropped
)

// levelResult is one row's slot in the pre-sized per-zoom results array.
type levelResult struct {
	outcome Outcome
	write   *rog.PendingWrite
}

// ringRetries bounds how many times a ring is re-simplified with a halved
// tolerance before it is kept as is.
const ringRetries = 8

// simplifyLevel transforms g into pixel space and simplifies it with the
// tolerance in pixels. Geometries whose pixel extent is below the tolerance
// on both axes are returned unsimplified. Polygon rings never come out
// self-intersecting or crossing each other. The result has degenerate parts
// removed and may be empty.
func simplifyLevel(g orb.Geometry, proj orb.Projection, tolerance float64) orb.Geometry {
	pixels := tilescheme.Transform(g, proj)
	b := pixels.Bound()
	if b.Right()-b.Left() < tolerance && b.Top()-b.Bottom() < tolerance {
		return pixels
	}
	return clean(simplifyGeometry(pixels, tolerance))
}

func simplifyGeometry(g orb.Geometry, tolerance float64) orb.Geometry {
	switch g := g.(type) {
	case orb.Polygon:
		return simplifyPolygon(g, tolerance)
	case orb.MultiPolygon:
		for i := range g {
			g[i] = simplifyPolygon(g[i], tolerance)
		}
		return g
	case orb.Collection:
		for i := range g {
			g[i] = simplifyGeometry(g[i], tolerance)
		}
		return g
	}
	return simplify.DouglasPeucker(tolerance).Simplify(g)
}

// simplifyPolygon simplifies the shell and then each hole. A ring whose
// simplification crosses itself or an accepted ring is retried with half
// the tolerance, then kept unsimplified. If even the original hole crosses
// the simplified shell the whole polygon is returned unsimplified.
func simplifyPolygon(p orb.Polygon, tolerance float64) orb.Polygon {
	out := make(orb.Polygon, 0, len(p))
	var accepted []orb.Ring
	for _, ring := range p {
		r, ok := simplifyRing(ring, accepted, tolerance)
		if !ok {
			return p
		}
		out = append(out, r)
		if len(r) >= 4 {
			accepted = append(accepted, r)
		}
	}
	return out
}

// simplifyRing returns false when ring itself cannot be placed next to
// accepted without crossing.
func simplifyRing(ring orb.Ring, accepted []orb.Ring, tolerance float64) (orb.Ring, bool) {
	t := tolerance
	for range ringRetries {
		r := simplify.DouglasPeucker(t).Ring(ring.Clone())
		if len(r) < 4 {
			// collapsed; clean drops it
			return r, true
		}
		if !ringCrosses(r, accepted) {
			return r, true
		}
		t /= 2
	}
	return ring, !ringCrosses(ring, accepted)
}

// clean drops rings with fewer than four points, lines with fewer than two
// and the polygons and collections left empty.
func clean(g orb.Geometry) orb.Geometry {
	switch g := g.(type) {
	case orb.LineString:
		if len(g) < 2 {
			return nil
		}
		return g
	case orb.MultiLineString:
		out := g[:0]
		for _, ls := range g {
			if len(ls) >= 2 {
				out = append(out, ls)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case orb.Ring:
		if len(g) < 4 {
			return nil
		}
		return g
	case orb.Polygon:
		if p := cleanPolygon(g); p != nil {
			return p
		}
		return nil
	case orb.MultiPolygon:
		out := g[:0]
		for _, p := range g {
			if p = cleanPolygon(p); p != nil {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case orb.Collection:
		out := g[:0]
		for _, child := range g {
			if child = clean(child); child != nil {
				out = append(out, child)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return g
}

func cleanPolygon(p orb.Polygon) orb.Polygon {
	if len(p) == 0 || len(p[0]) < 4 {
		return nil
	}
	out := p[:1]
	for _, hole := range p[1:] {
		if len(hole) >= 4 {
			out = append(out, hole)
		}
	}
	return out
}

// reusable reports whether a copy with n points adds too little over the
// stored copy with prior points to be worth writing. Point counts grow with
// zoom, so the count must also stay within prior/fraction.
func reusable(n, prior int, fraction float64) bool {
	if prior <= 0 {
		return false
	}
	return float64(n) >= fraction*float64(prior) && fraction*float64(n) <= float64(prior)
}

// processGeometry decides the outcome of one object at zoom. It only
// touches o's own slots.
func (b *Builder) processGeometry(o *rog.ShapeIndex, g orb.Geometry, zoom int, proj orb.Projection) (levelResult, error) {
	simplified := simplifyLevel(g, proj, b.cfg.Tolerance)
	if simplified == nil || rog.IsEmpty(simplified) {
		o.MarkSubpixel(zoom)
		return levelResult{outcome: Dropped}, nil
	}

	n, _ := rog.CountPoints(simplified)
	if _, prior, ok := o.FindLastDefinedLevel(zoom); ok && reusable(n, prior, b.cfg.ReductionFraction) {
		o.MarkUseLastLevel(zoom)
		return levelResult{outcome: Reused}, nil
	}

	data, err := rog.MarshalGeometry(simplified)
	if err != nil {
		return levelResult{}, err
	}
	o.SetLevelPointCount(zoom, n)
	return levelResult{
		outcome: Written,
		write:   &rog.PendingWrite{Object: o, Geometry: data},
	}, nil
}
