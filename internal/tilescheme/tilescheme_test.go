package tilescheme_test

import (
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-rog/internal/tilescheme"
)

func near(a, b orb.Point, eps float64) bool {
	return math.Abs(a[0]-b[0]) < eps && math.Abs(a[1]-b[1]) < eps
}

func TestWebMercatorToPixel(t *testing.T) {
	s := tilescheme.NewWebMercator(0)
	if s.TileSize() != tilescheme.DefaultTileSize {
		t.Fatalf("TileSize = %d, want %d", s.TileSize(), tilescheme.DefaultTileSize)
	}

	for _, tc := range []struct {
		zoom int
		in   orb.Point
		want orb.Point
	}{
		{0, orb.Point{0, 0}, orb.Point{128, 128}},
		{0, orb.Point{-180, tilescheme.MaxLatitude}, orb.Point{0, 0}},
		{0, orb.Point{180, -tilescheme.MaxLatitude}, orb.Point{256, 256}},
		{0, orb.Point{180, -90}, orb.Point{256, 256}},
		{2, orb.Point{0, 0}, orb.Point{512, 512}},
	} {
		got := s.ToPixel(tc.zoom)(tc.in)
		if !near(got, tc.want, 1e-6) {
			t.Errorf("ToPixel(%d)(%v) = %v, want %v", tc.zoom, tc.in, got, tc.want)
		}
	}

	if got, want := s.Extent(3), (orb.Bound{Max: orb.Point{2048, 2048}}); got != want {
		t.Errorf("Extent(3) = %v, want %v", got, want)
	}
}

func TestWebMercatorRoundTrip(t *testing.T) {
	s := tilescheme.NewWebMercator(512)
	for _, p := range []orb.Point{{0, 0}, {13.4, 52.5}, {-122.4, 37.8}, {151.2, -33.9}} {
		for _, z := range []int{0, 5, 14} {
			got := s.FromPixel(z)(s.ToPixel(z)(p))
			if !near(got, p, 1e-6) {
				t.Errorf("zoom %d: round trip of %v = %v", z, p, got)
			}
		}
	}
}

func TestRescale(t *testing.T) {
	s := tilescheme.NewWebMercator(256)
	line := orb.LineString{{10, 20}, {100, 200}}
	got := tilescheme.Rescale(s, line, 1, 3).(orb.LineString)
	for i := range line {
		if want := (orb.Point{line[i][0] * 4, line[i][1] * 4}); !near(got[i], want, 1e-6) {
			t.Errorf("point %d = %v, want %v", i, got[i], want)
		}
	}
	if line[0] != (orb.Point{10, 20}) {
		t.Error("Rescale modified its input")
	}
}

func TestPixelBound(t *testing.T) {
	s := tilescheme.NewWebMercator(256)
	b := orb.Bound{Min: orb.Point{-180, -tilescheme.MaxLatitude}, Max: orb.Point{0, tilescheme.MaxLatitude}}
	got := tilescheme.PixelBound(s, b, 0)
	want := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{128, 256}}
	if !near(got.Min, want.Min, 1e-6) || !near(got.Max, want.Max, 1e-6) {
		t.Errorf("PixelBound = %v, want %v", got, want)
	}
}
