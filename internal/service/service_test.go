package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/joeblew999/plat-rog/internal/builder"
	"github.com/joeblew999/plat-rog/internal/rog"
)

const testGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "a"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[10,0],[10,10],[0,10],[0,0]]]}},
    {"type": "Feature", "properties": {"name": "b"},
     "geometry": {"type": "LineString", "coordinates": [[-20,-20],[-10,-5],[0,-20]]}},
    {"type": "Feature", "properties": {"name": "c"},
     "geometry": {"type": "Point", "coordinates": [30,40]}}
  ]
}`

type fixture struct {
	dir     string
	bus     *EventBus
	sources *SourceService
	rogs    *RogService
	builds  *BuildService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sources"), 0755); err != nil {
		t.Fatal(err)
	}
	write := func(name, data string) {
		if err := os.WriteFile(filepath.Join(dir, "sources", name), []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("shapes.geojson", testGeoJSON)
	write("notes.txt", "ignored")

	cfg := builder.DefaultConfig()
	cfg.MaxZoom = 3
	cfg.Workers = 2

	f := &fixture{dir: dir, bus: NewEventBus()}
	f.sources = NewSourceService(dir, nil)
	f.rogs = NewRogService(dir, f.bus)
	f.builds = NewBuildService(f.sources, f.rogs, f.bus, cfg, nil)
	return f
}

func TestSourceList(t *testing.T) {
	f := newFixture(t)
	files, err := f.sources.List()
	if err != nil {
		t.Fatal(err)
	}
	want := []SourceFile{{Name: "shapes.geojson", Size: formatSize(int64(len(testGeoJSON))), FileType: "GeoJSON"}}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckName(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"", "../secret.geojson", "a/b.geojson", `a\b.geojson`} {
		if _, err := f.sources.Path(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Path(%q) = %v, want ErrInvalidName", name, err)
		}
	}
	if _, err := f.sources.Path("missing.geojson"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing file: %v, want ErrNotFound", err)
	}
}

func TestBuildAndInspect(t *testing.T) {
	f := newFixture(t)
	events := f.bus.Subscribe()
	defer f.bus.Unsubscribe(events)

	var (
		mu       sync.Mutex
		messages []string
	)
	res, err := f.builds.Build(context.Background(), BuildRequest{Source: "shapes.geojson"},
		builder.ReporterFunc(func(msg string) {
			mu.Lock()
			messages = append(messages, msg)
			mu.Unlock()
		}))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if res.Output != "shapes.rog" || res.ID == "" || res.Stats.Objects != 3 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(messages) == 0 {
		t.Error("no progress messages")
	}

	var built bool
	for !built {
		select {
		case e := <-events:
			built = e.Resource == ResourceRogs && e.Action == ActionBuilt && e.ID == "shapes.rog"
		case <-time.After(time.Second):
			t.Fatal("no built event")
		}
	}

	files, err := f.rogs.List()
	if err != nil || len(files) != 1 || files[0].Name != "shapes.rog" {
		t.Fatalf("List = %v, %v", files, err)
	}

	info, err := f.rogs.Inspect("shapes")
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info.Objects != 3 || info.MinZoom != 0 || info.MaxZoom != 3 {
		t.Errorf("unexpected info %+v", info)
	}
	if info.Bounds != [4]float64{-20, -20, 30, 40} {
		t.Errorf("bounds = %v", info.Bounds)
	}
	if len(info.Levels) == 0 || info.Levels[0].Zoom != rog.RawLevel || info.Levels[0].Members != 3 {
		t.Errorf("raw level = %+v", info.Levels)
	}

	res2, err := f.rogs.Validate(context.Background(), "shapes.rog")
	if err != nil || !res2.Valid || res2.Report.Objects != 3 {
		t.Errorf("Validate = %+v, %v", res2, err)
	}

	g, level, err := f.rogs.Geometry("shapes.rog", 2, rog.RawLevel)
	if err != nil || g == nil || level != rog.RawLevel {
		t.Errorf("raw geometry = %v, %d, %v", g, level, err)
	}
	if _, _, err := f.rogs.Geometry("shapes.rog", 0, 9); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("zoom 9: %v, want ErrOutOfRange", err)
	}
	if _, err := f.rogs.Object("shapes.rog", 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("object 3: %v, want ErrNotFound", err)
	}

	blocks, err := f.rogs.Blocks("shapes.rog", rog.RawLevel, nil, nil)
	if err != nil || len(blocks) == 0 {
		t.Errorf("Blocks = %v, %v", blocks, err)
	}

	if err := f.rogs.Delete("shapes.rog"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.rogs.Inspect("shapes.rog"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Inspect after delete: %v", err)
	}
}

func TestBuildConfig(t *testing.T) {
	f := newFixture(t)
	minZoom, maxZoom := 2, 1
	if _, err := f.builds.Config(BuildRequest{MinZoom: &minZoom, MaxZoom: &maxZoom}); !errors.Is(err, builder.ErrInvalidConfig) {
		t.Errorf("inverted zooms: %v", err)
	}
	if _, err := f.builds.Build(context.Background(), BuildRequest{Source: "notes.txt"}, nil); err == nil {
		t.Error("built from an unsupported file")
	}
}

func TestBuildRunning(t *testing.T) {
	f := newFixture(t)
	path, err := f.rogs.Path("shapes")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.builds.claim(path, "other"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.builds.Build(context.Background(), BuildRequest{Source: "shapes.geojson"}, nil); !errors.Is(err, ErrBuildRunning) {
		t.Errorf("Build = %v, want ErrBuildRunning", err)
	}
}

func TestEventBusNeverBlocks(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	for range 2 * cap(ch) {
		bus.Publish(Event{Resource: ResourceBuilds, Action: ActionProgress, ID: "b1", Message: "Zoom 3: 10/20 geometries"})
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffered %d events, want %d", len(ch), cap(ch))
	}
}
