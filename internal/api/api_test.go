package api

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-rog/internal/builder"
	"github.com/joeblew999/plat-rog/internal/service"
)

const testGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[10,0],[10,10],[0,10],[0,0]]]}},
    {"type": "Feature", "properties": {},
     "geometry": {"type": "Point", "coordinates": [30,40]}}
  ]
}`

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sources"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sources", "shapes.geojson"), []byte(testGeoJSON), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := builder.DefaultConfig()
	cfg.MaxZoom = 2
	cfg.Workers = 2

	bus := service.NewEventBus()
	sources := service.NewSourceService(dir, nil)
	rogs := service.NewRogService(dir, bus)
	svc := &Services{
		Source: sources,
		Rog:    rogs,
		Build:  service.NewBuildService(sources, rogs, bus, cfg, nil),
		Bus:    bus,
	}

	mux := http.NewServeMux()
	humaConfig := huma.DefaultConfig("plat-rog test", Version)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, LinkTransformer())
	api := humago.New(mux, humaConfig)
	RegisterRoutes(api, svc)
	NewInfoHandler(dir, false, cfg.TileSize).RegisterRoutes(api)
	return mux
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if body := decode[HealthBody](t, rec); body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
	if links := rec.Header().Values("Link"); len(links) == 0 {
		t.Error("no Link headers")
	}

	info := decode[InfoBody](t, do(t, h, http.MethodGet, "/api/v1/info", nil))
	if info.Name != "plat-rog" || info.FormatVersion != 2 || len(info.Formats) != 2 {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestBuildAndRead(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/builds", map[string]any{"source": "shapes.geojson", "output": "shapes"})
	if rec.Code != http.StatusOK {
		t.Fatalf("build status %d: %s", rec.Code, rec.Body)
	}
	res := decode[service.BuildResult](t, rec)
	if res.Output != "shapes.rog" || res.Stats == nil || res.Stats.Objects != 2 {
		t.Fatalf("unexpected build result %+v", res)
	}

	rogs := decode[[]service.RogFile](t, do(t, h, http.MethodGet, "/api/v1/rogs", nil))
	if len(rogs) != 1 || rogs[0].Name != "shapes.rog" {
		t.Errorf("rogs = %+v", rogs)
	}

	info := decode[service.RogInfo](t, do(t, h, http.MethodGet, "/api/v1/rogs/shapes.rog", nil))
	if info.Objects != 2 || info.MaxZoom != 2 {
		t.Errorf("info = %+v", info)
	}

	obj := decode[service.ObjectInfo](t, do(t, h, http.MethodGet, "/api/v1/rogs/shapes.rog/objects/0", nil))
	if obj.RowID != 0 || len(obj.Positions) != 3 {
		t.Errorf("object = %+v", obj)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/rogs/shapes.rog/objects/0/geometry?zoom=2&space=geographic", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("geometry status %d: %s", rec.Code, rec.Body)
	}
	geo := decode[GeometryBody](t, rec)
	if !geo.Drawn || geo.Feature == nil || geo.Level < 0 || geo.Level > 2 {
		t.Fatalf("geometry = %+v", geo)
	}
	b := geo.Feature.Geometry.Bound()
	for i, want := range []float64{0, 0, 10, 10} {
		got := []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}[i]
		if math.Abs(got-want) > 1e-6 {
			t.Errorf("geographic bound %v, want [0 0 10 10]", b)
			break
		}
	}

	raw := decode[GeometryBody](t, do(t, h, http.MethodGet, "/api/v1/rogs/shapes.rog/objects/1/geometry", nil))
	if !raw.Drawn || raw.Level != -1 || raw.Space != "geographic" {
		t.Errorf("raw geometry = %+v", raw)
	}

	blocks := decode[[]service.BlockInfo](t, do(t, h, http.MethodGet, "/api/v1/rogs/shapes.rog/blocks?zoom=-1&bbox=-1,-1,11,11", nil))
	if len(blocks) != 1 || blocks[0].Zoom != -1 {
		t.Errorf("blocks = %+v", blocks)
	}

	valid := decode[service.ValidationResult](t, do(t, h, http.MethodPost, "/api/v1/rogs/shapes.rog/validate", nil))
	if !valid.Valid || valid.Report.Objects != 2 {
		t.Errorf("validation = %+v", valid)
	}

	if rec := do(t, h, http.MethodDelete, "/api/v1/rogs/shapes.rog", nil); rec.Code != http.StatusOK {
		t.Errorf("delete status %d: %s", rec.Code, rec.Body)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/rogs/shapes.rog", nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status %d", rec.Code)
	}
}

func TestErrors(t *testing.T) {
	h := newTestServer(t)
	for _, tc := range []struct {
		method, path string
		body         any
		want         int
	}{
		{http.MethodGet, "/api/v1/rogs/missing.rog", nil, http.StatusNotFound},
		{http.MethodPost, "/api/v1/builds", map[string]any{"source": "missing.geojson"}, http.StatusNotFound},
		{http.MethodPost, "/api/v1/builds", map[string]any{"source": "shapes.geojson", "minZoom": 3, "maxZoom": 1}, http.StatusUnprocessableEntity},
		{http.MethodGet, "/api/v1/rogs/missing.rog/blocks?bbox=1,2,3", nil, http.StatusBadRequest},
	} {
		rec := do(t, h, tc.method, tc.path, tc.body)
		if rec.Code != tc.want {
			t.Errorf("%s %s: status %d, want %d: %s", tc.method, tc.path, rec.Code, tc.want, rec.Body)
		}
	}
}

func TestStreamBuild(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/builds/stream", map[string]any{"source": "shapes.geojson", "maxzoom": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	body := rec.Body.String()
	for _, want := range []string{"datastar-patch-signals", "buildStatus", "Built shapes.rog"} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q:\n%s", want, body)
		}
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/builds/stream", map[string]any{"output": "x"}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing source status %d", rec.Code)
	}
}
