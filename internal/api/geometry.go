package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-rog/internal/rog"
	"github.com/joeblew999/plat-rog/internal/service"
	"github.com/joeblew999/plat-rog/internal/tilescheme"
)

type ObjectInput struct {
	NameInput
	Index int `path:"index" minimum:"0" doc:"Object index"`
}

type GeometryInput struct {
	ObjectInput
	Zoom  int    `query:"zoom" default:"-1" minimum:"-1" doc:"Zoom level to draw at, -1 for the raw geometry"`
	Space string `query:"space" default:"pixel" enum:"pixel,geographic" doc:"Coordinate space of the returned geometry"`
}

type GeometryBody struct {
	Index   int              `json:"index" doc:"Object index"`
	Zoom    int              `json:"zoom" doc:"Requested zoom level"`
	Level   int              `json:"level" doc:"Level the geometry is stored at, -1 for raw"`
	Space   string           `json:"space" doc:"Coordinate space of the geometry"`
	Drawn   bool             `json:"drawn" doc:"False when the object is too small to draw at this zoom"`
	Feature *geojson.Feature `json:"feature,omitempty" doc:"GeoJSON feature holding the geometry"`
}

type BlocksInput struct {
	NameInput
	Zoom int    `query:"zoom" default:"-1" minimum:"-1" doc:"Zoom level, -1 for raw blocks"`
	BBox string `query:"bbox" doc:"Geographic view minLon,minLat,maxLon,maxLat" example:"-10,40,5,52"`
}

func (h *APIHandler) GetObject(ctx context.Context, input *ObjectInput) (*struct{ Body *service.ObjectInfo }, error) {
	info, err := h.svc.Rog.Object(input.Name, input.Index)
	if err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body *service.ObjectInfo }{Body: info}, nil
}

func (h *APIHandler) GetGeometry(ctx context.Context, input *GeometryInput) (*struct{ Body GeometryBody }, error) {
	g, level, err := h.svc.Rog.Geometry(input.Name, input.Index, input.Zoom)
	if err != nil {
		return nil, statusError(err)
	}
	body := GeometryBody{Index: input.Index, Zoom: input.Zoom, Level: level, Space: input.Space}
	if g == nil {
		return &struct{ Body GeometryBody }{Body: body}, nil
	}

	switch {
	case input.Space == "geographic" && level != rog.RawLevel:
		g = tilescheme.Transform(g, h.svc.Scheme.FromPixel(level))
	case input.Space == "pixel" && level == rog.RawLevel && input.Zoom != rog.RawLevel:
		g = tilescheme.Transform(g, h.svc.Scheme.ToPixel(input.Zoom))
	case input.Space == "pixel" && level != rog.RawLevel:
		g = tilescheme.Rescale(h.svc.Scheme, g, level, input.Zoom)
	}
	if level == rog.RawLevel && input.Zoom == rog.RawLevel {
		body.Space = "geographic"
	}
	body.Drawn = true
	body.Feature = geojson.NewFeature(g)
	body.Feature.Properties["level"] = level
	return &struct{ Body GeometryBody }{Body: body}, nil
}

func (h *APIHandler) GetBlocks(ctx context.Context, input *BlocksInput) (*struct{ Body []service.BlockInfo }, error) {
	var view *orb.Bound
	if input.BBox != "" {
		b, err := parseBBox(input.BBox)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		view = &b
	}
	blocks, err := h.svc.Rog.Blocks(input.Name, input.Zoom, view, h.svc.Scheme)
	if err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body []service.BlockInfo }{Body: blocks}, nil
}

func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox needs 4 values, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox value %q: %w", p, err)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("bbox %q is inverted", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
