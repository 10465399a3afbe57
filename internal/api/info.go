package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-rog/internal/rog/spec"
	"github.com/joeblew999/plat-rog/internal/source"
)

type InfoHandler struct {
	dataDir  string
	dbOK     bool
	tileSize int
}

func NewInfoHandler(dataDir string, dbOK bool, tileSize int) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, dbOK: dbOK, tileSize: tileSize}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name          string   `json:"name" doc:"Service name"`
	Version       string   `json:"version" doc:"Service version"`
	FormatVersion int32    `json:"format_version" doc:"ROG format version written by builds"`
	DataDir       string   `json:"data_dir" doc:"Data directory path"`
	DB            bool     `json:"db" doc:"Whether DuckDB is available"`
	TileSize      int      `json:"tile_size" doc:"Tile size of the pixel grid"`
	Formats       []string `json:"formats" doc:"Readable source formats"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	formats := []string{string(source.FormatGeoJSON), string(source.FormatShapefile)}
	if h.dbOK {
		formats = append(formats,
			string(source.FormatGeoParquet),
			string(source.FormatGeoPackage),
			string(source.FormatFlatGeobuf))
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:          "plat-rog",
		Version:       Version,
		FormatVersion: spec.Version,
		DataDir:       h.dataDir,
		DB:            h.dbOK,
		TileSize:      h.tileSize,
		Formats:       formats,
	}}, nil
}
