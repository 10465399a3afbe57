package server

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-rog/internal/api"
	"github.com/joeblew999/plat-rog/internal/builder"
	"github.com/joeblew999/plat-rog/internal/db"
	"github.com/joeblew999/plat-rog/internal/service"
	"github.com/joeblew999/plat-rog/internal/tilescheme"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string

	// Build is the base configuration of builds started over the API.
	Build  builder.Config
	Logger *slog.Logger
}

// Server is the ROG HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	services *api.Services
}

// New creates a new ROG server. DuckDB is optional; without it only GeoJSON
// and Shapefile sources can be built.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("plat-rog API", api.Version)
	humaConfig.Info.Description = "Builds and serves ROG files: multi-resolution geometry stores for map rendering."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	s := &Server{
		config:  cfg,
		mux:     mux,
		humaAPI: humago.New(mux, humaConfig),
	}

	conn, err := db.Get(db.Config{
		DataDir: cfg.DataDir,
		DBName:  "rog",
	})
	if err != nil {
		cfg.Logger.Warn("duckdb unavailable, columnar sources disabled", "error", err)
	} else {
		s.db = conn
	}

	bus := service.DefaultBus
	sources := service.NewSourceService(cfg.DataDir, s.db)
	rogs := service.NewRogService(cfg.DataDir, bus)
	s.services = &api.Services{
		Source: sources,
		Rog:    rogs,
		Build:  service.NewBuildService(sources, rogs, bus, cfg.Build, cfg.Logger),
		Bus:    bus,
		Scheme: tilescheme.NewWebMercator(cfg.Build.TileSize),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Close closes server resources.
func (s *Server) Close() error {
	return db.Close()
}

func (s *Server) routes() {
	api.RegisterRoutes(s.humaAPI, s.services)
	api.NewInfoHandler(s.config.DataDir, s.db != nil, s.config.Build.TileSize).RegisterRoutes(s.humaAPI)

	// Raw file downloads for renderers that read ROG files over HTTP ranges.
	s.mux.Handle("GET /files/", http.StripPrefix("/files/", s.handleFiles(s.services.Rog.RogsDir())))
}

func (s *Server) handleFiles(dir string) http.Handler {
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.config.Logger.Warn("cannot create rogs directory", "dir", dir, "error", err)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")
		http.FileServer(http.Dir(dir)).ServeHTTP(w, r)
	})
}
