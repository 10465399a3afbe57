// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-rog/internal/builder"
	"github.com/joeblew999/plat-rog/internal/service"
	"github.com/joeblew999/plat-rog/internal/source"
	"github.com/joeblew999/plat-rog/internal/tilescheme"
)

// Version is the API version reported by /health and /api/v1/info.
const Version = "1.0.0"

// Services holds the service dependencies for API handlers.
type Services struct {
	Source *service.SourceService
	Rog    *service.RogService
	Build  *service.BuildService
	Bus    *service.EventBus
	Scheme tilescheme.Scheme
}

// Types

type NameInput struct {
	Name string `path:"name" doc:"ROG file name" example:"buildings.rog"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// called by RegisterRoutes.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	if svc.Scheme == nil {
		svc.Scheme = tilescheme.NewWebMercator(tilescheme.DefaultTileSize)
	}
	return &APIHandler{svc: svc}
}

// RegisterRoutes registers every route of the API.
func RegisterRoutes(api huma.API, svc *Services) {
	h := NewAPIHandler(svc)
	h.RegisterHealth(api)
	h.RegisterSources(api)
	h.RegisterRogs(api)
	h.RegisterBuilds(api)
	h.RegisterEvents(api)
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterSources registers source listing routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
}

// RegisterRogs registers ROG file routes.
func (h *APIHandler) RegisterRogs(api huma.API) {
	huma.Get(api, "/api/v1/rogs", h.GetRogs, huma.OperationTags("rogs"))
	huma.Get(api, "/api/v1/rogs/{name}", h.GetRog, huma.OperationTags("rogs"))
	huma.Delete(api, "/api/v1/rogs/{name}", h.DeleteRog, huma.OperationTags("rogs"))
	huma.Post(api, "/api/v1/rogs/{name}/validate", h.ValidateRog, huma.OperationTags("rogs"))
	huma.Get(api, "/api/v1/rogs/{name}/blocks", h.GetBlocks, huma.OperationTags("rogs"))
	huma.Get(api, "/api/v1/rogs/{name}/objects/{index}", h.GetObject, huma.OperationTags("rogs"))
	huma.Get(api, "/api/v1/rogs/{name}/objects/{index}/geometry", h.GetGeometry, huma.OperationTags("rogs"))
}

// RegisterBuilds registers build routes.
func (h *APIHandler) RegisterBuilds(api huma.API) {
	huma.Post(api, "/api/v1/builds", h.CreateBuild, huma.OperationTags("builds"))
	huma.Post(api, "/api/v1/builds/stream", h.StreamBuild, huma.OperationTags("builds"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	if h.svc.Source == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	sources, err := h.svc.Source.List()
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list sources", err)
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}

func (h *APIHandler) GetRogs(ctx context.Context, input *struct{}) (*struct{ Body []service.RogFile }, error) {
	rogs, err := h.svc.Rog.List()
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list rog files", err)
	}
	return &struct{ Body []service.RogFile }{Body: rogs}, nil
}

func (h *APIHandler) GetRog(ctx context.Context, input *NameInput) (*struct{ Body *service.RogInfo }, error) {
	info, err := h.svc.Rog.Inspect(input.Name)
	if err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body *service.RogInfo }{Body: info}, nil
}

func (h *APIHandler) DeleteRog(ctx context.Context, input *NameInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Rog.Delete(input.Name); err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "ROG file deleted"}}, nil
}

func (h *APIHandler) ValidateRog(ctx context.Context, input *NameInput) (*struct{ Body *service.ValidationResult }, error) {
	res, err := h.svc.Rog.Validate(ctx, input.Name)
	if err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body *service.ValidationResult }{Body: res}, nil
}

func (h *APIHandler) CreateBuild(ctx context.Context, input *struct{ Body service.BuildRequest }) (*struct{ Body *service.BuildResult }, error) {
	res, err := h.svc.Build.Build(ctx, input.Body, nil)
	if err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body *service.BuildResult }{Body: res}, nil
}

// statusError maps service errors to HTTP errors.
func statusError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidName),
		errors.Is(err, service.ErrOutOfRange):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, service.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrBuildRunning):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, builder.ErrInvalidConfig),
		errors.Is(err, builder.ErrNoGeometries),
		errors.Is(err, builder.ErrDuplicateRow),
		errors.Is(err, source.ErrUnsupportedFormat):
		return huma.Error422UnprocessableEntity(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
