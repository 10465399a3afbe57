package api

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/joeblew999/plat-rog/internal/service"
)

// SSE wraps the Datastar SSE generator with the signals the UI listens to.
// Its methods may be called from several goroutines.
type SSE struct {
	mu  sync.Mutex
	gen *datastar.ServerSentEventGenerator
}

// NewSSE creates an SSE helper from a Huma streaming context.
func NewSSE(ctx huma.Context) *SSE {
	r, w := humago.Unwrap(ctx)
	return &SSE{gen: datastar.NewSSE(w, r)}
}

// Signals sends arbitrary signals to the client.
func (s *SSE) Signals(signals map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen.MarshalAndPatchSignals(signals)
}

// Error sends an error signal to the client.
func (s *SSE) Error(msg string) {
	s.Signals(map[string]any{"error": msg})
}

// Success sends a success signal to the client.
func (s *SSE) Success(msg string) {
	s.Signals(map[string]any{"success": msg})
}

// Dispatch fires a browser CustomEvent named name.
func (s *SSE) Dispatch(name string, detail any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen.DispatchCustomEvent(name, detail)
}

// PostStatus reports build progress as the buildStatus signal.
func (s *SSE) PostStatus(msg string) {
	s.Signals(map[string]any{"buildStatus": msg})
}

// Signals provides typed access to Datastar signal values.
// Datastar sends all signals as a flat JSON object in the request body.
type Signals map[string]any

func (s Signals) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// Int returns a numeric signal, or nil when it is absent.
func (s Signals) Int(key string) *int {
	f, ok := s[key].(float64)
	if !ok {
		return nil
	}
	n := int(f)
	return &n
}

func (s Signals) Float(key string) *float64 {
	f, ok := s[key].(float64)
	if !ok {
		return nil
	}
	return &f
}

func (s Signals) Bool(key string) *bool {
	b, ok := s[key].(bool)
	if !ok {
		return nil
	}
	return &b
}

// SignalsInput is an input struct for handlers that receive Datastar signals.
type SignalsInput struct {
	RawBody []byte
}

// Parse parses the signals or returns a Huma 400 error.
func (i *SignalsInput) Parse() (Signals, error) {
	var signals Signals
	if err := json.Unmarshal(i.RawBody, &signals); err != nil {
		return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}
	return signals, nil
}

// StreamBuild runs a build from Datastar signals and streams its progress.
// Datastar data-bind creates lowercase signal names.
func (h *APIHandler) StreamBuild(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.Parse()
	if err != nil {
		return nil, err
	}
	req := service.BuildRequest{
		Source:         signals.String("source"),
		Output:         signals.String("output"),
		MinZoom:        signals.Int("minzoom"),
		MaxZoom:        signals.Int("maxzoom"),
		Tolerance:      signals.Float("tolerance"),
		KeepProperties: signals.Bool("keepproperties"),
	}
	if req.Source == "" {
		return nil, huma.Error400BadRequest("Source file is required")
	}
	if _, err := h.svc.Build.Config(req); err != nil {
		return nil, statusError(err)
	}

	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSE(humaCtx)
			res, err := h.svc.Build.Build(ctx, req, sse)
			if err != nil {
				sse.Error(err.Error())
				return
			}
			sse.Signals(map[string]any{
				"buildStatus": "Complete!",
				"buildId":     res.ID,
				"success":     "Built " + res.Output,
			})
		},
	}, nil
}

// RegisterEvents registers the resource change stream.
func (h *APIHandler) RegisterEvents(api huma.API) {
	huma.Get(api, "/api/v1/events", h.Events, huma.OperationTags("events"))
}

// Events streams resource change and build progress events via SSE.
func (h *APIHandler) Events(ctx context.Context, input *struct{}) (*huma.StreamResponse, error) {
	bus := h.svc.Bus
	if bus == nil {
		bus = service.DefaultBus
	}
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSE(humaCtx)
			ch := bus.Subscribe()
			defer bus.Unsubscribe(ch)

			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-ch:
					if ev.Action == service.ActionProgress {
						sse.Signals(map[string]any{"buildId": ev.ID, "buildStatus": ev.Message})
						continue
					}
					sse.Dispatch("resource-changed", map[string]any{
						"resource": ev.Resource,
						"action":   ev.Action,
						"id":       ev.ID,
						"message":  ev.Message,
					})
				}
			}
		},
	}, nil
}
