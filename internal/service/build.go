package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/joeblew999/plat-rog/internal/builder"
)

// ErrBuildRunning is returned when the output of a build is already being
// written by another one.
var ErrBuildRunning = errors.New("a build for this output is already running")

// BuildService builds ROG files from source files.
type BuildService struct {
	sources *SourceService
	rogs    *RogService
	bus     *EventBus
	base    builder.Config
	logger  *slog.Logger

	mu     sync.Mutex
	active map[string]string // output path -> build id
}

// NewBuildService creates a build service. Requests are applied over base.
func NewBuildService(sources *SourceService, rogs *RogService, bus *EventBus, base builder.Config, logger *slog.Logger) *BuildService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BuildService{
		sources: sources,
		rogs:    rogs,
		bus:     bus,
		base:    base,
		logger:  logger,
		active:  map[string]string{},
	}
}

// Config returns the build settings for req.
func (s *BuildService) Config(req BuildRequest) (builder.Config, error) {
	cfg := s.base
	if req.MinZoom != nil {
		cfg.MinZoom = *req.MinZoom
	}
	if req.MaxZoom != nil {
		cfg.MaxZoom = *req.MaxZoom
	}
	if req.Tolerance != nil {
		cfg.Tolerance = *req.Tolerance
	}
	if req.KeepProperties != nil {
		cfg.KeepProperties = *req.KeepProperties
	}
	return cfg, cfg.Validate()
}

// Build runs one build to completion. Progress messages go to reporter, which
// may be nil, and to the event bus.
func (s *BuildService) Build(ctx context.Context, req BuildRequest, reporter builder.Reporter) (*BuildResult, error) {
	cfg, err := s.Config(req)
	if err != nil {
		return nil, err
	}
	src, err := s.sources.Open(req.Source)
	if err != nil {
		return nil, err
	}

	output := req.Output
	if output == "" {
		output = strings.TrimSuffix(req.Source, filepath.Ext(req.Source))
	}
	outPath, err := s.rogs.Path(output)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.rogs.RogsDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create rogs directory: %w", err)
	}

	id := uuid.NewString()
	if err := s.claim(outPath, id); err != nil {
		return nil, err
	}
	defer s.release(outPath)

	reporters := builder.Reporters{busReporter{bus: s.bus, id: id}}
	if reporter != nil {
		reporters = append(reporters, reporter)
	}
	logger := s.logger.With("build", id, "source", req.Source)
	b, err := builder.New(cfg, builder.Options{Reporter: reporters, Logger: logger})
	if err != nil {
		return nil, err
	}

	logger.Info("build started", "output", filepath.Base(outPath))
	stats, err := b.Build(ctx, src, outPath)
	if err != nil {
		logger.Warn("build failed", "error", err)
		s.publish(Event{Resource: ResourceBuilds, Action: ActionFailed, ID: id, Message: err.Error()})
		return nil, err
	}
	logger.Info("build finished", "objects", stats.Objects, "blocks", stats.Blocks, "duration", stats.Duration)
	s.publish(Event{Resource: ResourceRogs, Action: ActionBuilt, ID: filepath.Base(outPath)})

	return &BuildResult{ID: id, Output: filepath.Base(outPath), Stats: stats}, nil
}

func (s *BuildService) claim(path, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if running, ok := s.active[path]; ok {
		return fmt.Errorf("%w: %s", ErrBuildRunning, running)
	}
	s.active[path] = id
	return nil
}

func (s *BuildService) release(path string) {
	s.mu.Lock()
	delete(s.active, path)
	s.mu.Unlock()
}

func (s *BuildService) publish(e Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

// busReporter forwards build progress to the event bus.
type busReporter struct {
	bus *EventBus
	id  string
}

func (r busReporter) PostStatus(msg string) {
	if r.bus != nil {
		r.bus.Publish(Event{Resource: ResourceBuilds, Action: ActionProgress, ID: r.id, Message: msg})
	}
}
