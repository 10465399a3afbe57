// Package builder turns a geometry source into a validated ROG file: one
// raw copy of every geometry plus one simplified copy per zoom level,
// bucketed into quadtree blocks.
package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-rog/internal/rog"
	"github.com/joeblew999/plat-rog/internal/rog/spec"
	"github.com/joeblew999/plat-rog/internal/source"
	"github.com/joeblew999/plat-rog/internal/tilescheme"
)

var (
	ErrNoGeometries = errors.New("builder: source has no geometries")
	ErrDuplicateRow = errors.New("builder: duplicate row id")
)

// ProgressInterval is how often progress is posted while a level is being
// simplified.
var ProgressInterval = 2 * time.Second

// Options carry the collaborators of a build. Every field is optional.
type Options struct {
	Scheme   tilescheme.Scheme
	Reporter Reporter
	Logger   *slog.Logger
}

// Builder runs builds with one configuration. It holds no per-build state
// and may be reused.
type Builder struct {
	cfg      Config
	scheme   tilescheme.Scheme
	reporter Reporter
	logger   *slog.Logger
}

func New(cfg Config, opts Options) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Builder{cfg: cfg, scheme: opts.Scheme, reporter: opts.Reporter, logger: opts.Logger}
	if b.scheme == nil {
		b.scheme = tilescheme.NewWebMercator(cfg.TileSize)
	}
	if b.reporter == nil {
		b.reporter = nopReporter{}
	}
	if b.logger == nil {
		b.logger = slog.New(slog.DiscardHandler)
	}
	return b, nil
}

func (b *Builder) Config() Config { return b.cfg }

// LevelStats counts what one level stored.
type LevelStats struct {
	Zoom      int           `json:"zoom" yaml:"zoom"`
	Written   int           `json:"written" yaml:"written"`
	Reused    int           `json:"reused" yaml:"reused"`
	Subpixel  int           `json:"subpixel" yaml:"subpixel"`
	Blocks    int           `json:"blocks" yaml:"blocks"`
	Bytes     int64         `json:"bytes" yaml:"bytes"`
	Fallbacks int           `json:"fallbacks" yaml:"fallbacks"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Stats summarises a finished build.
type Stats struct {
	Objects    int                  `json:"objects" yaml:"objects"`
	Raw        LevelStats           `json:"raw" yaml:"raw"`
	Levels     []LevelStats         `json:"levels" yaml:"levels"`
	Blocks     int                  `json:"blocks" yaml:"blocks"`
	FileSize   int64                `json:"fileSize" yaml:"file_size"`
	Validation rog.ValidationReport `json:"validation" yaml:"validation"`
	Duration   time.Duration        `json:"duration" yaml:"duration"`
}

// build is the state of one Build call.
type build struct {
	*Builder
	objects    []*rog.ShapeIndex
	geometries []orb.Geometry
	writer     *rog.QuadWriter
	quads      *rog.QuadBlockBuilder
	stats      *Stats
}

// Build reads src, writes outputPath and validates it. On any error,
// including cancellation, the output file is removed and the temporary
// block file is deleted.
func (b *Builder) Build(ctx context.Context, src source.Source, outputPath string) (stats *Stats, err error) {
	start := time.Now()
	st := &build{Builder: b, stats: &Stats{}}

	b.reporter.PostStatus("Loading geometries...")
	if err := st.load(ctx, src); err != nil {
		return nil, err
	}
	b.logger.Info("builder: loaded", "objects", len(st.objects))

	st.writer, err = rog.NewQuadWriter(b.cfg.TempDir, b.logger)
	if err != nil {
		return nil, err
	}
	defer st.writer.Close()
	st.quads = rog.NewQuadBlockBuilder(b.cfg.quadParams(), b.logger)

	finishing := false
	defer func() {
		if err != nil && finishing {
			if rerr := os.Remove(outputPath); rerr != nil && !os.IsNotExist(rerr) {
				b.logger.Warn("builder: removing output", "path", outputPath, "error", rerr)
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.reporter.PostStatus("Writing raw geometries...")
	if err := st.rawLevel(ctx); err != nil {
		return nil, err
	}

	for zoom := b.cfg.MinZoom; zoom <= b.cfg.MaxZoom; zoom++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := st.level(ctx, zoom); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.reporter.PostStatus("Writing file...")
	finishing = true
	header := spec.Header{
		Version:               spec.Version,
		NoOverlappingPolygons: b.cfg.NoOverlappingPolygons,
		MinZoom:               int32(b.cfg.MinZoom),
	}
	if err := st.writer.Finish(header, st.objects, outputPath); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.reporter.PostStatus("Validating...")
	report, err := rog.ValidateFile(ctx, outputPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, err
	}

	st.stats.Objects = len(st.objects)
	st.stats.Blocks = report.Blocks
	st.stats.FileSize = info.Size()
	st.stats.Validation = report
	st.stats.Duration = time.Since(start)
	b.logger.Info("builder: done",
		"path", outputPath, "objects", st.stats.Objects, "blocks", st.stats.Blocks,
		"size", st.stats.FileSize, "duration", st.stats.Duration)
	b.reporter.PostStatus(fmt.Sprintf("Built %d geometries in %d blocks", st.stats.Objects, st.stats.Blocks))
	return st.stats, nil
}

// load reads every record and creates its ShapeIndex. Row order is the
// order of the source.
func (st *build) load(ctx context.Context, src source.Source) error {
	seen := make(map[int64]struct{})
	err := src.Visit(ctx, func(r source.Record) error {
		if rog.IsEmpty(r.Geometry) {
			st.logger.Debug("builder: skipping empty geometry", "row", r.RowID)
			return nil
		}
		if _, ok := seen[r.RowID]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateRow, r.RowID)
		}
		seen[r.RowID] = struct{}{}

		o := rog.NewShapeIndex(r.RowID, r.Geometry, st.cfg.MinZoom, st.cfg.MaxZoom)
		if st.cfg.KeepProperties && len(r.Properties) > 0 {
			meta, err := json.Marshal(r.Properties)
			if err != nil {
				return fmt.Errorf("builder: row %d properties: %w", r.RowID, err)
			}
			o.Metadata = meta
		}
		st.objects = append(st.objects, o)
		st.geometries = append(st.geometries, r.Geometry)
		return nil
	})
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(st.objects) == 0 {
		return ErrNoGeometries
	}
	return nil
}

// rawLevel writes every geometry unsimplified with geographic coordinates.
func (st *build) rawLevel(ctx context.Context) error {
	start := time.Now()
	writes := make([]*rog.PendingWrite, len(st.objects))
	alloc := NewRowAllocator(len(st.objects))
	err := forEachRow(ctx, alloc, st.cfg.workers(), func(i int) error {
		data, err := rog.MarshalGeometry(st.geometries[i])
		if err != nil {
			return fmt.Errorf("builder: row %d: %w", st.objects[i].RowID, err)
		}
		writes[i] = &rog.PendingWrite{Object: st.objects[i], Geometry: data}
		return nil
	})
	if err != nil {
		return err
	}

	ls, err := st.flush(rog.RawLevel, nil, writes)
	if err != nil {
		return err
	}
	ls.Written = len(writes)
	ls.Duration = time.Since(start)
	st.stats.Raw = ls
	st.logger.Info("builder: raw level", "blocks", ls.Blocks, "bytes", ls.Bytes)
	return nil
}

// level simplifies every geometry for zoom and writes the kept copies.
func (st *build) level(ctx context.Context, zoom int) error {
	start := time.Now()
	proj := st.scheme.ToPixel(zoom)
	results := make([]levelResult, len(st.objects))
	alloc := NewRowAllocator(len(st.objects))

	stop := st.progress(zoom, alloc)
	err := forEachRow(ctx, alloc, st.cfg.workers(), func(i int) error {
		res, err := st.processGeometry(st.objects[i], st.geometries[i], zoom, proj)
		if err != nil {
			return fmt.Errorf("builder: row %d zoom %d: %w", st.objects[i].RowID, zoom, err)
		}
		results[i] = res
		return nil
	})
	stop()
	if err != nil {
		return err
	}

	ls := LevelStats{Zoom: zoom}
	writes := make([]*rog.PendingWrite, 0, len(results))
	for _, res := range results {
		switch res.outcome {
		case Written:
			writes = append(writes, res.write)
			ls.Written++
		case Reused:
			ls.Reused++
		case Dropped:
			ls.Subpixel++
		}
	}

	extent := st.scheme.Extent(zoom)
	flushed, err := st.flush(zoom, &extent, writes)
	if err != nil {
		return err
	}
	ls.Blocks, ls.Bytes, ls.Fallbacks = flushed.Blocks, flushed.Bytes, flushed.Fallbacks
	ls.Duration = time.Since(start)
	st.stats.Levels = append(st.stats.Levels, ls)

	st.logger.Info("builder: level",
		"zoom", zoom, "written", ls.Written, "reused", ls.Reused, "subpixel", ls.Subpixel,
		"blocks", ls.Blocks, "bytes", ls.Bytes)
	st.reporter.PostStatus(fmt.Sprintf("Zoom %d: %d written, %d reused, %d subpixel", zoom, ls.Written, ls.Reused, ls.Subpixel))
	return nil
}

// flush buckets writes into blocks and appends them to the block stream.
func (st *build) flush(zoom int, extent *orb.Bound, writes []*rog.PendingWrite) (LevelStats, error) {
	ls := LevelStats{Zoom: zoom}
	if len(writes) == 0 {
		return ls, nil
	}
	tree, err := st.quads.Build(zoom, extent, writes)
	if err != nil {
		return ls, err
	}
	before := st.writer.Bytes()
	n, err := st.writer.Add(tree)
	if err != nil {
		return ls, err
	}
	ls.Blocks = n
	ls.Bytes = st.writer.Bytes() - before
	ls.Fallbacks = tree.Fallbacks
	return ls, nil
}

// progress posts the number of rows claimed at zoom every
// ProgressInterval until the returned function is called. Nothing is posted
// once it returns.
func (st *build) progress(zoom int, alloc *RowAllocator) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	total := len(st.objects)
	go func() {
		defer close(exited)
		ticker := time.NewTicker(ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				st.reporter.PostStatus(fmt.Sprintf("Zoom %d: %d/%d geometries", zoom, alloc.Claimed(), total))
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}
