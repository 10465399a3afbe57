package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-rog/internal/rog"
	"github.com/joeblew999/plat-rog/internal/rog/spec"
	"github.com/joeblew999/plat-rog/internal/tilescheme"
)

// Ext is the file extension of ROG files.
const Ext = ".rog"

// ErrOutOfRange reports a zoom level the file does not hold.
var ErrOutOfRange = errors.New("zoom out of range")

// RogService manages built ROG files.
type RogService struct {
	rogsDir string
	bus     *EventBus
}

// NewRogService creates a new ROG file service. Deletions are published on
// bus when it is not nil.
func NewRogService(dataDir string, bus *EventBus) *RogService {
	return &RogService{
		rogsDir: filepath.Join(dataDir, "rogs"),
		bus:     bus,
	}
}

// List returns all available ROG files.
func (s *RogService) List() ([]RogFile, error) {
	entries, err := os.ReadDir(s.rogsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RogFile{}, nil
		}
		return nil, err
	}

	files := []RogFile{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != Ext {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, RogFile{
			Name: entry.Name(),
			Size: formatSize(info.Size()),
		})
	}
	return files, nil
}

// Path returns the location of a ROG file. The file need not exist.
func (s *RogService) Path(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	if !strings.HasSuffix(name, Ext) {
		name += Ext
	}
	return filepath.Join(s.rogsDir, name), nil
}

// Open opens an existing ROG file. The caller closes the reader.
func (s *RogService) Open(name string) (*rog.Reader, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return rog.Open(path)
}

// Inspect summarises a ROG file.
func (s *RogService) Inspect(name string) (*RogInfo, error) {
	r, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return Describe(name, r)
}

// Describe summarises an open ROG file.
func Describe(name string, r *rog.Reader) (*RogInfo, error) {
	h := r.Header()
	info := &RogInfo{
		Name:          name,
		Size:          r.Size(),
		Version:       h.Version,
		NoOverlapping: h.NoOverlappingPolygons,
		MinZoom:       r.MinZoom(),
		MaxZoom:       r.MaxZoom(),
		Objects:       r.NumObjects(),
		Blocks:        r.NumBlocks(),
	}

	if r.NumObjects() > 0 {
		bound := r.Object(0).Bounds
		for i := 1; i < r.NumObjects(); i++ {
			bound = bound.Union(r.Object(i).Bounds)
		}
		info.Bounds = boundArray(bound)
	}

	meta, err := r.BlockMetadata()
	if err != nil {
		return nil, err
	}
	levels := map[int]*LevelInfo{}
	for _, m := range meta {
		l, ok := levels[m.Zoom]
		if !ok {
			l = &LevelInfo{Zoom: m.Zoom}
			levels[m.Zoom] = l
		}
		l.Blocks++
		l.Members += m.Count
		l.Bytes += int64(m.Bytes)
	}
	for _, l := range levels {
		info.Levels = append(info.Levels, *l)
	}
	sort.Slice(info.Levels, func(i, j int) bool { return info.Levels[i].Zoom < info.Levels[j].Zoom })
	return info, nil
}

// Object returns the index entry of object i.
func (s *RogService) Object(name string, i int) (*ObjectInfo, error) {
	r, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if i < 0 || i >= r.NumObjects() {
		return nil, fmt.Errorf("%w: object %d of %d", ErrNotFound, i, r.NumObjects())
	}
	return DescribeObject(r, i), nil
}

// DescribeObject returns the index entry of object i of an open file.
func DescribeObject(r *rog.Reader, i int) *ObjectInfo {
	o := r.Object(i)
	info := &ObjectInfo{
		Index:    i,
		RowID:    o.RowID,
		Bounds:   boundArray(o.Bounds),
		Centroid: [2]float64{o.Centroid[0], o.Centroid[1]},
		Raw:      o.Raw.String(),
	}
	for z := o.MinZoom(); z <= o.MaxZoom(); z++ {
		info.Positions = append(info.Positions, o.Position(z).String())
	}
	return info
}

// Geometry returns the geometry of object i to draw at zoom and the level it
// is stored at. A nil geometry means the object is not drawn at zoom.
func (s *RogService) Geometry(name string, i, zoom int) (orb.Geometry, int, error) {
	r, err := s.Open(name)
	if err != nil {
		return nil, 0, err
	}
	defer r.Close()
	if i < 0 || i >= r.NumObjects() {
		return nil, 0, fmt.Errorf("%w: object %d of %d", ErrNotFound, i, r.NumObjects())
	}
	if zoom != rog.RawLevel && (zoom < r.MinZoom() || zoom > r.MaxZoom()) {
		return nil, 0, fmt.Errorf("%w: zoom %d outside %d..%d", ErrOutOfRange, zoom, r.MinZoom(), r.MaxZoom())
	}
	return r.ReadGeometry(i, zoom)
}

// Blocks returns, with their ids, the blocks needed to draw zoom within the
// geographic view, including coarser blocks holding reused levels. A nil
// view means the whole file.
func (s *RogService) Blocks(name string, zoom int, view *orb.Bound, scheme tilescheme.Scheme) ([]BlockInfo, error) {
	r, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	blocks := []BlockInfo{}
	err = r.VisitBlocks(zoom, view, scheme, func(id int, m spec.BlockMetadata) error {
		blocks = append(blocks, BlockInfo{ID: id, BlockMetadata: m})
		return nil
	})
	return blocks, err
}

// BlockInfo is a block id with its stored summary.
type BlockInfo struct {
	ID int `json:"id" doc:"Block id"`
	spec.BlockMetadata
}

// Validate checks a ROG file. Validation failures are reported in the
// result; only failures to reach the file are returned as errors.
func (s *RogService) Validate(ctx context.Context, name string) (*ValidationResult, error) {
	r, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	res := &ValidationResult{Name: name}
	res.Report, err = rog.Validate(ctx, r)
	switch {
	case err == nil:
		res.Valid = true
	case errors.Is(err, rog.ErrValidation):
		res.Error = err.Error()
	default:
		return nil, err
	}
	return res, nil
}

// Delete removes a ROG file.
func (s *RogService) Delete(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return err
	}
	if s.bus != nil {
		s.bus.Publish(Event{Resource: ResourceRogs, Action: ActionDeleted, ID: filepath.Base(path)})
	}
	return nil
}

// RogsDir returns the path to the ROG directory.
func (s *RogService) RogsDir() string {
	return s.rogsDir
}

func boundArray(b orb.Bound) [4]float64 {
	return [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}
