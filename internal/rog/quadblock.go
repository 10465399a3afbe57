package rog

import (
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/joeblew999/plat-rog/internal/rog/spec"
)

// WorldBounds is the working extent of the raw level.
var WorldBounds = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

// PendingWrite is one geometry's serialized bytes for one level, waiting to
// be placed in a block.
type PendingWrite struct {
	Object   *ShapeIndex
	Geometry []byte // WKB
	Metadata []byte
	Centroid orb.Point
	Bound    orb.Bound
}

// size is the number of bytes the write adds to a block, including its
// entry in the block's offset table.
func (w *PendingWrite) size() int {
	return 4 + 8 + spec.BlobSize(w.Metadata) + spec.BlobSize(w.Geometry)
}

// QuadParams are the split constants of the quadtree.
type QuadParams struct {
	// MinSizePixels is the smallest width or height of a block on a tiled
	// level. Blocks are never split into children smaller than this.
	MinSizePixels float64
	// MinSizeBytes: a block is not split while it plus the incoming write
	// stays below this size.
	MinSizeBytes int
	// MaxSizeBytes: a block is split once it plus the incoming write would
	// exceed this size.
	MaxSizeBytes int
	// MaxDepth caps splitting when many writes share one centroid.
	MaxDepth int
}

func DefaultQuadParams() QuadParams {
	return QuadParams{
		MinSizePixels: 256,
		MinSizeBytes:  64 << 10,
		MaxSizeBytes:  1 << 20,
		MaxDepth:      24,
	}
}

// QuadBlock is a node of the build-time quadtree: either a leaf holding
// writes or a node split into exactly four children.
type QuadBlock struct {
	Bounds   orb.Bound
	Depth    int
	Writes   []*PendingWrite
	Size     int
	Children []*QuadBlock
}

func (b *QuadBlock) IsLeaf() bool { return b.Children == nil }

// QuadTree is the partition of one level's writes.
type QuadTree struct {
	Root *QuadBlock
	Zoom int
	// Fallbacks counts writes whose centroid fell in no child rectangle and
	// were assigned to the child with the nearest center.
	Fallbacks int
}

// VisitLeaves calls fn for every non-empty leaf, depth-first, children in
// index order. The order is part of the file format.
func (t *QuadTree) VisitLeaves(fn func(*QuadBlock) error) error {
	var visit func(*QuadBlock) error
	visit = func(b *QuadBlock) error {
		if b.IsLeaf() {
			if len(b.Writes) == 0 {
				return nil
			}
			return fn(b)
		}
		for _, c := range b.Children {
			if err := visit(c); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(t.Root)
}

// QuadBlockBuilder partitions the writes of one level into a quadtree whose
// split rule depends only on accumulated byte size.
type QuadBlockBuilder struct {
	params QuadParams
	logger *slog.Logger
}

func NewQuadBlockBuilder(params QuadParams, logger *slog.Logger) *QuadBlockBuilder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &QuadBlockBuilder{params: params, logger: logger}
}

// Build decodes every write (checking the WKB round trip), computes its
// centroid and inserts it into a tree rooted at extent. A nil extent means
// the raw level: the root covers WorldBounds and the pixel size limit does
// not apply.
func (qb *QuadBlockBuilder) Build(zoom int, extent *orb.Bound, writes []*PendingWrite) (*QuadTree, error) {
	tiled := extent != nil
	bounds := WorldBounds
	if tiled {
		bounds = *extent
	}

	t := &treeBuilder{params: qb.params, tiled: tiled}
	tree := &QuadTree{Root: &QuadBlock{Bounds: bounds}, Zoom: zoom}

	for _, w := range writes {
		g, err := wkb.Unmarshal(w.Geometry)
		if err != nil {
			return nil, fmt.Errorf("rog: row %d zoom %d: decoding geometry: %w", w.Object.RowID, zoom, err)
		}
		if IsEmpty(g) {
			return nil, fmt.Errorf("rog: row %d zoom %d: %w", w.Object.RowID, zoom, ErrEmptyGeometry)
		}
		w.Centroid = Centroid(g)
		w.Bound = g.Bound()
		t.insert(tree.Root, w)
	}

	tree.Fallbacks = t.fallbacks
	if t.fallbacks > 0 {
		qb.logger.Debug("rog: centroids assigned to nearest child", "zoom", zoom, "count", t.fallbacks)
	}
	return tree, nil
}

type treeBuilder struct {
	params    QuadParams
	tiled     bool
	fallbacks int
}

func (t *treeBuilder) insert(b *QuadBlock, w *PendingWrite) {
	for !b.IsLeaf() {
		b = b.Children[t.childFor(b, w.Centroid)]
	}
	if t.shouldSplit(b, w) {
		t.split(b)
		t.insert(b, w)
		return
	}
	b.Writes = append(b.Writes, w)
	b.Size += w.size()
}

func (t *treeBuilder) shouldSplit(b *QuadBlock, w *PendingWrite) bool {
	if len(b.Writes) == 0 {
		return false
	}
	if b.Depth >= t.params.MaxDepth {
		return false
	}
	if t.tiled {
		width, height := b.Bounds.Right()-b.Bounds.Left(), b.Bounds.Top()-b.Bounds.Bottom()
		if width/2 < t.params.MinSizePixels || height/2 < t.params.MinSizePixels {
			return false
		}
	}
	total := b.Size + w.size()
	if total < t.params.MinSizeBytes {
		return false
	}
	return total > t.params.MaxSizeBytes
}

func (t *treeBuilder) split(b *QuadBlock) {
	lo, hi, c := b.Bounds.Min, b.Bounds.Max, b.Bounds.Center()
	b.Children = []*QuadBlock{
		{Bounds: orb.Bound{Min: lo, Max: c}},
		{Bounds: orb.Bound{Min: orb.Point{c[0], lo[1]}, Max: orb.Point{hi[0], c[1]}}},
		{Bounds: orb.Bound{Min: orb.Point{lo[0], c[1]}, Max: orb.Point{c[0], hi[1]}}},
		{Bounds: orb.Bound{Min: c, Max: hi}},
	}
	for _, child := range b.Children {
		child.Depth = b.Depth + 1
	}

	writes := b.Writes
	b.Writes = nil
	b.Size = 0
	for _, w := range writes {
		child := b.Children[t.childFor(b, w.Centroid)]
		child.Writes = append(child.Writes, w)
		child.Size += w.size()
	}
}

func (t *treeBuilder) childFor(b *QuadBlock, p orb.Point) int {
	for i, c := range b.Children {
		if c.Bounds.Contains(p) {
			return i
		}
	}

	t.fallbacks++
	best, bestDist := 0, 0.0
	for i, c := range b.Children {
		center := c.Bounds.Center()
		dx, dy := center[0]-p[0], center[1]-p[1]
		dist := dx*dx + dy*dy
		if i == 0 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}
