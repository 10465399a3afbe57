package rog

import (
	"testing"

	"github.com/paulmach/orb"
)

func pointWrite(t *testing.T, id int64, p orb.Point) *PendingWrite {
	t.Helper()
	data, err := MarshalGeometry(p)
	if err != nil {
		t.Fatal(err)
	}
	return &PendingWrite{Object: NewShapeIndex(id, p, 0, 0), Geometry: data}
}

func leaves(tree *QuadTree) [][]int64 {
	var out [][]int64
	tree.VisitLeaves(func(b *QuadBlock) error {
		var ids []int64
		for _, w := range b.Writes {
			ids = append(ids, w.Object.RowID)
		}
		out = append(out, ids)
		return nil
	})
	return out
}

func maxDepth(b *QuadBlock) int {
	d := b.Depth
	for _, c := range b.Children {
		d = max(d, maxDepth(c))
	}
	return d
}

func TestQuadBlockSingleWriteNeverSplits(t *testing.T) {
	params := QuadParams{MinSizeBytes: 0, MaxSizeBytes: 1, MaxDepth: 24}
	tree, err := NewQuadBlockBuilder(params, nil).Build(RawLevel, nil, []*PendingWrite{pointWrite(t, 0, orb.Point{1, 1})})
	if err != nil {
		t.Fatal(err)
	}
	if !tree.Root.IsLeaf() {
		t.Fatal("root was split for a single write")
	}
	if tree.Root.Bounds != WorldBounds {
		t.Errorf("raw root bounds = %v, want %v", tree.Root.Bounds, WorldBounds)
	}
}

func TestQuadBlockSplitOrder(t *testing.T) {
	params := QuadParams{MinSizeBytes: 0, MaxSizeBytes: 50, MaxDepth: 24}
	writes := []*PendingWrite{
		pointWrite(t, 3, orb.Point{100, 50}),  // maxX, maxY
		pointWrite(t, 0, orb.Point{-100, -50}), // minX, minY
		pointWrite(t, 2, orb.Point{-100, 50}),  // minX, maxY
		pointWrite(t, 1, orb.Point{100, -50}),  // maxX, minY
	}
	tree, err := NewQuadBlockBuilder(params, nil).Build(RawLevel, nil, writes)
	if err != nil {
		t.Fatal(err)
	}
	got := leaves(tree)
	if len(got) != 4 {
		t.Fatalf("leaves = %v, want 4 single-write leaves", got)
	}
	for i, ids := range got {
		if len(ids) != 1 || ids[0] != int64(i) {
			t.Errorf("leaf %d holds rows %v, want [%d]", i, ids, i)
		}
	}
	if tree.Fallbacks != 0 {
		t.Errorf("Fallbacks = %d, want 0", tree.Fallbacks)
	}
}

func TestQuadBlockMinSizeBytes(t *testing.T) {
	params := QuadParams{MinSizeBytes: 1 << 20, MaxSizeBytes: 1, MaxDepth: 24}
	writes := []*PendingWrite{
		pointWrite(t, 0, orb.Point{-100, -50}),
		pointWrite(t, 1, orb.Point{100, 50}),
	}
	tree, err := NewQuadBlockBuilder(params, nil).Build(RawLevel, nil, writes)
	if err != nil {
		t.Fatal(err)
	}
	if !tree.Root.IsLeaf() || len(tree.Root.Writes) != 2 {
		t.Errorf("small writes were split: %v", leaves(tree))
	}
}

func TestQuadBlockMinSizePixels(t *testing.T) {
	params := QuadParams{MinSizePixels: 256, MinSizeBytes: 0, MaxSizeBytes: 1, MaxDepth: 24}
	extent := orb.Bound{Max: orb.Point{512, 512}}
	var writes []*PendingWrite
	for i := range 8 {
		writes = append(writes, pointWrite(t, int64(i), orb.Point{10 + float64(i), 10}))
	}
	tree, err := NewQuadBlockBuilder(params, nil).Build(0, &extent, writes)
	if err != nil {
		t.Fatal(err)
	}
	if got := maxDepth(tree.Root); got != 1 {
		t.Errorf("depth = %d, want 1 (children must stay 256 px wide)", got)
	}
	if got := leaves(tree); len(got) != 1 || len(got[0]) != 8 {
		t.Errorf("leaves = %v, want one leaf with 8 writes", got)
	}
}

func TestQuadBlockMaxDepth(t *testing.T) {
	params := QuadParams{MinSizeBytes: 0, MaxSizeBytes: 1, MaxDepth: 3}
	var writes []*PendingWrite
	for i := range 5 {
		writes = append(writes, pointWrite(t, int64(i), orb.Point{1, 1}))
	}
	tree, err := NewQuadBlockBuilder(params, nil).Build(RawLevel, nil, writes)
	if err != nil {
		t.Fatal(err)
	}
	if got := maxDepth(tree.Root); got != 3 {
		t.Errorf("depth = %d, want 3", got)
	}
	if got := leaves(tree); len(got) != 1 || len(got[0]) != 5 {
		t.Errorf("leaves = %v, want one leaf with 5 writes", got)
	}
}

func TestQuadBlockNearestChildFallback(t *testing.T) {
	params := QuadParams{MinSizeBytes: 0, MaxSizeBytes: 50, MaxDepth: 24}
	writes := []*PendingWrite{
		pointWrite(t, 0, orb.Point{-100, -50}),
		pointWrite(t, 1, orb.Point{200, 10}),
	}
	tree, err := NewQuadBlockBuilder(params, nil).Build(RawLevel, nil, writes)
	if err != nil {
		t.Fatal(err)
	}
	if tree.Fallbacks != 1 {
		t.Errorf("Fallbacks = %d, want 1", tree.Fallbacks)
	}
	if got := tree.Root.Children[3].Writes; len(got) != 1 || got[0].Object.RowID != 1 {
		t.Errorf("out-of-bounds centroid not assigned to nearest child 3")
	}
}

func TestQuadBlockRejectsEmptyGeometry(t *testing.T) {
	data, err := MarshalGeometry(orb.LineString{})
	if err != nil {
		t.Fatal(err)
	}
	w := &PendingWrite{Object: NewShapeIndex(0, orb.Point{}, 0, 0), Geometry: data}
	if _, err := NewQuadBlockBuilder(DefaultQuadParams(), nil).Build(0, &orb.Bound{}, []*PendingWrite{w}); err == nil {
		t.Error("Build accepted an empty geometry")
	}
}
