package rog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-rog/internal/rog/spec"
	"github.com/joeblew999/plat-rog/internal/tilescheme"
)

// Reader gives read-only access to a finished ROG file.
type Reader struct {
	file   io.ReaderAt
	closer func() error
	size   int64

	header       spec.Header
	objects      []*ShapeIndex
	blockOffsets []int64
	dataOffset   int64

	blockMetaOnce sync.Once
	blockMeta     []spec.BlockMetadata
	blockMetaErr  error
}

// Open opens the ROG file at path.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	r, err := NewReader(file, info.Size())
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = file.Close
	return r, nil
}

// NewReader reads the header, object index and block offset table from file.
func NewReader(file io.ReaderAt, size int64) (*Reader, error) {
	br := bufio.NewReaderSize(io.NewSectionReader(file, 0, size), 1<<16)

	headerData := make([]byte, spec.HeaderLength)
	if _, err := io.ReadFull(br, headerData); err != nil {
		return nil, spec.ErrInvalidHeader
	}
	header, err := spec.DeserializeHeader(headerData)
	if err != nil {
		return nil, err
	}

	d := spec.NewDecoder(br)
	count := d.Int32()
	if err := d.Err(); err != nil {
		return nil, err
	}
	if count < 0 || int64(count) > size/int64(spec.ObjectRecordSize(0, 0)) {
		return nil, fmt.Errorf("%w: object count %d", spec.ErrCorruptRecord, count)
	}

	offset := int64(spec.HeaderLength + 4)
	levels := -1
	objects := make([]*ShapeIndex, count)
	for i := range objects {
		rec, err := spec.ReadObject(d)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
		if levels < 0 {
			levels = len(rec.Levels)
		} else if len(rec.Levels) != levels {
			return nil, fmt.Errorf("%w: object %d has %d levels, expected %d", spec.ErrCorruptRecord, i, len(rec.Levels), levels)
		}
		objects[i] = shapeIndexFromRecord(rec, int(header.MinZoom))
		offset += int64(rec.Size())
	}

	blockCount := d.Int64()
	if err := d.Err(); err != nil {
		return nil, err
	}
	if blockCount < 0 || blockCount > (size-offset)/8 {
		return nil, fmt.Errorf("%w: block count %d", spec.ErrCorruptRecord, blockCount)
	}
	dataOffset := offset + 8 + 8*blockCount
	blockOffsets := make([]int64, blockCount)
	for i := range blockOffsets {
		o := d.Int64()
		if d.Err() != nil {
			return nil, d.Err()
		}
		if o < dataOffset || o >= size || (i == 0 && o != dataOffset) || (i > 0 && o <= blockOffsets[i-1]) {
			return nil, fmt.Errorf("%w: block %d offset %d", spec.ErrCorruptRecord, i, o)
		}
		blockOffsets[i] = o
	}

	for i, o := range objects {
		if err := checkPositions(o, len(blockOffsets)); err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
	}

	return &Reader{
		file:         file,
		closer:       func() error { return nil },
		size:         size,
		header:       header,
		objects:      objects,
		blockOffsets: blockOffsets,
		dataOffset:   dataOffset,
	}, nil
}

func checkPositions(o *ShapeIndex, blocks int) error {
	check := func(p Position) error {
		if p.Kind == Concrete && int(p.Block) >= blocks {
			return fmt.Errorf("%w: block %d of %d", spec.ErrCorruptRecord, p.Block, blocks)
		}
		return nil
	}
	if err := check(o.Raw); err != nil {
		return err
	}
	for _, p := range o.levels {
		if err := check(p); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) Close() error {
	return r.closer()
}

func (r *Reader) Header() spec.Header { return r.header }

func (r *Reader) Size() int64 { return r.size }

func (r *Reader) MinZoom() int { return int(r.header.MinZoom) }

// MaxZoom returns the finest stored zoom level. A file without zoom levels
// reports MinZoom-1.
func (r *Reader) MaxZoom() int {
	if len(r.objects) == 0 {
		return r.MinZoom() - 1
	}
	return r.objects[0].MaxZoom()
}

func (r *Reader) NumObjects() int { return len(r.objects) }

// Object returns the index entry of the i-th object, in source row order.
func (r *Reader) Object(i int) *ShapeIndex { return r.objects[i] }

func (r *Reader) NumBlocks() int { return len(r.blockOffsets) }

// DataOffset returns the absolute offset of the first block.
func (r *Reader) DataOffset() int64 { return r.dataOffset }

func (r *Reader) blockRange(id int) (int64, int64, error) {
	if id < 0 || id >= len(r.blockOffsets) {
		return 0, 0, fmt.Errorf("%w: block %d of %d", spec.ErrCorruptRecord, id, len(r.blockOffsets))
	}
	end := r.size
	if id+1 < len(r.blockOffsets) {
		end = r.blockOffsets[id+1]
	}
	return r.blockOffsets[id], end, nil
}

func (r *Reader) blockDecoder(id int) (*spec.Decoder, int64, int64, error) {
	start, end, err := r.blockRange(id)
	if err != nil {
		return nil, 0, 0, err
	}
	return spec.NewDecoder(io.NewSectionReader(r.file, start, end-start)), start, end, nil
}

// ReadBlockHeader reads the sequence number, metadata and member offsets of
// a block.
func (r *Reader) ReadBlockHeader(id int) (spec.BlockHeader, error) {
	d, _, _, err := r.blockDecoder(id)
	if err != nil {
		return spec.BlockHeader{}, err
	}
	h, err := spec.ReadBlockHeader(d)
	if err != nil {
		return h, fmt.Errorf("block %d: %w", id, err)
	}
	if int(h.Seq) != id {
		return h, fmt.Errorf("%w: block %d has sequence number %d", spec.ErrCorruptRecord, id, h.Seq)
	}
	return h, nil
}

// ReadBlock reads a block header and all of its members.
func (r *Reader) ReadBlock(id int) (spec.BlockHeader, []spec.BlockMember, error) {
	start, end, err := r.blockRange(id)
	if err != nil {
		return spec.BlockHeader{}, nil, err
	}
	data := make([]byte, end-start)
	if _, err := r.file.ReadAt(data, start); err != nil {
		return spec.BlockHeader{}, nil, fmt.Errorf("block %d: %w", id, err)
	}

	cr := &countingReader{data: data}
	d := spec.NewDecoder(cr)
	h, err := spec.ReadBlockHeader(d)
	if err != nil {
		return h, nil, fmt.Errorf("block %d: %w", id, err)
	}
	if int(h.Seq) != id {
		return h, nil, fmt.Errorf("%w: block %d has sequence number %d", spec.ErrCorruptRecord, id, h.Seq)
	}
	members := make([]spec.BlockMember, len(h.Offsets))
	for i, o := range h.Offsets {
		if int64(o) != cr.pos {
			return h, nil, fmt.Errorf("%w: block %d member %d at %d, offset table says %d", spec.ErrCorruptRecord, id, i, cr.pos, o)
		}
		members[i], err = spec.ReadMember(d)
		if err != nil {
			return h, nil, fmt.Errorf("block %d member %d: %w", id, i, err)
		}
	}
	if cr.pos != int64(len(data)) {
		return h, nil, fmt.Errorf("%w: block %d has %d trailing bytes", spec.ErrCorruptRecord, id, int64(len(data))-cr.pos)
	}
	return h, members, nil
}

type countingReader struct {
	data []byte
	pos  int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	if c.pos >= int64(len(c.data)) {
		return 0, io.EOF
	}
	n := copy(p, c.data[c.pos:])
	c.pos += int64(n)
	return n, nil
}

// ReadMember reads the block member at a concrete position.
func (r *Reader) ReadMember(p Position) (spec.BlockMember, error) {
	if p.Kind != Concrete {
		return spec.BlockMember{}, fmt.Errorf("%w: %v", ErrUnresolved, p)
	}
	h, err := r.ReadBlockHeader(int(p.Block))
	if err != nil {
		return spec.BlockMember{}, err
	}
	if int(p.Index) >= len(h.Offsets) {
		return spec.BlockMember{}, fmt.Errorf("%w: member %d of %d in block %d", spec.ErrCorruptRecord, p.Index, len(h.Offsets), p.Block)
	}
	start, end, _ := r.blockRange(int(p.Block))
	offset := start + int64(h.Offsets[p.Index])
	d := spec.NewDecoder(io.NewSectionReader(r.file, offset, end-offset))
	m, err := spec.ReadMember(d)
	if err != nil {
		return m, fmt.Errorf("block %d member %d: %w", p.Block, p.Index, err)
	}
	return m, nil
}

// ReadGeometry returns the geometry of object i to render at zoom, and the
// level it is stored at: zoom itself, a coarser level reached through
// USE_LAST_LEVEL, or RawLevel. Level coordinates are pixels of that level;
// the raw level is geographic. A nil geometry means nothing is drawn.
func (r *Reader) ReadGeometry(i, zoom int) (orb.Geometry, int, error) {
	o := r.objects[i]
	level, pos, ok := o.Resolve(zoom)
	if !ok {
		return nil, level, nil
	}
	m, err := r.ReadMember(pos)
	if err != nil {
		return nil, level, err
	}
	if m.RowID != o.RowID {
		return nil, level, fmt.Errorf("%w: object %d (row %d) at %v holds row %d", ErrOffsetMismatch, i, o.RowID, pos, m.RowID)
	}
	g, err := UnmarshalGeometry(m.Geometry)
	if err != nil {
		return nil, level, fmt.Errorf("object %d level %d: %w", i, level, err)
	}
	return g, level, nil
}

// BlockMetadata returns the summaries of all blocks, reading them on first
// use.
func (r *Reader) BlockMetadata() ([]spec.BlockMetadata, error) {
	r.blockMetaOnce.Do(func() {
		meta := make([]spec.BlockMetadata, len(r.blockOffsets))
		for id := range meta {
			h, err := r.ReadBlockHeader(id)
			if err != nil {
				r.blockMetaErr = err
				return
			}
			meta[id], err = spec.ParseBlockMetadata(h.Metadata)
			if err != nil {
				r.blockMetaErr = fmt.Errorf("block %d: %w", id, err)
				return
			}
		}
		r.blockMeta = meta
	})
	return r.blockMeta, r.blockMetaErr
}

// VisitBlocks calls fn, in file order, for every block a renderer loads to
// draw zoom (RawLevel for the raw copy) within view: the blocks of zoom
// itself and the coarser blocks objects reach through USE_LAST_LEVEL. view
// is geographic and is tested against each block at the block's own level.
// A nil view visits every such block; a nil scheme means Web Mercator.
func (r *Reader) VisitBlocks(zoom int, view *orb.Bound, scheme tilescheme.Scheme, fn func(id int, meta spec.BlockMetadata) error) error {
	meta, err := r.BlockMetadata()
	if err != nil {
		return err
	}
	wanted := make([]bool, len(meta))
	for id, m := range meta {
		wanted[id] = m.Zoom == zoom
	}
	for _, o := range r.objects {
		if _, pos, ok := o.Resolve(zoom); ok {
			wanted[pos.Block] = true
		}
	}

	if scheme == nil {
		scheme = tilescheme.NewWebMercator(tilescheme.DefaultTileSize)
	}
	views := make(map[int]orb.Bound)
	for id, m := range meta {
		if !wanted[id] {
			continue
		}
		if view != nil {
			v, ok := views[m.Zoom]
			if !ok {
				v = *view
				if m.Zoom != RawLevel {
					v = tilescheme.PixelBound(scheme, v, m.Zoom)
				}
				views[m.Zoom] = v
			}
			b := orb.Bound{Min: orb.Point{m.Bounds[0], m.Bounds[1]}, Max: orb.Point{m.Bounds[2], m.Bounds[3]}}
			if !b.Intersects(v) {
				continue
			}
		}
		if err := fn(id, m); err != nil {
			return err
		}
	}
	return nil
}
