package spec

import (
	"encoding/json"
	"fmt"
)

// BlockMember is one geometry record inside a block.
type BlockMember struct {
	RowID    int64
	Metadata []byte
	Geometry []byte
}

// Size returns the encoded size of the member.
func (m *BlockMember) Size() int {
	return 8 + BlobSize(m.Metadata) + BlobSize(m.Geometry)
}

// BlockHeader is the part of a block that precedes its members.
// Offsets are relative to the start of the block.
type BlockHeader struct {
	Seq      int32
	Metadata []byte
	Offsets  []int32
}

// BlockMetadata is the JSON summary stored in every block's metadata blob.
// Zoom is -1 for the raw level, whose bounds are geographic; zoom levels
// carry pixel bounds.
type BlockMetadata struct {
	Zoom   int        `json:"zoom"`
	Bounds [4]float64 `json:"bounds"`
	Count  int        `json:"count"`
	Bytes  int        `json:"bytes"`
}

func (m *BlockMetadata) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

func ParseBlockMetadata(b []byte) (BlockMetadata, error) {
	m := BlockMetadata{}
	if len(b) == 0 {
		return m, fmt.Errorf("%w: missing block metadata", ErrCorruptRecord)
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("%w: block metadata: %w", ErrCorruptRecord, err)
	}
	return m, nil
}

func blockHeaderSize(metadata []byte, count int) int {
	return 4 + BlobSize(metadata) + 4 + 4*count
}

// BlockSize returns the encoded size of a block.
func BlockSize(metadata []byte, members []BlockMember) int {
	size := blockHeaderSize(metadata, len(members))
	for i := range members {
		size += members[i].Size()
	}
	return size
}

// WriteBlock writes a self-contained block record and returns the offset of
// each member relative to the block start.
func WriteBlock(e *Encoder, seq int32, metadata []byte, members []BlockMember) []int32 {
	offsets := make([]int32, len(members))
	offset := blockHeaderSize(metadata, len(members))
	for i := range members {
		offsets[i] = int32(offset)
		offset += members[i].Size()
	}

	e.Int32(seq)
	e.Blob(metadata)
	e.Int32(int32(len(members)))
	for _, o := range offsets {
		e.Int32(o)
	}
	for i := range members {
		e.Int64(members[i].RowID)
		e.Blob(members[i].Metadata)
		e.Blob(members[i].Geometry)
	}
	return offsets
}

func ReadBlockHeader(d *Decoder) (BlockHeader, error) {
	h := BlockHeader{}
	h.Seq = d.Int32()
	h.Metadata = d.Blob()
	n := d.Int32()
	if d.Err() != nil {
		return h, d.Err()
	}
	if n < 0 || n > MaxBlobLength/4 {
		return h, fmt.Errorf("%w: block member count %d", ErrCorruptRecord, n)
	}
	h.Offsets = make([]int32, n)
	for i := range h.Offsets {
		h.Offsets[i] = d.Int32()
	}
	if d.Err() != nil {
		return h, d.Err()
	}
	first := int32(blockHeaderSize(h.Metadata, int(n)))
	for i, o := range h.Offsets {
		if o < first || (i > 0 && o <= h.Offsets[i-1]) {
			return h, fmt.Errorf("%w: member offset %d", ErrCorruptRecord, o)
		}
	}
	return h, nil
}

func ReadMember(d *Decoder) (BlockMember, error) {
	m := BlockMember{}
	m.RowID = d.Int64()
	m.Metadata = d.Blob()
	m.Geometry = d.Blob()
	return m, d.Err()
}
