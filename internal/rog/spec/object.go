package spec

import "fmt"

// Sentinel block ids stored in a Slot that does not point at a block member.
const (
	SlotUnassigned   int32 = -1
	SlotUseLastLevel int32 = -2
	SlotSubpixel     int32 = -3
)

// MaxLevels is the largest number of zoom levels an object record can hold.
const MaxLevels = 255

// Slot is the on-disk form of a position: a block id and the member index
// inside that block, or a sentinel block id.
type Slot struct {
	Block int32
	Index int32
}

// ObjectRecord is one entry of the object index.
type ObjectRecord struct {
	RowID       int64
	PointCount  int32
	ShapeCounts [3]int32   // point, line and polygon parts
	Bounds      [4]float64 // minX, minY, width, height
	Centroid    [2]float64 // lon, lat
	Raw         Slot
	Levels      []Slot
	Metadata    []byte
}

// ObjectRecordSize returns the encoded size of a record with the given
// number of levels and metadata length.
func ObjectRecordSize(levels, metadataLen int) int {
	return 8 + 4 + 3*4 + 4*8 + 2*8 + 2*4 + 1 + levels*2*4 + 4 + metadataLen
}

// Size returns the encoded size of the record.
func (o *ObjectRecord) Size() int {
	return ObjectRecordSize(len(o.Levels), len(o.Metadata))
}

func WriteObject(e *Encoder, o *ObjectRecord) {
	e.Int64(o.RowID)
	e.Int32(o.PointCount)
	for _, c := range o.ShapeCounts {
		e.Int32(c)
	}
	for _, v := range o.Bounds {
		e.Float64(v)
	}
	e.Float64(o.Centroid[0])
	e.Float64(o.Centroid[1])
	e.Int32(o.Raw.Block)
	e.Int32(o.Raw.Index)
	e.Uint8(uint8(len(o.Levels)))
	for _, s := range o.Levels {
		e.Int32(s.Block)
	}
	for _, s := range o.Levels {
		e.Int32(s.Index)
	}
	e.Blob(o.Metadata)
}

func ReadObject(d *Decoder) (ObjectRecord, error) {
	o := ObjectRecord{}
	o.RowID = d.Int64()
	o.PointCount = d.Int32()
	for i := range o.ShapeCounts {
		o.ShapeCounts[i] = d.Int32()
	}
	for i := range o.Bounds {
		o.Bounds[i] = d.Float64()
	}
	o.Centroid[0] = d.Float64()
	o.Centroid[1] = d.Float64()
	o.Raw.Block = d.Int32()
	o.Raw.Index = d.Int32()
	n := int(d.Uint8())
	if d.Err() != nil {
		return o, d.Err()
	}
	o.Levels = make([]Slot, n)
	for i := range o.Levels {
		o.Levels[i].Block = d.Int32()
	}
	for i := range o.Levels {
		o.Levels[i].Index = d.Int32()
	}
	o.Metadata = d.Blob()
	if d.Err() != nil {
		return o, d.Err()
	}
	if err := checkSlot(o.Raw); err != nil {
		return o, err
	}
	for _, s := range o.Levels {
		if err := checkSlot(s); err != nil {
			return o, err
		}
	}
	return o, nil
}

func checkSlot(s Slot) error {
	if s.Block < SlotSubpixel || s.Index < 0 {
		return fmt.Errorf("%w: slot (%d, %d)", ErrCorruptRecord, s.Block, s.Index)
	}
	return nil
}
