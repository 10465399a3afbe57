package spec_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/joeblew999/plat-rog/internal/rog/spec"
)

func TestHeaderSerializer(t *testing.T) {
	header1 := spec.Header{Version: spec.Version, NoOverlappingPolygons: true, MinZoom: 3}
	headerData := spec.SerializeHeader(header1)
	if len(headerData) != spec.HeaderLength {
		t.Fatalf("len(SerializeHeader) = %d, want %d", len(headerData), spec.HeaderLength)
	}
	header2, err := spec.DeserializeHeader(headerData)
	if err != nil {
		t.Fatalf("DeserializeHeader failed: %v", err)
	}
	if diff := cmp.Diff(header1, header2); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
}

func TestHeaderErrors(t *testing.T) {
	valid := spec.SerializeHeader(spec.Header{Version: spec.Version})
	for _, tc := range []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"short", func(b []byte) []byte { return b[:5] }, spec.ErrInvalidHeader},
		{"bad bool", func(b []byte) []byte { b[4] = 7; return b }, spec.ErrInvalidHeader},
		{"version", func(b []byte) []byte { b[0] = 9; return b }, spec.ErrUnsupportedVersion},
		{"negative min zoom", func(b []byte) []byte { b[8] = 0x80; return b }, spec.ErrInvalidHeader},
	} {
		t.Run(tc.name, func(t *testing.T) {
			data := tc.mutate(bytes.Clone(valid))
			_, err := spec.DeserializeHeader(data)
			if !errors.Is(err, tc.want) {
				t.Errorf("DeserializeHeader error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestBlobs(t *testing.T) {
	var buf bytes.Buffer
	e := spec.NewEncoder(&buf)
	e.Blob(nil)
	e.Blob([]byte("abc"))
	if err := e.Err(); err != nil {
		t.Fatal(err)
	}
	if got, want := e.Len(), int64(spec.BlobSize(nil)+spec.BlobSize([]byte("abc"))); got != want {
		t.Errorf("Len = %d, want %d", got, want)
	}

	d := spec.NewDecoder(bytes.NewReader(buf.Bytes()))
	if got := d.Blob(); got != nil {
		t.Errorf("empty blob = %q, want nil", got)
	}
	if got := d.Blob(); string(got) != "abc" {
		t.Errorf("blob = %q, want abc", got)
	}
	d.Blob()
	if !errors.Is(d.Err(), spec.ErrCorruptRecord) {
		t.Errorf("reading past end: err = %v, want ErrCorruptRecord", d.Err())
	}
}

func TestNegativeBlobLength(t *testing.T) {
	var buf bytes.Buffer
	e := spec.NewEncoder(&buf)
	e.Int32(-5)
	d := spec.NewDecoder(&buf)
	if d.Blob() != nil || !errors.Is(d.Err(), spec.ErrCorruptRecord) {
		t.Errorf("err = %v, want ErrCorruptRecord", d.Err())
	}
}

func TestObjectRecord(t *testing.T) {
	rec := spec.ObjectRecord{
		RowID:       42,
		PointCount:  10,
		ShapeCounts: [3]int32{0, 0, 2},
		Bounds:      [4]float64{-10, -5, 20, 10},
		Centroid:    [2]float64{0.5, -0.25},
		Raw:         spec.Slot{Block: 0, Index: 3},
		Levels: []spec.Slot{
			{Block: 1, Index: 0},
			{Block: spec.SlotUseLastLevel},
			{Block: spec.SlotSubpixel},
			{Block: spec.SlotUnassigned},
		},
		Metadata: []byte(`{"name":"x"}`),
	}

	var buf bytes.Buffer
	e := spec.NewEncoder(&buf)
	spec.WriteObject(e, &rec)
	if err := e.Err(); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.Len(), rec.Size(); got != want {
		t.Errorf("encoded size = %d, Size() = %d", got, want)
	}

	got, err := spec.ReadObject(spec.NewDecoder(&buf))
	if err != nil {
		t.Fatalf("ReadObject failed: %v", err)
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestObjectRecordInvalidSlot(t *testing.T) {
	rec := spec.ObjectRecord{Raw: spec.Slot{Block: -7}}
	var buf bytes.Buffer
	spec.WriteObject(spec.NewEncoder(&buf), &rec)
	if _, err := spec.ReadObject(spec.NewDecoder(&buf)); !errors.Is(err, spec.ErrCorruptRecord) {
		t.Errorf("ReadObject error = %v, want ErrCorruptRecord", err)
	}
}

func TestBlock(t *testing.T) {
	members := []spec.BlockMember{
		{RowID: 1, Geometry: []byte{1, 2, 3}},
		{RowID: 7, Metadata: []byte("m"), Geometry: []byte{4, 5}},
	}
	meta := spec.BlockMetadata{Zoom: 2, Bounds: [4]float64{0, 0, 512, 512}, Count: 2}
	metaBytes, err := meta.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	e := spec.NewEncoder(&buf)
	offsets := spec.WriteBlock(e, 5, metaBytes, members)
	if got, want := buf.Len(), spec.BlockSize(metaBytes, members); got != want {
		t.Errorf("encoded size = %d, BlockSize = %d", got, want)
	}

	data := buf.Bytes()
	d := spec.NewDecoder(bytes.NewReader(data))
	h, err := spec.ReadBlockHeader(d)
	if err != nil {
		t.Fatalf("ReadBlockHeader failed: %v", err)
	}
	if h.Seq != 5 {
		t.Errorf("Seq = %d, want 5", h.Seq)
	}
	if diff := cmp.Diff(offsets, h.Offsets); diff != "" {
		t.Errorf("offsets mismatch (-want +got):\n%s", diff)
	}
	gotMeta, err := spec.ParseBlockMetadata(h.Metadata)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(meta, gotMeta); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}

	// Members are addressable by their offsets alone.
	for i, want := range members {
		m, err := spec.ReadMember(spec.NewDecoder(bytes.NewReader(data[offsets[i]:])))
		if err != nil {
			t.Fatalf("ReadMember(%d) failed: %v", i, err)
		}
		if diff := cmp.Diff(want, m); diff != "" {
			t.Errorf("member %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestBlockHeaderBadOffsets(t *testing.T) {
	var buf bytes.Buffer
	e := spec.NewEncoder(&buf)
	e.Int32(0)
	e.Blob(nil)
	e.Int32(2)
	e.Int32(100)
	e.Int32(50)
	if _, err := spec.ReadBlockHeader(spec.NewDecoder(&buf)); !errors.Is(err, spec.ErrCorruptRecord) {
		t.Errorf("ReadBlockHeader error = %v, want ErrCorruptRecord", err)
	}
}
