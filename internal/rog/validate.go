package rog

import (
	"context"
	"errors"
	"fmt"
)

var ErrValidation = errors.New("rog: validation failed")

// ValidationReport summarises a successful validation.
type ValidationReport struct {
	Objects  int `json:"objects" yaml:"objects"`
	Blocks   int `json:"blocks" yaml:"blocks"`
	Members  int `json:"members" yaml:"members"`
	Concrete int `json:"concrete" yaml:"concrete"`
	Reused   int `json:"reused" yaml:"reused"`
	Subpixel int `json:"subpixel" yaml:"subpixel"`
}

// Validate reads every block of a finished file, decodes every stored
// geometry and checks that each object's raw and level positions point at
// a member holding that object's row. It never writes to the file.
func Validate(ctx context.Context, r *Reader) (ValidationReport, error) {
	report := ValidationReport{Objects: r.NumObjects(), Blocks: r.NumBlocks()}
	fail := func(format string, args ...any) (ValidationReport, error) {
		return report, fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
	}

	rows := make([][]int64, r.NumBlocks())
	used := make([][]bool, r.NumBlocks())
	for id := range rows {
		if id%256 == 0 {
			if err := ctx.Err(); err != nil {
				return report, err
			}
		}
		_, members, err := r.ReadBlock(id)
		if err != nil {
			return fail("%v", err)
		}
		rows[id] = make([]int64, len(members))
		used[id] = make([]bool, len(members))
		for i, m := range members {
			g, err := UnmarshalGeometry(m.Geometry)
			if err != nil {
				return fail("block %d member %d (row %d): %v", id, i, m.RowID, err)
			}
			if IsEmpty(g) {
				return fail("block %d member %d (row %d): %v", id, i, m.RowID, ErrEmptyGeometry)
			}
			rows[id][i] = m.RowID
		}
		report.Members += len(members)
	}

	referenced := 0
	check := func(o *ShapeIndex, zoom int, p Position) error {
		b, i := int(p.Block), int(p.Index)
		if b >= len(rows) || i >= len(rows[b]) {
			return fmt.Errorf("row %d zoom %d: %v out of range", o.RowID, zoom, p)
		}
		if rows[b][i] != o.RowID {
			return fmt.Errorf("row %d zoom %d: %v holds row %d: %w", o.RowID, zoom, p, rows[b][i], ErrOffsetMismatch)
		}
		if used[b][i] {
			return fmt.Errorf("row %d zoom %d: %v referenced twice", o.RowID, zoom, p)
		}
		used[b][i] = true
		referenced++
		return nil
	}

	for n := 0; n < r.NumObjects(); n++ {
		o := r.Object(n)
		if o.Raw.Kind != Concrete {
			return fail("row %d: raw level is %v", o.RowID, o.Raw)
		}
		if err := check(o, RawLevel, o.Raw); err != nil {
			return fail("%v", err)
		}
		for z := o.MinZoom(); z <= o.MaxZoom(); z++ {
			p := o.Position(z)
			switch p.Kind {
			case Concrete:
				if err := check(o, z, p); err != nil {
					return fail("%v", err)
				}
				report.Concrete++
			case UseLastLevel:
				if _, _, ok := o.Resolve(z); !ok {
					return fail("row %d zoom %d: %v", o.RowID, z, ErrUnresolved)
				}
				report.Reused++
			case Subpixel:
				report.Subpixel++
			default:
				return fail("row %d zoom %d: unassigned", o.RowID, z)
			}
		}
	}

	if referenced != report.Members {
		return fail("%d of %d stored geometries are not referenced", report.Members-referenced, report.Members)
	}
	return report, nil
}

// ValidateFile opens path and validates it.
func ValidateFile(ctx context.Context, path string) (ValidationReport, error) {
	r, err := Open(path)
	if err != nil {
		return ValidationReport{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	defer r.Close()
	return Validate(ctx, r)
}
