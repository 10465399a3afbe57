package rog

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joeblew999/plat-rog/internal/rog/spec"
)

// QuadWriter appends blocks to a temporary file as levels are built, then
// writes the final file: header, object index, block offset table and the
// block stream copied verbatim from the temporary file.
type QuadWriter struct {
	logger *slog.Logger

	temp    *os.File
	writer  *bufio.Writer
	encoder *spec.Encoder

	offsets []int64 // block seq -> offset in the temporary file
}

// NewQuadWriter creates the temporary block file in dir (the system temp
// directory if empty).
func NewQuadWriter(dir string, logger *slog.Logger) (*QuadWriter, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	temp, err := os.CreateTemp(dir, "rog-blocks-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("rog: creating temporary block file: %w", err)
	}
	logger.Debug("rog: temporary block file", "path", temp.Name())

	writer := bufio.NewWriterSize(temp, 1<<20)
	return &QuadWriter{
		logger:  logger,
		temp:    temp,
		writer:  writer,
		encoder: spec.NewEncoder(writer),
	}, nil
}

// BlockCount returns the number of blocks written so far.
func (q *QuadWriter) BlockCount() int { return len(q.offsets) }

// Bytes returns the size of the block stream written so far.
func (q *QuadWriter) Bytes() int64 { return q.encoder.Len() }

// Add writes one block per non-empty leaf of tree and records each member's
// position in its ShapeIndex. It returns the number of blocks written.
func (q *QuadWriter) Add(tree *QuadTree) (int, error) {
	if q.temp == nil {
		return 0, ErrWriterClosed
	}

	count := 0
	err := tree.VisitLeaves(func(leaf *QuadBlock) error {
		seq := int32(len(q.offsets))
		q.offsets = append(q.offsets, q.encoder.Len())

		// Members are placed by centroid but may reach past the leaf.
		bounds := leaf.Bounds
		members := make([]spec.BlockMember, len(leaf.Writes))
		for i, w := range leaf.Writes {
			members[i] = spec.BlockMember{
				RowID:    w.Object.RowID,
				Metadata: w.Metadata,
				Geometry: w.Geometry,
			}
			bounds = bounds.Union(w.Bound)
		}
		meta := spec.BlockMetadata{
			Zoom: tree.Zoom,
			Bounds: [4]float64{
				bounds.Min[0], bounds.Min[1],
				bounds.Max[0], bounds.Max[1],
			},
			Count: len(members),
			Bytes: leaf.Size,
		}
		metaBytes, err := meta.Marshal()
		if err != nil {
			return err
		}

		spec.WriteBlock(q.encoder, seq, metaBytes, members)
		if err := q.encoder.Err(); err != nil {
			return fmt.Errorf("rog: writing block %d: %w", seq, err)
		}

		for i, w := range leaf.Writes {
			w.Object.SetPosition(tree.Zoom, seq, int32(i))
		}
		leaf.Writes = nil
		count++
		return nil
	})
	return count, err
}

// Finish writes the final file to outputPath and removes the temporary
// file. On error the output file may be partially written.
func (q *QuadWriter) Finish(header spec.Header, objects []*ShapeIndex, outputPath string) (err error) {
	if q.temp == nil {
		return ErrWriterClosed
	}
	defer func() {
		if cerr := q.Close(); err == nil {
			err = cerr
		}
	}()

	q.logger.Debug("rog: flush blocks", "blocks", len(q.offsets), "bytes", q.encoder.Len())
	if err := q.writer.Flush(); err != nil {
		return fmt.Errorf("rog: flushing temporary block file: %w", err)
	}
	blocksLength := q.encoder.Len()

	records := make([]spec.ObjectRecord, len(objects))
	dataOffset := int64(spec.HeaderLength + 4)
	for i, o := range objects {
		records[i] = o.Record()
		dataOffset += int64(records[i].Size())
	}
	dataOffset += 8 + 8*int64(len(q.offsets))

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("rog: creating output file: %w", err)
	}
	defer out.Close()

	w := bufio.NewWriterSize(out, 1<<20)
	e := spec.NewEncoder(w)

	q.logger.Debug("rog: write index", "objects", len(objects))
	e.Raw(spec.SerializeHeader(header))
	e.Int32(int32(len(records)))
	for i := range records {
		spec.WriteObject(e, &records[i])
	}
	e.Int64(int64(len(q.offsets)))
	for _, offset := range q.offsets {
		e.Int64(dataOffset + offset)
	}
	if err := e.Err(); err != nil {
		return fmt.Errorf("rog: writing index: %w", err)
	}
	if e.Len() != dataOffset {
		return fmt.Errorf("rog: index section is %d bytes, expected %d", e.Len(), dataOffset)
	}

	q.logger.Debug("rog: copy blocks")
	if _, err := q.temp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rog: rewinding temporary block file: %w", err)
	}
	n, err := io.Copy(w, q.temp)
	if err != nil {
		return fmt.Errorf("rog: copying blocks: %w", err)
	}
	if n != blocksLength {
		return fmt.Errorf("rog: copied %d block bytes, expected %d", n, blocksLength)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("rog: flushing output file: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("rog: syncing output file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("rog: closing output file: %w", err)
	}

	q.logger.Debug("rog: done", "path", outputPath, "size", dataOffset+blocksLength)
	return nil
}

// Close removes the temporary block file. It is safe to call more than once.
func (q *QuadWriter) Close() error {
	if q.temp == nil {
		return nil
	}
	name := q.temp.Name()
	cerr := q.temp.Close()
	q.temp = nil
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rog: removing temporary block file: %w", err)
	}
	q.logger.Debug("rog: removed temporary block file", "path", name)
	return cerr
}
