package meshfmt

import (
	"bytes"
	"encoding/binary"
	"math"

	"fortio.org/safecast"
)

// binaryReader reads the little-endian encoding. Keys are implicit, so
// open and close only mark record boundaries.
type binaryReader struct {
	data []byte
	pos  int
}

func (r *binaryReader) header() (uint32, error) {
	if len(r.data) < binaryHeaderSize {
		return 0, fail("data_size >= header_size")
	}
	if !bytes.Equal(r.data[:len(binaryMagic)], binaryMagic) {
		return 0, fail("magic == MFXBIN")
	}
	version := binary.LittleEndian.Uint32(r.data[8:])
	total, err := safecast.Conv[int](binary.LittleEndian.Uint32(r.data[12:]))
	if err != nil || total != len(r.data) {
		return 0, fail("total_size == data_size")
	}
	r.pos = binaryHeaderSize
	return version, nil
}

func (r *binaryReader) open(string) error { return nil }
func (r *binaryReader) close() error      { return nil }

func (r *binaryReader) left() int { return len(r.data) - r.pos }

func (r *binaryReader) canHold(n, elemSize int) bool {
	if elemSize <= 0 {
		return true
	}
	return n <= r.left()/elemSize
}

func (r *binaryReader) u32() (uint32, error) {
	if r.left() < 4 {
		return 0, fail("data_left >= 4")
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *binaryReader) i32() (int32, error) {
	v, err := r.u32()
	if err != nil {
		return 0, wrap(err, "u32()")
	}
	return int32(v), nil //nolint:gosec // two's complement reinterpretation
}

func (r *binaryReader) f64() (float64, error) {
	if r.left() < 8 {
		return 0, fail("data_left >= 8")
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.data[r.pos:]))
	r.pos += 8
	return v, nil
}

func (r *binaryReader) str() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, wrap(err, "u32()")
	}
	size, err := safecast.Conv[int](n)
	if err != nil || size > r.left() {
		return nil, fail("string_size <= data_left")
	}
	b := r.data[r.pos : r.pos+size]
	r.pos += size
	return b, nil
}

func (r *binaryReader) finish() error {
	if r.left() < len(binaryFooter) {
		return fail("data_left >= footer_size")
	}
	if !bytes.Equal(r.data[r.pos:r.pos+len(binaryFooter)], binaryFooter) {
		return fail("footer == ENDMFX")
	}
	if r.left() != len(binaryFooter) {
		return fail("no trailing data")
	}
	return nil
}
