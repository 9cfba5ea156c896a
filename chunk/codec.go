// Wire encoding for StreamChunk (spec.md §6): an ordered list of columns
// plus op tags and an optional visibility bitmap. Columns encode as
// fixed-width buffers for integers/floats/bools, length-prefixed for
// strings. This is a bespoke, spec-mandated physical layout -- not a
// generic serialization problem -- so it is hand-rolled on encoding/binary
// rather than routed through a general-purpose codec library (see
// DESIGN.md's stdlib-justification entry for chunk/).
package chunk

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/streamhouse/flowcore/cmn/cos"
	"github.com/valyala/bytebufferpool"
)

const (
	visPresent = 1
	visAbsent  = 0
)

// Encode serializes c into a freshly allocated byte slice. The round-trip
// invariant Decode(Encode(c)) == c (spec.md §8) holds for all column kinds
// and for cardinalities {0, 1, 2048}.
func Encode(c *StreamChunk) ([]byte, error) {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	n := c.Cardinality()
	writeUvarint(bb, uint64(n))

	for _, op := range c.Ops {
		bb.WriteByte(byte(op))
	}

	if c.Visibility == nil {
		bb.WriteByte(visAbsent)
	} else {
		bb.WriteByte(visPresent)
		writeBitmap(bb, c.Visibility)
	}

	writeUvarint(bb, uint64(len(c.Columns)))
	for _, col := range c.Columns {
		if err := encodeColumn(bb, col); err != nil {
			return nil, err
		}
	}

	out := make([]byte, bb.Len())
	copy(out, bb.B)
	return out, nil
}

func encodeColumn(bb *bytebufferpool.ByteBuffer, col Column) error {
	bb.WriteByte(byte(col.Kind()))
	n := col.Len()
	writeUvarint(bb, uint64(n))
	switch v := col.(type) {
	case Int64Column:
		var tmp [8]byte
		for _, x := range v {
			binary.BigEndian.PutUint64(tmp[:], uint64(x))
			bb.Write(tmp[:])
		}
	case Float64Column:
		var tmp [8]byte
		for _, x := range v {
			binary.BigEndian.PutUint64(tmp[:], math.Float64bits(x))
			bb.Write(tmp[:])
		}
	case BoolColumn:
		writeBitmap(bb, v)
	case StringColumn:
		var tmp [4]byte
		for _, s := range v {
			binary.BigEndian.PutUint32(tmp[:], uint32(len(s)))
			bb.Write(tmp[:])
			bb.WriteString(s)
		}
	default:
		return fmt.Errorf("chunk: unknown column kind %T", col)
	}
	return nil
}

func writeBitmap(bb *bytebufferpool.ByteBuffer, bits []bool) {
	packed := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			packed[i/8] |= 1 << uint(i%8)
		}
	}
	bb.Write(packed)
}

func writeUvarint(bb *bytebufferpool.ByteBuffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	bb.Write(tmp[:n])
}

// Decode deserializes a StreamChunk previously produced by Encode.
func Decode(data []byte) (*StreamChunk, error) {
	r := &cursor{buf: data}

	n64, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	n := int(n64)

	ops := make([]Op, n)
	for i := range ops {
		b, err := r.byte_()
		if err != nil {
			return nil, err
		}
		ops[i] = Op(b)
	}

	presence, err := r.byte_()
	if err != nil {
		return nil, err
	}
	var vis []bool
	if presence == visPresent {
		vis, err = r.bitmap(n)
		if err != nil {
			return nil, err
		}
	}

	ncols64, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	cols := make([]Column, ncols64)
	for i := range cols {
		col, err := decodeColumn(r)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}

	return &StreamChunk{Ops: ops, Visibility: vis, Columns: cols}, nil
}

func decodeColumn(r *cursor) (Column, error) {
	kindB, err := r.byte_()
	if err != nil {
		return nil, err
	}
	n64, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	n := int(n64)

	switch ColumnKind(kindB) {
	case KindInt64:
		out := make(Int64Column, n)
		for i := range out {
			v, err := r.uint64()
			if err != nil {
				return nil, err
			}
			out[i] = int64(v)
		}
		return out, nil
	case KindFloat64:
		out := make(Float64Column, n)
		for i := range out {
			v, err := r.uint64()
			if err != nil {
				return nil, err
			}
			out[i] = math.Float64frombits(v)
		}
		return out, nil
	case KindBool:
		bits, err := r.bitmap(n)
		if err != nil {
			return nil, err
		}
		return BoolColumn(bits), nil
	case KindString:
		out := make(StringColumn, n)
		for i := range out {
			l, err := r.uint32()
			if err != nil {
				return nil, err
			}
			s, err := r.bytes(int(l))
			if err != nil {
				return nil, err
			}
			out[i] = string(s)
		}
		return out, nil
	default:
		return nil, cos.NewErrProtocolViolation("chunk: unknown column kind byte %d", kindB)
	}
}

// cursor is a minimal forward-only byte reader; kept private because the
// wire format is an implementation detail, not a public streaming API.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) byte_() (byte, error) {
	if c.off >= len(c.buf) {
		return 0, fmt.Errorf("chunk: unexpected EOF at offset %d", c.off)
	}
	b := c.buf[c.off]
	c.off++
	return b, nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if c.off+n > len(c.buf) {
		return nil, fmt.Errorf("chunk: unexpected EOF reading %d bytes at offset %d", n, c.off)
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *cursor) uint32() (uint32, error) {
	b, err := c.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (c *cursor) uint64() (uint64, error) {
	b, err := c.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (c *cursor) uvarint() (uint64, error) {
	v, n := binary.Uvarint(c.buf[c.off:])
	if n <= 0 {
		return 0, fmt.Errorf("chunk: invalid varint at offset %d", c.off)
	}
	c.off += n
	return v, nil
}

func (c *cursor) bitmap(n int) ([]bool, error) {
	packed, err := c.bytes((n + 7) / 8)
	if err != nil {
		return nil, err
	}
	bits := make([]bool, n)
	for i := range bits {
		bits[i] = packed[i/8]&(1<<uint(i%8)) != 0
	}
	return bits, nil
}
