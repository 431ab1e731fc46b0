// Package decoder implements the DCF reader state machine: a cursor over a
// caller-supplied buffer performing tag-checked typed reads, mirroring the
// encoder's writes and validating the frame before any payload is read.
package decoder

import (
	"errors"
	"fmt"
	"math"
	"time"
	"unsafe"

	"github.com/alh477/dcfs/endian"
	"github.com/alh477/dcfs/errs"
	"github.com/alh477/dcfs/wire"
)

// Decoder is the DCF reader. It borrows its input buffer rather than
// copying it; STRING and BYTES reads alias that buffer directly (see
// ReadBytes and ReadString). It is not safe for concurrent use by multiple
// goroutines, matching the INIT -> READY -> SCANNING -> FAULTED state
// machine: Validate moves INIT to READY, the first successful read moves
// READY to SCANNING, and any error latches FAULTED.
type Decoder struct {
	buf    []byte
	engine endian.EndianEngine

	pos   int
	end   int // end of payload, i.e. where the CRC trailer (if any) begins
	depth int

	header    wire.Header
	validated bool
	faulted   bool
	lastErr   error
}

// New creates a Decoder over buf. Validate must be called before any typed
// read.
func New(buf []byte) *Decoder {
	return &Decoder{
		buf:    buf,
		engine: endian.GetBigEndianEngine(),
	}
}

// fail latches the decoder into FAULTED and returns a wrapped error.
func (d *Decoder) fail(sentinel error, msg string) error {
	err := fmt.Errorf("%s: %w", msg, sentinel)
	d.lastErr = err
	d.faulted = true

	return err
}

// Validate checks magic, version, length, and (unless FlagNoCRC is set)
// the CRC32 trailer, then positions the cursor at the start of the
// payload. It must succeed before any typed read is attempted.
func (d *Decoder) Validate() error {
	h, err := wire.ValidateMessage(d.buf)
	if err != nil {
		d.lastErr = err
		d.faulted = true
		return err
	}

	d.header = h
	d.pos = wire.HeaderSize
	d.end = wire.HeaderSize + int(h.PayloadLen)
	d.validated = true

	return nil
}

// Header returns the parsed header. Valid only after a successful Validate.
func (d *Decoder) Header() wire.Header {
	return d.header
}

// MsgType returns the header's msg_type field.
func (d *Decoder) MsgType() uint16 {
	return d.header.MsgType
}

// Remaining returns the number of unread payload bytes.
func (d *Decoder) Remaining() int {
	return d.end - d.pos
}

// AtEnd reports whether the cursor has consumed the entire payload.
func (d *Decoder) AtEnd() bool {
	return d.pos >= d.end
}

// LastError returns the last error latched by a failing operation.
func (d *Decoder) LastError() error {
	return d.lastErr
}

// Faulted reports whether a prior operation latched an unrecoverable
// error; once true, every subsequent operation that consumes payload bytes
// (typed reads, container headers, ReadField, Skip) fails with
// errs.ErrDecoderFaulted. PeekType and the container End calls do not
// check the flag.
func (d *Decoder) Faulted() bool {
	return d.faulted
}

// take returns the next n unread payload bytes and advances the cursor, or
// fails with errs.ErrTruncated if fewer than n bytes remain.
func (d *Decoder) take(n int) ([]byte, error) {
	if !d.validated {
		return nil, d.fail(errs.ErrInvalidArg, "read before validate")
	}
	if d.faulted {
		return nil, d.fail(errs.ErrDecoderFaulted, "read after fault")
	}
	if d.pos+n > d.end {
		return nil, d.fail(errs.ErrTruncated, "short read")
	}

	b := d.buf[d.pos : d.pos+n]
	d.pos += n

	return b, nil
}

// peekTag returns the tag byte at the cursor without consuming it.
func (d *Decoder) peekTag() (wire.Tag, error) {
	if d.pos >= d.end {
		return wire.TagInvalid, d.fail(errs.ErrTruncated, "peek_type at end of payload")
	}

	return wire.Tag(d.buf[d.pos]), nil
}

// PeekType returns the tag byte at the cursor without consuming it, for
// callers that branch on the next value's type before reading it.
func (d *Decoder) PeekType() (wire.Tag, error) {
	return d.peekTag()
}

func (d *Decoder) expectTag(want wire.Tag) error {
	got, err := d.take(1)
	if err != nil {
		return err
	}
	if wire.Tag(got[0]) != want {
		return d.fail(errs.ErrTypeMismatch, fmt.Sprintf("expected %s, got %s", want, wire.Tag(got[0])))
	}

	return nil
}

// --- typed reads: expect a tag byte, then the raw payload. ---

func (d *Decoder) ReadBool() (bool, error) {
	if err := d.expectTag(wire.TagBool); err != nil {
		return false, err
	}
	b, err := d.take(1)
	if err != nil {
		return false, err
	}

	return b[0] != 0, nil
}

func (d *Decoder) ReadU8() (uint8, error) {
	if err := d.expectTag(wire.TagU8); err != nil {
		return 0, err
	}
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

func (d *Decoder) ReadI8() (int8, error) {
	v, err := d.ReadU8()
	return int8(v), err
}

func (d *Decoder) ReadU16() (uint16, error) {
	if err := d.expectTag(wire.TagU16); err != nil {
		return 0, err
	}
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}

	return d.engine.Uint16(b), nil
}

func (d *Decoder) ReadI16() (int16, error) {
	v, err := d.ReadU16()
	return int16(v), err
}

func (d *Decoder) ReadU32() (uint32, error) {
	if err := d.expectTag(wire.TagU32); err != nil {
		return 0, err
	}
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}

	return d.engine.Uint32(b), nil
}

func (d *Decoder) ReadI32() (int32, error) {
	v, err := d.ReadU32()
	return int32(v), err
}

func (d *Decoder) ReadU64() (uint64, error) {
	if err := d.expectTag(wire.TagU64); err != nil {
		return 0, err
	}
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}

	return d.engine.Uint64(b), nil
}

func (d *Decoder) ReadI64() (int64, error) {
	v, err := d.ReadU64()
	return int64(v), err
}

func (d *Decoder) ReadF32() (float32, error) {
	if err := d.expectTag(wire.TagF32); err != nil {
		return 0, err
	}
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}

	return math.Float32frombits(d.engine.Uint32(b)), nil
}

func (d *Decoder) ReadF64() (float64, error) {
	if err := d.expectTag(wire.TagF64); err != nil {
		return 0, err
	}
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}

	return math.Float64frombits(d.engine.Uint64(b)), nil
}

// ReadVarint reads an unsigned LEB128 value.
func (d *Decoder) ReadVarint() (uint64, error) {
	if err := d.expectTag(wire.TagVarint); err != nil {
		return 0, err
	}

	v, n := wire.Uvarint(d.buf[d.pos:d.end])
	if n <= 0 {
		return 0, d.fail(errs.ErrOverflow, "varint decode")
	}
	d.pos += n

	return v, nil
}

// ReadVarsint reads a ZigZag+LEB128-encoded signed value, riding on the
// same VARINT tag as ReadVarint.
func (d *Decoder) ReadVarsint() (int64, error) {
	v, err := d.ReadVarint()
	if err != nil {
		return 0, err
	}

	return wire.ZigZagDecode(v), nil
}

// ReadBytes reads BYTES | u32 len | bytes and returns a slice aliasing the
// input buffer directly -- no copy is made, so the returned slice is only
// valid as long as the Decoder's backing buffer is not reused or mutated.
func (d *Decoder) ReadBytes() ([]byte, error) {
	if err := d.expectTag(wire.TagBytes); err != nil {
		return nil, err
	}

	lenBytes, err := d.take(4)
	if err != nil {
		return nil, err
	}
	n := int(d.engine.Uint32(lenBytes))

	return d.take(n)
}

// ReadString reads STRING | u32 len | bytes and returns a string aliasing
// the input buffer directly via unsafe.String, avoiding the copy Go's
// string(bytes) conversion would otherwise force. The returned string is
// only valid as long as the Decoder's backing buffer is not reused or
// mutated.
func (d *Decoder) ReadString() (string, error) {
	if err := d.expectTag(wire.TagString); err != nil {
		return "", err
	}

	lenBytes, err := d.take(4)
	if err != nil {
		return "", err
	}
	n := int(d.engine.Uint32(lenBytes))

	b, err := d.take(n)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}

	return unsafe.String(&b[0], n), nil
}

// ReadUUID reads UUID | 16 bytes.
func (d *Decoder) ReadUUID() ([16]byte, error) {
	var out [16]byte
	if err := d.expectTag(wire.TagUUID); err != nil {
		return out, err
	}
	b, err := d.take(16)
	if err != nil {
		return out, err
	}
	copy(out[:], b)

	return out, nil
}

// ReadTimestamp reads TIMESTAMP | u64 microseconds since Unix epoch.
func (d *Decoder) ReadTimestamp() (time.Time, error) {
	if err := d.expectTag(wire.TagTimestamp); err != nil {
		return time.Time{}, err
	}
	b, err := d.take(8)
	if err != nil {
		return time.Time{}, err
	}
	micros := int64(d.engine.Uint64(b))

	return time.UnixMicro(micros).UTC(), nil
}

// ReadDuration reads DURATION | u64 nanoseconds.
func (d *Decoder) ReadDuration() (time.Duration, error) {
	if err := d.expectTag(wire.TagDuration); err != nil {
		return 0, err
	}
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}

	return time.Duration(d.engine.Uint64(b)), nil
}

// --- containers ---

// ArrayHeader reads ARRAY | u8 elem_type | u32 count and opens a nesting
// level. The caller is responsible for reading exactly count values of the
// returned element type.
func (d *Decoder) ArrayHeader() (elemType wire.Tag, count uint32, err error) {
	if d.depth >= wire.MaxDepth {
		return wire.TagInvalid, 0, d.fail(errs.ErrDepthExceeded, "array_begin")
	}
	if err := d.expectTag(wire.TagArray); err != nil {
		return wire.TagInvalid, 0, err
	}

	et, err := d.take(1)
	if err != nil {
		return wire.TagInvalid, 0, err
	}
	cb, err := d.take(4)
	if err != nil {
		return wire.TagInvalid, 0, err
	}
	d.depth++

	return wire.Tag(et[0]), d.engine.Uint32(cb), nil
}

// ArrayEnd closes a nesting level opened by ArrayHeader.
func (d *Decoder) ArrayEnd() error {
	if d.depth <= 0 {
		return d.fail(errs.ErrUnbalancedEnd, "array_end without matching begin")
	}
	d.depth--

	return nil
}

// MapHeader reads MAP | u8 key_type | u8 val_type | u32 count and opens a
// nesting level.
func (d *Decoder) MapHeader() (keyType, valType wire.Tag, count uint32, err error) {
	if d.depth >= wire.MaxDepth {
		return wire.TagInvalid, wire.TagInvalid, 0, d.fail(errs.ErrDepthExceeded, "map_begin")
	}
	if err := d.expectTag(wire.TagMap); err != nil {
		return wire.TagInvalid, wire.TagInvalid, 0, err
	}

	kb, err := d.take(1)
	if err != nil {
		return wire.TagInvalid, wire.TagInvalid, 0, err
	}
	vb, err := d.take(1)
	if err != nil {
		return wire.TagInvalid, wire.TagInvalid, 0, err
	}
	cb, err := d.take(4)
	if err != nil {
		return wire.TagInvalid, wire.TagInvalid, 0, err
	}
	d.depth++

	return wire.Tag(kb[0]), wire.Tag(vb[0]), d.engine.Uint32(cb), nil
}

// MapEnd closes a nesting level opened by MapHeader.
func (d *Decoder) MapEnd() error {
	if d.depth <= 0 {
		return d.fail(errs.ErrUnbalancedEnd, "map_end without matching begin")
	}
	d.depth--

	return nil
}

// StructHeader reads STRUCT | u16 type_id and opens a nesting level.
func (d *Decoder) StructHeader() (typeID uint16, err error) {
	if d.depth >= wire.MaxDepth {
		return 0, d.fail(errs.ErrDepthExceeded, "struct_begin")
	}
	if err := d.expectTag(wire.TagStruct); err != nil {
		return 0, err
	}

	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	d.depth++

	return d.engine.Uint16(b), nil
}

// ReadField reads one struct field header (u16 field_id, u8 type_tag). A
// field_id of 0 with tag NULL is the struct's sentinel end-marker: ReadField
// reports it by returning errs.ErrNotFound rather than a tag to read a value
// for. This is an in-band signal, not a decode fault -- it does not latch
// the decoder FAULTED, and callers should loop ReadField, treating
// errs.ErrNotFound as the expected terminator, until they see it, then call
// StructEnd.
func (d *Decoder) ReadField() (fieldID uint16, tag wire.Tag, err error) {
	idBytes, err := d.take(2)
	if err != nil {
		return 0, wire.TagInvalid, err
	}
	tagByte, err := d.take(1)
	if err != nil {
		return 0, wire.TagInvalid, err
	}

	id := d.engine.Uint16(idBytes)
	t := wire.Tag(tagByte[0])
	if id == 0 && t == wire.TagNull {
		return 0, wire.TagNull, errs.ErrNotFound
	}

	return id, t, nil
}

// StructEnd closes a nesting level opened by StructHeader. Call it after
// ReadField has returned errs.ErrNotFound at the (0, NULL) sentinel.
func (d *Decoder) StructEnd() error {
	if d.depth <= 0 {
		return d.fail(errs.ErrUnbalancedEnd, "struct_end without matching begin")
	}
	d.depth--

	return nil
}

// ReadFieldValue reads the untagged value following a ReadField header,
// dispatching on tag the same way Encoder.WriteField's counterpart does.
// It returns errs.ErrInvalidType for tags it cannot decode generically
// (containers nested directly as field values should instead be read with
// ArrayHeader/MapHeader/StructHeader after inspecting tag).
func (d *Decoder) ReadFieldValue(tag wire.Tag) (any, error) {
	switch tag {
	case wire.TagNull:
		return nil, nil
	case wire.TagBool:
		b, err := d.take(1)
		if err != nil {
			return nil, err
		}
		return b[0] != 0, nil
	case wire.TagU8:
		b, err := d.take(1)
		if err != nil {
			return nil, err
		}
		return b[0], nil
	case wire.TagI8:
		b, err := d.take(1)
		if err != nil {
			return nil, err
		}
		return int8(b[0]), nil
	case wire.TagU16:
		b, err := d.take(2)
		if err != nil {
			return nil, err
		}
		return d.engine.Uint16(b), nil
	case wire.TagI16:
		b, err := d.take(2)
		if err != nil {
			return nil, err
		}
		return int16(d.engine.Uint16(b)), nil
	case wire.TagU32:
		b, err := d.take(4)
		if err != nil {
			return nil, err
		}
		return d.engine.Uint32(b), nil
	case wire.TagI32:
		b, err := d.take(4)
		if err != nil {
			return nil, err
		}
		return int32(d.engine.Uint32(b)), nil
	case wire.TagU64:
		b, err := d.take(8)
		if err != nil {
			return nil, err
		}
		return d.engine.Uint64(b), nil
	case wire.TagI64:
		b, err := d.take(8)
		if err != nil {
			return nil, err
		}
		return int64(d.engine.Uint64(b)), nil
	case wire.TagF32:
		b, err := d.take(4)
		if err != nil {
			return nil, err
		}
		return math.Float32frombits(d.engine.Uint32(b)), nil
	case wire.TagF64:
		b, err := d.take(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(d.engine.Uint64(b)), nil
	case wire.TagString:
		lb, err := d.take(4)
		if err != nil {
			return nil, err
		}
		n := int(d.engine.Uint32(lb))
		b, err := d.take(n)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return "", nil
		}
		return unsafe.String(&b[0], n), nil
	case wire.TagBytes:
		lb, err := d.take(4)
		if err != nil {
			return nil, err
		}
		n := int(d.engine.Uint32(lb))
		return d.take(n)
	case wire.TagUUID:
		var out [16]byte
		b, err := d.take(16)
		if err != nil {
			return out, err
		}
		copy(out[:], b)
		return out, nil
	case wire.TagTimestamp:
		b, err := d.take(8)
		if err != nil {
			return nil, err
		}
		return time.UnixMicro(int64(d.engine.Uint64(b))).UTC(), nil
	case wire.TagDuration:
		b, err := d.take(8)
		if err != nil {
			return nil, err
		}
		return time.Duration(d.engine.Uint64(b)), nil
	default:
		return nil, d.fail(errs.ErrInvalidType, fmt.Sprintf("ReadFieldValue: unsupported tag %s", tag))
	}
}

// Skip consumes and discards the next fully tagged value at the cursor,
// recursing into containers. It is used to tolerate unknown struct fields
// and unwanted array/map elements without a type-specific reader.
func (d *Decoder) Skip() error {
	tag, err := d.peekTag()
	if err != nil {
		return err
	}

	switch tag {
	case wire.TagNull:
		_, err := d.take(1)
		return err
	case wire.TagBool, wire.TagU8, wire.TagI8:
		_, err := d.take(2)
		return err
	case wire.TagU16, wire.TagI16:
		_, err := d.take(3)
		return err
	case wire.TagU32, wire.TagI32, wire.TagF32:
		_, err := d.take(5)
		return err
	case wire.TagU64, wire.TagI64, wire.TagF64, wire.TagTimestamp, wire.TagDuration:
		_, err := d.take(9)
		return err
	case wire.TagUUID:
		_, err := d.take(17)
		return err
	case wire.TagVarint:
		if _, err := d.take(1); err != nil {
			return err
		}
		_, n := wire.Uvarint(d.buf[d.pos:d.end])
		if n <= 0 {
			return d.fail(errs.ErrOverflow, "skip varint")
		}
		d.pos += n
		return nil
	case wire.TagString, wire.TagBytes:
		if _, err := d.take(1); err != nil {
			return err
		}
		lb, err := d.take(4)
		if err != nil {
			return err
		}
		_, err = d.take(int(d.engine.Uint32(lb)))
		return err
	case wire.TagArray:
		elemType, count, err := d.ArrayHeader()
		if err != nil {
			return err
		}
		for i := uint32(0); i < count; i++ {
			if err := d.skipKnownOrGeneric(elemType); err != nil {
				return err
			}
		}
		return d.ArrayEnd()
	case wire.TagMap:
		_, valType, count, err := d.MapHeader()
		if err != nil {
			return err
		}
		for i := uint32(0); i < count; i++ {
			if err := d.Skip(); err != nil { // key: always self-describing via its own tag
				return err
			}
			if err := d.skipKnownOrGeneric(valType); err != nil {
				return err
			}
		}
		return d.MapEnd()
	case wire.TagStruct:
		if _, err := d.StructHeader(); err != nil {
			return err
		}
		for {
			_, fieldTag, err := d.ReadField()
			if errors.Is(err, errs.ErrNotFound) {
				break
			}
			if err != nil {
				return err
			}
			if _, err := d.ReadFieldValue(fieldTag); err != nil {
				return err
			}
		}
		return d.StructEnd()
	default:
		return d.fail(errs.ErrInvalidType, fmt.Sprintf("skip: unsupported tag %s", tag))
	}
}

// skipKnownOrGeneric skips one element of a homogeneous container whose
// element type was declared in the ARRAY/MAP header. Fixed-width and
// length-prefixed element types are still stored tag-prefixed per
// element, so this just defers to Skip.
func (d *Decoder) skipKnownOrGeneric(_ wire.Tag) error {
	return d.Skip()
}
