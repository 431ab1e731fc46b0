// Package encoder implements the DCF writer state machine: a cursor over
// either an owning, growable buffer or a caller-supplied fixed buffer,
// issuing tag-prefixed typed writes that nest into ARRAY/MAP/STRUCT
// containers and finalize into a complete framed message.
package encoder

import (
	"fmt"
	"math"
	"time"

	"github.com/alh477/dcfs/endian"
	"github.com/alh477/dcfs/errs"
	"github.com/alh477/dcfs/internal/pool"
	"github.com/alh477/dcfs/wire"
)

// Encoder is the DCF writer. It is not safe for concurrent use by multiple
// goroutines, and it is not reusable after Finish without an explicit
// Reset -- matching the WRITING -> FINISHED state machine.
type Encoder struct {
	owned *pool.ByteBuffer // non-nil in owning mode
	fixed []byte           // non-nil in borrowed mode

	engine endian.EndianEngine

	pos      int
	depth    int
	msgType  uint16
	flags    byte
	sequence uint32

	finished bool
	ctorErr  error
	lastErr  error
}

// New creates an owning encoder with a growable buffer starting at
// wire.InitialCapacity bytes and doubling up to wire.MaxMessage.
func New(msgType uint16, flags byte) *Encoder {
	e := &Encoder{
		owned:  pool.NewByteBuffer(wire.InitialCapacity),
		engine: endian.GetBigEndianEngine(),
	}
	e.init(msgType, flags)

	return e
}

// NewIn creates a borrowed encoder writing directly into buf. buf's
// capacity is fixed; exhausting it fails writes with errs.ErrBufferFull
// rather than growing.
func NewIn(buf []byte, msgType uint16, flags byte) *Encoder {
	e := &Encoder{
		fixed:  buf,
		engine: endian.GetBigEndianEngine(),
	}
	e.init(msgType, flags)

	return e
}

// init resets bookkeeping and reserves the 17-byte header placeholder,
// shared by New, NewIn, and Reset.
func (e *Encoder) init(msgType uint16, flags byte) {
	e.pos = 0
	e.depth = 0
	e.msgType = msgType
	e.flags = flags
	e.sequence = 0
	e.finished = false
	e.lastErr = nil
	e.ctorErr = nil

	if e.owned != nil {
		e.owned.Reset()
	}

	if _, err := e.reserve(wire.HeaderSize); err != nil {
		// Only reachable for a borrowed buffer shorter than the header
		// itself; every subsequent public call reports this.
		e.ctorErr = err
	}
}

// Reset rewinds the cursor and clears state while retaining the
// underlying buffer, so an owning encoder can be reused without
// reallocating and a borrowed encoder can be reused without a new buffer.
func (e *Encoder) Reset(msgType uint16, flags byte) {
	e.init(msgType, flags)
}

// SetSequence sets the header's sequence field, which defaults to 0.
func (e *Encoder) SetSequence(seq uint32) {
	e.sequence = seq
}

// PayloadSize returns the number of payload bytes written so far,
// excluding the reserved header and not yet including the CRC trailer.
func (e *Encoder) PayloadSize() int {
	return e.pos - wire.HeaderSize
}

// LastError returns the last error latched by a failing operation, for
// post-hoc inspection. The authoritative error is always the one returned
// by the call that failed; this is a diagnostic convenience only.
func (e *Encoder) LastError() error {
	return e.lastErr
}

// fail latches and returns err, wrapped with msg for context.
func (e *Encoder) fail(sentinel error, msg string) error {
	err := fmt.Errorf("%s: %w", msg, sentinel)
	e.lastErr = err

	return err
}

// reserve returns a writable slice of n bytes starting at the current
// cursor and advances the cursor past it. It is the sole growth/bounds
// checkpoint: owning encoders double capacity (capped at wire.MaxMessage);
// borrowed encoders never grow and fail errs.ErrBufferFull on exhaustion.
func (e *Encoder) reserve(n int) ([]byte, error) {
	if e.ctorErr != nil {
		return nil, e.ctorErr
	}
	if e.finished {
		return nil, e.fail(errs.ErrEncoderFinished, "write after finish")
	}

	needed := e.pos + n

	if e.owned != nil {
		if needed > wire.MaxMessage {
			return nil, e.fail(errs.ErrMessageTooLarge, fmt.Sprintf("message would grow to %d bytes", needed))
		}
		if err := e.owned.GrowDoubling(needed, wire.MaxMessage); err != nil {
			return nil, e.fail(errs.ErrAllocFail, "owning buffer cannot grow")
		}
		e.owned.SetLength(needed)
		out := e.owned.Slice(e.pos, needed)
		e.pos = needed

		return out, nil
	}

	if needed > len(e.fixed) {
		return nil, e.fail(errs.ErrBufferFull, "borrowed buffer exhausted")
	}
	out := e.fixed[e.pos:needed]
	e.pos = needed

	return out, nil
}

func (e *Encoder) writeTag(tag wire.Tag) error {
	b, err := e.reserve(1)
	if err != nil {
		return err
	}
	b[0] = byte(tag)

	return nil
}

// --- raw (untagged) primitive writes, used both by the tag-prefixed
// top-level writers below and by WriteField for struct values. ---

func (e *Encoder) rawBool(v bool) error {
	b, err := e.reserve(1)
	if err != nil {
		return err
	}
	if v {
		b[0] = 1
	} else {
		b[0] = 0
	}

	return nil
}

func (e *Encoder) rawU8(v uint8) error {
	b, err := e.reserve(1)
	if err != nil {
		return err
	}
	b[0] = v

	return nil
}

func (e *Encoder) rawI8(v int8) error { return e.rawU8(uint8(v)) }

func (e *Encoder) rawU16(v uint16) error {
	b, err := e.reserve(2)
	if err != nil {
		return err
	}
	e.engine.PutUint16(b, v)

	return nil
}

func (e *Encoder) rawI16(v int16) error { return e.rawU16(uint16(v)) }

func (e *Encoder) rawU32(v uint32) error {
	b, err := e.reserve(4)
	if err != nil {
		return err
	}
	e.engine.PutUint32(b, v)

	return nil
}

func (e *Encoder) rawI32(v int32) error { return e.rawU32(uint32(v)) }

func (e *Encoder) rawU64(v uint64) error {
	b, err := e.reserve(8)
	if err != nil {
		return err
	}
	e.engine.PutUint64(b, v)

	return nil
}

func (e *Encoder) rawI64(v int64) error { return e.rawU64(uint64(v)) }

func (e *Encoder) rawString(s string) error {
	if len(s) > wire.MaxString {
		return e.fail(errs.ErrStringTooLarge, fmt.Sprintf("string length %d", len(s)))
	}
	b, err := e.reserve(4 + len(s))
	if err != nil {
		return err
	}
	e.engine.PutUint32(b[0:4], uint32(len(s)))
	copy(b[4:], s)

	return nil
}

func (e *Encoder) rawBytes(data []byte) error {
	if len(data) > wire.MaxMessage {
		return e.fail(errs.ErrTooLarge, fmt.Sprintf("bytes length %d", len(data)))
	}
	b, err := e.reserve(4 + len(data))
	if err != nil {
		return err
	}
	e.engine.PutUint32(b[0:4], uint32(len(data)))
	copy(b[4:], data)

	return nil
}

func (e *Encoder) rawUUID(id [16]byte) error {
	b, err := e.reserve(16)
	if err != nil {
		return err
	}
	copy(b, id[:])

	return nil
}

// --- typed writes: tag byte followed by the raw payload. ---

func (e *Encoder) WriteBool(v bool) error {
	if err := e.writeTag(wire.TagBool); err != nil {
		return err
	}
	return e.rawBool(v)
}

func (e *Encoder) WriteU8(v uint8) error {
	if err := e.writeTag(wire.TagU8); err != nil {
		return err
	}
	return e.rawU8(v)
}

func (e *Encoder) WriteI8(v int8) error {
	if err := e.writeTag(wire.TagI8); err != nil {
		return err
	}
	return e.rawI8(v)
}

func (e *Encoder) WriteU16(v uint16) error {
	if err := e.writeTag(wire.TagU16); err != nil {
		return err
	}
	return e.rawU16(v)
}

func (e *Encoder) WriteI16(v int16) error {
	if err := e.writeTag(wire.TagI16); err != nil {
		return err
	}
	return e.rawI16(v)
}

func (e *Encoder) WriteU32(v uint32) error {
	if err := e.writeTag(wire.TagU32); err != nil {
		return err
	}
	return e.rawU32(v)
}

func (e *Encoder) WriteI32(v int32) error {
	if err := e.writeTag(wire.TagI32); err != nil {
		return err
	}
	return e.rawI32(v)
}

func (e *Encoder) WriteU64(v uint64) error {
	if err := e.writeTag(wire.TagU64); err != nil {
		return err
	}
	return e.rawU64(v)
}

func (e *Encoder) WriteI64(v int64) error {
	if err := e.writeTag(wire.TagI64); err != nil {
		return err
	}
	return e.rawI64(v)
}

func (e *Encoder) WriteF32(v float32) error {
	if err := e.writeTag(wire.TagF32); err != nil {
		return err
	}
	return e.rawU32(math.Float32bits(v))
}

func (e *Encoder) WriteF64(v float64) error {
	if err := e.writeTag(wire.TagF64); err != nil {
		return err
	}
	return e.rawU64(math.Float64bits(v))
}

// WriteVarint emits an unsigned LEB128 value.
func (e *Encoder) WriteVarint(v uint64) error {
	if err := e.writeTag(wire.TagVarint); err != nil {
		return err
	}
	n := wire.UvarintLen(v)
	b, err := e.reserve(n)
	if err != nil {
		return err
	}
	wire.PutUvarint(b, v)

	return nil
}

// WriteVarsint emits a signed value, ZigZag-mapped then LEB128-encoded,
// riding on the same VARINT tag as WriteVarint.
func (e *Encoder) WriteVarsint(v int64) error {
	return e.WriteVarint(wire.ZigZagEncode(v))
}

// WriteString emits STRING | u32 len | bytes. A nil or empty string is
// valid and encodes as STRING | 0x00000000.
func (e *Encoder) WriteString(s string) error {
	if err := e.writeTag(wire.TagString); err != nil {
		return err
	}
	return e.rawString(s)
}

// WriteBytes emits BYTES | u32 len | bytes.
func (e *Encoder) WriteBytes(data []byte) error {
	if err := e.writeTag(wire.TagBytes); err != nil {
		return err
	}
	return e.rawBytes(data)
}

// WriteUUID emits UUID | 16 bytes, opaque and never reordered.
func (e *Encoder) WriteUUID(id [16]byte) error {
	if err := e.writeTag(wire.TagUUID); err != nil {
		return err
	}
	return e.rawUUID(id)
}

// WriteTimestamp emits TIMESTAMP | u64 microseconds since Unix epoch.
func (e *Encoder) WriteTimestamp(t time.Time) error {
	if err := e.writeTag(wire.TagTimestamp); err != nil {
		return err
	}
	return e.rawU64(uint64(t.UnixMicro()))
}

// WriteDuration emits DURATION | u64 nanoseconds.
func (e *Encoder) WriteDuration(d time.Duration) error {
	if err := e.writeTag(wire.TagDuration); err != nil {
		return err
	}
	return e.rawU64(uint64(d.Nanoseconds()))
}

// --- containers ---

// ArrayBegin emits ARRAY | u8 elem_type | u32 count and opens a nesting
// level. The caller is responsible for writing exactly count tag-prefixed
// values of elemType before calling ArrayEnd; the encoder does not itself
// count subsequent writes.
func (e *Encoder) ArrayBegin(elemType wire.Tag, count uint32) error {
	if e.depth >= wire.MaxDepth {
		return e.fail(errs.ErrDepthExceeded, "array_begin")
	}
	if count > wire.MaxArrayCount {
		return e.fail(errs.ErrArrayTooLarge, fmt.Sprintf("array count %d", count))
	}
	if err := e.writeTag(wire.TagArray); err != nil {
		return err
	}
	if err := e.rawU8(byte(elemType)); err != nil {
		return err
	}
	if err := e.rawU32(count); err != nil {
		return err
	}
	e.depth++

	return nil
}

// ArrayEnd closes a nesting level opened by ArrayBegin.
func (e *Encoder) ArrayEnd() error {
	if e.depth <= 0 {
		return e.fail(errs.ErrUnbalancedEnd, "array_end without matching begin")
	}
	e.depth--

	return nil
}

// MapBegin emits MAP | u8 key_type | u8 val_type | u32 count and opens a
// nesting level.
func (e *Encoder) MapBegin(keyType, valType wire.Tag, count uint32) error {
	if e.depth >= wire.MaxDepth {
		return e.fail(errs.ErrDepthExceeded, "map_begin")
	}
	if count > wire.MaxArrayCount {
		return e.fail(errs.ErrArrayTooLarge, fmt.Sprintf("map count %d", count))
	}
	if err := e.writeTag(wire.TagMap); err != nil {
		return err
	}
	if err := e.rawU8(byte(keyType)); err != nil {
		return err
	}
	if err := e.rawU8(byte(valType)); err != nil {
		return err
	}
	if err := e.rawU32(count); err != nil {
		return err
	}
	e.depth++

	return nil
}

// MapEnd closes a nesting level opened by MapBegin.
func (e *Encoder) MapEnd() error {
	if e.depth <= 0 {
		return e.fail(errs.ErrUnbalancedEnd, "map_end without matching begin")
	}
	e.depth--

	return nil
}

// StructBegin emits STRUCT | u16 type_id and opens a nesting level.
func (e *Encoder) StructBegin(typeID uint16) error {
	if e.depth >= wire.MaxDepth {
		return e.fail(errs.ErrDepthExceeded, "struct_begin")
	}
	if err := e.writeTag(wire.TagStruct); err != nil {
		return err
	}
	if err := e.rawU16(typeID); err != nil {
		return err
	}
	e.depth++

	return nil
}

// StructEnd writes the sentinel field (field_id=0, tag=NULL) and closes a
// nesting level opened by StructBegin.
func (e *Encoder) StructEnd() error {
	if e.depth <= 0 {
		return e.fail(errs.ErrUnbalancedEnd, "struct_end without matching begin")
	}
	if err := e.rawU16(0); err != nil {
		return err
	}
	if err := e.rawU8(byte(wire.TagNull)); err != nil {
		return err
	}
	e.depth--

	return nil
}

// WriteField writes one struct field: (u16 field_id, u8 type_tag, value),
// where value is untagged (the type_tag already identifies it) and must
// be the Go type corresponding to tag: bool, uint8, int8, uint16, int16,
// uint32, int32, uint64, int64, float32, float64, string, []byte,
// [16]byte, time.Time (TagTimestamp), or time.Duration (TagDuration).
func (e *Encoder) WriteField(fieldID uint16, tag wire.Tag, value any) error {
	if err := e.rawU16(fieldID); err != nil {
		return err
	}
	if err := e.rawU8(byte(tag)); err != nil {
		return err
	}

	switch tag {
	case wire.TagBool:
		v, ok := value.(bool)
		if !ok {
			return e.fail(errs.ErrInvalidArg, "WriteField: expected bool")
		}
		return e.rawBool(v)
	case wire.TagU8:
		v, ok := value.(uint8)
		if !ok {
			return e.fail(errs.ErrInvalidArg, "WriteField: expected uint8")
		}
		return e.rawU8(v)
	case wire.TagI8:
		v, ok := value.(int8)
		if !ok {
			return e.fail(errs.ErrInvalidArg, "WriteField: expected int8")
		}
		return e.rawI8(v)
	case wire.TagU16:
		v, ok := value.(uint16)
		if !ok {
			return e.fail(errs.ErrInvalidArg, "WriteField: expected uint16")
		}
		return e.rawU16(v)
	case wire.TagI16:
		v, ok := value.(int16)
		if !ok {
			return e.fail(errs.ErrInvalidArg, "WriteField: expected int16")
		}
		return e.rawI16(v)
	case wire.TagU32:
		v, ok := value.(uint32)
		if !ok {
			return e.fail(errs.ErrInvalidArg, "WriteField: expected uint32")
		}
		return e.rawU32(v)
	case wire.TagI32:
		v, ok := value.(int32)
		if !ok {
			return e.fail(errs.ErrInvalidArg, "WriteField: expected int32")
		}
		return e.rawI32(v)
	case wire.TagU64:
		v, ok := value.(uint64)
		if !ok {
			return e.fail(errs.ErrInvalidArg, "WriteField: expected uint64")
		}
		return e.rawU64(v)
	case wire.TagI64:
		v, ok := value.(int64)
		if !ok {
			return e.fail(errs.ErrInvalidArg, "WriteField: expected int64")
		}
		return e.rawI64(v)
	case wire.TagF32:
		v, ok := value.(float32)
		if !ok {
			return e.fail(errs.ErrInvalidArg, "WriteField: expected float32")
		}
		return e.rawU32(math.Float32bits(v))
	case wire.TagF64:
		v, ok := value.(float64)
		if !ok {
			return e.fail(errs.ErrInvalidArg, "WriteField: expected float64")
		}
		return e.rawU64(math.Float64bits(v))
	case wire.TagString:
		v, ok := value.(string)
		if !ok {
			return e.fail(errs.ErrInvalidArg, "WriteField: expected string")
		}
		return e.rawString(v)
	case wire.TagBytes:
		v, ok := value.([]byte)
		if !ok {
			return e.fail(errs.ErrInvalidArg, "WriteField: expected []byte")
		}
		return e.rawBytes(v)
	case wire.TagUUID:
		v, ok := value.([16]byte)
		if !ok {
			return e.fail(errs.ErrInvalidArg, "WriteField: expected [16]byte")
		}
		return e.rawUUID(v)
	case wire.TagTimestamp:
		v, ok := value.(time.Time)
		if !ok {
			return e.fail(errs.ErrInvalidArg, "WriteField: expected time.Time")
		}
		return e.rawU64(uint64(v.UnixMicro()))
	case wire.TagDuration:
		v, ok := value.(time.Duration)
		if !ok {
			return e.fail(errs.ErrInvalidArg, "WriteField: expected time.Duration")
		}
		return e.rawU64(uint64(v.Nanoseconds()))
	default:
		return e.fail(errs.ErrInvalidType, fmt.Sprintf("WriteField: unsupported tag %s", tag))
	}
}

// --- raw escape hatches ---

// WriteRaw appends data without a tag or length prefix, for hand-coded
// sub-grammars composed directly on top of the buffer.
func (e *Encoder) WriteRaw(data []byte) error {
	b, err := e.reserve(len(data))
	if err != nil {
		return err
	}
	copy(b, data)

	return nil
}

// WriteReserve returns a mutable slice of n bytes at the current cursor
// for the caller to populate directly, advancing the cursor past it.
func (e *Encoder) WriteReserve(n int) ([]byte, error) {
	return e.reserve(n)
}

// Finish emplaces the header fields, optionally appends the CRC32
// trailer, and returns the complete framed message. It fails
// errs.ErrMalformed if any container was left open, and may be called at
// most once before a Reset.
func (e *Encoder) Finish() ([]byte, error) {
	if e.ctorErr != nil {
		return nil, e.ctorErr
	}
	if e.finished {
		return nil, e.fail(errs.ErrEncoderFinished, "finish called twice")
	}
	if e.depth != 0 {
		return nil, e.fail(errs.ErrMalformed, "unclosed container at finish")
	}

	h := wire.Header{
		Magic:      wire.Magic,
		Version:    wire.Version,
		MsgType:    e.msgType,
		Flags:      e.flags,
		PayloadLen: uint32(e.pos - wire.HeaderSize),
		Sequence:   e.sequence,
	}
	h.PutBytes(e.bytes()[:wire.HeaderSize])

	if h.HasCRC() {
		crcSlice, err := e.reserve(wire.CRCSize)
		if err != nil {
			return nil, err
		}
		crc := wire.CRC32(e.bytes()[:e.pos-wire.CRCSize])
		e.engine.PutUint32(crcSlice, crc)
	}

	e.finished = true

	return e.bytes()[:e.pos], nil
}

// bytes returns the full backing slice regardless of mode.
func (e *Encoder) bytes() []byte {
	if e.owned != nil {
		return e.owned.Bytes()
	}
	return e.fixed
}
