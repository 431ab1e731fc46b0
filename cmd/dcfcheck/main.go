// Command dcfcheck runs the six end-to-end literal scenarios the wire
// format is specified against, as a self-test a deployment can run to
// sanity-check the codec after a build rather than only trusting unit
// tests: primitive round-trip, string/bytes/UUID/varint/timestamp
// round-trip, container round-trip, schema round-trip, corruption
// detection, and a borrowed buffer the finished frame aliases.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/alh477/dcfs/decoder"
	"github.com/alh477/dcfs/encoder"
	"github.com/alh477/dcfs/errs"
	"github.com/alh477/dcfs/schema"
	"github.com/alh477/dcfs/wire"
)

func main() {
	scenarios := []struct {
		name string
		run  func() error
	}{
		{"primitive round-trip", scenarioPrimitives},
		{"variable-length round-trip", scenarioVariableLength},
		{"container round-trip", scenarioContainers},
		{"schema round-trip", scenarioSchema},
		{"corruption detection", scenarioCorruption},
		{"borrowed buffer aliasing", scenarioBorrowedBuffer},
	}

	for i, s := range scenarios {
		if err := s.run(); err != nil {
			log.Fatalf("scenario %d (%s) failed: %v", i+1, s.name, err)
		}
		fmt.Printf("scenario %d (%s): PASS\n", i+1, s.name)
	}

	fmt.Println("all scenarios passed")
}

func scenarioPrimitives() error {
	e := encoder.New(1, 0)
	e.SetSequence(0)

	must(e.WriteBool(true))
	must(e.WriteU8(0x42))
	must(e.WriteI8(-42))
	must(e.WriteU16(0x1234))
	must(e.WriteI16(-1234))
	must(e.WriteU32(0xDEADBEEF))
	must(e.WriteI32(-123456789))
	must(e.WriteU64(0x123456789ABCDEF0))
	must(e.WriteI64(-9223372036854775807))
	must(e.WriteF32(3.14159))
	must(e.WriteF64(2.718281828459045))

	out, err := e.Finish()
	if err != nil {
		return err
	}

	d := decoder.New(out)
	if err := d.Validate(); err != nil {
		return err
	}

	checkBool(d, true)
	checkU8(d, 0x42)
	checkI8(d, -42)
	checkU16(d, 0x1234)
	checkI16(d, -1234)
	checkU32(d, 0xDEADBEEF)
	checkI32(d, -123456789)
	checkU64(d, 0x123456789ABCDEF0)
	checkI64(d, -9223372036854775807)
	checkF32(d, 3.14159)
	checkF64(d, 2.718281828459045)

	if !d.AtEnd() {
		return fmt.Errorf("expected at_end after reading all values")
	}

	return nil
}

func scenarioVariableLength() error {
	e := encoder.New(1, 0)
	must(e.WriteString("Hello, DCF!"))
	must(e.WriteString(""))
	must(e.WriteBytes([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0xCA, 0xFE, 0xBA, 0xBE}))

	var uuid [16]byte
	for i := 0; i < 8; i++ {
		uuid[i] = 0x55
	}
	for i := 8; i < 16; i++ {
		uuid[i] = 0xAA
	}
	must(e.WriteUUID(uuid))

	must(e.WriteVarint(127))
	must(e.WriteVarint(300))
	must(e.WriteVarint(0xFFFFFFFF))
	must(e.WriteTimestamp(time.UnixMicro(1704067200000000).UTC()))

	out, err := e.Finish()
	if err != nil {
		return err
	}

	d := decoder.New(out)
	if err := d.Validate(); err != nil {
		return err
	}

	s, err := d.ReadString()
	if err != nil {
		return err
	}
	if s != "Hello, DCF!" {
		return fmt.Errorf("string mismatch: %q", s)
	}

	empty, err := d.ReadString()
	if err != nil {
		return err
	}
	if empty != "" {
		return fmt.Errorf("expected empty string")
	}

	b, err := d.ReadBytes()
	if err != nil {
		return err
	}
	if !bytes.Equal(b, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xCA, 0xFE, 0xBA, 0xBE}) {
		return fmt.Errorf("bytes mismatch")
	}
	// The returned slice must alias the validated input buffer, not a copy.
	if !sliceWithin(b, out) {
		return fmt.Errorf("bytes read is not a zero-copy view into the input buffer")
	}

	gotUUID, err := d.ReadUUID()
	if err != nil {
		return err
	}
	if gotUUID != uuid {
		return fmt.Errorf("uuid mismatch")
	}

	for _, want := range []uint64{127, 300, 0xFFFFFFFF} {
		v, err := d.ReadVarint()
		if err != nil {
			return err
		}
		if v != want {
			return fmt.Errorf("varint mismatch: want %d got %d", want, v)
		}
	}

	ts, err := d.ReadTimestamp()
	if err != nil {
		return err
	}
	if ts.UnixMicro() != 1704067200000000 {
		return fmt.Errorf("timestamp mismatch")
	}

	return nil
}

func scenarioContainers() error {
	e := encoder.New(1, 0)

	must(e.ArrayBegin(wire.TagU32, 3))
	must(e.WriteU32(100))
	must(e.WriteU32(200))
	must(e.WriteU32(300))
	must(e.ArrayEnd())

	must(e.MapBegin(wire.TagString, wire.TagI32, 2))
	must(e.WriteString("one"))
	must(e.WriteI32(1))
	must(e.WriteString("two"))
	must(e.WriteI32(2))
	must(e.MapEnd())

	must(e.StructBegin(0x0100))
	must(e.WriteField(1, wire.TagString, "Alice"))
	must(e.WriteField(2, wire.TagU32, uint32(30)))
	must(e.WriteField(3, wire.TagBool, true))
	must(e.StructEnd())

	out, err := e.Finish()
	if err != nil {
		return err
	}

	d := decoder.New(out)
	if err := d.Validate(); err != nil {
		return err
	}

	elemType, count, err := d.ArrayHeader()
	if err != nil {
		return err
	}
	if elemType != wire.TagU32 || count != 3 {
		return fmt.Errorf("array header mismatch")
	}
	for _, want := range []uint32{100, 200, 300} {
		v, err := d.ReadU32()
		if err != nil {
			return err
		}
		if v != want {
			return fmt.Errorf("array element mismatch")
		}
	}
	if err := d.ArrayEnd(); err != nil {
		return err
	}

	keyType, valType, mcount, err := d.MapHeader()
	if err != nil {
		return err
	}
	if keyType != wire.TagString || valType != wire.TagI32 || mcount != 2 {
		return fmt.Errorf("map header mismatch")
	}
	for i := 0; i < 2; i++ {
		if _, err := d.ReadString(); err != nil {
			return err
		}
		if _, err := d.ReadI32(); err != nil {
			return err
		}
	}
	if err := d.MapEnd(); err != nil {
		return err
	}

	typeID, err := d.StructHeader()
	if err != nil {
		return err
	}
	if typeID != 0x0100 {
		return fmt.Errorf("struct type_id mismatch")
	}
	for {
		_, tag, err := d.ReadField()
		if errors.Is(err, errs.ErrNotFound) {
			break
		}
		if err != nil {
			return err
		}
		if _, err := d.ReadFieldValue(tag); err != nil {
			return err
		}
	}
	if err := d.StructEnd(); err != nil {
		return err
	}

	_, _, err = d.ArrayHeader()
	if err == nil {
		return fmt.Errorf("expected failure reading past end")
	}
	if !d.AtEnd() {
		return fmt.Errorf("expected at_end after struct sentinel")
	}

	return nil
}

type telemetryRecord struct {
	ID        uint64
	Active    bool
	Score     float64
	Timestamp time.Time
}

func scenarioSchema() error {
	s := schema.New(0x0200,
		schema.Field{Name: "ID", FieldID: 1, Tag: wire.TagU64},
		schema.Field{Name: "Active", FieldID: 2, Tag: wire.TagBool},
		schema.Field{Name: "Score", FieldID: 3, Tag: wire.TagF64},
		schema.Field{Name: "Timestamp", FieldID: 4, Tag: wire.TagTimestamp},
	)

	want := telemetryRecord{
		ID:        12345,
		Active:    true,
		Score:     98.5,
		Timestamp: time.UnixMicro(1704153600000000).UTC(),
	}

	e := encoder.New(1, 0)
	if err := s.Encode(e, want); err != nil {
		return err
	}
	out, err := e.Finish()
	if err != nil {
		return err
	}

	d := decoder.New(out)
	if err := d.Validate(); err != nil {
		return err
	}

	var got telemetryRecord
	if err := s.Decode(d, &got); err != nil {
		return err
	}

	if got.ID != want.ID || got.Active != want.Active || got.Score != want.Score ||
		got.Timestamp.UnixMicro() != want.Timestamp.UnixMicro() {
		return fmt.Errorf("schema round-trip mismatch: want %+v got %+v", want, got)
	}

	return nil
}

func scenarioCorruption() error {
	e := encoder.New(1, 0)
	must(e.WriteU32(7))
	out, err := e.Finish()
	if err != nil {
		return err
	}

	bitFlipped := append([]byte(nil), out...)
	bitFlipped[17+2] ^= 0x01
	if _, err := wire.ValidateMessage(bitFlipped); !isErr(err, errs.ErrCRCMismatch) {
		return fmt.Errorf("expected CRC_MISMATCH, got %v", err)
	}

	truncated := out[:len(out)-5]
	if _, err := wire.ValidateMessage(truncated); !isErr(err, errs.ErrTruncated) {
		return fmt.Errorf("expected TRUNCATED, got %v", err)
	}

	badMagic := append([]byte(nil), out...)
	for i := 0; i < 4; i++ {
		badMagic[i] = 0
	}
	if _, err := wire.ValidateMessage(badMagic); !isErr(err, errs.ErrInvalidMagic) {
		return fmt.Errorf("expected INVALID_MAGIC, got %v", err)
	}

	return nil
}

func scenarioBorrowedBuffer() error {
	buf := make([]byte, 1024)
	e := encoder.NewIn(buf, 1, 0)

	must(e.WriteString("Using external buffer!"))
	must(e.WriteU64(0xCAFEBABEDEADBEEF))

	out, err := e.Finish()
	if err != nil {
		return err
	}
	if &out[0] != &buf[0] {
		return fmt.Errorf("expected returned frame to alias the caller's buffer")
	}

	d := decoder.New(out)
	if err := d.Validate(); err != nil {
		return err
	}

	s, err := d.ReadString()
	if err != nil {
		return err
	}
	if s != "Using external buffer!" {
		return fmt.Errorf("string mismatch")
	}

	v, err := d.ReadU64()
	if err != nil {
		return err
	}
	if v != 0xCAFEBABEDEADBEEF {
		return fmt.Errorf("u64 mismatch")
	}

	return nil
}

func must(err error) {
	if err != nil {
		log.Fatalf("unexpected error: %v", err)
	}
}

func isErr(err, sentinel error) bool {
	return err != nil && errors.Is(err, sentinel)
}

func sliceWithin(sub, outer []byte) bool {
	if len(sub) == 0 {
		return true
	}
	subStart := &sub[0]
	for i := range outer {
		if &outer[i] == subStart {
			return i+len(sub) <= len(outer)
		}
	}
	return false
}

func checkBool(d *decoder.Decoder, want bool) {
	v, err := d.ReadBool()
	must(err)
	if v != want {
		log.Fatalf("bool mismatch")
	}
}

func checkU8(d *decoder.Decoder, want uint8) {
	v, err := d.ReadU8()
	must(err)
	if v != want {
		log.Fatalf("u8 mismatch")
	}
}

func checkI8(d *decoder.Decoder, want int8) {
	v, err := d.ReadI8()
	must(err)
	if v != want {
		log.Fatalf("i8 mismatch")
	}
}

func checkU16(d *decoder.Decoder, want uint16) {
	v, err := d.ReadU16()
	must(err)
	if v != want {
		log.Fatalf("u16 mismatch")
	}
}

func checkI16(d *decoder.Decoder, want int16) {
	v, err := d.ReadI16()
	must(err)
	if v != want {
		log.Fatalf("i16 mismatch")
	}
}

func checkU32(d *decoder.Decoder, want uint32) {
	v, err := d.ReadU32()
	must(err)
	if v != want {
		log.Fatalf("u32 mismatch")
	}
}

func checkI32(d *decoder.Decoder, want int32) {
	v, err := d.ReadI32()
	must(err)
	if v != want {
		log.Fatalf("i32 mismatch")
	}
}

func checkU64(d *decoder.Decoder, want uint64) {
	v, err := d.ReadU64()
	must(err)
	if v != want {
		log.Fatalf("u64 mismatch")
	}
}

func checkI64(d *decoder.Decoder, want int64) {
	v, err := d.ReadI64()
	must(err)
	if v != want {
		log.Fatalf("i64 mismatch")
	}
}

func checkF32(d *decoder.Decoder, want float32) {
	v, err := d.ReadF32()
	must(err)
	if math.Float32bits(v) != math.Float32bits(want) {
		log.Fatalf("f32 mismatch")
	}
}

func checkF64(d *decoder.Decoder, want float64) {
	v, err := d.ReadF64()
	must(err)
	if math.Float64bits(v) != math.Float64bits(want) {
		log.Fatalf("f64 mismatch")
	}
}
