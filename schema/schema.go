// Package schema bridges typed Go structs onto the STRUCT container
// grammar: a declarative field table (name, field_id, type_tag) drives
// Encode and Decode without per-type boilerplate, tolerating unknown
// fields on decode by skipping them.
//
// The field table binds each Field to a Go struct field by name through
// reflection rather than through caller-supplied raw byte offsets -- see
// DESIGN.md's Open Question entry for schema bridge coverage. Reflection
// gives the same "decode writes directly into the destination's storage"
// behavior without unsafe pointer arithmetic the caller could get wrong.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/alh477/dcfs/decoder"
	"github.com/alh477/dcfs/encoder"
	"github.com/alh477/dcfs/errs"
	"github.com/alh477/dcfs/internal/hash"
	"github.com/alh477/dcfs/wire"
)

// Field describes one struct field's wire identity: the Go struct field
// Name it binds to, the wire FieldID that tags it, and the wire Tag its
// value is encoded/decoded as.
type Field struct {
	Name    string
	FieldID uint16
	Tag     wire.Tag
}

// Schema is an ordered, field-id-addressable table of Field descriptors
// for one struct shape, identified on the wire by TypeID.
type Schema struct {
	TypeID uint16
	fields []Field
	byID   map[uint16]Field
}

// New builds a Schema from typeID and an ordered field table. It panics on
// a duplicate field_id or an unsupported Tag, since both are programmer
// errors fixed at schema-definition time rather than recoverable at
// encode/decode time.
func New(typeID uint16, fields ...Field) *Schema {
	s := &Schema{
		TypeID: typeID,
		fields: fields,
		byID:   make(map[uint16]Field, len(fields)),
	}

	for _, f := range fields {
		if !supportedTag(f.Tag) {
			panic(fmt.Sprintf("schema: field %q uses unsupported tag %s", f.Name, f.Tag))
		}
		if _, dup := s.byID[f.FieldID]; dup {
			panic(fmt.Sprintf("schema: duplicate field_id %d", f.FieldID))
		}
		s.byID[f.FieldID] = f
	}

	return s
}

// supportedTag reports whether the schema bridge can carry a field of
// this wire type. Containers and VARINT are intentionally excluded: the
// bridge is for flat, fixed-shape records, and a field needing a nested
// container or a variable-width integer should be encoded by hand with
// the encoder/decoder APIs directly instead of through a Schema.
func supportedTag(t wire.Tag) bool {
	switch t {
	case wire.TagBool, wire.TagU8, wire.TagI8, wire.TagU16, wire.TagI16,
		wire.TagU32, wire.TagI32, wire.TagU64, wire.TagI64,
		wire.TagF32, wire.TagF64, wire.TagString, wire.TagBytes,
		wire.TagUUID, wire.TagTimestamp, wire.TagDuration:
		return true
	default:
		return false
	}
}

// Encode writes v (a struct or pointer to struct matching the schema's
// field names) as a STRUCT container: StructBegin(TypeID), one WriteField
// per schema field in table order, then StructEnd.
func (s *Schema) Encode(e *encoder.Encoder, v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("schema: Encode: %T is not a struct", v)
	}

	if err := e.StructBegin(s.TypeID); err != nil {
		return err
	}

	for _, f := range s.fields {
		fv := rv.FieldByName(f.Name)
		if !fv.IsValid() {
			return fmt.Errorf("schema: Encode: field %q not found on %T", f.Name, v)
		}
		if err := e.WriteField(f.FieldID, f.Tag, fv.Interface()); err != nil {
			return err
		}
	}

	return e.StructEnd()
}

// Decode reads a STRUCT container into dest, which must be a non-nil
// pointer to a struct matching the schema's field names. dest's fields
// are zeroed before any are populated, so a short record leaves the
// untouched fields at their Go zero value rather than stale data from a
// reused dest. Field ids present on the wire but absent from the schema
// are skipped, not an error -- this is the "tolerate unknown fields"
// contract; a schema field absent from the wire is simply left zero. A
// STRUCT whose wire type_id differs from TypeID fails with
// errs.ErrTypeMismatch.
func (s *Schema) Decode(d *decoder.Decoder, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("schema: Decode: dest must be a non-nil pointer, got %T", dest)
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("schema: Decode: dest must point to a struct, got %T", dest)
	}
	rv.Set(reflect.Zero(rv.Type()))

	typeID, err := d.StructHeader()
	if err != nil {
		return err
	}
	if typeID != s.TypeID {
		return fmt.Errorf("schema: Decode: wire type_id %d, schema type_id %d: %w",
			typeID, s.TypeID, errs.ErrTypeMismatch)
	}

	for {
		fieldID, tag, err := d.ReadField()
		if errors.Is(err, errs.ErrNotFound) {
			break
		}
		if err != nil {
			return err
		}

		f, known := s.byID[fieldID]
		if !known {
			if _, err := d.ReadFieldValue(tag); err != nil {
				return err
			}
			continue
		}
		if f.Tag != tag {
			return fmt.Errorf("schema: Decode: field %q expected tag %s, wire has %s: %w",
				f.Name, f.Tag, tag, errs.ErrTypeMismatch)
		}

		value, err := d.ReadFieldValue(tag)
		if err != nil {
			return err
		}

		fv := rv.FieldByName(f.Name)
		if !fv.IsValid() || !fv.CanSet() {
			return fmt.Errorf("schema: Decode: field %q not settable on %T", f.Name, dest)
		}
		fv.Set(reflect.ValueOf(value))
	}

	return d.StructEnd()
}

// Fingerprint returns a stable xxHash64 digest of the schema's wire shape:
// TypeID plus each field's FieldID, Tag, and Name in table order. Two
// Schemas built from the same field table in the same order always
// fingerprint identically regardless of process or host, so a sender and
// receiver can compare fingerprints out-of-band to catch a schema drift
// before either side tries to Encode/Decode against it.
func (s *Schema) Fingerprint() uint64 {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(uint64(s.TypeID), 10))

	for _, f := range s.fields {
		b.WriteByte('|')
		b.WriteString(strconv.FormatUint(uint64(f.FieldID), 10))
		b.WriteByte(':')
		b.WriteString(f.Tag.String())
		b.WriteByte(':')
		b.WriteString(f.Name)
	}

	return hash.ID(b.String())
}
