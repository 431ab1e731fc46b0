package wire

// Tag is the one-byte discriminator preceding every typed value on the
// wire. Encoders must emit and decoders must enforce the exact tag
// preceding every typed value.
type Tag uint8

const (
	TagNull      Tag = 0x00
	TagBool      Tag = 0x01
	TagU8        Tag = 0x02
	TagI8        Tag = 0x03
	TagU16       Tag = 0x04
	TagI16       Tag = 0x05
	TagU32       Tag = 0x06
	TagI32       Tag = 0x07
	TagU64       Tag = 0x08
	TagI64       Tag = 0x09
	TagF32       Tag = 0x0A
	TagF64       Tag = 0x0B
	TagVarint    Tag = 0x10
	TagString    Tag = 0x11
	TagBytes     Tag = 0x12
	TagUUID      Tag = 0x13
	TagArray     Tag = 0x20
	TagMap       Tag = 0x21
	TagStruct    Tag = 0x22
	TagTuple     Tag = 0x23
	TagTimestamp Tag = 0x30
	TagDuration  Tag = 0x31
	TagOptional  Tag = 0x32
	TagEnum      Tag = 0x33
	TagExtension Tag = 0xFE
	TagInvalid   Tag = 0xFF
)

// String returns the tag's canonical name, matching the exposed
// type_to_str utility from the external interface.
func (t Tag) String() string {
	switch t {
	case TagNull:
		return "NULL"
	case TagBool:
		return "BOOL"
	case TagU8:
		return "U8"
	case TagI8:
		return "I8"
	case TagU16:
		return "U16"
	case TagI16:
		return "I16"
	case TagU32:
		return "U32"
	case TagI32:
		return "I32"
	case TagU64:
		return "U64"
	case TagI64:
		return "I64"
	case TagF32:
		return "F32"
	case TagF64:
		return "F64"
	case TagVarint:
		return "VARINT"
	case TagString:
		return "STRING"
	case TagBytes:
		return "BYTES"
	case TagUUID:
		return "UUID"
	case TagArray:
		return "ARRAY"
	case TagMap:
		return "MAP"
	case TagStruct:
		return "STRUCT"
	case TagTuple:
		return "TUPLE"
	case TagTimestamp:
		return "TIMESTAMP"
	case TagDuration:
		return "DURATION"
	case TagOptional:
		return "OPTIONAL"
	case TagEnum:
		return "ENUM"
	case TagExtension:
		return "EXTENSION"
	case TagInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// IsKnown reports whether t is one of the tags enumerated above. INVALID
// itself is a known tag value, but never a legal one to emit or accept.
func (t Tag) IsKnown() bool {
	return t.String() != "UNKNOWN"
}

// FixedSize returns the fixed wire payload size in bytes for tags whose
// payload is fixed-width, and 0 for variable-length or container tags,
// matching the exposed type_fixed_size utility.
func (t Tag) FixedSize() int {
	switch t {
	case TagNull:
		return 0
	case TagBool, TagU8, TagI8:
		return 1
	case TagU16, TagI16:
		return 2
	case TagU32, TagI32, TagF32:
		return 4
	case TagU64, TagI64, TagF64, TagTimestamp, TagDuration:
		return 8
	case TagUUID:
		return 16
	default:
		return 0
	}
}
