package wire

import (
	"github.com/alh477/dcfs/endian"
	"github.com/alh477/dcfs/errs"
)

// Header mirrors the 17-byte wire header as discrete Go fields. It must
// never be aliased over the wire bytes via natural struct alignment --
// Bytes and ParseHeader read and write each field explicitly instead.
type Header struct {
	Magic      uint32
	Version    uint16
	MsgType    uint16
	Flags      byte
	PayloadLen uint32
	Sequence   uint32
}

// HasCRC reports whether the frame this header describes carries a
// trailing CRC32, i.e. whether FlagNoCRC is clear.
func (h Header) HasCRC() bool {
	return h.Flags&FlagNoCRC == 0
}

// Bytes serializes h into the fixed 17-byte big-endian wire layout.
func (h Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	h.PutBytes(b)
	return b
}

// PutBytes writes h into the first HeaderSize bytes of b. b must be at
// least HeaderSize bytes long.
func (h Header) PutBytes(b []byte) {
	engine := endian.GetBigEndianEngine()

	engine.PutUint32(b[0:4], h.Magic)
	engine.PutUint16(b[4:6], h.Version)
	engine.PutUint16(b[6:8], h.MsgType)
	b[8] = h.Flags
	engine.PutUint32(b[9:13], h.PayloadLen)
	engine.PutUint32(b[13:17], h.Sequence)
}

// ParseHeader parses a Header from the first HeaderSize bytes of data. It
// does not validate magic, version, or length -- that is Decoder.Validate's
// job -- it only requires enough bytes to read the fixed fields.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, errs.ErrTruncated
	}

	engine := endian.GetBigEndianEngine()

	return Header{
		Magic:      engine.Uint32(data[0:4]),
		Version:    engine.Uint16(data[4:6]),
		MsgType:    engine.Uint16(data[6:8]),
		Flags:      data[8],
		PayloadLen: engine.Uint32(data[9:13]),
		Sequence:   engine.Uint32(data[13:17]),
	}, nil
}

// MessageLength returns the total framed message length -- header, payload,
// and trailing CRC if present -- implied by a header already parsed from
// the first HeaderSize bytes of a buffer. This is the utility transport
// layers use to know how many more bytes to read after the fixed header.
func MessageLength(h Header) uint64 {
	total := uint64(HeaderSize) + uint64(h.PayloadLen)
	if h.HasCRC() {
		total += CRCSize
	}

	return total
}

// MessageLengthFromBytes parses just enough of headerBytes to compute the
// full framed length, matching the exposed message_length(header_bytes)
// utility. headerBytes must contain at least HeaderSize bytes.
func MessageLengthFromBytes(headerBytes []byte) (uint64, error) {
	h, err := ParseHeader(headerBytes)
	if err != nil {
		return 0, err
	}

	return MessageLength(h), nil
}

// ValidateMessage performs the header/frame checks shared by Decoder.Validate
// without requiring a Decoder instance: magic, major version, total length
// available, and (if present) CRC. It returns the parsed header on success.
func ValidateMessage(data []byte) (Header, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return Header{}, err
	}

	if h.Magic != Magic {
		return Header{}, errs.ErrInvalidMagic
	}

	if VersionMajor(h.Version) != VersionMajor(Version) {
		return Header{}, errs.ErrVersionMismatch
	}

	total := MessageLength(h)
	if uint64(len(data)) < total {
		return Header{}, errs.ErrTruncated
	}

	if h.HasCRC() {
		crcOffset := HeaderSize + int(h.PayloadLen)
		want := endian.GetBigEndianEngine().Uint32(data[crcOffset : crcOffset+CRCSize])
		got := CRC32(data[:crcOffset])
		if want != got {
			return Header{}, errs.ErrCRCMismatch
		}
	}

	return h, nil
}
