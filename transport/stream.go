// Package transport provides stream-oriented framing glue on top of
// wire/encoder/decoder: reading length-delimited messages off an
// io.Reader into pooled buffers, writing finished messages to an
// io.Writer, and optionally tracking sequence numbers for replay
// detection. None of this is required to use encoder/decoder directly
// against an in-memory buffer; it exists for callers that have an actual
// byte stream (a TCP connection, a pipe) rather than a single []byte.
package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/alh477/dcfs/compress"
	"github.com/alh477/dcfs/decoder"
	"github.com/alh477/dcfs/encoder"
	"github.com/alh477/dcfs/endian"
	"github.com/alh477/dcfs/errs"
	"github.com/alh477/dcfs/internal/collision"
	"github.com/alh477/dcfs/internal/hash"
	"github.com/alh477/dcfs/internal/options"
	"github.com/alh477/dcfs/internal/pool"
	"github.com/alh477/dcfs/wire"
)

// ReaderConfig holds StreamReader's configuration, applied through
// functional options the same way mebo's NumericEncoderConfig is built.
type ReaderConfig struct {
	maxMessage    int
	trackSequence bool
	dedupContent  bool
	decompressor  compress.Decompressor
}

// ReaderOption configures a StreamReader at construction.
type ReaderOption = options.Option[*ReaderConfig]

// WithMaxMessage caps the frame length a StreamReader will accept before
// it even attempts to allocate a buffer for it, guarding against a
// corrupt or hostile payload_len driving an unbounded allocation. It
// defaults to wire.MaxMessage.
func WithMaxMessage(n int) ReaderOption {
	return options.NoError(func(c *ReaderConfig) { c.maxMessage = n })
}

// WithSequenceTracking enables replay detection: ReadMessage reports
// errs.ErrSequenceReplayed if a sequence number repeats.
func WithSequenceTracking() ReaderOption {
	return options.NoError(func(c *ReaderConfig) { c.trackSequence = true })
}

// WithContentDedup enables content-digest dedup: ReadMessage reports
// errs.ErrDuplicateContent if a payload's xxHash64 digest (computed after
// decompression, over the same bytes the decoder will read) repeats. This
// catches retransmits that land under a different sequence number, which
// WithSequenceTracking cannot.
func WithContentDedup() ReaderOption {
	return options.NoError(func(c *ReaderConfig) { c.dedupContent = true })
}

// WithDecompressor installs a Decompressor applied automatically to any
// inbound frame whose FlagCompressed bit is set. The frame is validated as
// received first (its CRC covers the compressed bytes); the payload is then
// decompressed, re-framed without FlagCompressed, and validated again
// before reads. Without one, ReadMessage rejects a compressed frame with
// errs.ErrUnknownCompressor.
func WithDecompressor(d compress.Decompressor) ReaderOption {
	return options.NoError(func(c *ReaderConfig) { c.decompressor = d })
}

// StreamReader reads framed DCF messages off an io.Reader one at a time.
// It is not safe for concurrent use by multiple goroutines.
type StreamReader struct {
	r           io.Reader
	cfg         ReaderConfig
	tracker     *collision.Tracker
	contentSeen map[uint64]struct{}
	headerBuf   [wire.HeaderSize]byte
}

// NewStreamReader creates a StreamReader over r.
func NewStreamReader(r io.Reader, opts ...ReaderOption) (*StreamReader, error) {
	cfg := ReaderConfig{maxMessage: wire.MaxMessage}
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	sr := &StreamReader{r: r, cfg: cfg}
	if cfg.trackSequence {
		sr.tracker = collision.NewTracker()
	}
	if cfg.dedupContent {
		sr.contentSeen = make(map[uint64]struct{})
	}

	return sr, nil
}

// Message is one framed message read off a StreamReader: a validated
// Decoder positioned at the start of its payload, backed by a pooled
// buffer the caller must return via Release once done reading.
type Message struct {
	*decoder.Decoder
	buf *pool.ByteBuffer
}

// Release returns the Message's backing buffer to the pool. After Release,
// the Message's Decoder must not be used.
func (m *Message) Release() {
	pool.PutFrameBuffer(m.buf)
}

// ReadMessage blocks until a complete framed message has been read,
// validated, and (if sequence tracking is enabled) checked for replay. It
// returns io.EOF, unwrapped, when the stream ends cleanly between
// messages.
func (sr *StreamReader) ReadMessage() (*Message, error) {
	if _, err := io.ReadFull(sr.r, sr.headerBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}

		return nil, fmt.Errorf("transport: read header: %w", err)
	}

	total, err := wire.MessageLengthFromBytes(sr.headerBuf[:])
	if err != nil {
		return nil, fmt.Errorf("transport: parse header: %w", err)
	}
	if total > uint64(sr.cfg.maxMessage) {
		return nil, fmt.Errorf("transport: frame length %d exceeds configured maximum %d: %w",
			total, sr.cfg.maxMessage, errs.ErrMessageTooLarge)
	}

	bb := pool.GetFrameBuffer()
	bb.Reset()
	if err := bb.GrowDoubling(int(total), sr.cfg.maxMessage); err != nil {
		pool.PutFrameBuffer(bb)
		return nil, fmt.Errorf("transport: allocate frame buffer: %w", errs.ErrAllocFail)
	}
	bb.SetLength(int(total))

	full := bb.Bytes()
	copy(full[:wire.HeaderSize], sr.headerBuf[:])

	if _, err := io.ReadFull(sr.r, full[wire.HeaderSize:]); err != nil {
		pool.PutFrameBuffer(bb)
		return nil, fmt.Errorf("transport: read payload: %w", err)
	}

	d := decoder.New(full)
	if err := d.Validate(); err != nil {
		pool.PutFrameBuffer(bb)
		return nil, err
	}

	if sr.tracker != nil {
		if err := sr.tracker.Track(d.Header().Sequence); err != nil {
			pool.PutFrameBuffer(bb)
			return nil, err
		}
	}

	h := d.Header()
	if h.Flags&wire.FlagCompressed != 0 {
		if sr.cfg.decompressor == nil {
			pool.PutFrameBuffer(bb)
			return nil, fmt.Errorf("transport: received compressed frame with no decompressor configured: %w",
				errs.ErrUnknownCompressor)
		}

		payload := full[wire.HeaderSize : wire.HeaderSize+int(h.PayloadLen)]
		plain, err := sr.cfg.decompressor.Decompress(payload)
		if err != nil {
			pool.PutFrameBuffer(bb)
			return nil, fmt.Errorf("transport: decompress payload: %w", err)
		}

		// Re-frame as a plain message over the decompressed bytes: clear
		// COMPRESSED, drop the CRC (it covered the compressed bytes, which
		// no longer exist), and hand the result to a fresh Decoder the same
		// way the sender would have produced it without compression.
		plainHeader := h
		plainHeader.Flags &^= wire.FlagCompressed
		plainHeader.Flags |= wire.FlagNoCRC
		plainHeader.PayloadLen = uint32(len(plain))

		nb := pool.GetFrameBuffer()
		nb.Reset()
		newTotal := wire.HeaderSize + len(plain)
		if err := nb.GrowDoubling(newTotal, sr.cfg.maxMessage); err != nil {
			pool.PutFrameBuffer(bb)
			pool.PutFrameBuffer(nb)
			return nil, fmt.Errorf("transport: allocate decompressed buffer: %w", errs.ErrAllocFail)
		}
		nb.SetLength(newTotal)

		nf := nb.Bytes()
		plainHeader.PutBytes(nf[:wire.HeaderSize])
		copy(nf[wire.HeaderSize:], plain)

		pool.PutFrameBuffer(bb)
		bb = nb
		full = nf

		d = decoder.New(full)
		if err := d.Validate(); err != nil {
			pool.PutFrameBuffer(bb)
			return nil, err
		}
		h = d.Header()
	}

	if sr.cfg.dedupContent {
		payload := full[wire.HeaderSize : wire.HeaderSize+int(h.PayloadLen)]
		digest := hash.Bytes(payload)
		if _, dup := sr.contentSeen[digest]; dup {
			pool.PutFrameBuffer(bb)
			return nil, fmt.Errorf("transport: payload digest %x already seen: %w",
				digest, errs.ErrDuplicateContent)
		}
		sr.contentSeen[digest] = struct{}{}
	}

	return &Message{Decoder: d, buf: bb}, nil
}

// CompressFrame rewraps a finished, uncompressed frame (the output of
// Encoder.Finish) by compressing its payload with c and setting
// FlagCompressed. The CRC trailer, if the original frame carried one, is
// recomputed over the new header-plus-compressed-payload bytes -- it
// cannot simply be copied, since it covered different bytes.
func CompressFrame(frame []byte, c compress.Compressor) ([]byte, error) {
	h, err := wire.ParseHeader(frame)
	if err != nil {
		return nil, err
	}

	payloadEnd := wire.HeaderSize + int(h.PayloadLen)
	if payloadEnd > len(frame) {
		return nil, errs.ErrTruncated
	}

	compressed, err := c.Compress(frame[wire.HeaderSize:payloadEnd])
	if err != nil {
		return nil, fmt.Errorf("transport: compress payload: %w", err)
	}

	h.Flags |= wire.FlagCompressed
	h.PayloadLen = uint32(len(compressed))

	out := make([]byte, wire.HeaderSize+len(compressed))
	h.PutBytes(out)
	copy(out[wire.HeaderSize:], compressed)

	if h.HasCRC() {
		crc := wire.CRC32(out)
		trailer := make([]byte, wire.CRCSize)
		endian.GetBigEndianEngine().PutUint32(trailer, crc)
		out = append(out, trailer...)
	}

	return out, nil
}

// StreamWriter writes finished DCF messages to an io.Writer and hands out
// monotonically increasing sequence numbers for callers that don't manage
// their own. It is not safe for concurrent use by multiple goroutines.
type StreamWriter struct {
	w   io.Writer
	seq uint32
}

// NewStreamWriter creates a StreamWriter over w.
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: w}
}

// NextSequence returns the next sequence number in this writer's
// monotonic series, starting at 1 (0 is reserved as "unset" the same way
// a zero-value Header.Sequence reads as unset).
func (sw *StreamWriter) NextSequence() uint32 {
	sw.seq++
	return sw.seq
}

// WriteMessage writes a complete, already-finished frame (the output of
// Encoder.Finish) to the stream.
func (sw *StreamWriter) WriteMessage(frame []byte) error {
	_, err := sw.w.Write(frame)
	if err != nil {
		return fmt.Errorf("transport: write message: %w", err)
	}

	return nil
}

// WriteEncoder finishes e and writes the resulting frame to the stream in
// one step.
func (sw *StreamWriter) WriteEncoder(e *encoder.Encoder) error {
	frame, err := e.Finish()
	if err != nil {
		return err
	}

	return sw.WriteMessage(frame)
}

// WriteCompressed finishes e, compresses its payload with c via
// CompressFrame, and writes the resulting FlagCompressed frame to the
// stream. The peer must be reading with a matching WithDecompressor.
func (sw *StreamWriter) WriteCompressed(e *encoder.Encoder, c compress.Compressor) error {
	frame, err := e.Finish()
	if err != nil {
		return err
	}

	compressed, err := CompressFrame(frame, c)
	if err != nil {
		return err
	}

	return sw.WriteMessage(compressed)
}
