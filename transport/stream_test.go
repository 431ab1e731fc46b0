package transport

import (
	"bytes"
	"io"
	"testing"

	"github.com/alh477/dcfs/compress"
	"github.com/alh477/dcfs/encoder"
	"github.com/alh477/dcfs/errs"
	"github.com/alh477/dcfs/format"
	"github.com/alh477/dcfs/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildMessage(t *testing.T, msgType uint16, seq uint32, payload string) []byte {
	t.Helper()

	e := encoder.New(msgType, 0)
	e.SetSequence(seq)
	require.NoError(t, e.WriteString(payload))

	out, err := e.Finish()
	require.NoError(t, err)

	return out
}

func TestStreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewStreamWriter(&buf)
	require.NoError(t, w.WriteMessage(buildMessage(t, 1, 1, "first")))
	require.NoError(t, w.WriteMessage(buildMessage(t, 2, 2, "second")))

	r, err := NewStreamReader(&buf)
	require.NoError(t, err)

	m1, err := r.ReadMessage()
	require.NoError(t, err)
	s1, err := m1.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "first", s1)
	m1.Release()

	m2, err := r.ReadMessage()
	require.NoError(t, err)
	s2, err := m2.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "second", s2)
	m2.Release()

	_, err = r.ReadMessage()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamReader_SequenceTrackingDetectsReplay(t *testing.T) {
	var buf bytes.Buffer
	w := NewStreamWriter(&buf)
	require.NoError(t, w.WriteMessage(buildMessage(t, 1, 7, "a")))
	require.NoError(t, w.WriteMessage(buildMessage(t, 1, 7, "b"))) // same sequence

	r, err := NewStreamReader(&buf, WithSequenceTracking())
	require.NoError(t, err)

	_, err = r.ReadMessage()
	require.NoError(t, err)

	_, err = r.ReadMessage()
	assert.ErrorIs(t, err, errs.ErrSequenceReplayed)
}

func TestStreamReader_RejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	w := NewStreamWriter(&buf)
	require.NoError(t, w.WriteMessage(buildMessage(t, 1, 1, "hello")))

	r, err := NewStreamReader(&buf, WithMaxMessage(wire.HeaderSize))
	require.NoError(t, err)

	_, err = r.ReadMessage()
	assert.ErrorIs(t, err, errs.ErrMessageTooLarge)
}

func TestStreamWriter_NextSequence(t *testing.T) {
	w := NewStreamWriter(&bytes.Buffer{})
	assert.Equal(t, uint32(1), w.NextSequence())
	assert.Equal(t, uint32(2), w.NextSequence())
}

func TestStreamReader_ContentDedupDetectsReplayUnderNewSequence(t *testing.T) {
	var buf bytes.Buffer
	w := NewStreamWriter(&buf)
	require.NoError(t, w.WriteMessage(buildMessage(t, 1, 1, "repeat me")))
	require.NoError(t, w.WriteMessage(buildMessage(t, 1, 2, "repeat me"))) // different sequence, same content

	r, err := NewStreamReader(&buf, WithContentDedup())
	require.NoError(t, err)

	_, err = r.ReadMessage()
	require.NoError(t, err)

	_, err = r.ReadMessage()
	assert.ErrorIs(t, err, errs.ErrDuplicateContent)
}

func TestStreamWriter_WriteCompressed_RoundTrip(t *testing.T) {
	codec, err := compress.GetCodec(format.CompressionS2)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := NewStreamWriter(&buf)

	e := encoder.New(5, 0)
	require.NoError(t, e.WriteString("a payload worth compressing, repeated, repeated, repeated"))
	require.NoError(t, w.WriteCompressed(e, codec))

	r, err := NewStreamReader(&buf, WithDecompressor(codec))
	require.NoError(t, err)

	m, err := r.ReadMessage()
	require.NoError(t, err)
	defer m.Release()

	assert.Equal(t, uint16(5), m.MsgType())
	got, err := m.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "a payload worth compressing, repeated, repeated, repeated", got)
}

func TestStreamReader_CompressedFrameWithoutDecompressorFails(t *testing.T) {
	codec, err := compress.GetCodec(format.CompressionS2)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := NewStreamWriter(&buf)

	e := encoder.New(5, 0)
	require.NoError(t, e.WriteU32(42))
	require.NoError(t, w.WriteCompressed(e, codec))

	r, err := NewStreamReader(&buf)
	require.NoError(t, err)

	_, err = r.ReadMessage()
	assert.ErrorIs(t, err, errs.ErrUnknownCompressor)
}

func TestStreamWriter_WriteEncoder(t *testing.T) {
	var buf bytes.Buffer
	w := NewStreamWriter(&buf)

	e := encoder.New(3, 0)
	require.NoError(t, e.WriteU8(9))
	require.NoError(t, w.WriteEncoder(e))

	r, err := NewStreamReader(&buf)
	require.NoError(t, err)

	m, err := r.ReadMessage()
	require.NoError(t, err)
	defer m.Release()

	v, err := m.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(9), v)
}
