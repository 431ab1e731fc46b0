package encoder

import (
	"testing"
	"time"

	"github.com/alh477/dcfs/errs"
	"github.com/alh477/dcfs/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ReservesHeader(t *testing.T) {
	e := New(1, 0)
	assert.Equal(t, 0, e.PayloadSize())
}

func TestFinish_EmptyPayload(t *testing.T) {
	e := New(5, 0)
	out, err := e.Finish()
	require.NoError(t, err)
	require.Len(t, out, wire.HeaderSize+wire.CRCSize)

	h, err := wire.ValidateMessage(out)
	require.NoError(t, err)
	assert.Equal(t, uint16(5), h.MsgType)
	assert.Equal(t, uint32(0), h.PayloadLen)
}

func TestFinish_NoCRCFlag(t *testing.T) {
	e := New(1, wire.FlagNoCRC)
	out, err := e.Finish()
	require.NoError(t, err)
	require.Len(t, out, wire.HeaderSize)

	_, err = wire.ValidateMessage(out)
	require.NoError(t, err)
}

func TestFinish_Twice(t *testing.T) {
	e := New(1, 0)
	_, err := e.Finish()
	require.NoError(t, err)

	_, err = e.Finish()
	assert.ErrorIs(t, err, errs.ErrEncoderFinished)
}

func TestWriteAfterFinish(t *testing.T) {
	e := New(1, 0)
	_, err := e.Finish()
	require.NoError(t, err)

	err = e.WriteBool(true)
	assert.ErrorIs(t, err, errs.ErrEncoderFinished)
}

func TestPrimitiveRoundTripBytes(t *testing.T) {
	e := New(1, 0)
	require.NoError(t, e.WriteBool(true))
	require.NoError(t, e.WriteU8(0xAB))
	require.NoError(t, e.WriteI32(-7))
	require.NoError(t, e.WriteF64(3.25))

	out, err := e.Finish()
	require.NoError(t, err)

	h, err := wire.ValidateMessage(out)
	require.NoError(t, err)
	assert.Equal(t, uint32(1+2+1+5+9), h.PayloadLen)
}

func TestWriteString_Empty(t *testing.T) {
	e := New(1, 0)
	require.NoError(t, e.WriteString(""))

	out, err := e.Finish()
	require.NoError(t, err)

	h, err := wire.ValidateMessage(out)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), h.PayloadLen) // tag + u32 len(0)
}

func TestWriteString_TooLarge(t *testing.T) {
	e := New(1, 0)
	big := make([]byte, wire.MaxString+1)
	err := e.WriteString(string(big))
	assert.ErrorIs(t, err, errs.ErrStringTooLarge)
}

func TestContainers_Balanced(t *testing.T) {
	e := New(1, 0)
	require.NoError(t, e.StructBegin(42))
	require.NoError(t, e.WriteField(1, wire.TagString, "Alice"))
	require.NoError(t, e.WriteField(2, wire.TagU32, uint32(30)))
	require.NoError(t, e.WriteField(3, wire.TagBool, true))
	require.NoError(t, e.StructEnd())

	out, err := e.Finish()
	require.NoError(t, err)

	_, err = wire.ValidateMessage(out)
	require.NoError(t, err)
}

func TestContainers_UnclosedFailsFinish(t *testing.T) {
	e := New(1, 0)
	require.NoError(t, e.ArrayBegin(wire.TagU32, 3))

	_, err := e.Finish()
	assert.ErrorIs(t, err, errs.ErrMalformed)
}

func TestContainers_EndWithoutBegin(t *testing.T) {
	e := New(1, 0)
	err := e.ArrayEnd()
	assert.ErrorIs(t, err, errs.ErrUnbalancedEnd)
}

func TestContainers_DepthExceeded(t *testing.T) {
	e := New(1, 0)
	for i := 0; i < wire.MaxDepth; i++ {
		require.NoError(t, e.ArrayBegin(wire.TagArray, 1))
	}

	err := e.ArrayBegin(wire.TagArray, 1)
	assert.ErrorIs(t, err, errs.ErrDepthExceeded)
}

func TestArrayBegin_CountExceedsMax(t *testing.T) {
	e := New(1, 0)
	err := e.ArrayBegin(wire.TagU32, wire.MaxArrayCount+1)
	assert.ErrorIs(t, err, errs.ErrArrayTooLarge)
}

func TestMapBegin_CountExceedsMax(t *testing.T) {
	e := New(1, 0)
	err := e.MapBegin(wire.TagString, wire.TagU32, wire.MaxArrayCount+1)
	assert.ErrorIs(t, err, errs.ErrArrayTooLarge)
}

func TestArrayBegin_CountAtMaxSucceeds(t *testing.T) {
	e := New(1, 0)
	err := e.ArrayBegin(wire.TagU32, wire.MaxArrayCount)
	assert.NoError(t, err)
}

func TestBorrowedEncoder_ExactFill(t *testing.T) {
	buf := make([]byte, wire.HeaderSize+1+1+wire.CRCSize) // header + BOOL tag + value + crc
	e := NewIn(buf, 1, 0)

	require.NoError(t, e.WriteBool(true))

	out, err := e.Finish()
	require.NoError(t, err)
	assert.Len(t, out, len(buf))
}

func TestBorrowedEncoder_BufferFull(t *testing.T) {
	buf := make([]byte, wire.HeaderSize) // no room for anything past the header
	e := NewIn(buf, 1, 0)

	err := e.WriteBool(true)
	assert.ErrorIs(t, err, errs.ErrBufferFull)
}

func TestOwningEncoder_MessageTooLarge(t *testing.T) {
	e := New(1, 0)
	huge := make([]byte, wire.MaxMessage+1)

	err := e.WriteBytes(huge)
	assert.ErrorIs(t, err, errs.ErrTooLarge)
}

func TestVarintRoundTripsThroughWire(t *testing.T) {
	e := New(1, 0)
	require.NoError(t, e.WriteVarint(300))
	require.NoError(t, e.WriteVarsint(-300))

	out, err := e.Finish()
	require.NoError(t, err)

	h, err := wire.ValidateMessage(out)
	require.NoError(t, err)

	payload := out[wire.HeaderSize : wire.HeaderSize+int(h.PayloadLen)]
	assert.Equal(t, byte(wire.TagVarint), payload[0])
}

func TestWriteTimestampAndDuration(t *testing.T) {
	e := New(1, 0)
	require.NoError(t, e.WriteTimestamp(time.Unix(1700000000, 0)))
	require.NoError(t, e.WriteDuration(5 * time.Second))

	out, err := e.Finish()
	require.NoError(t, err)
	_, err = wire.ValidateMessage(out)
	require.NoError(t, err)
}

func TestReset_ReusesBuffer(t *testing.T) {
	e := New(1, 0)
	require.NoError(t, e.WriteU8(1))
	_, err := e.Finish()
	require.NoError(t, err)

	e.Reset(2, wire.FlagNoCRC)
	require.NoError(t, e.WriteU8(2))

	out, err := e.Finish()
	require.NoError(t, err)

	h, err := wire.ValidateMessage(out)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), h.MsgType)
}

func TestWriteReserve_DirectPopulation(t *testing.T) {
	e := New(1, 0)
	b, err := e.WriteReserve(3)
	require.NoError(t, err)
	copy(b, []byte{1, 2, 3})

	out, err := e.Finish()
	require.NoError(t, err)

	h, err := wire.ValidateMessage(out)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), h.PayloadLen)
}

func TestSetSequence(t *testing.T) {
	e := New(1, 0)
	e.SetSequence(77)

	out, err := e.Finish()
	require.NoError(t, err)

	h, err := wire.ValidateMessage(out)
	require.NoError(t, err)
	assert.Equal(t, uint32(77), h.Sequence)
}
