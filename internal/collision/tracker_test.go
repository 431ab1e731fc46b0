package collision

import (
	"testing"

	"github.com/alh477/dcfs/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_TrackNewSequence(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Track(1))
	require.NoError(t, tr.Track(2))
	assert.Equal(t, 2, tr.Count())
	assert.False(t, tr.HasReplay())
}

func TestTracker_TrackReplay(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Track(5))

	err := tr.Track(5)
	assert.ErrorIs(t, err, errs.ErrSequenceReplayed)
	assert.True(t, tr.HasReplay())
}

func TestTracker_SeenPreservesOrder(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Track(3))
	require.NoError(t, tr.Track(1))
	require.NoError(t, tr.Track(2))

	assert.Equal(t, []uint32{3, 1, 2}, tr.Seen())
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Track(1))
	_ = tr.Track(1)
	require.True(t, tr.HasReplay())

	tr.Reset()
	assert.Equal(t, 0, tr.Count())
	assert.False(t, tr.HasReplay())

	require.NoError(t, tr.Track(1))
}
