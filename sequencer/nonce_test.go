package sequencer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendlt/actionlog/types/ledger"
)

type staticSource struct {
	seq   uint64
	err   error
	calls int
}

func (s *staticSource) SequenceNumber(context.Context, ledger.Address) (uint64, error) {
	s.calls++
	return s.seq, s.err
}

func TestTrackerAlwaysRefreshesWhenUnpinned(t *testing.T) {
	src := &staticSource{seq: 7}
	tr := NewSequenceTracker(ledger.MustParseAddress("0x1"), src)

	_, known := tr.Current()
	assert.False(t, known)

	for i := 0; i < 3; i++ {
		seq, err := tr.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(7), seq)
	}
	assert.Equal(t, 3, src.calls)
}

func TestTrackerClampsStaleReads(t *testing.T) {
	src := &staticSource{seq: 7}
	tr := NewSequenceTracker(ledger.MustParseAddress("0x1"), src)

	seq, err := tr.Next(context.Background())
	require.NoError(t, err)
	tr.Advance(seq)

	// node has not caught up with the confirmation yet
	seq, err = tr.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(8), seq)

	src.seq = 12
	seq, err = tr.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(12), seq, "reads ahead of the floor are trusted")
}

func TestTrackerPinnedUsesLocalValue(t *testing.T) {
	src := &staticSource{seq: 3}
	tr := NewSequenceTracker(ledger.MustParseAddress("0x1"), src)
	tr.Pin()

	seq, err := tr.Next(context.Background())
	require.NoError(t, err)
	tr.Advance(seq)

	seq, err = tr.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), seq)
	assert.Equal(t, 1, src.calls)

	tr.Invalidate()
	src.seq = 9
	seq, err = tr.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(9), seq)
	assert.Equal(t, 2, src.calls)

	tr.Unpin()
	_, err = tr.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls)
}

func TestTrackerPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	tr := NewSequenceTracker(ledger.MustParseAddress("0x1"), &staticSource{err: boom})

	_, err := tr.Next(context.Background())
	assert.ErrorIs(t, err, boom)
	_, known := tr.Current()
	assert.False(t, known)
}
