package sequencer

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendlt/actionlog/types/ledger"
)

func sampleReceipt(i int) *Receipt {
	return &Receipt{
		ActionID:       fmt.Sprintf("action-%d", i),
		Action:         fmt.Sprintf("Trade %d", i),
		Hash:           fmt.Sprintf("0x%064x", i+1),
		Status:         ledger.StatusConfirmed,
		State:          StateConfirmed,
		SequenceNumber: uint64(i),
		Attempts:       1,
		Version:        uint64(1000 + i),
		FinishedAt:     time.Unix(1_700_000_000+int64(i), 0).UTC(),
	}
}

func TestMemoryJournalEvictsOldest(t *testing.T) {
	j := NewMemoryJournal(2)
	for i := 0; i < 3; i++ {
		require.NoError(t, j.Record(sampleReceipt(i)))
	}

	_, err := j.Get("action-0")
	assert.ErrorIs(t, err, ErrReceiptNotFound)
	_, err = j.Get(sampleReceipt(0).Hash)
	assert.ErrorIs(t, err, ErrReceiptNotFound)

	rc, err := j.Get(sampleReceipt(2).Hash)
	require.NoError(t, err)
	assert.Equal(t, "action-2", rc.ActionID)

	recent, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "action-2", recent[0].ActionID)
	assert.Equal(t, "action-1", recent[1].ActionID)

	assert.Error(t, j.Record(nil))
}

func TestMemoryJournalReturnsCopies(t *testing.T) {
	j := NewMemoryJournal(4)
	rc := sampleReceipt(1)
	require.NoError(t, j.Record(rc))
	rc.Action = "mutated"

	got, err := j.Get("action-1")
	require.NoError(t, err)
	assert.Equal(t, "Trade 1", got.Action)
}

func TestBadgerJournal(t *testing.T) {
	j, err := NewBadgerJournal("")
	require.NoError(t, err)
	defer j.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, j.Record(sampleReceipt(i)))
	}

	rc, err := j.Get(sampleReceipt(1).Hash)
	require.NoError(t, err)
	assert.Equal(t, "action-1", rc.ActionID)
	assert.Equal(t, StateConfirmed, rc.State)
	assert.Equal(t, ledger.StatusConfirmed, rc.Status)
	assert.Equal(t, uint64(1001), rc.Version)

	rc, err = j.Get("action-2")
	require.NoError(t, err)
	assert.Equal(t, "Trade 2", rc.Action)

	_, err = j.Get("missing")
	assert.ErrorIs(t, err, ErrReceiptNotFound)

	recent, err := j.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "action-2", recent[0].ActionID)
	assert.Equal(t, "action-1", recent[1].ActionID)

	// re-recording replaces the earlier receipt and its time index
	updated := sampleReceipt(0)
	updated.FinishedAt = updated.FinishedAt.Add(time.Hour)
	updated.State = StateRejected
	require.NoError(t, j.Record(updated))

	count, err := j.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	all, err := j.Recent(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "action-0", all[0].ActionID)
	assert.Equal(t, StateRejected, all[0].State)
}

func TestBadgerJournalSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "receipts")

	j, err := NewBadgerJournal(dir)
	require.NoError(t, err)
	require.NoError(t, j.Record(sampleReceipt(5)))
	require.NoError(t, j.Close())

	j, err = NewBadgerJournal(dir)
	require.NoError(t, err)
	defer j.Close()

	rc, err := j.Get("action-5")
	require.NoError(t, err)
	assert.Equal(t, sampleReceipt(5).Hash, rc.Hash)
	assert.True(t, sampleReceipt(5).FinishedAt.Equal(rc.FinishedAt))
}

func TestOrchestratorWritesToBadgerJournal(t *testing.T) {
	j, err := NewBadgerJournal("")
	require.NoError(t, err)
	defer j.Close()

	o := startOrchestrator(t, testConfig(), newFakeNetwork(0), WithJournal(j))
	rc, err := o.LogAction(t.Context(), tradeAction)
	require.NoError(t, err)

	stored, err := j.Get(rc.Hash)
	require.NoError(t, err)
	assert.Equal(t, rc.ActionID, stored.ActionID)
	assert.Equal(t, StateConfirmed, stored.State)
}
