package sequencer

import (
	"context"
	"sync"

	"github.com/opendlt/actionlog/internal/logz"
	"github.com/opendlt/actionlog/internal/metrics"
	"github.com/opendlt/actionlog/types/ledger"
)

// SequenceSource fetches an account's next sequence number from the network
type SequenceSource interface {
	SequenceNumber(ctx context.Context, addr ledger.Address) (uint64, error)
}

// SequenceTracker holds the next sequence number for one account. Every
// unpinned read goes to the network. The tracker also remembers the sequence
// after its own last confirmed transaction so a lagging node cannot push it
// backwards.
type SequenceTracker struct {
	mu     sync.Mutex
	addr   ledger.Address
	source SequenceSource
	logger *logz.Logger

	next   uint64
	known  bool
	floor  uint64
	pinned bool
}

// NewSequenceTracker creates a tracker for addr
func NewSequenceTracker(addr ledger.Address, source SequenceSource) *SequenceTracker {
	return &SequenceTracker{
		addr:   addr,
		source: source,
		logger: logz.New(logz.INFO, "sequence"),
	}
}

// Refresh fetches the sequence number from the network
func (t *SequenceTracker) Refresh(ctx context.Context) (uint64, error) {
	fetched, err := t.source.SequenceNumber(ctx, t.addr)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if fetched < t.floor {
		t.logger.Warn("Stale sequence read for %s: node reports %d, last confirmed implies %d", t.addr, fetched, t.floor)
		metrics.IncrementStaleSequenceReads()
		fetched = t.floor
	}
	t.next = fetched
	t.known = true
	return fetched, nil
}

// Next returns the sequence number for the next envelope. Unless pinned it
// always refreshes from the network.
func (t *SequenceTracker) Next(ctx context.Context) (uint64, error) {
	t.mu.Lock()
	if t.pinned && t.known {
		next := t.next
		t.mu.Unlock()
		return next, nil
	}
	t.mu.Unlock()

	return t.Refresh(ctx)
}

// Current returns the last known next sequence number
func (t *SequenceTracker) Current() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next, t.known
}

// Advance records that used was consumed by a committed transaction
func (t *SequenceTracker) Advance(used uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if used+1 > t.floor {
		t.floor = used + 1
	}
	if !t.known || t.next < t.floor {
		t.next = t.floor
	}
	t.known = true
}

// Invalidate forgets the local value so the next read goes to the network
func (t *SequenceTracker) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.known = false
}

// Pin makes Next reuse the local value between calls, for batches
func (t *SequenceTracker) Pin() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pinned = true
}

// Unpin restores a network read on every Next
func (t *SequenceTracker) Unpin() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pinned = false
}
