package sequencer

import (
	"errors"
	"sync"
)

// ErrReceiptNotFound is returned when a journal has no receipt for a key
var ErrReceiptNotFound = errors.New("receipt not found")

// Journal records terminal receipts. Get accepts either a transaction hash
// or an action ID.
type Journal interface {
	Record(rc *Receipt) error
	Get(key string) (*Receipt, error)
	Recent(n int) ([]*Receipt, error)
	Close() error
}

// MemoryJournal keeps the most recent receipts in a ring buffer
type MemoryJournal struct {
	mu       sync.RWMutex
	capacity int
	ring     []*Receipt
	head     int
	size     int
	byKey    map[string]*Receipt
}

var _ Journal = (*MemoryJournal)(nil)

// NewMemoryJournal creates a journal that holds up to capacity receipts
func NewMemoryJournal(capacity int) *MemoryJournal {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryJournal{
		capacity: capacity,
		ring:     make([]*Receipt, capacity),
		byKey:    make(map[string]*Receipt),
	}
}

// Record stores a copy of rc, evicting the oldest receipt when full
func (j *MemoryJournal) Record(rc *Receipt) error {
	if rc == nil {
		return errors.New("receipt cannot be nil")
	}
	cp := *rc

	j.mu.Lock()
	defer j.mu.Unlock()

	if old := j.ring[j.head]; old != nil {
		j.forget(old)
	}
	j.ring[j.head] = &cp
	j.head = (j.head + 1) % j.capacity
	if j.size < j.capacity {
		j.size++
	}

	j.byKey[cp.ActionID] = &cp
	if cp.Hash != "" {
		j.byKey[cp.Hash] = &cp
	}
	return nil
}

func (j *MemoryJournal) forget(rc *Receipt) {
	if j.byKey[rc.ActionID] == rc {
		delete(j.byKey, rc.ActionID)
	}
	if rc.Hash != "" && j.byKey[rc.Hash] == rc {
		delete(j.byKey, rc.Hash)
	}
}

// Get returns the receipt for a hash or action ID
func (j *MemoryJournal) Get(key string) (*Receipt, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rc, ok := j.byKey[key]
	if !ok {
		return nil, ErrReceiptNotFound
	}
	cp := *rc
	return &cp, nil
}

// Recent returns up to n receipts, newest first
func (j *MemoryJournal) Recent(n int) ([]*Receipt, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if n <= 0 || n > j.size {
		n = j.size
	}
	out := make([]*Receipt, 0, n)
	for i := 1; i <= n; i++ {
		idx := (j.head - i + j.capacity) % j.capacity
		cp := *j.ring[idx]
		out = append(out, &cp)
	}
	return out, nil
}

// Close is a no-op
func (j *MemoryJournal) Close() error {
	return nil
}
