package sequencer

import (
	"context"
	"sync/atomic"

	"github.com/opendlt/actionlog/types/ledger"
)

const (
	pendingQueued int32 = iota
	pendingStarted
	pendingCanceled
)

// pendingAction is one queue turn: a single action or a pinned batch
type pendingAction struct {
	ctx   context.Context
	reqs  []*ledger.ActionRequest
	batch bool
	state atomic.Int32
	done  chan outcome
}

type outcome struct {
	receipts []*Receipt
	err      error
}

func newPendingAction(ctx context.Context, batch bool, reqs ...*ledger.ActionRequest) *pendingAction {
	return &pendingAction{
		ctx:   ctx,
		reqs:  reqs,
		batch: batch,
		done:  make(chan outcome, 1),
	}
}

// start claims the action for execution; false if it was canceled while queued
func (p *pendingAction) start() bool {
	return p.state.CompareAndSwap(pendingQueued, pendingStarted)
}

// cancel withdraws a still-queued action; false once execution has begun
func (p *pendingAction) cancel() bool {
	return p.state.CompareAndSwap(pendingQueued, pendingCanceled)
}

func (p *pendingAction) resolve(receipts []*Receipt, err error) {
	p.done <- outcome{receipts: receipts, err: err}
}
