package sequencer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opendlt/actionlog/bridge/ledgerapi"
	"github.com/opendlt/actionlog/internal/crypto/signer"
	"github.com/opendlt/actionlog/types/ledger"
)

// fakeNetwork is an in-memory ledger node for one account. It accepts a
// transaction only at the account's current sequence number and confirms it
// on the first status query.
type fakeNetwork struct {
	mu sync.Mutex

	seq       uint64
	pending   map[string]*ledger.SignedTransaction
	finished  map[string]*ledger.TxStatus
	submitted []*ledger.SignedTransaction // accepted, in order
	version   uint64

	reads       int
	submitCalls int
	inFlight    int
	maxInFlight int

	// knobs
	resolve     bool
	reject      bool
	gasEstimate uint64
	readHook    func(n int) (seq uint64, handled bool, err error)
	submitHook  func(n int, st *ledger.SignedTransaction) error
	gate        chan struct{} // when set, Submit waits on it
	entered     chan struct{} // signaled when Submit starts
}

func newFakeNetwork(seq uint64) *fakeNetwork {
	return &fakeNetwork{
		seq:      seq,
		pending:  make(map[string]*ledger.SignedTransaction),
		finished: make(map[string]*ledger.TxStatus),
		resolve:  true,
		entered:  make(chan struct{}, 64),
	}
}

func (f *fakeNetwork) SequenceNumber(ctx context.Context, addr ledger.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	if f.readHook != nil {
		if seq, handled, err := f.readHook(f.reads); handled {
			return seq, err
		}
	}
	return f.seq, nil
}

func (f *fakeNetwork) Submit(ctx context.Context, st *ledger.SignedTransaction) (string, error) {
	select {
	case f.entered <- struct{}{}:
	default:
	}

	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.submitCalls++
	if f.submitHook != nil {
		if err := f.submitHook(f.submitCalls, st); err != nil {
			return "", err
		}
	}

	if st.Raw.SequenceNumber != f.seq || f.inFlight > 0 {
		return "", fmt.Errorf("%w: got %d, account at %d", ledgerapi.ErrSequenceMismatch, st.Raw.SequenceNumber, f.seq)
	}
	return f.accept(st)
}

// accept must be called with f.mu held
func (f *fakeNetwork) accept(st *ledger.SignedTransaction) (string, error) {
	hash, err := st.Hash()
	if err != nil {
		return "", err
	}
	f.pending[hash] = st
	f.submitted = append(f.submitted, st)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	return hash, nil
}

func (f *fakeNetwork) TransactionStatus(ctx context.Context, hash string) (*ledger.TxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if st, ok := f.finished[hash]; ok {
		cp := *st
		return &cp, nil
	}
	if _, ok := f.pending[hash]; !ok {
		return &ledger.TxStatus{Hash: hash, Status: ledger.StatusPending}, nil
	}
	if !f.resolve {
		return &ledger.TxStatus{Hash: hash, Found: true, Status: ledger.StatusPending}, nil
	}

	delete(f.pending, hash)
	f.inFlight--
	f.seq++
	f.version++

	st := &ledger.TxStatus{Hash: hash, Found: true, Status: ledger.StatusConfirmed, VMStatus: "Executed successfully", Version: f.version, GasUsed: 7}
	if f.reject {
		st.Status = ledger.StatusRejected
		st.VMStatus = "Move abort: EINVALID_ACTION"
	}
	f.finished[hash] = st
	cp := *st
	return &cp, nil
}

func (f *fakeNetwork) EstimateGasPrice(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gasEstimate, nil
}

func (f *fakeNetwork) sequences() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, 0, len(f.submitted))
	for _, st := range f.submitted {
		out = append(out, st.Raw.SequenceNumber)
	}
	return out
}

func (f *fakeNetwork) actions(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.submitted))
	for _, st := range f.submitted {
		entry, err := ledger.DecodeEntryFunction(st.Raw.Payload)
		require.NoError(t, err)
		require.Len(t, entry.Args, 1)
		action, err := ledger.DecodeStringArgument(entry.Args[0])
		require.NoError(t, err)
		out = append(out, action)
	}
	return out
}

func (f *fakeNetwork) counts() (reads, submits int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads, f.submitCalls
}

func (f *fakeNetwork) setGate(gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = gate
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.MaxRetryDelay = 5 * time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.ConfirmTimeout = 2 * time.Second
	return cfg
}

func startOrchestrator(t testing.TB, cfg *Config, net Network, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(cfg, NewAccount(devSigner()), net, opts...)
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(func() { _ = o.Stop() })
	return o
}

func devSigner() *signer.KeySigner {
	return signer.NewDevKeySigner()
}
