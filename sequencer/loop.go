package sequencer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/opendlt/actionlog/bridge/ledgerapi"
	"github.com/opendlt/actionlog/internal/crypto/signer"
	"github.com/opendlt/actionlog/internal/logz"
	"github.com/opendlt/actionlog/internal/metrics"
	"github.com/opendlt/actionlog/types/ledger"
)

const tracerName = "github.com/opendlt/actionlog/sequencer"

// Network is the ledger node surface the orchestrator needs
type Network interface {
	SequenceSource
	ledgerapi.StatusQuerier
	Submit(ctx context.Context, st *ledger.SignedTransaction) (string, error)
}

// GasEstimator is implemented by networks that can suggest a gas unit price
type GasEstimator interface {
	EstimateGasPrice(ctx context.Context) (uint64, error)
}

// Account is the single controlling account whose actions are logged
type Account struct {
	Address ledger.Address
	Signer  signer.Signer
}

// NewAccount binds a signer to the address it controls
func NewAccount(s signer.Signer) Account {
	return Account{Address: s.Address(), Signer: s}
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithJournal records every terminal receipt
func WithJournal(j Journal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithLogger replaces the default logger
func WithLogger(l *logz.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock replaces time.Now for envelope expiration
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithTransitionHook observes every state transition
func WithTransitionHook(hook func(actionID string, state State)) Option {
	return func(o *Orchestrator) { o.hook = hook }
}

// WithTracer replaces the global otel tracer
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// Orchestrator logs actions for one account, one transaction in flight at a
// time, in the order LogAction was called
type Orchestrator struct {
	mu      sync.RWMutex
	config  *Config
	account Account
	network Network
	tracker *SequenceTracker
	journal Journal
	logger  *logz.Logger
	tracer  trace.Tracer
	now     func() time.Time
	hook    func(string, State)

	running   bool
	queue     chan *pendingAction
	stopChan  chan struct{}
	doneChan  chan struct{}
	startTime time.Time

	logged    atomic.Uint64
	failed    atomic.Uint64
	canceled  atomic.Uint64
	lastHash  atomic.Value // string
	lastError atomic.Value // string
}

// Stats is a snapshot of orchestrator activity
type Stats struct {
	Running       bool          `json:"running"`
	Account       string        `json:"account"`
	QueueDepth    int           `json:"queueDepth"`
	Logged        uint64        `json:"logged"`
	Failed        uint64        `json:"failed"`
	Canceled      uint64        `json:"canceled"`
	NextSequence  uint64        `json:"nextSequence"`
	SequenceKnown bool          `json:"sequenceKnown"`
	LastHash      string        `json:"lastHash,omitempty"`
	LastError     string        `json:"lastError,omitempty"`
	Uptime        time.Duration `json:"uptime"`
}

// New creates an orchestrator for acct on net
func New(config *Config, acct Account, net Network, opts ...Option) (*Orchestrator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestrator config: %w", err)
	}
	if acct.Signer == nil {
		return nil, fmt.Errorf("%w: account has no signer", signer.ErrSigning)
	}
	if acct.Address.IsZero() {
		acct.Address = acct.Signer.Address()
	}
	if net == nil {
		return nil, fmt.Errorf("network cannot be nil")
	}

	o := &Orchestrator{
		config:  config,
		account: acct,
		network: net,
		tracker: NewSequenceTracker(acct.Address, net),
		journal: NewMemoryJournal(256),
		logger:  logz.New(logz.INFO, "orchestrator"),
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.lastHash.Store("")
	o.lastError.Store("")

	return o, nil
}

// Start launches the worker that drains the action queue
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return fmt.Errorf("orchestrator is already running")
	}

	o.running = true
	o.startTime = time.Now()
	o.queue = make(chan *pendingAction, o.config.QueueSize)
	o.stopChan = make(chan struct{})
	o.doneChan = make(chan struct{})

	go o.mainLoop(ctx, o.queue, o.stopChan, o.doneChan)

	o.logger.Info("Orchestrator started for account %s (module %s::%s)", o.account.Address, o.config.Module, o.config.Function)
	return nil
}

// Stop halts the worker after the in-flight action finishes. Actions still
// queued are resolved with ErrOrchestratorStopped.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	close(o.stopChan)
	done := o.doneChan
	o.mu.Unlock()

	<-done
	o.logger.Info("Orchestrator stopped")
	return nil
}

// IsRunning returns whether the orchestrator is running
func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// Tracker exposes the account's sequence tracker
func (o *Orchestrator) Tracker() *SequenceTracker {
	return o.tracker
}

// Journal returns the receipt journal
func (o *Orchestrator) Journal() Journal {
	return o.journal
}

// Account returns the controlling account
func (o *Orchestrator) Account() Account {
	return o.account
}

// Config returns the orchestrator configuration
func (o *Orchestrator) Config() *Config {
	return o.config
}

// Stats returns a snapshot of orchestrator activity
func (o *Orchestrator) Stats() *Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	next, known := o.tracker.Current()
	stats := &Stats{
		Running:       o.running,
		Account:       o.account.Address.String(),
		Logged:        o.logged.Load(),
		Failed:        o.failed.Load(),
		Canceled:      o.canceled.Load(),
		NextSequence:  next,
		SequenceKnown: known,
		LastHash:      o.lastHash.Load().(string),
		LastError:     o.lastError.Load().(string),
	}
	if o.running {
		stats.QueueDepth = len(o.queue)
		stats.Uptime = time.Since(o.startTime)
	}
	return stats
}

// LogAction records a human-readable action string on-chain and returns the
// receipt once the transaction reaches a terminal state. On failure the
// error is a *LogError; if the transaction was submitted the receipt still
// carries its hash.
func (o *Orchestrator) LogAction(ctx context.Context, action string) (*Receipt, error) {
	return o.Log(ctx, ledger.NewActionRequest(o.config.Module, o.config.Function, action))
}

// Log records an arbitrary entry-function request
func (o *Orchestrator) Log(ctx context.Context, req *ledger.ActionRequest) (*Receipt, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil action request", ledger.ErrInvalidParameters)
	}

	receipts, err := o.enqueue(ctx, newPendingAction(ctx, false, req))
	if len(receipts) == 0 {
		return nil, err
	}
	return receipts[0], err
}

// LogBatch logs actions in order within one queue turn, reading the
// sequence number once and advancing it locally. It stops at the first
// failure and returns the receipts gathered so far.
func (o *Orchestrator) LogBatch(ctx context.Context, actions []string) ([]*Receipt, error) {
	if len(actions) == 0 {
		return nil, nil
	}

	reqs := make([]*ledger.ActionRequest, 0, len(actions))
	for _, action := range actions {
		reqs = append(reqs, ledger.NewActionRequest(o.config.Module, o.config.Function, action))
	}

	return o.enqueue(ctx, newPendingAction(ctx, true, reqs...))
}

// enqueue places p on the queue and waits for its outcome. A caller whose
// context ends while p is still queued withdraws it; once started, p runs to
// a terminal state regardless.
func (o *Orchestrator) enqueue(ctx context.Context, p *pendingAction) ([]*Receipt, error) {
	o.mu.RLock()
	if !o.running {
		o.mu.RUnlock()
		return nil, ErrNotRunning
	}
	queue, stop, done := o.queue, o.stopChan, o.doneChan
	o.mu.RUnlock()

	select {
	case queue <- p:
		metrics.SetQueueDepth(len(queue))
	case <-stop:
		return nil, ErrOrchestratorStopped
	case <-ctx.Done():
		o.canceled.Add(1)
		return nil, ctx.Err()
	}

	select {
	case out := <-p.done:
		return out.receipts, out.err
	case <-ctx.Done():
		if p.cancel() {
			o.canceled.Add(1)
			o.logger.Debug("Queued action canceled before building")
			return nil, ctx.Err()
		}
	case <-done:
		if p.cancel() {
			return nil, ErrOrchestratorStopped
		}
	}

	out := <-p.done
	return out.receipts, out.err
}

// mainLoop is the single worker; it alone touches the network for this account
func (o *Orchestrator) mainLoop(ctx context.Context, queue chan *pendingAction, stop, done chan struct{}) {
	defer close(done)

	for {
		// a pending stop wins over queued work
		select {
		case <-stop:
			o.drain(queue)
			return
		default:
		}

		select {
		case <-stop:
			o.drain(queue)
			return
		case <-ctx.Done():
			o.mu.Lock()
			if o.running {
				o.running = false
				close(o.stopChan)
			}
			o.mu.Unlock()
			o.drain(queue)
			return
		case p := <-queue:
			metrics.SetQueueDepth(len(queue))
			o.process(p)
		}
	}
}

// drain resolves every still-queued action with ErrOrchestratorStopped
func (o *Orchestrator) drain(queue chan *pendingAction) {
	for {
		select {
		case p := <-queue:
			if p.start() {
				p.resolve(nil, ErrOrchestratorStopped)
			}
		default:
			metrics.SetQueueDepth(0)
			return
		}
	}
}

// process runs one queue turn
func (o *Orchestrator) process(p *pendingAction) {
	if !p.start() {
		// canceled while queued: nothing was built, signed or sent
		return
	}

	// Caller cancellation no longer applies once building begins
	ctx := context.WithoutCancel(p.ctx)

	if !p.batch {
		rc, err := o.execute(ctx, p.reqs[0])
		var receipts []*Receipt
		if rc != nil {
			receipts = []*Receipt{rc}
		}
		p.resolve(receipts, err)
		return
	}

	o.tracker.Invalidate()
	o.tracker.Pin()
	defer o.tracker.Unpin()

	receipts := make([]*Receipt, 0, len(p.reqs))
	for _, req := range p.reqs {
		rc, err := o.execute(ctx, req)
		if rc != nil {
			receipts = append(receipts, rc)
		}
		if err != nil {
			p.resolve(receipts, err)
			return
		}
	}
	p.resolve(receipts, nil)
}
