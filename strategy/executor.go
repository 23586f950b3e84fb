package strategy

import (
	"context"
	"errors"

	"github.com/opendlt/actionlog/internal/logz"
	"github.com/opendlt/actionlog/sequencer"
)

// ErrDeclined is returned when a plan was produced but not confirmed; nothing
// is logged
var ErrDeclined = errors.New("trade not confirmed")

// ActionLogger records an action on-chain
type ActionLogger interface {
	LogAction(ctx context.Context, action string) (*sequencer.Receipt, error)
}

// Execution is the result of one Execute call
type Execution struct {
	Plan    *TradePlan         `json:"plan"`
	Receipt *sequencer.Receipt `json:"receipt,omitempty"`
}

// Executor plans trades and logs the confirmed ones
type Executor struct {
	provider PredictionProvider
	log      ActionLogger
	logger   *logz.Logger
}

// NewExecutor creates an executor
func NewExecutor(provider PredictionProvider, log ActionLogger) *Executor {
	return &Executor{
		provider: provider,
		log:      log,
		logger:   logz.New(logz.INFO, "executor"),
	}
}

// Execute plans a trade on pair and, if opts.Confirm is set, logs its action.
// The plan is returned even when the trade is declined or logging fails.
func (e *Executor) Execute(ctx context.Context, pair string, opts TradeOptions) (*Execution, error) {
	plan, err := Plan(ctx, e.provider, pair, opts)
	if err != nil {
		return nil, err
	}

	exec := &Execution{Plan: plan}
	if !opts.Confirm {
		e.logger.Debug("Trade on %s declined: %s", pair, plan.Action())
		return exec, ErrDeclined
	}

	rc, err := e.log.LogAction(ctx, plan.Action())
	exec.Receipt = rc
	if err != nil {
		return exec, err
	}

	e.logger.Info("%s (tx %s)", plan.Headline(), rc.Hash)
	return exec, nil
}
