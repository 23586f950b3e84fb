package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opendlt/actionlog/bridge/ledgerapi"
	"github.com/opendlt/actionlog/internal/metrics"
	"github.com/opendlt/actionlog/types/ledger"
)

// fallbackGasUnitPrice is used when no price is configured and the network
// cannot estimate one
const fallbackGasUnitPrice = 100

// execute drives one action from BUILDING to a terminal state. It always
// returns a receipt; the error is a *LogError when the action did not
// confirm.
func (o *Orchestrator) execute(ctx context.Context, req *ledger.ActionRequest) (*Receipt, error) {
	ctx, span := o.tracer.Start(ctx, "sequencer.execute", trace.WithAttributes(
		attribute.String("action.id", req.ID),
		attribute.String("action.function", req.Module.String()+"::"+req.Function),
	))
	defer span.End()

	rc := &Receipt{
		ActionID: req.ID,
		Action:   req.Summary,
		Status:   ledger.StatusPending,
	}
	o.transition(span, rc, StateBuilding)

	payload, err := req.Payload()
	if err != nil {
		return o.finish(span, rc, StateFailed, err)
	}

	var (
		seq        uint64
		hash       string
		mismatches int
	)

	for {
		rc.Attempts++
		if rc.Attempts > 1 {
			o.transition(span, rc, StateBuilding)
		}

		seq, err = withNetworkRetry(ctx, o, "sequence read", func(ctx context.Context) (uint64, error) {
			return o.tracker.Next(ctx)
		})
		if err != nil {
			return o.finish(span, rc, StateFailed, err)
		}
		rc.SequenceNumber = seq

		gasPrice, err := o.gasUnitPrice(ctx)
		if err != nil {
			return o.finish(span, rc, StateFailed, err)
		}

		raw, err := ledger.Assemble(ledger.EnvelopeParams{
			Sender:         o.account.Address,
			SequenceNumber: seq,
			Payload:        payload,
			MaxGasAmount:   o.config.MaxGasAmount,
			GasUnitPrice:   gasPrice,
			TTL:            o.config.TTL,
			ChainID:        o.config.ChainID,
			Now:            o.now,
		})
		if err != nil {
			return o.finish(span, rc, StateFailed, err)
		}

		signed, err := o.account.Signer.SignTransaction(raw)
		if err != nil {
			return o.finish(span, rc, StateFailed, err)
		}
		localHash, err := signed.Hash()
		if err != nil {
			return o.finish(span, rc, StateFailed, err)
		}
		o.transition(span, rc, StateSigned)

		// A lost response may hide a submission that reached the node
		maybeDelivered := false
		hash, err = withNetworkRetry(ctx, o, "submit", func(ctx context.Context) (string, error) {
			h, err := o.network.Submit(ctx, signed)
			if ledgerapi.MaybeDelivered(err) {
				maybeDelivered = true
			}
			return h, err
		})
		if err == nil {
			if hash == "" {
				hash = localHash
			}
			break
		}

		if maybeDelivered {
			if o.alreadyAccepted(ctx, localHash) {
				o.logger.Info("Transaction %s for seq %d was accepted despite a transport failure", localHash, seq)
				hash = localHash
				break
			}
			if ledgerapi.IsRetryable(err) {
				// never answered: the node may still hold the transaction
				o.tracker.Invalidate()
				rc.Hash = localHash
				rc.SubmittedAt = o.now()
				rc.Status = ledger.StatusExpired
				return o.finish(span, rc, StateExpired, fmt.Errorf("%w: %w", ErrSubmissionUnknown, err))
			}
		}

		if !errors.Is(err, ledgerapi.ErrSequenceMismatch) {
			return o.finish(span, rc, StateFailed, err)
		}

		mismatches++
		metrics.IncrementSequenceMismatches()
		o.tracker.Invalidate()
		span.AddEvent("sequence mismatch", trace.WithAttributes(attribute.Int64("sequence", int64(seq))))

		if mismatches > o.config.MaxSequenceRetries {
			return o.finish(span, rc, StateFailed, fmt.Errorf("gave up after %d sequence retries: %w", o.config.MaxSequenceRetries, err))
		}
		o.logger.Warn("Sequence mismatch at %d for action %s, retry %d/%d", seq, rc.ActionID, mismatches, o.config.MaxSequenceRetries)
	}

	rc.Hash = hash
	rc.SubmittedAt = o.now()
	metrics.IncrementSubmissions()
	metrics.SetLastSequence(seq)
	span.SetAttributes(attribute.String("tx.hash", hash), attribute.Int64("tx.sequence", int64(seq)))
	o.transition(span, rc, StateSubmitted)
	o.logger.Debug("Submitted action %s as %s (seq %d)", rc.ActionID, hash, seq)

	result, err := ledgerapi.AwaitConfirmation(ctx, o.network, hash, o.config.PollInterval, o.config.ConfirmTimeout)
	if err != nil {
		o.tracker.Invalidate()
		rc.Status = ledger.StatusExpired
		return o.finish(span, rc, StateExpired, fmt.Errorf("%w: %v", ErrConfirmationTimeout, err))
	}

	rc.Status = result.Status
	rc.VMStatus = result.VMStatus
	rc.Version = result.Version
	rc.GasUsed = result.GasUsed

	switch result.Status {
	case ledger.StatusConfirmed:
		o.tracker.Advance(seq)
		metrics.ObserveConfirmation(result.Elapsed)
		return o.finish(span, rc, StateConfirmed, nil)

	case ledger.StatusRejected:
		// committed but failed: the sequence number is still consumed
		o.tracker.Advance(seq)
		return o.finish(span, rc, StateRejected, fmt.Errorf("%w: %s", ErrTransactionRejected, result.VMStatus))

	default:
		o.tracker.Invalidate()
		rc.Status = ledger.StatusExpired
		return o.finish(span, rc, StateExpired, fmt.Errorf("%w: no terminal status for %s after %s (%d polls)",
			ErrConfirmationTimeout, hash, o.config.ConfirmTimeout, result.Polls))
	}
}

// alreadyAccepted checks whether hash is known to the node
func (o *Orchestrator) alreadyAccepted(ctx context.Context, hash string) bool {
	st, err := o.network.TransactionStatus(ctx, hash)
	if err != nil {
		o.logger.Debug("Lookup of %s failed: %v", hash, err)
		return false
	}
	return st.Found
}

// gasUnitPrice returns the configured price or asks the network
func (o *Orchestrator) gasUnitPrice(ctx context.Context) (uint64, error) {
	if o.config.GasUnitPrice > 0 {
		return o.config.GasUnitPrice, nil
	}

	estimator, ok := o.network.(GasEstimator)
	if !ok {
		return fallbackGasUnitPrice, nil
	}

	price, err := withNetworkRetry(ctx, o, "gas estimate", estimator.EstimateGasPrice)
	if err != nil {
		return 0, err
	}
	if price == 0 {
		return fallbackGasUnitPrice, nil
	}
	return price, nil
}

// transition moves rc to state and notifies the hook
func (o *Orchestrator) transition(span trace.Span, rc *Receipt, state State) {
	rc.State = state
	span.AddEvent(state.String())
	if o.hook != nil {
		o.hook(rc.ActionID, state)
	}
}

// finish records the terminal state of rc
func (o *Orchestrator) finish(span trace.Span, rc *Receipt, state State, cause error) (*Receipt, error) {
	o.transition(span, rc, state)
	rc.FinishedAt = o.now()

	if rc.Hash != "" {
		o.lastHash.Store(rc.Hash)
	}

	var err error
	if cause != nil {
		rc.Error = cause.Error()
		err = &LogError{
			ActionID: rc.ActionID,
			Action:   rc.Action,
			State:    state,
			Attempts: rc.Attempts,
			Hash:     rc.Hash,
			Err:      cause,
		}
		o.failed.Add(1)
		o.lastError.Store(err.Error())
		metrics.IncrementActionsFailed(failureReason(cause))
		span.RecordError(cause)
		span.SetStatus(codes.Error, state.String())
		o.logger.Warn("Action %s ended %s: %v", rc.ActionID, state, cause)
	} else {
		o.logged.Add(1)
		metrics.IncrementActionsLogged()
		span.SetStatus(codes.Ok, "")
		o.logger.Info("Action %s confirmed in %s (seq %d, version %d)", rc.ActionID, rc.Hash, rc.SequenceNumber, rc.Version)
	}

	if o.journal != nil {
		if jerr := o.journal.Record(rc); jerr != nil {
			o.logger.Error("Failed to journal receipt for %s: %v", rc.ActionID, jerr)
		}
	}

	return rc, err
}

// withNetworkRetry runs fn with bounded exponential backoff. Only
// ErrNetworkUnavailable is retried; the total number of calls is at most
// MaxNetworkRetries+1.
func withNetworkRetry[T any](ctx context.Context, o *Orchestrator, op string, fn func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.config.RetryDelay
	b.MaxInterval = o.config.MaxRetryDelay

	attempt := 0
	v, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn(ctx)
		if err != nil && !ledgerapi.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(o.config.MaxNetworkRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.IncrementNetworkRetries()
			o.logger.Warn("%s attempt %d failed, retrying in %s: %v", op, attempt, next, err)
		}),
	)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return v, err
}
