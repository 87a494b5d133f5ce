package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-staking/pkg/metrics"
	"github.com/code-payments/code-staking/pkg/retry"
	"github.com/code-payments/code-staking/pkg/retry/backoff"
	"github.com/code-payments/code-staking/pkg/solana"
)

// Sequencer signs, submits and confirms transactions.
//
// A signed payload is only ever re-signed over a fresh blockhash once its
// blockhash is confirmed invalid and the network has not seen its signature,
// so at most one version of a request can land.
type Sequencer struct {
	log    *logrus.Entry
	conf   *conf
	client solana.Client
}

func NewSequencer(client solana.Client, configProvider ConfigProvider) *Sequencer {
	return &Sequencer{
		log:    logrus.StandardLogger().WithField("type", "transaction/sequencer"),
		conf:   configProvider(),
		client: client,
	}
}

// Commitment is the level at which submitted transactions are considered
// confirmed.
func (s *Sequencer) Commitment(ctx context.Context) solana.Commitment {
	value := s.conf.commitment.Get(ctx)
	commitment, err := solana.CommitmentFromString(value)
	if err != nil {
		s.log.WithError(err).Warnf("invalid commitment %q, using %q", value, defaultCommitment)
		return solana.CommitmentConfirmed
	}
	return commitment
}

// Submit blocks until the request's transaction is confirmed, rejected, or
// can no longer be confirmed within the configured bounds.
func (s *Sequencer) Submit(ctx context.Context, req *Request) (*Result, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Submit")
	defer tracer.End()

	log := s.log.WithFields(logrus.Fields{
		"method":     "Submit",
		"request_id": uuid.New().String(),
	})

	start := time.Now()
	result, err := s.submit(ctx, log, req)

	var attempts uint64
	if result != nil {
		attempts = result.Attempts
	}
	recordSubmissionEvent(ctx, err, attempts, time.Since(start))

	if err != nil {
		tracer.OnError(err)
		log.WithError(err).Warn("transaction failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"signature": result.Signature.String(),
		"slot":      result.Slot,
		"attempts":  result.Attempts,
	}).Debug("transaction confirmed")
	return result, nil
}

func (s *Sequencer) submit(ctx context.Context, log *logrus.Entry, req *Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	log = log.WithField("fee_payer", req.FeePayer.PublicKey().ToBase58())

	signers, err := req.getSigners()
	if err != nil {
		return nil, err
	}

	instructions := s.makeInstructions(ctx, req)
	commitment := s.Commitment(ctx)

	maxAttempts := s.conf.maxFreshTokenAttempts.Get(ctx)
	for attempt := uint64(1); attempt <= maxAttempts; attempt++ {
		attemptLog := log.WithField("attempt", attempt)

		result, err := s.attempt(ctx, attemptLog, req, instructions, signers, commitment)
		if err == nil {
			result.Attempts = attempt
			return result, nil
		} else if err != errBlockhashExpired {
			return nil, err
		}

		metrics.RecordCount(ctx, freshTokenRetryMetricName, 1)
		attemptLog.Info("blockhash expired before the transaction landed, signing with a fresh one")
	}

	return nil, errors.Wrapf(ErrStaleFreshnessToken, "blockhash expired on all %d attempts", maxAttempts)
}

func (s *Sequencer) attempt(
	ctx context.Context,
	log *logrus.Entry,
	req *Request,
	instructions []solana.Instruction,
	signers []solana.Signer,
	commitment solana.Commitment,
) (*Result, error) {
	blockhash, err := s.getLatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	txn := solana.NewTransaction(req.FeePayer.PublicKey().ToBytes(), instructions...)
	txn.SetBlockhash(blockhash)

	if err := txn.SignWith(signers...); err != nil {
		return nil, errors.Wrap(ErrMissingSigner, err.Error())
	}
	if missing := txn.MissingSignatures(); len(missing) > 0 {
		return nil, errors.Wrapf(ErrMissingSigner, "%d required signatures missing", len(missing))
	}

	log = log.WithFields(logrus.Fields{
		"signature": txn.Signatures[0].String(),
		"blockhash": blockhash.String(),
	})

	confirmCtx, cancel := context.WithTimeout(ctx, s.conf.confirmationTimeout.Get(ctx))
	defer cancel()

	if err := s.send(confirmCtx, &txn, commitment); err != nil {
		return nil, err
	}

	return s.awaitConfirmation(confirmCtx, log, &txn, commitment)
}

// send submits the signed payload. Resending the same payload is always safe,
// since the network deduplicates by signature.
func (s *Sequencer) send(ctx context.Context, txn *solana.Transaction, commitment solana.Commitment) error {
	err := s.withNetworkRetry(ctx, "SubmitTransaction", func() error {
		_, err := s.client.SubmitTransaction(*txn, commitment)
		return err
	})
	if err == nil {
		return nil
	}

	var txErr *solana.TransactionError
	if !errors.As(err, &txErr) {
		return err
	}

	switch txErr.ErrorKey() {
	case solana.TransactionErrorAlreadyProcessed:
		return nil
	case solana.TransactionErrorBlockhashNotFound:
		// The node may simply lag behind the one that issued the blockhash
		valid, err := s.isBlockhashValid(ctx, txn.Message.RecentBlockhash, commitment)
		if err != nil {
			return err
		} else if !valid {
			return errBlockhashExpired
		}
		return nil
	}

	return &InstructionRejectedError{
		Signature: txn.Signatures[0],
		Reason:    txErr,
	}
}

func (s *Sequencer) awaitConfirmation(
	ctx context.Context,
	log *logrus.Entry,
	txn *solana.Transaction,
	commitment solana.Commitment,
) (*Result, error) {
	sig := txn.Signatures[0]
	rebroadcastInterval := s.conf.rebroadcastInterval.Get(ctx)
	lastBroadcast := time.Now()

	ticker := time.NewTicker(s.conf.pollInterval.Get(ctx))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ErrTimeout, "%s not confirmed: %v", sig.String(), ctx.Err())
		case <-ticker.C:
		}

		status, err := s.getSignatureStatus(ctx, sig)
		if err != nil {
			return nil, err
		}

		if status != nil {
			if status.ErrorResult != nil {
				return nil, &InstructionRejectedError{
					Signature: sig,
					Reason:    status.ErrorResult,
				}
			}

			if status.Reached(commitment) {
				return &Result{
					Signature: sig,
					Slot:      status.Slot,
				}, nil
			}

			// Seen by the network, so it can only land as-is
			continue
		}

		if time.Since(lastBroadcast) < rebroadcastInterval {
			continue
		}

		valid, err := s.isBlockhashValid(ctx, txn.Message.RecentBlockhash, commitment)
		if err != nil {
			return nil, err
		}

		if !valid {
			// Close the window where the transaction landed just before expiry
			status, err := s.getSignatureStatus(ctx, sig)
			if err != nil {
				return nil, err
			}
			if status == nil {
				return nil, errBlockhashExpired
			}
			continue
		}

		log.Debug("signature not yet observed, rebroadcasting")
		metrics.RecordCount(ctx, rebroadcastMetricName, 1)

		if err := s.send(ctx, txn, commitment); err != nil {
			return nil, err
		}
		lastBroadcast = time.Now()
	}
}

func (s *Sequencer) getLatestBlockhash(ctx context.Context) (solana.Blockhash, error) {
	var blockhash solana.Blockhash
	err := s.withNetworkRetry(ctx, "GetLatestBlockhash", func() (err error) {
		blockhash, err = s.client.GetLatestBlockhash()
		return err
	})
	return blockhash, err
}

func (s *Sequencer) isBlockhashValid(ctx context.Context, blockhash solana.Blockhash, commitment solana.Commitment) (bool, error) {
	var valid bool
	err := s.withNetworkRetry(ctx, "IsBlockhashValid", func() (err error) {
		valid, err = s.client.IsBlockhashValid(blockhash, commitment)
		return err
	})
	return valid, err
}

func (s *Sequencer) getSignatureStatus(ctx context.Context, sig solana.Signature) (*solana.SignatureStatus, error) {
	var status *solana.SignatureStatus
	err := s.withNetworkRetry(ctx, "GetSignatureStatuses", func() error {
		statuses, err := s.client.GetSignatureStatuses([]solana.Signature{sig})
		if err != nil {
			return err
		}
		if len(statuses) != 1 {
			return errors.Errorf("expected 1 status, got %d", len(statuses))
		}
		status = statuses[0]
		return nil
	})
	return status, err
}

// withNetworkRetry retries transport failures with backoff. Transaction errors
// are returned as-is, and exhausted retries surface as ErrNetwork.
func (s *Sequencer) withNetworkRetry(ctx context.Context, method string, action retry.Action) error {
	_, err := retry.Retry(
		action,
		retry.RetriableFunc(isNetworkError),
		retry.Context(ctx),
		retry.Limit(uint(s.conf.networkAttemptLimit.Get(ctx))),
		retry.BackoffWithJitter(
			backoff.BinaryExponential(s.conf.networkBackoffBaseDelay.Get(ctx)),
			s.conf.networkBackoffMaxDelay.Get(ctx),
			0.1,
		),
	)
	if !isNetworkError(err) {
		return err
	}

	if ctx.Err() != nil {
		return errors.Wrapf(ErrTimeout, "%s interrupted: %v", method, ctx.Err())
	}
	return errors.Wrapf(ErrNetwork, "%s failed: %v", method, err)
}
