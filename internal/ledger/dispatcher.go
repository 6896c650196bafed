package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/pullstream-backend/pkg/clock"
	"github.com/angelmondragon/pullstream-backend/pkg/db/models"
	"github.com/angelmondragon/pullstream-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pullstream-backend/pkg/errors"
	"github.com/angelmondragon/pullstream-backend/pkg/logger"
	"github.com/angelmondragon/pullstream-backend/pkg/metrics"
	"github.com/angelmondragon/pullstream-backend/pkg/outbox"
	"github.com/angelmondragon/pullstream-backend/pkg/outbox/payloads"
)

const (
	defaultDispatchTimeout = 10 * time.Second
	defaultMaxAttempts     = 8
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// DispatcherConfig tunes ledger calls.
type DispatcherConfig struct {
	EscrowNamespace string
	Timeout         time.Duration
	MaxAttempts     int
}

// DispatcherParams groups the collaborators of a Dispatcher.
type DispatcherParams struct {
	Repo       Repository
	Transferer Transferer
	Tx         txRunner
	Outbox     outboxEmitter
	Clock      clock.Clock
	Metrics    *metrics.LedgerMetrics
	Logger     *logger.Logger
	Config     DispatcherConfig
}

// Dispatcher sends committed transfer instructions to the custody service
// and records the outcome on the instruction row.
type Dispatcher struct {
	repo       Repository
	transferer Transferer
	tx         txRunner
	outbox     outboxEmitter
	clock      clock.Clock
	metrics    *metrics.LedgerMetrics
	logg       *logger.Logger
	cfg        DispatcherConfig
}

func NewDispatcher(p DispatcherParams) (*Dispatcher, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if p.Transferer == nil {
		return nil, fmt.Errorf("ledger transferer required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if p.Clock == nil {
		p.Clock = clock.NewSystem()
	}
	if p.Logger == nil {
		p.Logger = logger.New(logger.Options{ServiceName: "ledger"})
	}
	if p.Config.Timeout <= 0 {
		p.Config.Timeout = defaultDispatchTimeout
	}
	if p.Config.MaxAttempts <= 0 {
		p.Config.MaxAttempts = defaultMaxAttempts
	}
	if p.Config.EscrowNamespace == "" {
		p.Config.EscrowNamespace = defaultEscrowNamespace
	}
	return &Dispatcher{
		repo:       p.Repo,
		transferer: p.Transferer,
		tx:         p.Tx,
		outbox:     p.Outbox,
		clock:      p.Clock,
		metrics:    p.Metrics,
		logg:       p.Logger,
		cfg:        p.Config,
	}, nil
}

// MaxAttempts is the attempt budget before a transfer is declared dead.
func (d *Dispatcher) MaxAttempts() int {
	return d.cfg.MaxAttempts
}

// Dispatch makes one attempt at transfer and returns the updated row. A
// failed attempt yields CodeLedgerTransferFailed; the instruction stays
// failed for the reconciler unless the custody service rejected it or the
// attempt budget ran out, in which case it is dead.
func (d *Dispatcher) Dispatch(ctx context.Context, transfer models.LedgerTransfer) (*models.LedgerTransfer, error) {
	if transfer.Status.Terminal() {
		return &transfer, nil
	}
	ctx = d.logg.WithFields(ctx, map[string]any{
		"transfer_id":   transfer.ID.String(),
		"gig_id":        transfer.GigID,
		"transfer_kind": string(transfer.Kind),
	})

	attempt := transfer.AttemptCount + 1
	req := TransferRequest{
		TransferID: transfer.ID,
		GigID:      transfer.GigID,
		Kind:       transfer.Kind,
		Escrow:     EscrowAccount(d.cfg.EscrowNamespace, transfer.GigID),
		To:         transfer.Recipient,
		Amount:     transfer.Amount,
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	started := time.Now()
	receipt, callErr := d.transferer.Transfer(callCtx, req)
	cancel()
	elapsed := time.Since(started)

	transfer.AttemptCount = attempt
	if callErr == nil {
		d.metrics.ObserveTransfer(string(transfer.Kind), "completed", elapsed)
		completedAt := receipt.CompletedAt
		if completedAt.IsZero() {
			completedAt = d.clock.Now()
		}
		if err := d.repo.MarkCompleted(ctx, transfer.ID, receipt.ID, attempt, completedAt); err != nil {
			// the custody service deduplicates, so the reconciler can safely
			// replay this transfer to record the receipt
			d.logg.Error(ctx, "failed to record ledger receipt", err)
		}
		receiptID := receipt.ID
		transfer.Status = enums.TransferStatusCompleted
		transfer.ReceiptID = &receiptID
		transfer.CompletedAt = &completedAt
		transfer.LastError = nil
		d.logg.Info(d.logg.WithField(ctx, "receipt_id", receipt.ID), "ledger transfer completed")
		return &transfer, nil
	}

	reason := truncateReason(pkgerrors.Describe(callErr))
	transfer.LastError = &reason
	if IsRejected(callErr) || attempt >= d.cfg.MaxAttempts {
		d.metrics.ObserveTransfer(string(transfer.Kind), "dead", elapsed)
		transfer.Status = enums.TransferStatusDead
		if err := d.markDead(ctx, transfer, reason); err != nil {
			d.logg.Error(ctx, "failed to mark ledger transfer dead", err)
		}
		d.logg.Error(d.logg.WithField(ctx, "attempts", attempt), "ledger transfer dead, manual reconciliation required", callErr)
	} else {
		d.metrics.ObserveTransfer(string(transfer.Kind), "failed", elapsed)
		transfer.Status = enums.TransferStatusFailed
		if err := d.repo.MarkFailed(ctx, transfer.ID, attempt, reason); err != nil {
			d.logg.Error(ctx, "failed to mark ledger transfer failed", err)
		}
		d.logg.Warn(d.logg.WithFields(ctx, map[string]any{"attempts": attempt, "error": reason}), "ledger transfer failed, queued for retry")
	}

	return &transfer, transferFailed(transfer, callErr)
}

func (d *Dispatcher) markDead(ctx context.Context, transfer models.LedgerTransfer, reason string) error {
	return d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := d.repo.WithTx(tx).MarkDead(ctx, transfer.ID, transfer.AttemptCount, reason); err != nil {
			return err
		}
		return d.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransferDeadLetter,
			AggregateType: enums.AggregateLedgerTransfer,
			AggregateID:   transfer.ID.String(),
			Data: payloads.LedgerTransferDeadEvent{
				TransferID: transfer.ID.String(),
				GigID:      transfer.GigID,
				Recipient:  transfer.Recipient,
				Amount:     transfer.Amount,
				Attempts:   transfer.AttemptCount,
				LastError:  reason,
			},
			OccurredAt: d.clock.Now(),
		})
	})
}

func transferFailed(transfer models.LedgerTransfer, cause error) error {
	if cause == nil {
		cause = errors.New("unknown ledger failure")
	}
	return pkgerrors.Wrap(pkgerrors.CodeLedgerTransferFailed, cause, "ledger transfer failed").
		WithDetails(map[string]any{
			"transfer_id": transfer.ID.String(),
			"gig_id":      strconv.FormatUint(transfer.GigID, 10),
			"amount":      transfer.Amount.String(),
			"status":      string(transfer.Status),
		})
}
