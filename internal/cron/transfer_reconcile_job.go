package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/pullstream-backend/pkg/db/models"
	"github.com/angelmondragon/pullstream-backend/pkg/enums"
	"github.com/angelmondragon/pullstream-backend/pkg/logger"
)

const (
	defaultReconcileBatch = 50
	defaultDispatchLease  = 2 * time.Minute
)

// TransferReconcileJobParams configures the ledger retry job.
type TransferReconcileJobParams struct {
	Logger     *logger.Logger
	Repository transferClaimer
	Dispatcher transferRetrier
	BatchSize  int
	Lease      time.Duration
	Now        func() time.Time
}

type transferClaimer interface {
	ClaimRetryable(ctx context.Context, limit int, staleBefore time.Time, maxAttempts int) ([]models.LedgerTransfer, error)
}

type transferRetrier interface {
	Dispatch(ctx context.Context, transfer models.LedgerTransfer) (*models.LedgerTransfer, error)
	MaxAttempts() int
}

// NewTransferReconcileJob builds the job that redelivers failed ledger
// transfers and those abandoned mid-dispatch. Redelivery reuses the transfer
// id, so the custody service never moves the funds twice.
func NewTransferReconcileJob(params TransferReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("ledger transfer repository required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("ledger dispatcher required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	lease := params.Lease
	if lease <= 0 {
		lease = defaultDispatchLease
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &transferReconcileJob{
		logg:       params.Logger,
		repo:       params.Repository,
		dispatcher: params.Dispatcher,
		batch:      batch,
		lease:      lease,
		now:        now,
	}, nil
}

type transferReconcileJob struct {
	logg       *logger.Logger
	repo       transferClaimer
	dispatcher transferRetrier
	batch      int
	lease      time.Duration
	now        func() time.Time
}

func (j *transferReconcileJob) Name() string { return "ledger-transfer-reconcile" }

func (j *transferReconcileJob) Run(ctx context.Context) error {
	staleBefore := j.now().UTC().Add(-j.lease)
	claimed, err := j.repo.ClaimRetryable(ctx, j.batch, staleBefore, j.dispatcher.MaxAttempts())
	if err != nil {
		return fmt.Errorf("claim retryable transfers: %w", err)
	}
	if len(claimed) == 0 {
		return nil
	}

	var (
		errs                    error
		completed, failed, dead int
	)
	for _, transfer := range claimed {
		out, err := j.dispatcher.Dispatch(ctx, transfer)
		switch {
		case err == nil:
			completed++
		case out != nil && out.Status == enums.TransferStatusDead:
			dead++
			errs = multierr.Append(errs, fmt.Errorf("transfer %s dead: %w", transfer.ID, err))
		default:
			failed++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"claimed":   len(claimed),
		"completed": completed,
		"failed":    failed,
		"dead":      dead,
	}), "ledger transfer reconcile complete")
	return errs
}
