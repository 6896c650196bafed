package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/pullstream-backend/pkg/logger"
)

const (
	outboxRetention      = 30 * 24 * time.Hour
	outboxDeleteBatch    = 500
	outboxMaxBatchesTick = 20
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxRetentionRepo
	Retention  time.Duration
	BatchSize  int
	Now        func() time.Time
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = outboxRetention
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = outboxDeleteBatch
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: retention,
		batch:     batch,
		now:       now,
	}, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	repo      outboxRetentionRepo
	retention time.Duration
	batch     int
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run deletes published events older than the retention window in batches,
// stopping after a bounded number of batches per tick.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	for i := 0; i < outboxMaxBatchesTick; i++ {
		rows, err := j.repo.DeletePublishedBefore(ctx, cutoff, j.batch)
		if err != nil {
			return fmt.Errorf("outbox retention: %w", err)
		}
		deleted += rows
		if rows < int64(j.batch) {
			break
		}
	}
	if deleted > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"cutoff":       cutoff,
			"rows_deleted": deleted,
		}), "outbox retention cleanup complete")
	}
	return nil
}
