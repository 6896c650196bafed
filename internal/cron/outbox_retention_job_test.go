package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/pullstream-backend/pkg/logger"
)

func TestOutboxRetentionJobDeletesInBatches(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{results: []int64{10, 10, 3}}
	job := newOutboxRetentionJob(t, repo, now)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expectedCutoff := now.Add(-outboxRetention)
	if !repo.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s, got %s", expectedCutoff, repo.lastCutoff)
	}
	if repo.called != 3 {
		t.Fatalf("expected three batches, got %d", repo.called)
	}
	if repo.lastLimit != 10 {
		t.Fatalf("expected batch size 10, got %d", repo.lastLimit)
	}
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{err: errors.New("boom")}
	job := newOutboxRetentionJob(t, repo, time.Now())

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxRetentionRepo, now time.Time) Job {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Repository: repo,
		BatchSize:  10,
		Now:        func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	return job
}

type fakeOutboxRetentionRepo struct {
	results    []int64
	lastCutoff time.Time
	lastLimit  int
	called     int
	err        error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	f.lastLimit = limit
	if f.err != nil {
		return 0, f.err
	}
	if len(f.results) == 0 {
		return 0, nil
	}
	n := f.results[0]
	f.results = f.results[1:]
	return n, nil
}
