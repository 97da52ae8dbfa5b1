package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PriceFeatures/internal/domain/models"
	pkgcache "PriceFeatures/pkg/cache"
	applogger "PriceFeatures/pkg/logger"
	"PriceFeatures/pkg/queue"
)

const (
	JobTypeBackfill = "features.backfill"
	JobTypeCleanup  = "features.cleanup"
)

// ErrBackfillRunning is returned when another backfill holds the lock.
var ErrBackfillRunning = errors.New("backfill already running")

// BackfillJob runs EnrichmentService.Backfill from the queue. Only one
// backfill runs at a time across instances.
type BackfillJob struct {
	svc     *EnrichmentService
	locks   pkgcache.Service
	lockTTL time.Duration
	log     *applogger.Logger
}

func NewBackfillJob(svc *EnrichmentService, locks pkgcache.Service, l *applogger.Logger) *BackfillJob {
	if l == nil {
		l = applogger.Nop()
	}
	return &BackfillJob{svc: svc, locks: locks, lockTTL: time.Hour, log: l}
}

func (j *BackfillJob) Name() string { return "backfill" }
func (j *BackfillJob) Type() string { return JobTypeBackfill }

func (j *BackfillJob) Handle(ctx context.Context, msg queue.Message) error {
	req, err := queue.ParsePayload[models.BackfillRequest](msg)
	if err != nil {
		return err
	}

	if j.locks != nil {
		key := pkgcache.Key("lock", "backfill")
		ok, err := j.locks.TryLock(ctx, key, j.lockTTL)
		if err != nil {
			return fmt.Errorf("backfill lock: %w", err)
		}
		if !ok {
			return ErrBackfillRunning
		}
		defer func() {
			if err := j.locks.Unlock(context.WithoutCancel(ctx), key); err != nil {
				j.log.Warn("backfill unlock failed", applogger.Error(err))
			}
		}()
	}

	res, err := j.svc.Backfill(ctx, BackfillOptions{From: req.From, To: req.To, Limit: req.Limit})
	if err != nil {
		return err
	}
	queue.SetResult(ctx, fmt.Sprintf("read %d, stored %d in %d chunks (%.1fs)", res.Read, res.Stored, res.Chunks, res.Seconds))
	return nil
}

// CleanupJob applies the retention policy.
type CleanupJob struct {
	svc *EnrichmentService
}

func NewCleanupJob(svc *EnrichmentService) *CleanupJob { return &CleanupJob{svc: svc} }

func (j *CleanupJob) Name() string { return "cleanup" }
func (j *CleanupJob) Type() string { return JobTypeCleanup }

func (j *CleanupJob) Handle(ctx context.Context, _ queue.Message) error {
	n, err := j.svc.Cleanup(ctx)
	if err != nil {
		return err
	}
	queue.SetResult(ctx, fmt.Sprintf("deleted %d rows", n))
	return nil
}

// RunRetention enqueues a cleanup every interval until ctx ends. Without a
// queue the cleanup runs inline.
func RunRetention(ctx context.Context, svc *EnrichmentService, pub queue.Publisher, interval time.Duration, l *applogger.Logger) {
	if interval <= 0 {
		return
	}
	if l == nil {
		l = applogger.Nop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var err error
			if pub != nil {
				_, err = pub.Enqueue(ctx, JobTypeCleanup, struct{}{})
			} else {
				_, err = svc.Cleanup(ctx)
			}
			if err != nil && ctx.Err() == nil {
				l.Error("retention run failed", applogger.Error(err))
			}
		}
	}
}

var (
	_ queue.Job = (*BackfillJob)(nil)
	_ queue.Job = (*CleanupJob)(nil)
)
