// Package worker runs the periodic listing maintenance jobs.
package worker

import (
	"context"
	"time"

	"fotoljay/internal/service"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job is one periodic task
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// Worker ticks every job on its own interval until the context is cancelled
type Worker struct {
	jobs   []Job
	logger *zap.Logger
}

// Intervals configures how often each maintenance job runs
type Intervals struct {
	Reminder time.Duration
	Vip      time.Duration
	Cleanup  time.Duration
}

func New(logger *zap.Logger, jobs ...Job) *Worker {
	return &Worker{jobs: jobs, logger: logger}
}

// NewMaintenanceWorker schedules the reminder, VIP expiry and photo cleanup jobs
func NewMaintenanceWorker(jobs service.MaintenanceService, intervals Intervals, logger *zap.Logger) *Worker {
	return New(logger,
		Job{Name: service.JobRepublishReminder, Interval: intervals.Reminder, Run: jobs.SendRepublishReminders},
		Job{Name: service.JobVipExpiry, Interval: intervals.Vip, Run: jobs.ExpireVip},
		Job{Name: service.JobOrphanCleanup, Interval: intervals.Cleanup, Run: jobs.CleanupOrphanPhotos},
	)
}

// Add schedules another job. It must be called before Run.
func (w *Worker) Add(job Job) {
	w.jobs = append(w.jobs, job)
}

// Run blocks until ctx is done. Job failures are logged and never stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, job := range w.jobs {
		if job.Interval <= 0 {
			w.logger.Info("Maintenance job disabled", zap.String("job", job.Name))
			continue
		}
		j := job
		g.Go(func() error {
			w.loop(gctx, j)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context, job Job) {
	w.logger.Info("Maintenance job started",
		zap.String("job", job.Name),
		zap.Duration("interval", job.Interval),
	)

	t := time.NewTicker(job.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.runOnce(ctx, job)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context, job Job) {
	n, err := job.Run(ctx)
	if err != nil {
		w.logger.Error("Maintenance job failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	if n > 0 {
		w.logger.Debug("Maintenance job done", zap.String("job", job.Name), zap.Int("processed", n))
	}
}
