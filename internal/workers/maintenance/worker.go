// Package maintenance runs housekeeping jobs on a cron schedule
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled housekeeping task
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

type Worker struct {
	jobs   []Job
	cron   *cron.Cron
	logger *zap.Logger
}

func NewWorker(logger *zap.Logger, jobs ...Job) *Worker {
	return &Worker{
		jobs:   jobs,
		cron:   cron.New(cron.WithLocation(time.UTC)),
		logger: logger,
	}
}

// ExpiredRecordsJob deletes expired rows through fn, e.g. idempotency keys
func ExpiredRecordsJob(name, schedule string, fn func(ctx context.Context) (int64, error), logger *zap.Logger) Job {
	return Job{
		Name:     name,
		Schedule: schedule,
		Timeout:  5 * time.Minute,
		Run: func(ctx context.Context) error {
			n, err := fn(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("Deleted expired records", zap.String("job", name), zap.Int64("count", n))
			}
			return nil
		},
	}
}

func (w *Worker) Start() error {
	for _, job := range w.jobs {
		job := job
		_, err := w.cron.AddFunc(job.Schedule, func() {
			timeout := job.Timeout
			if timeout <= 0 {
				timeout = 5 * time.Minute
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if err := job.Run(ctx); err != nil {
				w.logger.Error("Maintenance job failed", zap.String("job", job.Name), zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("invalid schedule for %s: %w", job.Name, err)
		}
	}

	w.cron.Start()
	w.logger.Info("Maintenance worker started", zap.Int("jobs", len(w.jobs)))
	return nil
}

func (w *Worker) Shutdown(timeout time.Duration) error {
	ctx := w.cron.Stop()
	select {
	case <-ctx.Done():
		w.logger.Info("Maintenance worker stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("maintenance worker shutdown timeout exceeded")
	}
}
