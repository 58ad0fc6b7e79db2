package cleanup

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type sessionSweeper interface {
	Sweep(now time.Time) int
}

// Job reaps resolved reward sessions that outlived their retention window.
type Job struct {
	sweeper  sessionSweeper
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func New(sweeper sessionSweeper, interval time.Duration, logger *zap.Logger) *Job {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		sweeper:  sweeper,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Run performs a single sweep pass.
func (j *Job) Run(ctx context.Context) error {
	_ = ctx

	if j.sweeper == nil {
		return nil
	}

	removed := j.sweeper.Sweep(j.now().UTC())
	if removed > 0 {
		j.logger.Info("reward session cleanup completed", zap.Int("removed", removed))
	}
	return nil
}

// Start runs sweep passes on the configured interval until ctx is done.
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Warn("reward session cleanup failed", zap.Error(err))
			}
		}
	}
}
