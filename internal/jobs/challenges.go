package jobs

import (
	"context"

	"go.uber.org/zap"
)

// ChallengePurger removes spent login challenges.
type ChallengePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// ChallengeCleanupJob deletes expired and consumed magic links and SMS codes every hour.
type ChallengeCleanupJob struct {
	purger ChallengePurger
	logger *zap.Logger
}

// NewChallengeCleanupJob wraps a purger as a scheduled job.
func NewChallengeCleanupJob(purger ChallengePurger, logger *zap.Logger) *ChallengeCleanupJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChallengeCleanupJob{purger: purger, logger: logger}
}

func (j *ChallengeCleanupJob) Name() string {
	return "login-challenge-cleanup"
}

func (j *ChallengeCleanupJob) Schedule() Schedule {
	return Hourly
}

func (j *ChallengeCleanupJob) Execute(ctx context.Context) error {
	removed, err := j.purger.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		j.logger.Info("purged login challenges", zap.Int64("removed", removed))
	}
	return nil
}
