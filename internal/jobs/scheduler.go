package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Schedule names how often a job runs.
type Schedule int

const (
	// Hourly runs once an hour, skipping a run while the previous one is still going.
	Hourly Schedule = iota
)

var errUnknownSchedule = errors.New("scheduler: unknown schedule")

// Job is a maintenance task run by the Scheduler.
type Job interface {
	Name() string
	Schedule() Schedule
	Execute(ctx context.Context) error
}

// Scheduler runs registered jobs on their schedules in UTC.
type Scheduler struct {
	scheduler *gocron.Scheduler
	jobs      []Job
	logger    *zap.Logger
	started   bool
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewScheduler constructs an idle scheduler.
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// AddJob registers a job. Jobs added after Start are picked up by the running scheduler.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := func() { s.execute(job) }

	var err error
	switch job.Schedule() {
	case Hourly:
		_, err = s.scheduler.Every(1).Hour().SingletonMode().Do(run)
	default:
		err = errUnknownSchedule
	}
	if err != nil {
		s.logger.Error("failed to register job", zap.String("job", job.Name()), zap.Error(err))
		return err
	}

	s.jobs = append(s.jobs, job)
	s.logger.Info("job registered", zap.String("job", job.Name()))
	return nil
}

// Start launches the scheduler in the background. Interval jobs run once immediately.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || len(s.jobs) == 0 {
		return
	}
	s.scheduler.StartAsync()
	s.started = true
	for _, scheduled := range s.scheduler.Jobs() {
		s.logger.Info("job scheduled", zap.Time("next_run", scheduled.NextRun()))
	}
}

// Stop cancels running jobs and halts the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	if !s.started {
		return
	}
	s.scheduler.Stop()
	s.started = false
	s.logger.Info("scheduler stopped")
}

// JobCount reports how many jobs are registered.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// RunNow executes every registered job synchronously.
func (s *Scheduler) RunNow() {
	s.mu.Lock()
	registered := append([]Job(nil), s.jobs...)
	s.mu.Unlock()

	for _, job := range registered {
		s.execute(job)
	}
}

func (s *Scheduler) execute(job Job) {
	if err := job.Execute(s.ctx); err != nil {
		s.logger.Error("job failed", zap.String("job", job.Name()), zap.Error(err))
		return
	}
	s.logger.Debug("job completed", zap.String("job", job.Name()))
}
