package housekeeping

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

const (
	defaultSweepInterval = time.Hour
	sweepTimeout         = time.Minute
)

// Purger deletes notifications created before cutoff.
type Purger interface {
	PurgeCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor periodically deletes notifications older than the retention window.
type Janitor struct {
	purger    Purger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	scheduler gocron.Scheduler
}

type Option func(*Janitor)

func WithInterval(d time.Duration) Option {
	return func(j *Janitor) {
		j.interval = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(j *Janitor) {
		j.now = now
	}
}

func NewJanitor(purger Purger, retention time.Duration, opts ...Option) (*Janitor, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	j := &Janitor{
		purger:    purger,
		retention: retention,
		interval:  defaultSweepInterval,
		now:       time.Now,
		scheduler: scheduler,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Start schedules the sweep job and starts the scheduler.
func (j *Janitor) Start() error {
	_, err := j.scheduler.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(
			func() {
				ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
				defer cancel()

				j.Sweep(ctx)
			},
		),
		gocron.WithName("notification_retention"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	j.scheduler.Start()
	return nil
}

// Sweep deletes everything past retention once and returns how many were deleted.
func (j *Janitor) Sweep(ctx context.Context) int64 {
	cutoff := j.now().Add(-j.retention)

	log.Info().
		Str("job", "notification_retention").
		Time("cutoff", cutoff).
		Msg("sweeping expired notifications")

	deleted, err := j.purger.PurgeCreatedBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Str("job", "notification_retention").Msg("failed to purge notifications")
		return 0
	}

	log.Info().Int64("deleted", deleted).Str("job", "notification_retention").Msg("sweep finished")
	return deleted
}

func (j *Janitor) Stop() error {
	return j.scheduler.Shutdown()
}
