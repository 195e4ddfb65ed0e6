package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/katatrina/schoolhub-BE/internal/notification"
	"github.com/katatrina/schoolhub-BE/internal/session"
	"github.com/rs/zerolog/log"
)

const (
	defaultPollInterval = time.Minute
	defaultPageSize     = 20
	pullTimeout         = 15 * time.Second
)

// Lister fetches one page of the signed-in user's notifications.
type Lister interface {
	List(ctx context.Context, params notification.ListParams) (notification.Page, error)
}

// Poller pulls the newest page on a fixed interval and merges it into the
// store. Pulls recover anything the stream missed.
type Poller struct {
	lister    Lister
	store     *Store
	interval  time.Duration
	pageSize  int
	scheduler gocron.Scheduler

	mu  sync.Mutex
	job gocron.Job
}

type PollerOption func(*Poller)

func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithPageSize(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

func NewPoller(lister Lister, store *Store, opts ...PollerOption) (*Poller, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	p := &Poller{
		lister:    lister,
		store:     store,
		interval:  defaultPollInterval,
		pageSize:  defaultPageSize,
		scheduler: scheduler,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start schedules the pull job. The first pull runs right away.
func (p *Poller) Start() error {
	job, err := p.scheduler.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(
			func() {
				ctx, cancel := context.WithTimeout(context.Background(), pullTimeout)
				defer cancel()

				p.Pull(ctx)
			},
		),
		gocron.WithName("notification_pull"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.job = job
	p.mu.Unlock()

	p.scheduler.Start()
	return nil
}

// PullNow runs the pull job outside its schedule. Before Start it does
// nothing; the first scheduled run pulls anyway.
func (p *Poller) PullNow() {
	p.mu.Lock()
	job := p.job
	p.mu.Unlock()

	if job == nil {
		return
	}
	if err := job.RunNow(); err != nil {
		log.Warn().Err(err).Msg("failed to trigger notification pull")
	}
}

// Pull fetches the newest page once and merges it. A page that was in
// flight while the store was cleared is thrown away.
func (p *Poller) Pull(ctx context.Context) error {
	gen := p.store.Generation()
	page, err := p.lister.List(ctx, notification.ListParams{Page: 1, PageSize: p.pageSize})
	if err != nil {
		if errors.Is(err, session.ErrAuthFailure) {
			log.Debug().Err(err).Msg("skipping notification pull, not signed in")
		} else {
			log.Warn().Err(err).Msg("failed to pull notifications")
		}
		return err
	}

	log.Debug().Int("count", len(page.Items)).Int64("total", page.Total).Msg("pulled notifications")
	err = p.store.MergePage(gen, page.Items)
	if errors.Is(err, ErrStaleGeneration) {
		log.Debug().Int("count", len(page.Items)).Msg("discarding notifications pulled before logout")
		return nil
	}
	return err
}

func (p *Poller) Stop() error {
	return p.scheduler.Shutdown()
}
