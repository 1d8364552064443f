package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/isdelr/notekeeper/internal/session"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Expirer is the part of a session store the sweeper needs.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

var _ Expirer = (session.Store)(nil)

// Sweeper periodically removes expired sessions from the store. Start runs it
// on a background cron; Middleware runs it in line with requests for hosts
// that freeze the process between invocations.
type Sweeper struct {
	store    Expirer
	schedule cron.Schedule
	cron     *cron.Cron
	timeout  time.Duration
	now      func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

// NewSweeper creates a sweeper that runs on the given cron schedule
// (standard five-field syntax or descriptors such as "@every 1h").
func NewSweeper(store Expirer, spec string) (*Sweeper, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	s := &Sweeper{
		store:    store,
		schedule: schedule,
		cron:     cron.New(),
		timeout:  30 * time.Second,
		now:      time.Now,
	}
	s.cron.Schedule(schedule, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.markRun()
		s.run(ctx)
	}))
	return s, nil
}

// Start runs the schedule in the background.
func (s *Sweeper) Start() {
	log.Info().Msg("Starting expired session sweeper...")
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Stopped expired session sweeper.")
}

// Sweep deletes every expired session once.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not delete expired sessions: %w", err)
	}
	return n, nil
}

// Middleware sweeps after a request whenever the schedule has come due since
// the last sweep. The first request always sweeps.
func (s *Sweeper) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		if s.due() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.timeout)
			defer cancel()
			s.run(ctx)
		}
	})
}

// due reports whether a sweep should run now and, if so, claims it.
func (s *Sweeper) due() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if !s.lastRun.IsZero() && now.Before(s.schedule.Next(s.lastRun)) {
		return false
	}
	s.lastRun = now
	return true
}

func (s *Sweeper) markRun() {
	s.mu.Lock()
	s.lastRun = s.now()
	s.mu.Unlock()
}

func (s *Sweeper) run(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Sweeper: failed")
		return
	}
	if n > 0 {
		log.Info().Int64("removed", n).Msg("Sweeper: removed expired sessions")
	}
}
