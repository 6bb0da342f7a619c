// Package scheduler runs named jobs on fixed intervals and persists each
// job's last run, so a restart resumes the cadence instead of resetting it.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dkrugman/pf-aspect/internal/constants"
	"github.com/dkrugman/pf-aspect/internal/faults"
	"github.com/dkrugman/pf-aspect/internal/logger"
	"github.com/dkrugman/pf-aspect/internal/store"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobRegistered = errors.New("job name already registered")
	ErrNotStarted    = errors.New("scheduler not started")
)

// Job is a unit of scheduled work. Run must honor ctx cancellation; OnCancel
// is called once after a run that ended because the scheduler shut down, so
// the job can release partial state.
type Job interface {
	Run(ctx context.Context) error
	OnCancel()
}

// JobFunc adapts a bare function to the Job interface with a no-op OnCancel.
type JobFunc func(ctx context.Context) error

func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }
func (f JobFunc) OnCancel()                     {}

// JobStatus is the externally visible state of one registered job.
type JobStatus struct {
	Name     string    `json:"name"`
	Interval string    `json:"interval"`
	LastRun  time.Time `json:"last_run"`
	NextRun  time.Time `json:"next_run"`
	Running  bool      `json:"running"`
}

type registration struct {
	name     string
	interval time.Duration
	job      Job
	lastRun  time.Time
	running  bool
}

// Scheduler owns a set of registered jobs and a single timing loop. All
// state lives on the instance; two schedulers never share clocks.
type Scheduler struct {
	db     *store.DB
	logger *logger.Logger

	mu    sync.Mutex
	jobs  map[string]*registration
	order []string

	tick    time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a scheduler backed by the given store for run persistence.
func New(db *store.DB, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Default()
	}
	return &Scheduler{
		db:     db,
		logger: log.WithComponent("scheduler"),
		jobs:   make(map[string]*registration),
		tick:   constants.SchedulerTick,
	}
}

// Register adds a named job with its interval. Names are unique; a second
// registration under the same name is rejected. Registration after Start
// takes effect on the next tick.
func (s *Scheduler) Register(name string, interval time.Duration, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return ErrJobRegistered
	}
	s.jobs[name] = &registration{name: name, interval: interval, job: job}
	s.order = append(s.order, name)
	return nil
}

// Start loads persisted run times and begins the timing loop. A job whose
// interval already elapsed while the process was down is due immediately.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.Background())

	for _, name := range s.order {
		reg := s.jobs[name]
		state, err := s.db.GetTimerState(name)
		if err != nil {
			s.logger.Error("Failed to load job state", "job", name, "error", err)
			continue
		}
		if state != nil {
			reg.lastRun = time.Unix(0, int64(state.LastRun*1e9))
		}
	}
	s.mu.Unlock()

	s.logger.Info("Starting scheduler", "jobs", len(s.order))
	s.wg.Add(1)
	go s.loop()
}

// Stop cancels running jobs and waits for them to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler")
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.launchDue()
		}
	}
}

func (s *Scheduler) launchDue() {
	now := time.Now()

	s.mu.Lock()
	var due []*registration
	for _, name := range s.order {
		reg := s.jobs[name]
		if reg.running {
			continue
		}
		if reg.lastRun.IsZero() || !now.Before(reg.lastRun.Add(reg.interval)) {
			due = append(due, reg)
		}
	}
	s.mu.Unlock()

	for _, reg := range due {
		s.launch(reg, now)
	}
}

// launch persists the run time before the job goroutine starts. A crash
// mid-run therefore waits out the interval instead of hot-looping the same
// failing job on every restart.
func (s *Scheduler) launch(reg *registration, now time.Time) {
	s.mu.Lock()
	if reg.running || s.ctx == nil || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	reg.running = true
	reg.lastRun = now
	s.mu.Unlock()

	if err := s.db.SaveTimerState(reg.name, float64(now.UnixNano())/1e9); err != nil {
		s.logger.Error("Failed to persist job run", "job", reg.name, "error", err)
	}

	runID := uuid.New().String()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJob(reg, runID)
	}()
}

func (s *Scheduler) runJob(reg *registration, runID string) {
	log := s.logger.WithJob(reg.name, runID)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic in job", "panic", r)
		}
		s.mu.Lock()
		reg.running = false
		s.mu.Unlock()
	}()

	log.Info("Running job")
	start := time.Now()
	err := reg.job.Run(s.ctx)

	switch {
	case err == nil:
		log.Info("Job completed", "duration", time.Since(start))
	case errors.Is(err, context.Canceled):
		log.Info("Job cancelled")
		reg.job.OnCancel()
	default:
		log.Error("Job failed", "kind", faults.KindOf(err).String(), "duration", time.Since(start), "error", err)
	}
}

// RunNow launches a job outside its schedule. A job already running is left
// alone; the call reports success and the running instance carries on.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	reg, ok := s.jobs[name]
	started := s.started
	s.mu.Unlock()

	if !ok {
		return ErrJobNotFound
	}
	if !started {
		return ErrNotStarted
	}
	s.launch(reg, time.Now())
	return nil
}

// TimeUntilNext reports how long until the named job is due. A job that has
// never run is due now.
func (s *Scheduler) TimeUntilNext(name string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.jobs[name]
	if !ok {
		return 0, ErrJobNotFound
	}
	if reg.lastRun.IsZero() {
		return 0, nil
	}
	remaining := time.Until(reg.lastRun.Add(reg.interval))
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// Jobs returns the status of every registered job in registration order.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.order))
	for _, name := range s.order {
		reg := s.jobs[name]
		status := JobStatus{
			Name:     name,
			Interval: reg.interval.String(),
			LastRun:  reg.lastRun,
			Running:  reg.running,
		}
		if !reg.lastRun.IsZero() {
			status.NextRun = reg.lastRun.Add(reg.interval)
		}
		statuses = append(statuses, status)
	}
	return statuses
}
