// Package scheduler runs the periodic outreach jobs on cron schedules.
//
// Each job is an explicit stopped/running state machine owned by a Scheduler
// instance. Every execution, scheduled or manual, holds the distributed lock
// "job:<name>" so runs of the same job never overlap.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ignite/outreach-crm/internal/metrics"
	"github.com/ignite/outreach-crm/internal/pkg/distlock"
	"github.com/ignite/outreach-crm/internal/pkg/logger"
)

// Job names.
const (
	JobScanEvents       = "scan_events"
	JobProcessTriggers  = "process_triggers"
	JobProcessLeftovers = "process_leftovers"
	JobSendPending      = "send_pending"
)

// DefaultSchedules are hourly and offset so each pass consumes the previous
// one's output.
var DefaultSchedules = map[string]string{
	JobScanEvents:       "0 * * * *",
	JobProcessTriggers:  "10 * * * *",
	JobProcessLeftovers: "30 * * * *",
	JobSendPending:      "45 * * * *",
}

// DefaultLockTTL bounds how long a crashed process can block a job.
const DefaultLockTTL = 30 * time.Minute

var (
	// ErrUnknownJob is returned for names that were never registered.
	ErrUnknownJob = errors.New("scheduler: unknown job")
	// ErrJobBusy is returned when another execution of the job holds its lock.
	ErrJobBusy = errors.New("scheduler: job is already executing")
)

// JobFunc performs one execution and returns a report for status output.
type JobFunc func(ctx context.Context) (any, error)

// State is a job's scheduling state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// JobStatus is a snapshot of one job.
type JobStatus struct {
	Name         string     `json:"name"`
	State        State      `json:"state"`
	Executing    bool       `json:"executing"`
	Schedule     string     `json:"schedule"`
	Runs         int64      `json:"runs"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastDuration string     `json:"last_duration,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	LastResult   any        `json:"last_result,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
}

type job struct {
	name     string
	spec     string
	schedule cron.Schedule
	run      JobFunc

	entryID   cron.EntryID
	executing bool
	runs      int64
	lastRun   time.Time
	lastDur   time.Duration
	lastErr   string
	lastRes   any
}

// Scheduler owns the registered jobs.
type Scheduler struct {
	locks   distlock.Locker
	lockTTL time.Duration
	metrics *metrics.Metrics
	loc     *time.Location
	now     func() time.Time

	mu       sync.Mutex
	idle     *sync.Cond
	active   int
	jobs     map[string]*job
	order    []string
	cron     *cron.Cron
	ticking  bool
	baseCtx  context.Context
	cancelFn context.CancelFunc
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLockTTL sets the lifetime of the per-job lock.
func WithLockTTL(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

// WithMetrics records executions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLocation evaluates cron expressions in loc.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// New creates a Scheduler with no jobs. A nil locker uses process-local locks.
func New(locks distlock.Locker, opts ...Option) *Scheduler {
	if locks == nil {
		locks = distlock.NewProvider(nil, nil)
	}
	s := &Scheduler{
		locks:   locks,
		lockTTL: DefaultLockTTL,
		loc:     time.Local,
		now:     time.Now,
		jobs:    make(map[string]*job),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.idle = sync.NewCond(&s.mu)
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(cronLogger{})),
	)
	s.baseCtx, s.cancelFn = context.WithCancel(context.Background())
	return s
}

// Register adds a stopped job. spec is a standard five-field cron expression.
func (s *Scheduler) Register(name, spec string, fn JobFunc) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", name, spec, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %s: already registered", name)
	}
	s.jobs[name] = &job{name: name, spec: spec, schedule: sched, run: fn}
	s.order = append(s.order, name)
	return nil
}

// Jobs returns the registered names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Start schedules every job. Calling it again is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range s.order {
		s.startLocked(s.jobs[name])
	}
	logger.Info("[Scheduler] Started", "jobs", len(s.order))
}

// StartJob schedules one job.
func (s *Scheduler) StartJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	s.startLocked(j)
	return nil
}

func (s *Scheduler) startLocked(j *job) {
	if j.entryID != 0 {
		return
	}
	if s.baseCtx.Err() != nil {
		s.baseCtx, s.cancelFn = context.WithCancel(context.Background())
	}
	name := j.name
	j.entryID = s.cron.Schedule(j.schedule, cron.FuncJob(func() { s.scheduledRun(name) }))
	if !s.ticking {
		s.cron.Start()
		s.ticking = true
	}
	logger.Info("[Scheduler] Job started", "job", name, "schedule", j.spec)
}

// StopJob unschedules one job. An execution in flight finishes normally.
func (s *Scheduler) StopJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	s.stopLocked(j)
	return nil
}

func (s *Scheduler) stopLocked(j *job) {
	if j.entryID == 0 {
		return
	}
	s.cron.Remove(j.entryID)
	j.entryID = 0
	logger.Info("[Scheduler] Job stopped", "job", j.name)
}

// Stop unschedules every job and cancels running executions. The returned
// context is done once every execution, scheduled or manual, has returned.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	for _, name := range s.order {
		s.stopLocked(s.jobs[name])
	}
	cronDone := context.Background()
	if s.ticking {
		cronDone = s.cron.Stop()
		s.ticking = false
	}
	s.cancelFn()
	s.mu.Unlock()

	done, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		s.mu.Lock()
		for s.active > 0 {
			s.idle.Wait()
		}
		s.mu.Unlock()
		cancel()
	}()
	logger.Info("[Scheduler] Stopping")
	return done
}

// RunJobManually executes name synchronously with ctx and returns its report.
// It fails with ErrJobBusy when the job is already executing anywhere.
func (s *Scheduler) RunJobManually(ctx context.Context, name string) (any, error) {
	return s.execute(ctx, name, "manual")
}

func (s *Scheduler) scheduledRun(name string) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if _, err := s.execute(ctx, name, "cron"); errors.Is(err, ErrJobBusy) {
		logger.Warn("[Scheduler] Skipping tick, job busy", "job", name)
	}
}

func (s *Scheduler) execute(ctx context.Context, name, origin string) (any, error) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if j.executing {
		s.mu.Unlock()
		return nil, ErrJobBusy
	}
	j.executing = true
	s.active++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		j.executing = false
		s.active--
		if s.active == 0 {
			s.idle.Broadcast()
		}
		s.mu.Unlock()
	}()

	lock := s.locks.Lock("job:"+name, s.lockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("job %s: acquire lock: %w", name, err)
	}
	if !acquired {
		return nil, ErrJobBusy
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("[Scheduler] Lock release failed", "job", name, "error", err)
		}
	}()
	stopRenew := s.renewLock(ctx, name, lock)
	defer stopRenew()

	logger.Info("[Scheduler] Job running", "job", name, "origin", origin)
	start := s.now()
	res, runErr := s.safeRun(ctx, j)
	dur := s.now().Sub(start)
	s.metrics.ObserveJob(name, dur, runErr)

	s.mu.Lock()
	j.runs++
	j.lastRun = start
	j.lastDur = dur
	j.lastRes = res
	j.lastErr = ""
	if runErr != nil {
		j.lastErr = runErr.Error()
	}
	s.mu.Unlock()

	if runErr != nil {
		logger.Error("[Scheduler] Job failed", "job", name, "duration", dur, "error", runErr)
	} else {
		logger.Info("[Scheduler] Job finished", "job", name, "duration", dur)
	}
	return res, runErr
}

// renewLock extends an expiring job lock every half TTL until the returned
// func is called, so a run longer than the TTL keeps exclusive ownership.
func (s *Scheduler) renewLock(ctx context.Context, name string, lock distlock.DistLock) func() {
	ext, ok := lock.(distlock.Extender)
	if !ok || s.lockTTL <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.lockTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := ext.Extend(context.WithoutCancel(ctx), s.lockTTL); err != nil {
					logger.Warn("[Scheduler] Lock renewal failed", "job", name, "error", err)
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// safeRun turns a panicking job into an error so its state is still recorded.
func (s *Scheduler) safeRun(ctx context.Context, j *job) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}
	}()
	return j.run(ctx)
}

// Status returns a snapshot of every job.
func (s *Scheduler) Status() map[string]JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]JobStatus, len(s.jobs))
	now := s.now().In(s.loc)
	for name, j := range s.jobs {
		st := JobStatus{
			Name:      name,
			State:     StateStopped,
			Executing: j.executing,
			Schedule:  j.spec,
			Runs:      j.runs,
			LastError: j.lastErr,
		}
		if j.runs > 0 {
			last := j.lastRun
			st.LastRun = &last
			st.LastDuration = j.lastDur.String()
			st.LastResult = j.lastRes
		}
		if j.entryID != 0 {
			st.State = StateRunning
			next := s.cron.Entry(j.entryID).Next
			if next.IsZero() {
				next = j.schedule.Next(now)
			}
			st.NextRun = &next
		}
		out[name] = st
	}
	return out
}

// cronLogger routes cron's internal logging through the package logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("[Scheduler] cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("[Scheduler] cron: "+msg, append(keysAndValues, "error", err)...)
}
