package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/minstrelbot/minstrel/custom_errors"
	"github.com/robfig/cron/v3"
)

// Job is a registered periodic action. It fires either on a fixed interval
// or on a cron schedule, never both.
type Job struct {
	ID        string
	Name      string
	Interval  time.Duration
	Schedule  cron.Schedule
	Action    func(ctx context.Context) error
	isRunning bool
	lastRunAt *time.Time
	paused    bool
}

// LastRunAt reports when the job last finished starting a run, or nil if it
// never ran.
func (j *Job) LastRunAt() *time.Time {
	return j.lastRunAt
}

// Events receives job lifecycle notifications. For a single invocation
// OnStart always precedes OnComplete or OnError. Any callback may be nil.
type Events struct {
	OnStart    func(jobID, name string)
	OnComplete func(jobID, name string, took time.Duration)
	OnError    func(jobID, name string, err error)
}

// Scheduler runs registered jobs periodically, each serialized against
// itself: a tick that lands while the previous run is still going is
// skipped outright, never queued.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	cancels map[string]context.CancelFunc
	root    context.Context
	stop    context.CancelFunc
	started bool
	events  Events
	logger  *log.Logger
	wg      sync.WaitGroup
}

func NewScheduler(events Events, logger *log.Logger) *Scheduler {
	return &Scheduler{
		jobs:    make(map[string]*Job),
		cancels: make(map[string]context.CancelFunc),
		events:  events,
		logger:  logger,
	}
}

// RegisterJob stores an interval job definition. It does not start it.
func (s *Scheduler) RegisterJob(id, name string, interval time.Duration, action func(ctx context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", id)
	}
	return s.register(&Job{ID: id, Name: name, Interval: interval, Action: action})
}

// RegisterCronJob stores a job fired on a standard 5-field cron expression.
func (s *Scheduler) RegisterCronJob(id, name, expression string, action func(ctx context.Context) error) error {
	schedule, err := cron.ParseStandard(expression)
	if err != nil {
		return fmt.Errorf("job %s: invalid cron expression %q: %w", id, expression, err)
	}
	return s.register(&Job{ID: id, Name: name, Schedule: schedule, Action: action})
}

func (s *Scheduler) register(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already registered", job.ID)
	}
	s.jobs[job.ID] = job
	if s.started && !job.paused {
		s.launchLocked(job)
	}
	return nil
}

// Start begins an independent periodic dispatch for every registered job.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.root, s.stop = context.WithCancel(context.Background())
	s.started = true

	for _, job := range s.jobs {
		if !job.paused {
			s.launchLocked(job)
		}
	}
	s.logger.Printf("scheduler started with %d jobs", len(s.jobs))
}

// Stop halts all periodic triggers. In-flight invocations finish; new
// ticks do not start. Job definitions are retained.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.stop()
	s.cancels = make(map[string]context.CancelFunc)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Println("scheduler stopped")
}

// RunJobNow performs a single out-of-band invocation. It fails with Busy
// if the job is already running.
func (s *Scheduler) RunJobNow(ctx context.Context, id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job %s: %w", id, custom_errors.ErrNotFound)
	}
	if job.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("job %s: %w", id, custom_errors.ErrBusy)
	}
	job.isRunning = true
	s.mu.Unlock()

	s.invoke(ctx, job)
	return nil
}

// PauseJob stops the job's periodic trigger without losing its definition.
func (s *Scheduler) PauseJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, custom_errors.ErrNotFound)
	}
	job.paused = true
	if cancel, running := s.cancels[id]; running {
		cancel()
		delete(s.cancels, id)
	}
	return nil
}

// ResumeJob restarts a paused job's periodic trigger.
func (s *Scheduler) ResumeJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, custom_errors.ErrNotFound)
	}
	if !job.paused {
		return nil
	}
	job.paused = false
	if s.started {
		s.launchLocked(job)
	}
	return nil
}

// RemoveJob discards the job definition and stops its trigger.
func (s *Scheduler) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("job %s: %w", id, custom_errors.ErrNotFound)
	}
	if cancel, running := s.cancels[id]; running {
		cancel()
		delete(s.cancels, id)
	}
	delete(s.jobs, id)
	return nil
}

// Jobs returns a snapshot of registered job ids.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	return ids
}

func (s *Scheduler) launchLocked(job *Job) {
	ctx, cancel := context.WithCancel(s.root)
	s.cancels[job.ID] = cancel

	s.wg.Add(1)
	go s.loop(ctx, job)
}

func (s *Scheduler) loop(ctx context.Context, job *Job) {
	defer s.wg.Done()

	if job.Schedule != nil {
		s.cronLoop(ctx, job)
		return
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatch(ctx, job)
			// A tick that fired during the run is stale; drop it so the
			// next run waits for a fresh tick instead of making it up.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

func (s *Scheduler) cronLoop(ctx context.Context, job *Job) {
	for {
		next := job.Schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.dispatch(ctx, job)
		}
	}
}

// dispatch runs one tick. A tick that overlaps the previous run is skipped
// entirely; missed ticks are not made up.
func (s *Scheduler) dispatch(ctx context.Context, job *Job) {
	s.mu.Lock()
	if job.isRunning {
		s.mu.Unlock()
		s.logger.Printf("job %s still running, skipping tick", job.Name)
		return
	}
	job.isRunning = true
	s.mu.Unlock()

	s.invoke(ctx, job)
}

// invoke assumes isRunning was set by the caller under the lock.
func (s *Scheduler) invoke(ctx context.Context, job *Job) {
	if s.events.OnStart != nil {
		s.events.OnStart(job.ID, job.Name)
	}

	started := time.Now()
	err := s.run(ctx, job)

	s.mu.Lock()
	now := time.Now()
	job.lastRunAt = &now
	job.isRunning = false
	s.mu.Unlock()

	if err != nil {
		s.logger.Printf("job %s failed: %v", job.Name, err)
		if s.events.OnError != nil {
			s.events.OnError(job.ID, job.Name, err)
		}
		return
	}
	if s.events.OnComplete != nil {
		s.events.OnComplete(job.ID, job.Name, time.Since(started))
	}
}

func (s *Scheduler) run(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job %s: %v", job.Name, r)
		}
	}()
	return job.Action(ctx)
}
