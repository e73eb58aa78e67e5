package automation

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// defaultRetention is how long executed keys are remembered by default.
const defaultRetention = 48 * time.Hour

// maxRecent caps the execution records kept for inspection.
const maxRecent = 200

// Outcome is what happened to a job that left the pending set.
type Outcome string

// Job outcomes.
const (
	OutcomeExecuted Outcome = "executed"
	OutcomeFailed   Outcome = "failed"
	OutcomeMissed   Outcome = "missed"
	OutcomeStopped  Outcome = "stopped"
)

// Record is a job that is no longer pending.
type Record struct {
	Job     Job       `json:"job"`
	Outcome Outcome   `json:"outcome"`
	At      time.Time `json:"at"`
}

type pendingJob struct {
	job   Job
	timer *time.Timer
}

// Scheduler holds one-shot timers keyed by JobKey.
//
// AddIfAbsent is an atomic test-and-set: a key that is pending, running, or
// that ran within the retention window, is never inserted again. A job whose
// execute call fails is forgotten so the next tick can derive it again.
// State lives in memory only; after a restart the next tick re-derives what
// is still due.
type Scheduler struct {
	mu        sync.Mutex
	pending   map[string]*pendingJob
	done      map[string]time.Time
	recent    []Record
	stopped   bool
	execute   func(Job) error
	now       func() time.Time
	retention time.Duration
	logger    Logger
	running   sync.WaitGroup
}

// SchedulerOptions configures a Scheduler. Zero values select defaults.
type SchedulerOptions struct {
	Retention time.Duration
	Now       func() time.Time
	Logger    Logger
}

// NewScheduler creates a scheduler that calls execute for every job at its
// run time. execute runs on its own goroutine; a returned error (or panic)
// marks the job failed and releases its key.
func NewScheduler(execute func(Job) error, opts SchedulerOptions) *Scheduler {
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Scheduler{
		pending:   make(map[string]*pendingJob),
		done:      make(map[string]time.Time),
		execute:   execute,
		now:       opts.Now,
		retention: opts.Retention,
		logger:    opts.Logger,
	}
}

// AddIfAbsent schedules job unless its key is pending or already ran.
// It reports whether the key was claimed by this call.
//
// A job later than its misfire grace is claimed but recorded as missed
// instead of firing. A job due in the past with no grace fires at once.
func (s *Scheduler) AddIfAbsent(job Job) bool {
	key := job.Key.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	if _, ok := s.pending[key]; ok {
		return false
	}
	if _, ok := s.done[key]; ok {
		return false
	}

	now := s.now()
	delay := job.RunAt.Sub(now)

	if job.MisfireGrace > 0 && -delay > job.MisfireGrace {
		s.finishLocked(key, job, OutcomeMissed, now)
		s.logger.Info("job missed its run time",
			"job", key,
			"late_by", (-delay).Round(time.Second).String(),
		)
		return true
	}

	if delay < 0 {
		delay = 0
	}
	p := &pendingJob{job: job}
	s.pending[key] = p
	p.timer = time.AfterFunc(delay, func() { s.fire(key) })

	s.logger.Debug("job scheduled", "job", key, "run_at", job.RunAt, "in", delay.String())
	return true
}

func (s *Scheduler) fire(key string) {
	s.mu.Lock()
	p, ok := s.pending[key]
	if !ok || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	// Held in done while running so a concurrent tick cannot claim it twice.
	s.done[key] = s.now()
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	err := s.run(key, p.job)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if err != nil {
		delete(s.done, key)
		s.recordLocked(p.job, OutcomeFailed, now)
		s.logger.Warn("job failed, key released", "job", key, "error", err)
		return
	}
	s.done[key] = now
	s.recordLocked(p.job, OutcomeExecuted, now)
}

func (s *Scheduler) run(key string, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "job", key, "panic", r)
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return s.execute(job)
}

// finishLocked moves a key to the done set. Caller holds s.mu.
func (s *Scheduler) finishLocked(key string, job Job, outcome Outcome, at time.Time) {
	s.done[key] = at
	s.recordLocked(job, outcome, at)
}

func (s *Scheduler) recordLocked(job Job, outcome Outcome, at time.Time) {
	s.recent = append(s.recent, Record{Job: job, Outcome: outcome, At: at})
	if len(s.recent) > maxRecent {
		s.recent = s.recent[len(s.recent)-maxRecent:]
	}
}

// Has reports whether key is pending or remembered as done.
func (s *Scheduler) Has(key JobKey) bool {
	k := key.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, pending := s.pending[k]
	_, done := s.done[k]
	return pending || done
}

// Prune forgets done keys older than the retention window.
func (s *Scheduler) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.retention)
	removed := 0
	for key, at := range s.done {
		if at.Before(cutoff) {
			delete(s.done, key)
			removed++
		}
	}
	return removed
}

// Pending returns the pending jobs ordered by run time.
func (s *Scheduler) Pending() []Job {
	s.mu.Lock()
	jobs := make([]Job, 0, len(s.pending))
	for _, p := range s.pending {
		jobs = append(jobs, p.job)
	}
	s.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].RunAt.Equal(jobs[j].RunAt) {
			return jobs[i].Key.String() < jobs[j].Key.String()
		}
		return jobs[i].RunAt.Before(jobs[j].RunAt)
	})
	return jobs
}

// Recent returns the latest finished jobs, oldest first.
func (s *Scheduler) Recent() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.recent...)
}

// Len returns the number of pending jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending timer and waits for running jobs to return.
// Further AddIfAbsent calls are rejected.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	now := s.now()
	for key, p := range s.pending {
		p.timer.Stop()
		s.recordLocked(p.job, OutcomeStopped, now)
		delete(s.pending, key)
	}
	s.mu.Unlock()

	s.running.Wait()
}
