package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"sew/internal/eventbus"
	"sew/internal/plan"
	"sew/internal/storage"
	"sew/internal/task/engine"
	"sew/pkg/logx"
)

// earlyFireSlack is how early a timer may fire, by wall clock, before it is
// re-armed. Timers run on the monotonic clock; job times are wall clock.
const earlyFireSlack = 2 * time.Millisecond

const enqueueWarnThrottle = 5 * time.Second

type Option func(*Service)

// WithLedger makes firings survive restarts.
func WithLedger(l Ledger) Option { return func(s *Service) { s.ledger = l } }

// WithStatusHook receives every periodic status report.
func WithStatusHook(fn func(Status)) Option { return func(s *Service) { s.statusHook = fn } }

// WithClock overrides the wall clock used to compare job times.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

type jobEntry struct {
	job     plan.Job
	state   JobState
	timer   *time.Timer
	firedAt time.Time
	took    time.Duration
	err     string
}

type Service struct {
	mu sync.Mutex

	cfg Config
	loc *time.Location
	log logx.Logger
	bus eventbus.Bus

	engine     *engine.Service
	invoker    Invoker
	ledger     Ledger
	statusHook func(Status)
	now        func() time.Time

	state   State
	gen     uint64
	session string
	jobs    map[string]*jobEntry
	order   []*jobEntry
	// fired survives reloads so a job is never fired twice by this process.
	fired map[string]struct{}

	pending  int
	inFlight int
	idle     chan struct{}

	parser cron.Parser
	c      *cron.Cron

	enqMu       sync.Mutex
	lastEnqWarn time.Time
}

// New creates a scheduler. Fired jobs run on eng; a nil eng runs each
// action on its own goroutine.
func New(cfg Config, eng *engine.Service, inv Invoker, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	s := &Service{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "scheduler")),
		bus:     bus,
		engine:  eng,
		invoker: inv,
		now:     time.Now,
		jobs:    map[string]*jobEntry{},
		fired:   map[string]struct{}{},
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	for _, o := range opts {
		o(s)
	}
	s.loc = time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			s.loc = loc
		} else {
			s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		}
	}
	return s
}

// Location is the zone used for human-facing times.
func (s *Service) Location() *time.Location { return s.loc }

// Load replaces the pending set with jobs. Pending jobs of a previous load
// are discarded; jobs already fired keep running to completion.
func (s *Service) Load(ctx context.Context, jobs []plan.Job) (LoadReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sorted := append([]plan.Job(nil), jobs...)
	plan.SortByTime(sorted)

	// Ledger lookups happen before taking the lock; they may hit disk.
	persisted := map[string]bool{}
	if s.ledger != nil {
		for _, j := range sorted {
			ok, err := s.ledger.WasFired(ctx, j.ID)
			if err != nil {
				return LoadReport{}, fmt.Errorf("ledger lookup %s: %w", j.ID, err)
			}
			if ok {
				persisted[j.ID] = true
			}
		}
	}

	var events []eventbus.Event
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return LoadReport{}, ErrStopped
	}

	rep := LoadReport{Session: uuid.NewString()}
	for _, e := range s.order {
		if e.state != Pending {
			continue
		}
		e.timer.Stop()
		rep.Replaced++
	}

	s.gen++
	gen := s.gen
	s.session = rep.Session
	s.jobs = make(map[string]*jobEntry, len(sorted))
	s.order = make([]*jobEntry, 0, len(sorted))
	s.pending = 0

	now := s.now()
	for _, j := range sorted {
		if _, dup := s.jobs[j.ID]; dup {
			s.log.Warn("duplicate job id ignored", logx.String("job", j.ID), logx.String("kind", string(j.Command.Kind)))
			continue
		}
		e := &jobEntry{job: j}
		s.jobs[j.ID] = e
		s.order = append(s.order, e)

		_, firedHere := s.fired[j.ID]
		if firedHere || persisted[j.ID] {
			e.state = AlreadyFired
			rep.AlreadyFired++
			continue
		}

		late := now.Sub(j.At)
		if late > s.cfg.MissedGrace && s.cfg.MissedPolicy == MissedDrop {
			e.state = Missed
			rep.Missed++
			s.log.Warn("job missed", logx.String("job", j.ID), logx.String("kind", string(j.Command.Kind)),
				logx.String("desc", j.Command.Description), logx.Duration("late", late))
			events = append(events, s.jobEvent(eventbus.JobMissed, now, e, rep.Session))
			continue
		}
		if late > 0 {
			rep.Late++
		}

		e.state = Pending
		s.pending++
		rep.Scheduled++
		e.timer = time.AfterFunc(max(-late, 0), func() { s.fire(gen, e) })
	}

	s.state = Loaded
	s.updateIdleLocked()
	s.mu.Unlock()

	for _, ev := range events {
		s.publish(ev)
	}
	le := LoadEvent{LoadReport: rep}
	if len(sorted) > 0 {
		le.First, le.Last = sorted[0].At, sorted[len(sorted)-1].At
	}
	s.publish(eventbus.Event{Type: eventbus.PlanLoaded, Time: now, Data: le})
	s.log.Info("plan loaded",
		logx.String("session", rep.Session),
		logx.Int("scheduled", rep.Scheduled),
		logx.Int("late", rep.Late),
		logx.Int("missed", rep.Missed),
		logx.Int("already_fired", rep.AlreadyFired),
		logx.Int("replaced", rep.Replaced),
	)
	return rep, nil
}

func (s *Service) fire(gen uint64, e *jobEntry) {
	s.mu.Lock()
	if s.state == Stopped || gen != s.gen || e.state != Pending {
		s.mu.Unlock()
		return
	}
	now := s.now()
	if early := e.job.At.Sub(now); early > earlyFireSlack {
		e.timer = time.AfterFunc(early, func() { s.fire(gen, e) })
		s.mu.Unlock()
		return
	}
	e.state = Fired
	e.firedAt = now
	s.fired[e.job.ID] = struct{}{}
	s.pending--
	s.inFlight++
	session := s.session
	s.mu.Unlock()

	job := e.job
	s.log.Info("job fired",
		logx.String("job", job.ID),
		logx.String("kind", string(job.Command.Kind)),
		logx.String("desc", job.Command.Description),
		logx.Duration("lateness", now.Sub(job.At)),
	)
	if s.ledger != nil {
		lctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := s.ledger.MarkFired(lctx, storage.FiredJob{
			JobID:       job.ID,
			Session:     session,
			Kind:        string(job.Command.Kind),
			Description: job.Command.Description,
			ScheduledAt: job.At,
			FiredAt:     now,
		})
		cancel()
		if err != nil {
			s.log.Warn("ledger mark failed", logx.String("job", job.ID), logx.Err(err))
		}
	}
	s.publish(s.jobEvent(eventbus.JobFired, now, e, session))

	task := engine.Task{
		ID:      job.ID,
		Name:    string(job.Command.Kind),
		Timeout: s.cfg.JobTimeout,
		Run: func(ctx context.Context) error {
			start := time.Now()
			defer func() {
				if r := recover(); r != nil {
					s.complete(e, session, start, fmt.Errorf("panic: %v", r))
					panic(r)
				}
			}()
			err := s.invoker.Invoke(ctx, job.ID, job.Command)
			s.complete(e, session, start, err)
			return err
		},
		Dropped: func(reason error) {
			s.complete(e, session, time.Now(), fmt.Errorf("not run: %w", reason))
		},
	}

	if s.engine == nil {
		go func() {
			defer func() { _ = recover() }()
			_ = task.Run(context.Background())
		}()
		return
	}
	if err := s.engine.Enqueue(task); err != nil {
		s.reportEnqueueError(job, err)
		s.complete(e, session, now, fmt.Errorf("enqueue: %w", err))
	}
}

func (s *Service) complete(e *jobEntry, session string, start time.Time, err error) {
	took := time.Since(start)
	s.mu.Lock()
	if e.state != Fired {
		s.mu.Unlock()
		return
	}
	e.state = Completed
	e.took = took
	if err != nil {
		e.err = err.Error()
	}
	s.inFlight--
	s.updateIdleLocked()
	s.mu.Unlock()

	job := e.job
	if s.ledger != nil {
		lctx, cancel := context.WithTimeout(context.Background(), time.Second)
		rerr := s.ledger.AppendRun(lctx, storage.RunRecord{
			JobID:       job.ID,
			Session:     session,
			Kind:        string(job.Command.Kind),
			Description: job.Command.Description,
			ScheduledAt: job.At,
			StartedAt:   start,
			Duration:    took,
			Error:       e.err,
		})
		cancel()
		if rerr != nil {
			s.log.Debug("run record failed", logx.String("job", job.ID), logx.Err(rerr))
		}
	}

	typ := eventbus.JobCompleted
	if err != nil {
		typ = eventbus.JobFailed
		s.log.Error("job failed", logx.String("job", job.ID), logx.String("kind", string(job.Command.Kind)),
			logx.String("desc", job.Command.Description), logx.Duration("took", took), logx.Err(err))
	} else {
		s.log.Debug("job completed", logx.String("job", job.ID), logx.Duration("took", took))
	}
	s.mu.Lock()
	ev := s.jobEvent(typ, time.Now(), e, session)
	s.mu.Unlock()
	s.publish(ev)
}

// Shutdown cancels every pending job and stops the status report. Actions
// already running are not interrupted. It is idempotent; the scheduler cannot
// be loaded again afterwards.
func (s *Service) Shutdown(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	var events []eventbus.Event
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return
	}
	s.state = Stopped
	now := s.now()
	for _, e := range s.order {
		if e.state != Pending {
			continue
		}
		e.timer.Stop()
		e.state = Cancelled
		events = append(events, s.jobEvent(eventbus.JobCancelled, now, e, s.session))
	}
	s.pending = 0
	s.updateIdleLocked()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	for _, ev := range events {
		s.publish(ev)
	}
	s.log.Info("scheduler stopped", logx.Int("cancelled", len(events)))
}

// WaitIdle blocks until no job is pending or running, or ctx is done.
func (s *Service) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	ch := s.idle
	s.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:      s.state,
		Session:    s.session,
		Generation: s.gen,
		Jobs:       make([]JobStatus, 0, len(s.order)),
	}
	for _, e := range s.order {
		st := JobStatus{
			ID:          e.job.ID,
			Kind:        e.job.Command.Kind,
			Description: e.job.Command.Description,
			At:          e.job.At,
			State:       e.state,
			FiredAt:     e.firedAt,
			Took:        e.took,
			Error:       e.err,
		}
		snap.Jobs = append(snap.Jobs, st)
		switch e.state {
		case Pending:
			snap.Pending++
		case Fired:
			snap.InFlight++
		case Completed:
			snap.Completed++
			if e.err != "" {
				snap.Failed++
			}
		case Cancelled:
			snap.Cancelled++
		case Missed:
			snap.Missed++
		}
	}
	return snap
}

func (s *Service) updateIdleLocked() {
	busy := s.pending > 0 || s.inFlight > 0
	switch {
	case busy && s.idle == nil:
		s.idle = make(chan struct{})
	case !busy && s.idle != nil:
		close(s.idle)
		s.idle = nil
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.SchedulerIdle, Time: s.now()})
		}
	}
}

func (s *Service) jobEvent(typ string, at time.Time, e *jobEntry, session string) eventbus.Event {
	return eventbus.Event{Type: typ, Time: at, Data: JobEvent{
		Session:     session,
		JobID:       e.job.ID,
		Kind:        e.job.Command.Kind,
		Description: e.job.Command.Description,
		At:          e.job.At,
		FiredAt:     e.firedAt,
		Took:        e.took,
		Error:       e.err,
	}}
}

func (s *Service) publish(ev eventbus.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

func (s *Service) reportEnqueueError(job plan.Job, err error) {
	now := time.Now()
	s.enqMu.Lock()
	throttled := !s.lastEnqWarn.IsZero() && now.Sub(s.lastEnqWarn) < enqueueWarnThrottle
	if !throttled {
		s.lastEnqWarn = now
	}
	s.enqMu.Unlock()
	if throttled {
		return
	}
	s.log.Warn("fired job could not be enqueued", logx.String("job", job.ID), logx.String("kind", string(job.Command.Kind)), logx.Err(err))
}
