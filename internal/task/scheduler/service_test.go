package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sew/internal/eventbus"
	"sew/internal/moments"
	"sew/internal/plan"
	"sew/internal/script"
	"sew/internal/storage"
	"sew/internal/task/engine"
	"sew/pkg/logx"
)

type invocation struct {
	id string
	at time.Time
}

type recordingInvoker struct {
	mu    sync.Mutex
	calls []invocation
	err   error
}

func (r *recordingInvoker) Invoke(_ context.Context, jobID string, _ script.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, invocation{id: jobID, at: time.Now()})
	return r.err
}

func (r *recordingInvoker) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.id)
	}
	return out
}

type memLedger struct {
	mu    sync.Mutex
	fired map[string]storage.FiredJob
	runs  []storage.RunRecord
}

func newMemLedger(ids ...string) *memLedger {
	l := &memLedger{fired: map[string]storage.FiredJob{}}
	for _, id := range ids {
		l.fired[id] = storage.FiredJob{JobID: id}
	}
	return l
}

func (l *memLedger) MarkFired(_ context.Context, j storage.FiredJob) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fired[j.JobID] = j
	return nil
}

func (l *memLedger) WasFired(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.fired[id]
	return ok, nil
}

func (l *memLedger) AppendRun(_ context.Context, r storage.RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, r)
	return nil
}

func job(id string, at time.Time) plan.Job {
	return plan.Job{ID: id, At: at, Command: script.Command{Kind: script.KindTakePicture, Description: id}}
}

func newTestScheduler(t *testing.T, cfg Config, inv Invoker, bus eventbus.Bus, opts ...Option) *Service {
	t.Helper()
	eng := engine.New(engine.Config{Workers: 2}, logx.Nop(), bus)
	eng.Start(context.Background())
	s := New(cfg, eng, inv, logx.Nop(), bus, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Shutdown(ctx)
		eng.Stop(ctx)
	})
	return s
}

func waitIdle(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
}

func stateOf(s *Service, id string) JobState {
	for _, j := range s.Snapshot().Jobs {
		if j.ID == id {
			return j.State
		}
	}
	return -1
}

func TestJobsFireAtTheirTime(t *testing.T) {
	t.Parallel()
	inv := &recordingInvoker{}
	s := newTestScheduler(t, Config{}, inv, nil)

	now := time.Now()
	jobs := []plan.Job{job("b", now.Add(80*time.Millisecond)), job("a", now.Add(40*time.Millisecond))}
	rep, err := s.Load(context.Background(), jobs)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if rep.Scheduled != 2 || rep.Session == "" {
		t.Fatalf("report = %+v", rep)
	}
	if s.Snapshot().State != Loaded {
		t.Fatalf("state = %v", s.Snapshot().State)
	}
	waitIdle(t, s)

	inv.mu.Lock()
	calls := append([]invocation(nil), inv.calls...)
	inv.mu.Unlock()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	want := map[string]time.Time{"a": jobs[1].At, "b": jobs[0].At}
	for _, c := range calls {
		if c.at.Before(want[c.id]) {
			t.Fatalf("job %s invoked %v before its time", c.id, want[c.id].Sub(c.at))
		}
	}
	for _, id := range []string{"a", "b"} {
		if st := stateOf(s, id); st != Completed {
			t.Fatalf("job %s state = %v", id, st)
		}
	}
}

func TestCoincidingJobsBothFire(t *testing.T) {
	t.Parallel()
	inv := &recordingInvoker{}
	s := newTestScheduler(t, Config{}, inv, nil)
	at := time.Now().Add(30 * time.Millisecond)
	if _, err := s.Load(context.Background(), []plan.Job{job("x", at), job("y", at)}); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	waitIdle(t, s)
	if n := len(inv.ids()); n != 2 {
		t.Fatalf("invocations = %d, want 2", n)
	}
}

func TestLoadReplacesPendingSet(t *testing.T) {
	t.Parallel()
	inv := &recordingInvoker{}
	s := newTestScheduler(t, Config{}, inv, nil)
	now := time.Now()

	if _, err := s.Load(context.Background(), []plan.Job{job("old", now.Add(150*time.Millisecond))}); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	rep, err := s.Load(context.Background(), []plan.Job{job("new", now.Add(30*time.Millisecond))})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if rep.Replaced != 1 {
		t.Fatalf("Replaced = %d, want 1", rep.Replaced)
	}
	waitIdle(t, s)
	time.Sleep(200 * time.Millisecond)
	if ids := inv.ids(); len(ids) != 1 || ids[0] != "new" {
		t.Fatalf("invoked = %v, want [new]", ids)
	}
	if s.Snapshot().Generation != 2 {
		t.Fatalf("generation = %d", s.Snapshot().Generation)
	}
}

func TestMissedPolicy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		policy MissedPolicy
		grace  time.Duration
		late   time.Duration
		fires  bool
	}{
		{name: "drop far past", policy: MissedDrop, late: 10 * time.Second, fires: false},
		{name: "drop within grace", policy: MissedDrop, grace: time.Second, late: 200 * time.Millisecond, fires: true},
		{name: "drop no grace", policy: MissedDrop, grace: -1, late: 200 * time.Millisecond, fires: false},
		{name: "fire far past", policy: MissedFire, late: time.Hour, fires: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			inv := &recordingInvoker{}
			bus := eventbus.New()
			events, unsub := bus.Subscribe(16)
			defer unsub()
			s := newTestScheduler(t, Config{MissedPolicy: tt.policy, MissedGrace: tt.grace}, inv, bus)

			rep, err := s.Load(context.Background(), []plan.Job{job("late", time.Now().Add(-tt.late))})
			if err != nil {
				t.Fatalf("Load error: %v", err)
			}
			waitIdle(t, s)
			fired := len(inv.ids()) == 1
			if fired != tt.fires {
				t.Fatalf("fired = %v, want %v (report %+v)", fired, tt.fires, rep)
			}
			if !tt.fires {
				if rep.Missed != 1 || stateOf(s, "late") != Missed {
					t.Fatalf("report = %+v state = %v", rep, stateOf(s, "late"))
				}
				deadline := time.After(time.Second)
				for {
					select {
					case ev := <-events:
						if ev.Type == eventbus.JobMissed {
							return
						}
					case <-deadline:
						t.Fatal("no job.missed event")
					}
				}
			}
			if rep.Late != 1 {
				t.Fatalf("Late = %d, want 1", rep.Late)
			}
		})
	}
}

func TestShutdownCancelsPendingAndIsIdempotent(t *testing.T) {
	t.Parallel()
	inv := &recordingInvoker{}
	s := newTestScheduler(t, Config{}, inv, nil)
	if _, err := s.Load(context.Background(), []plan.Job{job("p", time.Now().Add(80*time.Millisecond))}); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	s.Shutdown(context.Background())
	s.Shutdown(context.Background())
	time.Sleep(150 * time.Millisecond)

	if ids := inv.ids(); len(ids) != 0 {
		t.Fatalf("invoked after shutdown: %v", ids)
	}
	snap := s.Snapshot()
	if snap.State != Stopped || snap.Cancelled != 1 || stateOf(s, "p") != Cancelled {
		t.Fatalf("snapshot = %+v", snap)
	}
	if _, err := s.Load(context.Background(), []plan.Job{job("q", time.Now())}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Load after Shutdown = %v, want ErrStopped", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("Start after Shutdown = %v, want ErrStopped", err)
	}
	waitIdle(t, s)
}

func TestFailureIsReportedNotRetried(t *testing.T) {
	t.Parallel()
	inv := &recordingInvoker{err: errors.New("camera busy")}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	s := newTestScheduler(t, Config{}, inv, bus)

	if _, err := s.Load(context.Background(), []plan.Job{job("f", time.Now().Add(10*time.Millisecond))}); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	waitIdle(t, s)
	time.Sleep(50 * time.Millisecond)
	if n := len(inv.ids()); n != 1 {
		t.Fatalf("invocations = %d, want 1", n)
	}
	snap := s.Snapshot()
	if snap.Completed != 1 || snap.Failed != 1 || snap.Jobs[0].Error == "" {
		t.Fatalf("snapshot = %+v", snap)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type != eventbus.JobFailed {
				continue
			}
			je, ok := ev.Data.(JobEvent)
			if !ok || je.JobID != "f" || je.Error == "" {
				t.Fatalf("event data = %#v", ev.Data)
			}
			return
		case <-deadline:
			t.Fatal("no job.failed event")
		}
	}
}

func TestReloadNeverRefires(t *testing.T) {
	t.Parallel()
	inv := &recordingInvoker{}
	s := newTestScheduler(t, Config{MissedPolicy: MissedFire}, inv, nil)
	jobs := []plan.Job{job("once", time.Now().Add(10*time.Millisecond))}

	if _, err := s.Load(context.Background(), jobs); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	waitIdle(t, s)
	rep, err := s.Load(context.Background(), jobs)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	waitIdle(t, s)
	if rep.AlreadyFired != 1 || len(inv.ids()) != 1 {
		t.Fatalf("report = %+v invocations = %v", rep, inv.ids())
	}
}

func TestRehearsalDoesNotConsumeRealRun(t *testing.T) {
	t.Parallel()
	inv := &recordingInvoker{}
	s := newTestScheduler(t, Config{}, inv, nil, WithLedger(newMemLedger()))
	now := time.Now()
	set := moments.Set{moments.C2: {Name: moments.C2, TimeUTC: now.Add(150 * time.Millisecond)}}
	cmds := []script.Command{{Kind: script.KindTakePicture, Anchor: moments.C2, Description: "C2"}}

	rehearsal, err := plan.Resolve(cmds, set, plan.Options{Simulation: &plan.Simulation{Anchor: moments.C2, Target: now.Add(30 * time.Millisecond)}})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if _, err := s.Load(context.Background(), rehearsal.Jobs); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	waitIdle(t, s)

	real, err := plan.Resolve(cmds, set, plan.Options{})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	rep, err := s.Load(context.Background(), real.Jobs)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if rep.Scheduled != 1 || rep.AlreadyFired != 0 {
		t.Fatalf("real load report = %+v", rep)
	}
	waitIdle(t, s)
	if ids := inv.ids(); len(ids) != 2 || ids[0] == ids[1] {
		t.Fatalf("invoked = %v, want rehearsal and real job", ids)
	}
}

func TestLedgerSkipsFiredJobs(t *testing.T) {
	t.Parallel()
	inv := &recordingInvoker{}
	ledger := newMemLedger("done")
	s := newTestScheduler(t, Config{}, inv, nil, WithLedger(ledger))
	at := time.Now().Add(20 * time.Millisecond)

	rep, err := s.Load(context.Background(), []plan.Job{job("done", at), job("todo", at)})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if rep.AlreadyFired != 1 || rep.Scheduled != 1 {
		t.Fatalf("report = %+v", rep)
	}
	waitIdle(t, s)
	if ids := inv.ids(); len(ids) != 1 || ids[0] != "todo" {
		t.Fatalf("invoked = %v", ids)
	}
	if ok, _ := ledger.WasFired(context.Background(), "todo"); !ok {
		t.Fatal("todo not recorded in ledger")
	}
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	if len(ledger.runs) != 1 || ledger.runs[0].JobID != "todo" || ledger.runs[0].Session != rep.Session {
		t.Fatalf("runs = %+v", ledger.runs)
	}
}

func TestStatusReportsNextJob(t *testing.T) {
	t.Parallel()
	got := make(chan Status, 1)
	s := newTestScheduler(t, Config{}, &recordingInvoker{}, nil, WithStatusHook(func(st Status) { got <- st }))
	at := time.Now().Add(time.Hour)
	if _, err := s.Load(context.Background(), []plan.Job{job("later", at)}); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	s.reportStatus()
	st := <-got
	if st.Next == nil || st.Next.ID != "later" {
		t.Fatalf("next = %+v", st.Next)
	}
	if st.Countdown <= 59*time.Minute || st.Snapshot.Pending != 1 {
		t.Fatalf("status = %+v", st)
	}
}

func TestStatusReportStopsWithContext(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, Config{StatusEvery: "1s"}, &recordingInvoker{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	running := func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.c != nil
	}
	if !running() {
		t.Fatal("status report not started")
	}
	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for running() {
		if time.Now().After(deadline) {
			t.Fatal("status report still running after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWaitIdleWithoutJobs(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, &recordingInvoker{}, logx.Nop(), nil)
	if _, err := s.Load(context.Background(), nil); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	waitIdle(t, s)
}

func TestParseMissedPolicy(t *testing.T) {
	t.Parallel()
	for raw, want := range map[string]MissedPolicy{"": MissedDrop, "DROP": MissedDrop, " fire ": MissedFire} {
		got, err := ParseMissedPolicy(raw)
		if err != nil || got != want {
			t.Fatalf("ParseMissedPolicy(%q) = %v, %v", raw, got, err)
		}
	}
	if _, err := ParseMissedPolicy("retry"); err == nil {
		t.Fatal("expected error")
	}
}
