package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"sew/internal/eventbus"
	"sew/internal/script"
	"sew/internal/task/engine"
	"sew/internal/task/scheduler"
	"sew/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
	fails int
}

func (f *fakeSender) SendText(_ context.Context, chatID int64, _ int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if chatID != 42 {
		return errors.New("wrong chat")
	}
	if f.fails > 0 {
		f.fails--
		return errors.New("telegram: 502")
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func waitSent(t *testing.T, f *fakeSender, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.sent(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sent %d messages, want %d", len(f.sent()), n)
	return nil
}

func startService(t *testing.T, cfg Config, sender Sender, bus eventbus.Bus) *Service {
	t.Helper()
	cfg.Enabled = true
	cfg.ChatID = 42
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = 100
	}
	s := New(cfg, sender, logx.Nop(), bus, time.UTC)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func TestFailedJobIsNotified(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	sender := &fakeSender{}
	startService(t, Config{}, sender, bus)

	bus.Publish(eventbus.Event{Type: eventbus.JobCompleted, Time: time.Now(), Data: scheduler.JobEvent{JobID: "ok"}})
	bus.Publish(eventbus.Event{Type: eventbus.JobFailed, Time: time.Now(), Data: scheduler.JobEvent{
		JobID:       "j1",
		Kind:        script.KindTakePicture,
		Description: "Totality",
		At:          time.Date(2024, 4, 8, 18, 14, 0, 0, time.UTC),
		Error:       "camera busy",
	}})
	got := waitSent(t, sender, 1)
	if len(got) != 1 {
		t.Fatalf("sent = %q", got)
	}
	for _, want := range []string{"take_picture failed", "Totality", "18:14:00.0 UTC", "camera busy"} {
		if !strings.Contains(got[0], want) {
			t.Fatalf("message %q missing %q", got[0], want)
		}
	}
}

func TestRetryThenDeliver(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{fails: 2}
	s := startService(t, Config{RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}, sender, nil)
	if err := s.Notify(context.Background(), Notification{Priority: 5, Text: "hello"}); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	got := waitSent(t, sender, 1)
	if got[0] != "ℹ️ hello" {
		t.Fatalf("text = %q", got[0])
	}
}

func TestDedupWindow(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	s := startService(t, Config{DedupWindow: time.Minute}, sender, nil)
	for i := 0; i < 3; i++ {
		_ = s.Notify(context.Background(), Notification{Text: "same"})
	}
	_ = s.Notify(context.Background(), Notification{Text: "other"})
	waitSent(t, sender, 2)
	time.Sleep(30 * time.Millisecond)
	if n := len(sender.sent()); n != 2 {
		t.Fatalf("sent = %d, want 2", n)
	}
}

func TestDisabledAndStopped(t *testing.T) {
	t.Parallel()
	s := New(Config{}, &fakeSender{}, logx.Nop(), nil, nil)
	if err := s.Notify(context.Background(), Notification{Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Notify = %v, want ErrDisabled", err)
	}
	s = New(Config{Enabled: true, ChatID: 42}, &fakeSender{}, logx.Nop(), nil, nil)
	if err := s.Notify(context.Background(), Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Notify = %v, want ErrStopped", err)
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 4, 8, 18, 14, 0, 0, time.UTC)
	tests := []struct {
		name string
		ev   eventbus.Event
		ok   bool
		want string
		prio int
	}{
		{
			name: "loaded",
			ev:   eventbus.Event{Type: eventbus.PlanLoaded, Data: scheduler.LoadEvent{LoadReport: scheduler.LoadReport{Scheduled: 3, Missed: 1}, First: at, Last: at}},
			ok:   true, want: "3 jobs scheduled (1 missed, 0 already fired)", prio: 5,
		},
		{
			name: "missed",
			ev:   eventbus.Event{Type: eventbus.JobMissed, Data: scheduler.JobEvent{Kind: script.KindVoicePrompt, At: at}},
			ok:   true, want: "voice_prompt missed: - (at 18:14:00.0 UTC)", prio: 7,
		},
		{
			name: "dropped task",
			ev:   eventbus.Event{Type: eventbus.TaskDropped, Data: engine.TaskEvent{Name: "take_burst", Error: "queue_full"}},
			ok:   true, want: "take_burst not run: queue_full", prio: 9,
		},
		{name: "idle", ev: eventbus.Event{Type: eventbus.SchedulerIdle}, ok: true, want: "No jobs pending.", prio: 5},
		{name: "wrong payload", ev: eventbus.Event{Type: eventbus.JobFailed, Data: "x"}, ok: false},
		{name: "fired", ev: eventbus.Event{Type: eventbus.JobFired, Data: scheduler.JobEvent{}}, ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			n, ok := Format(tt.ev, time.UTC)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if !strings.Contains(n.Text, tt.want) || n.Priority != tt.prio {
				t.Fatalf("got %+v, want text containing %q prio %d", n, tt.want, tt.prio)
			}
		})
	}
}

func TestRetryDelayCapped(t *testing.T) {
	t.Parallel()
	cfg := Config{}.withDefaults()
	for attempt := 1; attempt < 10; attempt++ {
		if d := retryDelay(cfg, attempt); d <= 0 || d > cfg.RetryMaxDelay {
			t.Fatalf("retryDelay(%d) = %v", attempt, d)
		}
	}
}

func TestTruncateText(t *testing.T) {
	t.Parallel()
	if got := truncateText("abcdef", 4); got != "abc…" {
		t.Fatalf("truncateText = %q", got)
	}
	if got := truncateText("abc", 4); got != "abc" {
		t.Fatalf("truncateText = %q", got)
	}
}
