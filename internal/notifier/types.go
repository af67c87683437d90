package notifier

import (
	"context"
	"time"

	"sew/internal/eventbus"
)

// Config controls the notification pipeline.
type Config struct {
	Enabled  bool
	Token    string
	ChatID   int64
	ThreadID int

	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	DedupWindow   time.Duration

	// Events lists the bus event types that produce a message. Empty means
	// DefaultEvents.
	Events []string
}

// DefaultEvents are the event types notified when Config.Events is empty.
var DefaultEvents = []string{
	eventbus.PlanLoaded,
	eventbus.JobFailed,
	eventbus.JobMissed,
	eventbus.TaskDropped,
	eventbus.SchedulerIdle,
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.DedupWindow < 0 {
		c.DedupWindow = 0
	}
	if len(c.Events) == 0 {
		c.Events = DefaultEvents
	}
	return c
}

// Notification is one outgoing message.
type Notification struct {
	Priority int // >=9 alert, >=7 warning, >=5 info
	Text     string
}

// Sender delivers text to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, threadID int, text string) error
}

type HistoryItem struct {
	At    time.Time
	Text  string
	Error string
}
