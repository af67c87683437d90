package notifier

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sew/internal/eventbus"
	rtsup "sew/internal/runtime/supervisor"
	"sew/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Service sends notifications from a queue through a rate limiter with
// retry and dedup. It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	cfg     Config
	log     logx.Logger
	sender  Sender
	bus     eventbus.Bus
	loc     *time.Location
	limiter *rate.Limiter

	queue chan Notification
	sup   *rtsup.Supervisor
	unsub func()

	dmu   sync.Mutex
	dedup map[uint64]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

// New creates a notifier. loc is used for times in messages.
func New(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus, loc *time.Location) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "notifier")),
		sender: sender,
		bus:    bus,
		loc:    loc,
		// Burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		dedup:   map[uint64]time.Time{},
	}
}

func (s *Service) Enabled() bool {
	return s.cfg.Enabled && s.sender != nil
}

// Start subscribes to the bus and starts the sender. It is a no-op when
// disabled or already running.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.Enabled() {
		return
	}
	s.mu.Lock()
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	q := make(chan Notification, s.cfg.QueueSize)
	sup := rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	s.queue, s.sup = q, sup
	var events <-chan eventbus.Event
	if s.bus != nil {
		events, s.unsub = s.bus.Subscribe(64)
	}
	s.mu.Unlock()

	sup.GoRestart("sender", func(c context.Context) error {
		s.sendLoop(c, q)
		return nil
	})
	if events != nil {
		sup.Go("events", func(c context.Context) error {
			s.eventLoop(c, events)
			return nil
		})
	}
	s.log.Debug("notifier started", logx.Int64("chat_id", s.cfg.ChatID), logx.Int("rate", s.cfg.RatePerSec))
}

// Stop stops intake and drains what is queued until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	q, sup, unsub := s.queue, s.sup, s.unsub
	s.queue, s.sup, s.unsub = nil, nil, nil
	s.mu.Unlock()
	if q == nil {
		return
	}
	if unsub != nil {
		unsub()
	}
	close(q)
	done := make(chan struct{})
	go func() {
		_ = sup.Wait(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
		s.log.Warn("notifier stop timed out; queued messages dropped", logx.Err(ctx.Err()))
	}
}

// Notify queues a message. Duplicates inside the dedup window are accepted
// and silently dropped.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if !s.Enabled() {
		return ErrDisabled
	}
	if !s.dedupAllow(n, time.Now()) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		return ErrStopped
	}
	select {
	case s.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) eventLoop(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !slices.Contains(s.cfg.Events, ev.Type) {
				continue
			}
			n, ok := Format(ev, s.loc)
			if !ok {
				continue
			}
			if err := s.Notify(ctx, n); err != nil && !errors.Is(err, ErrStopped) {
				s.log.Warn("notification dropped", logx.String("event", ev.Type), logx.Err(err))
			}
		}
	}
}

func (s *Service) sendLoop(ctx context.Context, q <-chan Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, n)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, n Notification) {
	text := prefixForPriority(n.Priority) + n.Text
	var lastErr error
	for attempt := 1; attempt <= 1+s.cfg.RetryMax; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := s.sender.SendText(callCtx, s.cfg.ChatID, s.cfg.ThreadID, text)
		cancel()
		if err == nil {
			s.appendHistory(text, nil)
			return
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt))
		if attempt > s.cfg.RetryMax {
			break
		}
		t := time.NewTimer(retryDelay(s.cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	s.appendHistory(text, lastErr)
	s.log.Warn("notification not delivered", logx.Err(lastErr))
}

func (s *Service) appendHistory(text string, err error) {
	item := HistoryItem{At: time.Now(), Text: text}
	if err != nil {
		item.Error = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > 100 {
		s.history = s.history[len(s.history)-100:]
	}
	s.hmu.Unlock()
}

func (s *Service) dedupAllow(n Notification, now time.Time) bool {
	if s.cfg.DedupWindow <= 0 {
		return true
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte{byte(n.Priority)})
	_, _ = h.Write([]byte(n.Text))
	key := h.Sum64()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	s.dedup[key] = now.Add(s.cfg.DedupWindow)
	return true
}

// retryDelay is the backoff before attempt+1: base * 2^(attempt-1) with
// 0.7..1.3 jitter, capped at RetryMaxDelay.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}
