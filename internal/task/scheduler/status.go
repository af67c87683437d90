package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"sew/internal/plan"
	"sew/pkg/logx"
)

// Start starts the periodic status report, if configured. Jobs fire without
// it; Start only adds the report. The report stops when ctx is done.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	raw := strings.TrimSpace(s.cfg.StatusEvery)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Stopped {
		return ErrStopped
	}
	if raw == "" || s.c != nil {
		return nil
	}
	spec, err := ParseSchedule(raw)
	if err != nil {
		return err
	}
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	if _, err := c.AddFunc(spec.Expr(), s.reportStatus); err != nil {
		return fmt.Errorf("status schedule %q: %w", raw, err)
	}
	c.Start()
	s.c = c
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			s.stopStatus(c)
		}()
	}
	s.log.Debug("status report started", logx.String("every", spec.Expr()), logx.String("tz", s.loc.String()))
	return nil
}

// stopStatus stops c if it is still the running status report.
func (s *Service) stopStatus(c *cron.Cron) {
	s.mu.Lock()
	if s.c != c {
		s.mu.Unlock()
		return
	}
	s.c = nil
	s.mu.Unlock()
	<-c.Stop().Done()
	s.log.Debug("status report stopped")
}

// Status builds the current status report.
func (s *Service) Status() Status {
	snap := s.Snapshot()
	st := Status{Time: s.now(), Snapshot: snap}
	if next, ok := snap.Next(); ok {
		st.Next = &next
		st.Countdown = next.At.Sub(st.Time)
	}
	return st
}

func (s *Service) reportStatus() {
	st := s.Status()
	fields := []logx.Field{
		logx.String("state", st.Snapshot.State.String()),
		logx.Int("pending", st.Snapshot.Pending),
		logx.Int("in_flight", st.Snapshot.InFlight),
		logx.Int("completed", st.Snapshot.Completed),
		logx.Int("failed", st.Snapshot.Failed),
	}
	if st.Next != nil {
		fields = append(fields,
			logx.String("next_kind", string(st.Next.Kind)),
			logx.String("next_desc", st.Next.Description),
			logx.String("next_local", st.Next.At.In(s.loc).Format("15:04:05.0")),
			logx.String("countdown", plan.FormatCountdown(st.Countdown)),
		)
	}
	s.log.Info("status", fields...)
	if s.statusHook != nil {
		s.statusHook(st)
	}
}
