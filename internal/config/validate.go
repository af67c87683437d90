package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Validate checks values the strict decoder cannot: enums, durations and
// cross-field rules. All problems are reported at once.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	oneOf := func(path, v string, allowed ...string) {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" && !slices.Contains(allowed, v) {
			errs = append(errs, fmt.Errorf("%s: must be one of %s, got %q", path, strings.Join(allowed, "|"), v))
		}
	}
	duration := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		check(err)
	}

	oneOf("scheduler.missed_policy", c.Scheduler.MissedPolicy, "drop", "fire")
	oneOf("scheduler.unresolved_policy", c.Scheduler.UnresolvedPolicy, "skip", "abort")
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if tz := strings.TrimSpace(c.Moments.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("moments.timezone: %w", err))
		}
	}
	duration("scheduler.missed_grace", c.Scheduler.MissedGrace)

	if c.TaskEngine.Workers < 0 || c.TaskEngine.QueueSize < 0 || c.TaskEngine.HistorySize < 0 {
		errs = append(errs, errors.New("task_engine: workers, queue_size and history_size must be >= 0"))
	}
	duration("task_engine.default_timeout", c.TaskEngine.DefaultTimeout)
	duration("task_engine.max_queue_delay", c.TaskEngine.MaxQueueDelay)

	oneOf("storage.driver", c.Storage.Driver, "none", "file", "sqlite", "sqlite3")
	if d := strings.ToLower(strings.TrimSpace(c.Storage.Driver)); d != "" && d != "none" && strings.TrimSpace(c.Storage.Path) == "" {
		errs = append(errs, fmt.Errorf("storage.path: required for driver %q", d))
	}
	duration("storage.busy_timeout", c.Storage.BusyTimeout)
	duration("storage.retention", c.Storage.Retention)

	oneOf("camera.driver", c.Camera.Driver, "gphoto2", "dryrun")

	if sim := c.Simulation; sim != nil {
		if strings.TrimSpace(sim.Anchor) == "" {
			errs = append(errs, errors.New("simulation.anchor: required"))
		}
		hasTarget, hasIn := strings.TrimSpace(sim.Target) != "", strings.TrimSpace(sim.In) != ""
		switch {
		case hasTarget == hasIn:
			errs = append(errs, errors.New("simulation: set exactly one of target or in"))
		case hasTarget:
			if _, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(sim.Target)); err != nil {
				errs = append(errs, fmt.Errorf("simulation.target: %w", err))
			}
		default:
			duration("simulation.in", sim.In)
		}
	}

	if n := c.Notifier; n != nil && n.Enabled {
		if strings.TrimSpace(n.Token) == "" {
			errs = append(errs, errors.New("notifier.token: required when enabled"))
		}
		if n.ChatID == 0 {
			errs = append(errs, errors.New("notifier.chat_id: required when enabled"))
		}
		if n.RatePerSec < 0 || n.RetryMax < 0 || n.QueueSize < 0 {
			errs = append(errs, errors.New("notifier: rate_per_sec, retry_max and queue_size must be >= 0"))
		}
		duration("notifier.retry_base", n.RetryBase)
		duration("notifier.retry_max_delay", n.RetryMaxDelay)
		duration("notifier.dedup_window", n.DedupWindow)
	}
	return errors.Join(errs...)
}
