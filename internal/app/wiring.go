package app

import (
	"fmt"
	"strings"

	"sew/internal/actions"
	"sew/internal/actions/audio"
	"sew/internal/actions/camera"
	"sew/internal/config"
	"sew/internal/notifier"
	"sew/internal/storage"
	"sew/internal/task/engine"
	"sew/internal/task/scheduler"
	"sew/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	te := cfg.TaskEngine
	timeout, err := config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Workers:        te.Workers,
		QueueSize:      te.QueueSize,
		DefaultTimeout: timeout,
		MaxQueueDelay:  maxDelay,
		HistorySize:    te.HistorySize,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	sc := cfg.Scheduler
	policy, err := scheduler.ParseMissedPolicy(sc.MissedPolicy)
	if err != nil {
		return scheduler.Config{}, err
	}
	grace, err := config.ParseDurationField("scheduler.missed_grace", sc.MissedGrace)
	if err != nil {
		return scheduler.Config{}, err
	}
	// An explicit "0s" disables the grace period.
	if grace == 0 && strings.TrimSpace(sc.MissedGrace) != "" {
		grace = -1
	}
	if s := strings.TrimSpace(sc.StatusEvery); s != "" {
		if _, err := scheduler.ParseSchedule(s); err != nil {
			return scheduler.Config{}, fmt.Errorf("scheduler.status_every: %w", err)
		}
	}
	return scheduler.Config{
		Timezone:     sc.Timezone,
		MissedPolicy: policy,
		MissedGrace:  grace,
		StatusEvery:  sc.StatusEvery,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	st := cfg.Storage
	busy, err := config.ParseDurationField("storage.busy_timeout", st.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	retention, err := config.ParseDurationField("storage.retention", st.Retention)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: st.Driver, Path: st.Path, BusyTimeout: busy, Retention: retention}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	if n == nil || !n.Enabled {
		return notifier.Config{}, nil
	}
	base, err := config.ParseDurationField("notifier.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	dedup, err := config.ParseDurationField("notifier.dedup_window", n.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:       true,
		Token:         n.Token,
		ChatID:        n.ChatID,
		ThreadID:      n.ThreadID,
		QueueSize:     n.QueueSize,
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		DedupWindow:   dedup,
		Events:        n.Events,
	}, nil
}

// buildRegistry binds every command kind to the configured camera and audio
// drivers.
func buildRegistry(cfg *config.Config, log logx.Logger) (*actions.Registry, error) {
	var cam camera.Driver
	switch strings.ToLower(strings.TrimSpace(cfg.Camera.Driver)) {
	case "", "dryrun":
		cam = camera.NewDryRun(log.With(logx.String("comp", "camera")))
	case "gphoto2":
		g, err := camera.NewGPhoto2(cfg.Camera.Binary, camera.WithLogger(log.With(logx.String("comp", "camera"))))
		if err != nil {
			return nil, err
		}
		cam = g
	default:
		return nil, fmt.Errorf("unknown camera driver %q", cfg.Camera.Driver)
	}

	var player audio.Player = audio.Silent{Log: log.With(logx.String("comp", "audio"))}
	if dir := strings.TrimSpace(cfg.Audio.SoundDir); dir != "" {
		p, err := audio.NewExecPlayer(cfg.Audio.Player, dir, audio.WithLogger(log.With(logx.String("comp", "audio"))))
		if err != nil {
			return nil, err
		}
		player = p
	}
	return actions.Defaults(cam, player, cfg.Camera.Cameras), nil
}
