package config

import (
	"reflect"
	"strings"

	"sew/pkg/logx"
)

// Change summarizes what differs between two configs.
type Change struct {
	// Sections lists changed top-level sections in a stable order.
	Sections []string
	// Attrs are safe to log; secrets like the notifier token never appear.
	Attrs []logx.Field
	// Replan is set when the job set must be rebuilt and loaded again.
	Replan bool
	// Restart is set when a change only takes effect on the next run
	// (engine sizing, storage, camera and audio drivers, notifier).
	Restart bool
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, attrs ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		ch.Attrs = append(ch.Attrs, attrs...)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if strings.TrimSpace(oldCfg.Script) != strings.TrimSpace(newCfg.Script) {
		mark("script", logx.String("script", newCfg.Script))
		ch.Replan = true
	}
	if oldCfg.Moments != newCfg.Moments {
		mark("moments", logx.String("moments.path", newCfg.Moments.Path))
		ch.Replan = true
	}
	if !reflect.DeepEqual(oldCfg.Simulation, newCfg.Simulation) {
		attrs := []logx.Field{logx.Bool("simulation.enabled", newCfg.Simulation != nil)}
		if newCfg.Simulation != nil {
			attrs = append(attrs, logx.String("simulation.anchor", newCfg.Simulation.Anchor))
		}
		mark("simulation", attrs...)
		ch.Replan = true
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		mark("scheduler",
			logx.String("scheduler.missed_policy", newCfg.Scheduler.MissedPolicy),
			logx.String("scheduler.unresolved_policy", newCfg.Scheduler.UnresolvedPolicy),
			logx.String("scheduler.status_every", newCfg.Scheduler.StatusEvery),
		)
		ch.Replan = true
	}
	if oldCfg.TaskEngine != newCfg.TaskEngine {
		mark("task_engine", logx.Int("task_engine.workers", newCfg.TaskEngine.Workers))
		ch.Restart = true
	}
	if oldCfg.Storage != newCfg.Storage {
		mark("storage", logx.String("storage.driver", newCfg.Storage.Driver))
		ch.Restart = true
	}
	if oldCfg.Audio != newCfg.Audio {
		mark("audio", logx.String("audio.sound_dir", newCfg.Audio.SoundDir))
		ch.Restart = true
	}
	if !reflect.DeepEqual(oldCfg.Camera, newCfg.Camera) {
		mark("camera", logx.String("camera.driver", newCfg.Camera.Driver), logx.Int("camera.count", len(newCfg.Camera.Cameras)))
		ch.Restart = true
	}
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		en := newCfg.Notifier != nil && newCfg.Notifier.Enabled
		mark("notifier", logx.Bool("notifier.enabled", en))
		ch.Restart = true
	}
	if strings.TrimSpace(oldCfg.LockFile) != strings.TrimSpace(newCfg.LockFile) {
		mark("lock_file")
		ch.Restart = true
	}
	return ch
}
