package config

// Config is the on-disk configuration of sew.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Script is the path of the eclipse script to run.
	Script  string        `json:"script,omitempty"`
	Moments MomentsConfig `json:"moments"`

	// Simulation shifts the whole plan so that Anchor happens at Target
	// (RFC 3339) or In after start-up. Omit for a real eclipse.
	Simulation *SimulationConfig `json:"simulation,omitempty"`

	Scheduler  SchedulerConfig  `json:"scheduler"`
	TaskEngine TaskEngineConfig `json:"task_engine"`
	Storage    StorageConfig    `json:"storage"`
	Audio      AudioConfig      `json:"audio"`
	Camera     CameraConfig     `json:"camera"`
	Notifier   *NotifierConfig  `json:"notifier,omitempty"`

	// LockFile guards against two sessions driving the same cameras.
	LockFile string `json:"lock_file,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MomentsConfig points at the reference moments file.
//
// Timezone applies to legacy "dd/mm/yyyy HH:MM:SS" timestamps only; RFC 3339
// timestamps carry their own offset.
type MomentsConfig struct {
	Path     string `json:"path,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

type SimulationConfig struct {
	Anchor string `json:"anchor"`
	Target string `json:"target,omitempty"`
	In     string `json:"in,omitempty"`
}

// SchedulerConfig controls when jobs fire.
//
// Defaults:
//   - missed_policy: "drop"
//   - missed_grace: "1s"
//   - unresolved_policy: "skip"
//   - status_every: "" (disabled)
type SchedulerConfig struct {
	// Timezone is used for local times in logs and the status schedule.
	Timezone         string `json:"timezone,omitempty"`
	MissedPolicy     string `json:"missed_policy,omitempty"`
	MissedGrace      string `json:"missed_grace,omitempty"`
	UnresolvedPolicy string `json:"unresolved_policy,omitempty"`
	// StatusEvery is a cron spec ("*/30 * * * * *"), an interval ("30s") or
	// HH:MM.
	StatusEvery string `json:"status_every,omitempty"`
}

// TaskEngineConfig controls action execution.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 256
//   - default_timeout: "0s" (disabled)
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 200
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// StorageConfig controls the fired-job ledger.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./sew_state/ledger" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	Retention   string `json:"retention,omitempty"`
}

// AudioConfig selects how voice prompts are played. An empty sound_dir
// disables audio; prompts are then only logged.
type AudioConfig struct {
	Player   string `json:"player,omitempty"`
	SoundDir string `json:"sound_dir,omitempty"`
}

// CameraConfig selects the camera driver: "gphoto2" or "dryrun".
type CameraConfig struct {
	Driver  string   `json:"driver,omitempty"`
	Binary  string   `json:"binary,omitempty"`
	Cameras []string `json:"cameras,omitempty"`
}

// NotifierConfig controls Telegram notifications. The token is never logged.
type NotifierConfig struct {
	Enabled       bool     `json:"enabled"`
	Token         string   `json:"token"`
	ChatID        int64    `json:"chat_id"`
	ThreadID      int      `json:"thread_id,omitempty"`
	QueueSize     int      `json:"queue_size,omitempty"`
	RatePerSec    int      `json:"rate_per_sec,omitempty"`
	RetryMax      int      `json:"retry_max,omitempty"`
	RetryBase     string   `json:"retry_base,omitempty"`
	RetryMaxDelay string   `json:"retry_max_delay,omitempty"`
	DedupWindow   string   `json:"dedup_window,omitempty"`
	Events        []string `json:"events,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging:   LoggingConfig{Level: "info", Console: true},
		Scheduler: SchedulerConfig{MissedPolicy: "drop", MissedGrace: "1s", UnresolvedPolicy: "skip"},
		Storage:   StorageConfig{Driver: "none"},
		Audio:     AudioConfig{Player: "aplay -q"},
		Camera:    CameraConfig{Driver: "dryrun", Binary: "gphoto2"},
	}
}
