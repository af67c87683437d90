package camera

import (
	"context"
	"time"

	"sew/internal/script"
	"sew/pkg/logx"
)

// DryRun logs what would be done instead of touching hardware. Used for
// rehearsals and simulations without cameras attached.
type DryRun struct {
	log logx.Logger
}

func NewDryRun(log logx.Logger) *DryRun {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DryRun{log: log}
}

func settingsFields(s script.CameraSettings) []logx.Field {
	return []logx.Field{
		logx.String("camera", s.Camera),
		logx.String("shutter", s.ShutterSpeed),
		logx.String("aperture", s.Aperture),
		logx.String("iso", s.ISO),
	}
}

func (d *DryRun) Capture(ctx context.Context, s script.CameraSettings) error {
	d.log.Info("dry-run capture", settingsFields(s)...)
	return ctx.Err()
}

func (d *DryRun) Burst(ctx context.Context, s script.CameraSettings, n float64) error {
	d.log.Info("dry-run burst", append(settingsFields(s), logx.Any("burst", n), logx.String("vendor", VendorOf(s.Camera).String()))...)
	return ctx.Err()
}

func (d *DryRun) Bracket(ctx context.Context, s script.CameraSettings, step string) error {
	d.log.Info("dry-run bracket", append(settingsFields(s), logx.String("step", step))...)
	return ctx.Err()
}

func (d *DryRun) SyncClock(ctx context.Context, camera string, now time.Time) error {
	d.log.Info("dry-run clock sync", logx.String("camera", camera), logx.Time("now", now.UTC()))
	return ctx.Err()
}
