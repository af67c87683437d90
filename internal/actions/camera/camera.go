// Package camera drives DSLR/mirrorless bodies for the picture commands.
package camera

import (
	"context"
	"strings"
	"time"

	"sew/internal/script"
)

// Driver performs the camera side of the picture commands. Implementations
// serialize calls that target the same body; calls to different bodies may
// run concurrently.
type Driver interface {
	// Capture sets exposure and takes a single picture.
	Capture(ctx context.Context, s script.CameraSettings) error
	// Burst holds the shutter for n seconds on Canon bodies and takes n
	// pictures on Nikon bodies.
	Burst(ctx context.Context, s script.CameraSettings, n float64) error
	// Bracket takes an auto exposure bracket with the given step.
	Bracket(ctx context.Context, s script.CameraSettings, step string) error
	// SyncClock sets the camera clock to now.
	SyncClock(ctx context.Context, camera string, now time.Time) error
}

// Vendor is derived from the camera name the script uses.
type Vendor int

const (
	VendorOther Vendor = iota
	VendorCanon
	VendorNikon
)

func VendorOf(name string) Vendor {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "canon"), strings.HasPrefix(n, "eos"):
		return VendorCanon
	case strings.Contains(n, "nikon"):
		return VendorNikon
	default:
		return VendorOther
	}
}

func (v Vendor) String() string {
	switch v {
	case VendorCanon:
		return "canon"
	case VendorNikon:
		return "nikon"
	default:
		return "other"
	}
}
