package script

import "time"

// Kind names a canonical command. The values double as the canonical script
// keywords and as keys of the action registry.
type Kind string

const (
	KindVoicePrompt Kind = "voice_prompt"
	KindTakePicture Kind = "take_picture"
	KindTakeBurst   Kind = "take_burst"
	KindTakeBracket Kind = "take_bracket"
	KindSyncCameras Kind = "sync_cameras"
)

// Kinds lists every canonical command kind.
func Kinds() []Kind {
	return []Kind{KindVoicePrompt, KindTakePicture, KindTakeBurst, KindTakeBracket, KindSyncCameras}
}

// CameraSettings are passed through to the camera driver untouched.
type CameraSettings struct {
	Camera       string
	ShutterSpeed string
	Aperture     string
	ISO          string
}

// Command is one normalized script action.
//
// Only the fields belonging to Kind are populated:
//   - take_picture: Settings
//   - take_burst: Settings, Burst (seconds on Canon bodies, picture count on Nikon)
//   - take_bracket: Settings, Bracket (AEB step, e.g. "+/- 1 2/3")
//   - voice_prompt: Sound (cue id)
//   - sync_cameras: nothing
type Command struct {
	Kind        Kind
	Anchor      string
	Offset      time.Duration // signed, relative to Anchor
	Description string

	Settings CameraSettings
	Burst    float64
	Bracket  string
	Sound    string

	// Line is the 1-based script line the command was produced from. Loop
	// expansions carry the line of their body template.
	Line int
}

// Sign reports the script sign of the command's offset.
func (c Command) Sign() string { return SignOf(c.Offset) }
