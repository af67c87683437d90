package script

// Every command line starts with the same four header fields:
//
//	keyword, anchor, sign, offset
//
// The per-keyword layout describes what follows. The description is always
// the last field.
const headerFields = 4

type field int

const (
	fieldSkip field = iota
	fieldCamera
	fieldShutter
	fieldAperture
	fieldISO
	fieldBurst
	fieldBracket
	fieldSound
	fieldLegacySound
	fieldDescription
)

type layout struct {
	kind   Kind
	legacy bool
	fields []field
}

// width is the total number of comma-separated fields a line must have.
func (l layout) width() int { return headerFields + len(l.fields) }

var cameraFields = []field{fieldCamera, fieldShutter, fieldAperture, fieldISO}

func withCamera(rest ...field) []field {
	return append(append([]field(nil), cameraFields...), rest...)
}

// layouts maps recognized keywords (Solar Eclipse Maestro legacy spelling and
// the canonical one) to their command kind and field layout. Legacy lines carry
// four trailing columns this tool does not use.
var layouts = map[string]layout{
	"take_picture": {kind: KindTakePicture, fields: withCamera(fieldDescription)},
	"take_burst":   {kind: KindTakeBurst, fields: withCamera(fieldBurst, fieldDescription)},
	"take_bracket": {kind: KindTakeBracket, fields: withCamera(fieldBracket, fieldDescription)},
	"sync_cameras": {kind: KindSyncCameras, fields: []field{fieldDescription}},
	"voice_prompt": {kind: KindVoicePrompt, fields: []field{fieldSound, fieldDescription}},

	"TAKEPIC": {kind: KindTakePicture, legacy: true, fields: withCamera(fieldSkip, fieldSkip, fieldSkip, fieldSkip, fieldDescription)},
	"TAKEBST": {kind: KindTakeBurst, legacy: true, fields: withCamera(fieldBurst, fieldSkip, fieldSkip, fieldSkip, fieldDescription)},
	"TAKEBKT": {kind: KindTakeBracket, legacy: true, fields: withCamera(fieldBracket, fieldSkip, fieldSkip, fieldSkip, fieldDescription)},
	"PLAY": {kind: KindVoicePrompt, legacy: true, fields: []field{
		fieldLegacySound, fieldSkip, fieldSkip, fieldSkip, fieldSkip, fieldSkip, fieldSkip, fieldSkip, fieldDescription,
	}},
}

// lookupLayout returns the layout registered for keyword.
func lookupLayout(keyword string) (layout, bool) {
	l, ok := layouts[keyword]
	return l, ok
}

// Legacy sound files that do not follow the "<anchor>_IN_<n>_SECONDS" pattern.
var legacySoundCues = map[string]string{
	"FILTERS_OFF": "C2_IN_20_SECONDS",
	"MAX_ECLIPSE": "MAX",
	"FILTERS_ON":  "FILTERS_ON",
}
