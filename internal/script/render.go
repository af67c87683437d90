package script

import (
	"io"
	"strconv"
	"strings"
)

// Render writes cmd as one canonical script line:
//
//	take_burst, C2, -, 00:00:10.0, EOS R, 1/1000, 8, 100, 2, "Diamond ring (Iter. 1)"
//
// The output is accepted by Translate and normalizes back to cmd.
func Render(cmd Command) string {
	parts := []string{string(cmd.Kind), cmd.Anchor, cmd.Sign(), formatClock(cmd.Offset)}
	switch cmd.Kind {
	case KindTakePicture:
		parts = append(parts, settingFields(cmd.Settings)...)
	case KindTakeBurst:
		parts = append(parts, settingFields(cmd.Settings)...)
		parts = append(parts, strconv.FormatFloat(cmd.Burst, 'f', -1, 64))
	case KindTakeBracket:
		parts = append(parts, settingFields(cmd.Settings)...)
		parts = append(parts, cmd.Bracket)
	case KindVoicePrompt:
		parts = append(parts, cmd.Sound)
	}
	parts = append(parts, `"`+cmd.Description+`"`)
	return strings.Join(parts, ", ")
}

func settingFields(s CameraSettings) []string {
	return []string{s.Camera, s.ShutterSpeed, s.Aperture, s.ISO}
}

// WriteScript renders cmds one per line.
func WriteScript(w io.Writer, cmds []Command) error {
	var b strings.Builder
	for _, c := range cmds {
		b.WriteString(Render(c))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}
