package script

import (
	"strconv"
	"strings"
	"time"
)

// lineContext carries the values a command template is resolved against.
// Plain lines take them from their own header; loop expansions compute them.
type lineContext struct {
	anchor string
	offset time.Duration
	suffix string
}

func iterationSuffix(n int) string { return " (Iter. " + strconv.Itoa(n) + ")" }

// NormalizeLine turns a single plain command line into a Command.
func NormalizeLine(lineNo int, line string) (Command, error) {
	return normalizePlain(lineNo, splitFields(line))
}

func normalizePlain(lineNo int, fields []string) (Command, error) {
	if _, _, err := layoutFor(lineNo, fields); err != nil {
		return Command{}, err
	}
	ctx, err := parseHeader(lineNo, fields)
	if err != nil {
		return Command{}, err
	}
	return normalize(lineNo, fields, ctx)
}

// layoutFor validates the keyword and arity of a split line.
func layoutFor(lineNo int, fields []string) (layout, []string, error) {
	kw := fields[0]
	l, ok := lookupLayout(kw)
	if !ok {
		return layout{}, nil, &UnknownCommandError{Line: lineNo, Keyword: kw}
	}
	fields = trimTrailingEmpty(fields, l.width())
	if len(fields) != l.width() {
		return layout{}, nil, &MalformedLineError{Line: lineNo, Keyword: kw, Want: l.width(), Got: len(fields)}
	}
	return l, fields, nil
}

// parseHeader reads anchor, sign and offset from a line's header fields.
func parseHeader(lineNo int, fields []string) (lineContext, error) {
	kw := fields[0]
	if len(fields) < headerFields {
		return lineContext{}, &MalformedLineError{Line: lineNo, Keyword: kw, Want: headerFields, Got: len(fields)}
	}
	anchor := fields[1]
	if anchor == "" {
		return lineContext{}, &MalformedLineError{Line: lineNo, Keyword: kw, Reason: "missing reference moment"}
	}
	mag, err := ParseDuration(fields[3])
	if err != nil {
		return lineContext{}, &lineError{line: lineNo, err: err}
	}
	offset, ok := applySign(fields[2], mag)
	if !ok {
		return lineContext{}, &MalformedLineError{Line: lineNo, Keyword: kw, Reason: "sign must be + or -, got " + strconv.Quote(fields[2])}
	}
	return lineContext{anchor: anchor, offset: offset}, nil
}

// normalize maps the fields of one line onto a Command using the keyword's
// layout. Anchor and offset come from ctx, not from the line header.
func normalize(lineNo int, fields []string, ctx lineContext) (Command, error) {
	l, fields, err := layoutFor(lineNo, fields)
	if err != nil {
		return Command{}, err
	}
	kw := fields[0]

	cmd := Command{Kind: l.kind, Anchor: ctx.anchor, Offset: Truncate(ctx.offset), Line: lineNo}
	for i, f := range l.fields {
		v := fields[headerFields+i]
		switch f {
		case fieldCamera:
			cmd.Settings.Camera = v
		case fieldShutter:
			cmd.Settings.ShutterSpeed = v
		case fieldAperture:
			cmd.Settings.Aperture = v
		case fieldISO:
			cmd.Settings.ISO = v
		case fieldBurst:
			b, err := strconv.ParseFloat(v, 64)
			if err != nil || b <= 0 {
				return Command{}, &MalformedLineError{Line: lineNo, Keyword: kw, Reason: "invalid burst length " + strconv.Quote(v)}
			}
			cmd.Burst = b
		case fieldBracket:
			cmd.Bracket = v
		case fieldSound:
			cmd.Sound = v
		case fieldLegacySound:
			cmd.Sound = legacySound(v, ctx.anchor)
		case fieldDescription:
			cmd.Description = cleanDescription(v) + ctx.suffix
		}
	}
	if cmd.Kind == KindVoicePrompt && cmd.Sound == "" {
		return Command{}, &MalformedLineError{Line: lineNo, Keyword: kw, Reason: "missing sound cue"}
	}
	return cmd, nil
}

// legacySound maps a Solar Eclipse Maestro sound file name ("10_SECONDS.WAV")
// onto a cue id ("C2_IN_10_SECONDS").
func legacySound(raw, anchor string) string {
	name := strings.ToUpper(strings.TrimSpace(raw))
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return ""
	}
	if cue, ok := legacySoundCues[name]; ok {
		return cue
	}
	return anchor + "_IN_" + name
}
