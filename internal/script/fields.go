package script

import "strings"

// splitFields splits a script line on commas, keeping commas that appear
// inside double quotes. Quotes are kept; fields are trimmed.
func splitFields(line string) []string {
	var (
		out []string
		buf strings.Builder
		inQ bool
	)
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == '"':
			inQ = !inQ
			buf.WriteByte(ch)
		case ch == ',' && !inQ:
			out = append(out, strings.TrimSpace(buf.String()))
			buf.Reset()
		default:
			buf.WriteByte(ch)
		}
	}
	out = append(out, strings.TrimSpace(buf.String()))
	return out
}

// trimTrailingEmpty drops empty trailing fields beyond want (trailing commas
// left by spreadsheet exports).
func trimTrailingEmpty(fields []string, want int) []string {
	for len(fields) > want && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	return fields
}

// cleanDescription strips double quotes and surrounding space.
func cleanDescription(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, `"`, ""))
}

func isComment(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}
