package script

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"sew/internal/moments"
	"sew/pkg/logx"
)

// Translator converts script text into normalized commands.
type Translator struct {
	moments moments.Set
	log     logx.Logger
}

type TranslatorOption func(*Translator)

// WithMoments supplies the reference moments ranged loops are expanded
// against. Without it any ranged loop fails to translate.
func WithMoments(set moments.Set) TranslatorOption {
	return func(t *Translator) { t.moments = set }
}

// WithLogger enables the debug echo of every produced command.
func WithLogger(log logx.Logger) TranslatorOption {
	return func(t *Translator) { t.log = log }
}

func NewTranslator(opts ...TranslatorOption) *Translator {
	t := &Translator{log: logx.Nop()}
	for _, o := range opts {
		if o != nil {
			o(t)
		}
	}
	if t.log.IsZero() {
		t.log = logx.Nop()
	}
	return t
}

// TranslateFile translates the script at path.
func (t *Translator) TranslateFile(path string) ([]Command, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return t.Translate(f)
}

// Translate reads a script and returns its commands in script order.
//
// A bad line does not stop translation: the commands of every good line are
// returned together with all line errors joined. Callers must not schedule
// the result when the error is non-nil. A ranged loop whose anchors are not
// in the moment set aborts translation at that loop.
func (t *Translator) Translate(r io.Reader) ([]Command, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	var (
		out  []Command
		errs []error
	)
	emit := func(cmds ...Command) {
		for _, c := range cmds {
			if !t.log.Enabled(logx.LevelDebug) {
				break
			}
			t.log.Debug("script command", logx.Int("line", c.Line), logx.String("cmd", Render(c)))
		}
		out = append(out, cmds...)
	}

	for i := 0; i < len(lines); i++ {
		ln := lines[i]
		if ln.blank() {
			continue
		}
		fields := splitFields(ln.text)
		switch fields[0] {
		case intervalometerOpen:
			body, next, err := collectBody(lines, i, intervalometerClose)
			i = next
			if err != nil {
				errs = append(errs, err)
				continue
			}
			loop, err := parseIntervalometer(ln.no, trimTrailingEmpty(fields, 5))
			if err != nil {
				errs = append(errs, err)
				continue
			}
			for _, b := range body {
				cmds, err := loop.expand(b)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				emit(cmds...)
			}

		case rangedOpen:
			body, next, err := collectBody(lines, i, rangedClose)
			i = next
			if err != nil {
				errs = append(errs, err)
				continue
			}
			loop, err := parseRangedLoop(ln.no, trimTrailingEmpty(fields, 6))
			if err != nil {
				errs = append(errs, err)
				continue
			}
			origin, start, stop, err := loop.window(t.moments)
			if err != nil {
				errs = append(errs, err)
				return out, errors.Join(errs...)
			}
			for _, b := range body {
				cmds, err := loop.expand(b, origin, start, stop)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				emit(cmds...)
			}

		case intervalometerClose, rangedClose:
			errs = append(errs, &MalformedLineError{Line: ln.no, Keyword: fields[0], Reason: "loop closer without opener"})

		default:
			cmd, err := normalizePlain(ln.no, fields)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			emit(cmd)
		}
	}
	return out, errors.Join(errs...)
}

type scriptLine struct {
	no   int
	text string
}

func (l scriptLine) blank() bool {
	return strings.TrimSpace(l.text) == "" || isComment(l.text)
}

func readLines(r io.Reader) ([]scriptLine, error) {
	var out []scriptLine
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	no := 0
	for sc.Scan() {
		no++
		text := sc.Text()
		if no == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		out = append(out, scriptLine{no: no, text: strings.TrimRight(text, "\r")})
	}
	return out, sc.Err()
}

// collectBody gathers the body lines of the loop opened at lines[open] up to
// its closer. It returns the index of the closer (or the last line consumed)
// so the caller resumes after it.
func collectBody(lines []scriptLine, open int, closer string) ([]bodyLine, int, error) {
	opener := lines[open]
	kw := splitFields(opener.text)[0]
	var body []bodyLine
	for j := open + 1; j < len(lines); j++ {
		ln := lines[j]
		if ln.blank() {
			continue
		}
		fields := splitFields(ln.text)
		switch fields[0] {
		case closer:
			return body, j, nil
		case intervalometerOpen, rangedOpen:
			return nil, skipTo(lines, j, closer), &MalformedLineError{Line: ln.no, Keyword: fields[0], Reason: "nested loops are not supported"}
		}
		body = append(body, bodyLine{no: ln.no, fields: fields})
	}
	return nil, len(lines), &MalformedLineError{Line: opener.no, Keyword: kw, Reason: "missing " + closer}
}

// skipTo returns the index of the closer of the enclosing loop, starting at
// the nested opener at from. Closers of loops opened after from are skipped.
func skipTo(lines []scriptLine, from int, closer string) int {
	depth := 0
	for j := from; j < len(lines); j++ {
		if lines[j].blank() {
			continue
		}
		switch kw := splitFields(lines[j].text)[0]; kw {
		case intervalometerOpen, rangedOpen:
			depth++
		case intervalometerClose, rangedClose:
			if depth > 0 {
				depth--
				continue
			}
			if kw == closer {
				return j
			}
		}
	}
	return len(lines)
}
