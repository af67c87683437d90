package script

import (
	"strconv"
	"time"

	"sew/internal/moments"
)

// Loop openers and closers. Both loop kinds are delimited by literal lines.
const (
	intervalometerOpen  = "FOR"
	intervalometerClose = "ENDFOR"
	intervalometerType  = "(INTERVALOMETER)"
	rangedOpen          = "for"
	rangedClose         = "endfor"
)

// bodyLine is one templated command inside a loop.
// maxLoopIterations bounds the commands one loop line may generate.
const maxLoopIterations = 100_000

type bodyLine struct {
	no     int
	fields []string
}

// intervalometer repeats each body line a fixed number of times, spaced by
// interval:
//
//	FOR, (INTERVALOMETER), <direction>, <interval_seconds>, <num_steps>
//
// direction 1 walks i = 1..steps forward in time, direction 0 walks
// i = steps..1 and moves backwards. Iteration numbers in descriptions always
// count up in generation order.
type intervalometer struct {
	line      int
	ascending bool
	interval  time.Duration
	steps     int
}

func parseIntervalometer(lineNo int, fields []string) (intervalometer, error) {
	bad := func(reason string) error {
		return &MalformedLineError{Line: lineNo, Keyword: intervalometerOpen, Reason: reason}
	}
	if len(fields) != 5 {
		return intervalometer{}, &MalformedLineError{Line: lineNo, Keyword: intervalometerOpen, Want: 5, Got: len(fields)}
	}
	if fields[1] != intervalometerType {
		return intervalometer{}, bad("unsupported loop type " + strconv.Quote(fields[1]))
	}
	l := intervalometer{line: lineNo}
	switch fields[2] {
	case "1":
		l.ascending = true
	case "0":
		l.ascending = false
	default:
		return intervalometer{}, bad("direction must be 0 or 1, got " + strconv.Quote(fields[2]))
	}
	iv, err := parseSeconds(fields[3])
	if err != nil || iv < 0 {
		return intervalometer{}, bad("invalid interval " + strconv.Quote(fields[3]))
	}
	l.interval = iv
	n, err := strconv.Atoi(fields[4])
	if err != nil || n < 1 {
		return intervalometer{}, bad("invalid number of steps " + strconv.Quote(fields[4]))
	}
	if n > maxLoopIterations {
		return intervalometer{}, bad("number of steps " + strconv.Quote(fields[4]) + " exceeds " + strconv.Itoa(maxLoopIterations))
	}
	l.steps = n
	return l, nil
}

// indices returns the step indices in generation order.
func (l intervalometer) indices() []int {
	out := make([]int, 0, l.steps)
	if l.ascending {
		for i := 1; i <= l.steps; i++ {
			out = append(out, i)
		}
		return out
	}
	for i := l.steps; i >= 1; i-- {
		out = append(out, i)
	}
	return out
}

func (l intervalometer) expand(body bodyLine) ([]Command, error) {
	if _, _, err := layoutFor(body.no, body.fields); err != nil {
		return nil, err
	}
	head, err := parseHeader(body.no, body.fields)
	if err != nil {
		return nil, err
	}
	dir := time.Duration(1)
	if !l.ascending {
		dir = -1
	}

	out := make([]Command, 0, l.steps)
	for iter, i := range l.indices() {
		offset := combinedOffset(head.offset, dir*time.Duration(i-1)*l.interval)
		cmd, err := normalize(body.no, body.fields, lineContext{
			anchor: head.anchor,
			offset: offset,
			suffix: iterationSuffix(iter + 1),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
	}
	return out, nil
}

// combinedOffset adds a loop delta to a template offset. The sign of the
// result is derived from the sum (see SignOf), never inherited from the
// template line.
func combinedOffset(base, delta time.Duration) time.Duration {
	return Truncate(base + delta)
}

// rangedLoop repeats each body line at a fixed cadence between two anchors:
//
//	for, <start_anchor>, <stop_anchor>, <interval_seconds>, <start_delta>, <stop_delta>
//
// Ticks run from start_anchor+start_delta while strictly before
// stop_anchor+stop_delta. Every generated command is anchored to start_anchor.
type rangedLoop struct {
	line       int
	start      string
	stop       string
	interval   time.Duration
	startDelta time.Duration
	stopDelta  time.Duration
}

func parseRangedLoop(lineNo int, fields []string) (rangedLoop, error) {
	bad := func(reason string) error {
		return &MalformedLineError{Line: lineNo, Keyword: rangedOpen, Reason: reason}
	}
	if len(fields) != 6 {
		return rangedLoop{}, &MalformedLineError{Line: lineNo, Keyword: rangedOpen, Want: 6, Got: len(fields)}
	}
	l := rangedLoop{line: lineNo, start: fields[1], stop: fields[2]}
	if l.start == "" || l.stop == "" {
		return rangedLoop{}, bad("missing reference moment")
	}
	iv, err := parseSeconds(fields[3])
	if err != nil || iv <= 0 {
		return rangedLoop{}, bad("interval must be a positive number of seconds, got " + strconv.Quote(fields[3]))
	}
	l.interval = iv
	if l.startDelta, err = parseSeconds(fields[4]); err != nil {
		return rangedLoop{}, bad("invalid start delta " + strconv.Quote(fields[4]))
	}
	if l.stopDelta, err = parseSeconds(fields[5]); err != nil {
		return rangedLoop{}, bad("invalid stop delta " + strconv.Quote(fields[5]))
	}
	return l, nil
}

// window resolves the loop's absolute start and stop times.
func (l rangedLoop) window(set moments.Set) (origin, start, stop time.Time, err error) {
	from, err := set.Lookup(l.start)
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, &moments.UnresolvedAnchorError{Anchor: l.start, Line: l.line, Description: "ranged loop start"}
	}
	to, err := set.Lookup(l.stop)
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, &moments.UnresolvedAnchorError{Anchor: l.stop, Line: l.line, Description: "ranged loop stop"}
	}
	return from.TimeUTC, from.TimeUTC.Add(l.startDelta), to.TimeUTC.Add(l.stopDelta), nil
}

func (l rangedLoop) expand(body bodyLine, origin, start, stop time.Time) ([]Command, error) {
	if _, _, err := layoutFor(body.no, body.fields); err != nil {
		return nil, err
	}
	if stop.Sub(start)/l.interval >= maxLoopIterations {
		return nil, &MalformedLineError{Line: l.line, Keyword: rangedOpen, Reason: "loop generates more than " + strconv.Itoa(maxLoopIterations) + " commands"}
	}
	var out []Command
	iter := 1
	for t := start; t.Before(stop); t = t.Add(l.interval) {
		cmd, err := normalize(body.no, body.fields, lineContext{
			anchor: l.start,
			offset: t.Sub(origin),
			suffix: iterationSuffix(iter),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
		iter++
	}
	return out, nil
}
