// Package moments holds the reference moments of an eclipse as seen from one
// observing site: first to fourth contact, maximum eclipse, sunrise and sunset.
//
// Timestamps are computed elsewhere (astronomy is not part of this module);
// this package only carries them and answers lookups by name.
package moments

import (
	"fmt"
	"sort"
	"time"
)

// Reference moment names as they appear in scripts.
const (
	C1      = "C1"
	C2      = "C2"
	MAX     = "MAX"
	C3      = "C3"
	C4      = "C4"
	Sunrise = "sunrise"
	Sunset  = "sunset"
)

// Known lists the reference moments in chronological order of a total eclipse.
var Known = []string{Sunrise, C1, C2, MAX, C3, C4, Sunset}

// Moment is one reference moment. Only TimeUTC is used for scheduling.
type Moment struct {
	Name      string
	TimeUTC   time.Time
	TimeLocal time.Time
	Azimuth   float64
	Altitude  float64
}

// Set maps moment names to moments. C2/C3 are absent for partial eclipses and
// C1/MAX/C4 are absent when no eclipse is visible at all.
type Set map[string]Moment

// Lookup returns the named moment or an *UnresolvedAnchorError.
func (s Set) Lookup(name string) (Moment, error) {
	m, ok := s[name]
	if !ok || m.TimeUTC.IsZero() {
		return Moment{}, &UnresolvedAnchorError{Anchor: name}
	}
	return m, nil
}

// Has reports whether name resolves.
func (s Set) Has(name string) bool {
	_, err := s.Lookup(name)
	return err == nil
}

// Names returns the present moment names sorted by time.
func (s Set) Names() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := s[out[i]].TimeUTC, s[out[j]].TimeUTC
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i] < out[j]
	})
	return out
}

// UnresolvedAnchorError reports a reference moment that is not in the Set.
// Line and Description identify the command that needed it, when known.
type UnresolvedAnchorError struct {
	Anchor      string
	Line        int
	Description string
}

func (e *UnresolvedAnchorError) Error() string {
	msg := fmt.Sprintf("reference moment %q not available", e.Anchor)
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	if e.Description != "" {
		msg += fmt.Sprintf(" (%s)", e.Description)
	}
	return msg
}
