package moments

import (
	"errors"
	"testing"
	"time"
)

func TestParseFormats(t *testing.T) {
	t.Parallel()
	src := []byte(`reference_moments:
  C1: 2024-04-08T17:04:43.5Z
  C2: "08/04/2024 12:21:58.3"
  MAX:
    time_utc: 2024-04-08T18:24:10Z
    azimuth: 175.2
    altitude: 68.9
`)
	set, err := Parse(src, time.FixedZone("CST", -6*60*60))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	cases := []struct {
		name string
		want time.Time
	}{
		{"C1", time.Date(2024, 4, 8, 17, 4, 43, 500_000_000, time.UTC)},
		{"C2", time.Date(2024, 4, 8, 18, 21, 58, 300_000_000, time.UTC)},
		{"MAX", time.Date(2024, 4, 8, 18, 24, 10, 0, time.UTC)},
	}
	for _, tc := range cases {
		m, err := set.Lookup(tc.name)
		if err != nil {
			t.Fatalf("Lookup(%s) error: %v", tc.name, err)
		}
		if !m.TimeUTC.Equal(tc.want) {
			t.Fatalf("%s = %v, want %v", tc.name, m.TimeUTC, tc.want)
		}
	}
	if m, _ := set.Lookup("MAX"); m.Azimuth != 175.2 || m.Altitude != 68.9 {
		t.Fatalf("MAX coords = %v/%v", m.Azimuth, m.Altitude)
	}
}

func TestLookupMissing(t *testing.T) {
	t.Parallel()
	set := Set{"C1": {Name: "C1", TimeUTC: time.Now()}}
	_, err := set.Lookup("C2")
	var uae *UnresolvedAnchorError
	if !errors.As(err, &uae) || uae.Anchor != "C2" {
		t.Fatalf("Lookup error = %v, want UnresolvedAnchorError for C2", err)
	}
	if set.Has("C2") || !set.Has("C1") {
		t.Fatal("Has reports wrong membership")
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	t.Parallel()
	bad := []string{
		"reference_moments:\n  C1: yesterday\n",
		"reference_moments:\n  C1:\n    time_utc: 2024-04-08T17:04:43Z\n    colour: red\n",
		"timezone: Mars/Olympus\nreference_moments:\n  C1: 2024-04-08T17:04:43Z\n",
	}
	for _, src := range bad {
		if _, err := Parse([]byte(src), nil); err == nil {
			t.Fatalf("Parse(%q) succeeded", src)
		}
	}
}
