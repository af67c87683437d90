package moments

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// File is the on-disk layout of a moments file (YAML or JSON):
//
//	timezone: America/Mexico_City   # zone for timestamps without offset
//	reference_moments:
//	  C1: 2024-04-08T17:04:43.5Z
//	  C2: "08/04/2024 18:21:58.3"
//	  MAX:
//	    time_utc: 2024-04-08T18:24:10Z
//	    azimuth: 175.2
//	    altitude: 68.9
type File struct {
	Timezone string           `yaml:"timezone"`
	Moments  map[string]entry `yaml:"reference_moments"`
}

type entry struct {
	utc       string
	local     string
	azimuth   float64
	altitude  float64
	hasCoords bool
}

func (e *entry) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		e.utc = n.Value
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i].Value, n.Content[i+1].Value
			switch k {
			case "time_utc":
				e.utc = v
			case "time_local":
				e.local = v
			case "azimuth", "altitude":
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return fmt.Errorf("line %d: %s: %w", n.Content[i+1].Line, k, err)
				}
				if k == "azimuth" {
					e.azimuth = f
				} else {
					e.altitude = f
				}
				e.hasCoords = true
			default:
				return fmt.Errorf("line %d: unknown field %q", n.Content[i].Line, k)
			}
		}
		return nil
	default:
		return fmt.Errorf("line %d: expected timestamp or mapping", n.Line)
	}
}

// Load reads a moments file. Timestamps without an explicit offset are read
// in loc, or in the file's timezone when loc is nil, or in UTC.
func Load(path string, loc *time.Location) (Set, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b, loc)
}

// Parse decodes moments file content. See Load.
func Parse(data []byte, loc *time.Location) (Set, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("moments: %w", err)
	}
	if loc == nil {
		loc = time.UTC
		if tz := strings.TrimSpace(f.Timezone); tz != "" {
			l, err := time.LoadLocation(tz)
			if err != nil {
				return nil, fmt.Errorf("moments: timezone %q: %w", tz, err)
			}
			loc = l
		}
	}

	set := make(Set, len(f.Moments))
	for name, e := range f.Moments {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("moments: empty moment name")
		}
		utc, err := ParseTimestamp(e.utc, loc)
		if err != nil {
			return nil, fmt.Errorf("moments: %s: %w", name, err)
		}
		m := Moment{Name: name, TimeUTC: utc.UTC(), TimeLocal: utc.In(loc)}
		if e.local != "" {
			local, err := ParseTimestamp(e.local, loc)
			if err != nil {
				return nil, fmt.Errorf("moments: %s time_local: %w", name, err)
			}
			m.TimeLocal = local
		}
		if e.hasCoords {
			m.Azimuth, m.Altitude = e.azimuth, e.altitude
		}
		set[name] = m
	}
	return set, nil
}

// Layouts accepted by ParseTimestamp, most specific first. Fractional seconds
// are accepted after the seconds field by all of them.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
}

// ParseTimestamp parses RFC3339 or the legacy "dd/mm/yyyy HH:MM:SS.s" form.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
