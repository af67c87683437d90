package scheduler

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		raw    string
		kind   SpecKind
		source string
		expr   string
	}{
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron, source: "cron", expr: "*/5 * * * *"},
		{name: "descriptor", raw: "@every 30s", kind: SpecCron, source: "cron", expr: "@every 30s"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron", expr: "0 0 * * *"},
		{name: "duration", raw: "30s", kind: SpecInterval, source: "duration", expr: "@every 30s"},
		{name: "prefixed interval", raw: "every:1m", kind: SpecInterval, source: "duration", expr: "@every 1m0s"},
		{name: "hhmm", raw: "00:05", kind: SpecInterval, source: "hhmm", expr: "@every 5m0s"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind || got.Source != tt.source {
				t.Fatalf("got %+v", got)
			}
			if got.Expr() != tt.expr {
				t.Fatalf("Expr = %q, want %q", got.Expr(), tt.expr)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "soon", "0s", "-5m", "01:75", "interval:"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q) expected error", raw)
		}
	}
}

func TestParsedSpecEvery(t *testing.T) {
	t.Parallel()
	got, err := ParseSchedule("interval:02:30")
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if got.Every != 150*time.Minute {
		t.Fatalf("Every = %v", got.Every)
	}
}
