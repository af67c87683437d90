package plan

import (
	"errors"
	"testing"
	"time"

	"sew/internal/moments"
	"sew/internal/script"
)

var c1 = time.Date(2024, 4, 8, 17, 4, 43, 500_000_000, time.UTC)

func partialSet() moments.Set {
	return moments.Set{
		moments.C1:  {Name: moments.C1, TimeUTC: c1},
		moments.MAX: {Name: moments.MAX, TimeUTC: c1.Add(80 * time.Minute)},
		moments.C4:  {Name: moments.C4, TimeUTC: c1.Add(160 * time.Minute)},
	}
}

func cmd(anchor string, offset time.Duration, desc string) script.Command {
	return script.Command{Kind: script.KindSyncCameras, Anchor: anchor, Offset: offset, Description: desc}
}

func TestResolveOffsets(t *testing.T) {
	t.Parallel()
	cmds := []script.Command{
		cmd(moments.C1, -10*time.Second, "before"),
		cmd(moments.MAX, 2500*time.Millisecond, "after"),
	}
	res, err := Resolve(cmds, partialSet(), Options{})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(res.Jobs) != 2 {
		t.Fatalf("len(Jobs) = %d, want 2", len(res.Jobs))
	}
	if want := c1.Add(-10 * time.Second); !res.Jobs[0].At.Equal(want) {
		t.Fatalf("Jobs[0].At = %v, want %v", res.Jobs[0].At, want)
	}
	if want := c1.Add(80*time.Minute + 2500*time.Millisecond); !res.Jobs[1].At.Equal(want) {
		t.Fatalf("Jobs[1].At = %v, want %v", res.Jobs[1].At, want)
	}
	if res.Jobs[0].At.Location() != time.UTC {
		t.Fatalf("At not in UTC: %v", res.Jobs[0].At.Location())
	}
}

func TestResolveSimulationShift(t *testing.T) {
	t.Parallel()
	target := c1.Add(-2 * time.Minute)
	res, err := Resolve(
		[]script.Command{cmd(moments.C1, -10*time.Second, "x"), cmd(moments.C4, 0, "y")},
		partialSet(),
		Options{Simulation: &Simulation{Anchor: moments.C1, Target: target}},
	)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if res.Shift != 2*time.Minute {
		t.Fatalf("Shift = %v, want 2m", res.Shift)
	}
	if want := c1.Add(-10*time.Second - 2*time.Minute); !res.Jobs[0].At.Equal(want) {
		t.Fatalf("At = %v, want %v", res.Jobs[0].At, want)
	}
	if gap := res.Jobs[1].At.Sub(res.Jobs[0].At); gap != 160*time.Minute+10*time.Second {
		t.Fatalf("relative offset changed: %v", gap)
	}
}

func TestSimulationIn(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	sim := SimulationIn(moments.MAX, now, 3*time.Minute)
	shift, err := ComputeShift(partialSet(), sim)
	if err != nil {
		t.Fatalf("ComputeShift error: %v", err)
	}
	if got := c1.Add(80 * time.Minute).Add(-shift); !got.Equal(now.Add(3 * time.Minute)) {
		t.Fatalf("MAX lands at %v", got)
	}

	_, err = ComputeShift(partialSet(), Simulation{Anchor: moments.C2, Target: now})
	var uae *moments.UnresolvedAnchorError
	if !errors.As(err, &uae) {
		t.Fatalf("error = %v, want UnresolvedAnchorError", err)
	}
}

func TestResolveUnresolvedPolicy(t *testing.T) {
	t.Parallel()
	cmds := []script.Command{
		cmd(moments.C1, 0, "first contact"),
		{Kind: script.KindTakePicture, Anchor: moments.C2, Offset: -time.Second, Description: "beads", Line: 7},
		cmd(moments.C4, 0, "last contact"),
	}

	tests := []struct {
		policy  Policy
		wantErr bool
		jobs    int
	}{
		{policy: PolicySkip, jobs: 2},
		{policy: "", jobs: 2},
		{policy: PolicyAbort, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.policy), func(t *testing.T) {
			t.Parallel()
			for i := 0; i < 3; i++ {
				res, err := Resolve(cmds, partialSet(), Options{Policy: tt.policy})
				if tt.wantErr {
					var uae *moments.UnresolvedAnchorError
					if !errors.As(err, &uae) {
						t.Fatalf("error = %v, want UnresolvedAnchorError", err)
					}
					if uae.Anchor != moments.C2 || uae.Line != 7 || uae.Description != "beads" {
						t.Fatalf("unexpected error fields: %+v", uae)
					}
					if len(res.Jobs) != 0 {
						t.Fatalf("jobs produced on abort: %d", len(res.Jobs))
					}
					continue
				}
				if err != nil {
					t.Fatalf("Resolve error: %v", err)
				}
				if len(res.Jobs) != tt.jobs || len(res.Skipped) != 1 {
					t.Fatalf("jobs=%d skipped=%d", len(res.Jobs), len(res.Skipped))
				}
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()
	if p, err := ParsePolicy(" Abort "); err != nil || p != PolicyAbort {
		t.Fatalf("ParsePolicy = %q, %v", p, err)
	}
	if _, err := ParsePolicy("ignore"); err == nil {
		t.Fatal("expected error")
	}
}

func TestJobIDsStableAndDistinct(t *testing.T) {
	t.Parallel()
	cmds := []script.Command{
		cmd(moments.C1, 0, "same"),
		cmd(moments.C1, 0, "same"),
		cmd(moments.C1, time.Second, "same"),
	}
	a, err := Resolve(cmds, partialSet(), Options{})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	b, _ := Resolve(cmds, partialSet(), Options{})
	seen := map[string]bool{}
	for i, j := range a.Jobs {
		if j.ID != b.Jobs[i].ID {
			t.Fatalf("ID not stable: %s != %s", j.ID, b.Jobs[i].ID)
		}
		if seen[j.ID] {
			t.Fatalf("duplicate ID %s", j.ID)
		}
		seen[j.ID] = true
	}
}

func TestSimulatedJobIDsDifferFromReal(t *testing.T) {
	t.Parallel()
	cmds := []script.Command{cmd(moments.C1, 0, "C1")}
	real, err := Resolve(cmds, partialSet(), Options{})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	sim, err := Resolve(cmds, partialSet(), Options{Simulation: &Simulation{Anchor: moments.C1, Target: c1.Add(-time.Hour)}})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if real.Jobs[0].ID == sim.Jobs[0].ID {
		t.Fatalf("rehearsal and real job share ID %s", real.Jobs[0].ID)
	}
}

func TestSortByTime(t *testing.T) {
	t.Parallel()
	base := time.Unix(0, 0).UTC()
	jobs := []Job{
		{ID: "c", At: base.Add(2 * time.Second)},
		{ID: "a", At: base},
		{ID: "b", At: base},
	}
	SortByTime(jobs)
	if jobs[0].ID != "a" || jobs[1].ID != "b" || jobs[2].ID != "c" {
		t.Fatalf("order = %s %s %s", jobs[0].ID, jobs[1].ID, jobs[2].ID)
	}
}

func TestFormatCountdown(t *testing.T) {
	t.Parallel()
	tests := []struct {
		d    time.Duration
		want string
	}{
		{d: 0, want: "00:00"},
		{d: 59*time.Second + 900*time.Millisecond, want: "00:59"},
		{d: 61 * time.Minute, want: "01:01:00"},
		{d: 26*time.Hour + 5*time.Second, want: "1d 02:00:05"},
		{d: -90 * time.Second, want: "-01:30"},
	}
	for _, tt := range tests {
		if got := FormatCountdown(tt.d); got != tt.want {
			t.Fatalf("FormatCountdown(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
