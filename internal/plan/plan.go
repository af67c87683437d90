// Package plan resolves translated script commands against reference moments
// into absolute, UTC-timed jobs.
package plan

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"time"

	"sew/internal/moments"
	"sew/internal/script"
	"sew/pkg/logx"
)

// Policy decides what happens to a command whose anchor is missing from the
// moment set.
type Policy string

const (
	// PolicySkip drops the command and logs a warning. C2/C3 are legitimately
	// absent for partial eclipses, so this is the default.
	PolicySkip  Policy = "skip"
	PolicyAbort Policy = "abort"
)

// ParsePolicy accepts "", "skip" or "abort".
func ParsePolicy(raw string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PolicySkip, nil
	case PolicySkip, PolicyAbort:
		return p, nil
	default:
		return "", fmt.Errorf("unresolved policy must be skip or abort, got %q", raw)
	}
}

// Simulation moves the whole plan so that Anchor happens at Target.
type Simulation struct {
	Anchor string
	Target time.Time
}

// SimulationIn builds a Simulation whose anchor happens d after now.
func SimulationIn(anchor string, now time.Time, d time.Duration) Simulation {
	return Simulation{Anchor: anchor, Target: now.Add(d)}
}

// Job is a command with its absolute execution time.
type Job struct {
	// ID is stable for the same command resolved to the same instant, so it
	// can key the fired-job ledger across restarts.
	ID      string
	Command script.Command
	At      time.Time
}

func (j Job) String() string {
	return fmt.Sprintf("%s %s %s", j.At.Format(time.RFC3339Nano), j.Command.Kind, j.Command.Description)
}

// Result is the outcome of Resolve.
type Result struct {
	Jobs []Job
	// Skipped holds one *moments.UnresolvedAnchorError per dropped command.
	Skipped []error
	Shift   time.Duration
}

type Options struct {
	Policy     Policy
	Simulation *Simulation
	Log        logx.Logger
}

// ComputeShift returns reference[sim.Anchor] - sim.Target. Subtracting it from
// every execution time makes sim.Anchor happen at sim.Target.
func ComputeShift(set moments.Set, sim Simulation) (time.Duration, error) {
	ref, err := set.Lookup(sim.Anchor)
	if err != nil {
		var uae *moments.UnresolvedAnchorError
		if errors.As(err, &uae) {
			uae.Description = "simulation anchor"
		}
		return 0, err
	}
	if sim.Target.IsZero() {
		return 0, fmt.Errorf("simulation target time is not set")
	}
	return ref.TimeUTC.Sub(sim.Target), nil
}

// Resolve turns commands into jobs, in command order.
//
// With PolicyAbort the first unresolved anchor is returned as an error and no
// jobs are produced. With PolicySkip such commands are reported in
// Result.Skipped and the rest are resolved.
func Resolve(cmds []script.Command, set moments.Set, opts Options) (Result, error) {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	policy := opts.Policy
	if policy == "" {
		policy = PolicySkip
	}

	var res Result
	if opts.Simulation != nil {
		shift, err := ComputeShift(set, *opts.Simulation)
		if err != nil {
			return Result{}, err
		}
		res.Shift = shift
		log.Info("simulation shift applied",
			logx.String("anchor", opts.Simulation.Anchor),
			logx.Time("target", opts.Simulation.Target.UTC()),
			logx.Duration("shift", shift),
		)
	}

	ids := newIDs()
	res.Jobs = make([]Job, 0, len(cmds))
	for _, cmd := range cmds {
		ref, err := set.Lookup(cmd.Anchor)
		if err != nil {
			uae := &moments.UnresolvedAnchorError{Anchor: cmd.Anchor, Line: cmd.Line, Description: cmd.Description}
			if policy == PolicyAbort {
				return Result{}, uae
			}
			log.Warn("skipping command with unavailable reference moment",
				logx.String("anchor", cmd.Anchor),
				logx.Int("line", cmd.Line),
				logx.String("kind", string(cmd.Kind)),
				logx.String("description", cmd.Description),
			)
			res.Skipped = append(res.Skipped, uae)
			continue
		}
		at := ref.TimeUTC.Add(cmd.Offset).Add(-res.Shift).UTC()
		res.Jobs = append(res.Jobs, Job{ID: ids.next(cmd, at), Command: cmd, At: at})
	}
	return res, nil
}

// SortByTime orders jobs by execution time, keeping command order for ties.
func SortByTime(jobs []Job) {
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].At.Before(jobs[j].At) })
}

// idGen derives job ids from the canonical rendering of a command and its
// resolved time. A shifted rehearsal therefore never shares ids with the
// real schedule. Identical commands at the same instant are told apart by
// their occurrence count.
type idGen struct{ seen map[string]int }

func newIDs() *idGen { return &idGen{seen: map[string]int{}} }

func (g *idGen) next(cmd script.Command, at time.Time) string {
	key := script.Render(cmd) + "\x00" + strconv.FormatInt(at.UTC().UnixNano(), 10)
	n := g.seen[key]
	g.seen[key] = n + 1
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.Itoa(n)))
	return fmt.Sprintf("%016x", h.Sum64())
}
