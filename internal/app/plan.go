package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"sew/internal/config"
	"sew/internal/moments"
	"sew/internal/plan"
	"sew/internal/script"
	"sew/pkg/logx"
)

// PlanInput is everything needed to turn a script into jobs.
type PlanInput struct {
	ScriptPath  string
	MomentsPath string
	// MomentsZone applies to legacy timestamps without offset; nil uses the
	// file's own timezone, then UTC.
	MomentsZone *time.Location
	Policy      plan.Policy
	Simulation  *plan.Simulation
}

// Plan is a translated and resolved script.
type Plan struct {
	Commands []script.Command
	Moments  moments.Set
	plan.Result
}

// PlanInputFromConfig maps cfg to a PlanInput. A simulation given as "in"
// is anchored at now.
func PlanInputFromConfig(cfg *config.Config, now time.Time) (PlanInput, error) {
	in := PlanInput{
		ScriptPath:  strings.TrimSpace(cfg.Script),
		MomentsPath: strings.TrimSpace(cfg.Moments.Path),
	}
	if tz := strings.TrimSpace(cfg.Moments.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return PlanInput{}, fmt.Errorf("moments.timezone: %w", err)
		}
		in.MomentsZone = loc
	}
	policy, err := plan.ParsePolicy(cfg.Scheduler.UnresolvedPolicy)
	if err != nil {
		return PlanInput{}, err
	}
	in.Policy = policy

	if sim := cfg.Simulation; sim != nil {
		anchor := strings.TrimSpace(sim.Anchor)
		if target := strings.TrimSpace(sim.Target); target != "" {
			at, err := time.Parse(time.RFC3339Nano, target)
			if err != nil {
				return PlanInput{}, fmt.Errorf("simulation.target: %w", err)
			}
			in.Simulation = &plan.Simulation{Anchor: anchor, Target: at}
		} else {
			d, err := config.ParseDurationField("simulation.in", sim.In)
			if err != nil {
				return PlanInput{}, err
			}
			s := plan.SimulationIn(anchor, now, d)
			in.Simulation = &s
		}
	}
	return in, nil
}

// BuildPlan loads the moments, translates the script against them and
// resolves every command to an absolute time. Translation errors are fatal:
// a partially translated script is never scheduled.
func BuildPlan(in PlanInput, log logx.Logger) (*Plan, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if in.ScriptPath == "" {
		return nil, errors.New("script path required")
	}
	if in.MomentsPath == "" {
		return nil, errors.New("moments path required")
	}
	set, err := moments.Load(in.MomentsPath, in.MomentsZone)
	if err != nil {
		return nil, fmt.Errorf("moments %s: %w", in.MomentsPath, err)
	}

	tr := script.NewTranslator(script.WithMoments(set), script.WithLogger(log.With(logx.String("comp", "translator"))))
	cmds, err := tr.TranslateFile(in.ScriptPath)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", in.ScriptPath, err)
	}

	res, err := plan.Resolve(cmds, set, plan.Options{Policy: in.Policy, Simulation: in.Simulation, Log: log})
	if err != nil {
		return nil, err
	}
	plan.SortByTime(res.Jobs)
	log.Debug("plan built",
		logx.String("script", in.ScriptPath),
		logx.Int("commands", len(cmds)),
		logx.Int("jobs", len(res.Jobs)),
		logx.Int("skipped", len(res.Skipped)),
	)
	return &Plan{Commands: cmds, Moments: set, Result: res}, nil
}
