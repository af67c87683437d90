package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sew/internal/app"
	"sew/internal/plan"
)

type planRow struct {
	ID          string    `json:"id"`
	At          time.Time `json:"at"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Line        int       `json:"line"`
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show when every command of the script will run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			now := time.Now()
			in, err := app.PlanInputFromConfig(cfg, now)
			if err != nil {
				return err
			}
			p, err := app.BuildPlan(in, ctx.logger(cfg))
			if err != nil {
				return err
			}

			if asJSON {
				rows := make([]planRow, 0, len(p.Jobs))
				for _, j := range p.Jobs {
					rows = append(rows, planRow{ID: j.ID, At: j.At, Kind: string(j.Command.Kind), Description: j.Command.Description, Line: j.Command.Line})
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			loc := time.Local
			if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
				if l, err := time.LoadLocation(tz); err == nil {
					loc = l
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPlan(p, now, loc))
			if p.Shift != 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "simulation: moments shifted by %s\n", p.Shift)
			}
			if len(p.Skipped) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d command(s) skipped:\n", len(p.Skipped))
				for _, err := range p.Skipped {
					fmt.Fprintf(cmd.OutOrStdout(), "  %v\n", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the jobs as JSON")
	return cmd
}

func renderPlan(p *app.Plan, now time.Time, loc *time.Location) string {
	headers := []string{"#", "UTC", "Local", "In", "Kind", "Description"}
	rows := make([][]string, 0, len(p.Jobs))
	for i, j := range p.Jobs {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			j.At.UTC().Format("2006-01-02 15:04:05.0"),
			j.At.In(loc).Format("15:04:05.0 MST"),
			plan.FormatCountdown(j.At.Sub(now)),
			string(j.Command.Kind),
			j.Command.Description,
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft})
}
