package notifier

import (
	"fmt"
	"strings"
	"time"

	"sew/internal/eventbus"
	"sew/internal/task/engine"
	"sew/internal/task/scheduler"
)

const timeLayout = "15:04:05.0 MST"

// Format turns a bus event into a message. ok is false for events that do
// not produce one.
func Format(ev eventbus.Event, loc *time.Location) (n Notification, ok bool) {
	if loc == nil {
		loc = time.UTC
	}
	switch ev.Type {
	case eventbus.PlanLoaded:
		le, isLoad := ev.Data.(scheduler.LoadEvent)
		if !isLoad {
			return Notification{}, false
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Plan loaded: %d jobs scheduled", le.Scheduled)
		if le.Missed > 0 || le.AlreadyFired > 0 {
			fmt.Fprintf(&b, " (%d missed, %d already fired)", le.Missed, le.AlreadyFired)
		}
		if !le.First.IsZero() {
			fmt.Fprintf(&b, "\nfirst %s, last %s", le.First.In(loc).Format(timeLayout), le.Last.In(loc).Format(timeLayout))
		}
		return Notification{Priority: 5, Text: b.String()}, true

	case eventbus.JobFailed, eventbus.JobMissed, eventbus.JobCancelled:
		je, isJob := ev.Data.(scheduler.JobEvent)
		if !isJob {
			return Notification{}, false
		}
		verb, prio := "cancelled", 5
		switch ev.Type {
		case eventbus.JobFailed:
			verb, prio = "failed", 9
		case eventbus.JobMissed:
			verb, prio = "missed", 7
		}
		text := fmt.Sprintf("%s %s: %s (at %s)", je.Kind, verb, describe(je.Description), je.At.In(loc).Format(timeLayout))
		if je.Error != "" {
			text += "\n" + je.Error
		}
		return Notification{Priority: prio, Text: text}, true

	case eventbus.TaskDropped:
		te, isTask := ev.Data.(engine.TaskEvent)
		if !isTask {
			return Notification{}, false
		}
		return Notification{Priority: 9, Text: fmt.Sprintf("%s not run: %s", te.Name, te.Error)}, true

	case eventbus.SchedulerIdle:
		return Notification{Priority: 5, Text: "No jobs pending."}, true
	}
	return Notification{}, false
}

func describe(desc string) string {
	if strings.TrimSpace(desc) == "" {
		return "-"
	}
	return desc
}

func prefixForPriority(p int) string {
	switch {
	case p >= 9:
		return "🚨 "
	case p >= 7:
		return "⚠️ "
	case p >= 5:
		return "ℹ️ "
	default:
		return ""
	}
}
