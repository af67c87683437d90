package app

import (
	"fmt"
	"os"
	"slices"

	"sew/internal/plan"
	"sew/internal/task/scheduler"
)

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

func containsSection(sections []string, name string) bool {
	return slices.Contains(sections, name)
}

func equalPaths(a, b []string) bool { return slices.Equal(a, b) }

// statusLine is the one-line status shown by systemctl status.
func statusLine(st scheduler.Status) string {
	s := fmt.Sprintf("%d pending, %d done, %d failed", st.Snapshot.Pending, st.Snapshot.Completed, st.Snapshot.Failed)
	if st.Next != nil {
		s += fmt.Sprintf("; next %s in %s", st.Next.Kind, plan.FormatCountdown(st.Countdown))
	}
	return s
}
