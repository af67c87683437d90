package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const cliMoments = `reference_moments:
  C2: 2024-04-08T18:21:58Z
  MAX: 2024-04-08T18:24:10Z
`

func writeCLIFiles(t *testing.T) (scriptPath, momentsPath string) {
	t.Helper()
	dir := t.TempDir()
	scriptPath = filepath.Join(dir, "eclipse.txt")
	momentsPath = filepath.Join(dir, "moments.yaml")
	src := strings.Join([]string{
		`take_picture, MAX, +, 00:00:00.0, EOS R, 1/500, 8, 100, "Corona"`,
		`voice_prompt, C2, -, 00:01:00.0, C2_IN_60_SECONDS, "One minute"`,
	}, "\n") + "\n"
	if err := os.WriteFile(scriptPath, []byte(src), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	if err := os.WriteFile(momentsPath, []byte(cliMoments), 0o644); err != nil {
		t.Fatalf("write moments: %v", err)
	}
	return scriptPath, momentsPath
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTranslateCommand(t *testing.T) {
	t.Parallel()
	sp, _ := writeCLIFiles(t)
	out, err := runCLI(t, "translate", sp)
	if err != nil {
		t.Fatalf("translate error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "take_picture, MAX, +,") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestPlanCommandSimulated(t *testing.T) {
	t.Parallel()
	sp, mp := writeCLIFiles(t)
	out, err := runCLI(t, "plan", "--script", sp, "--moments", mp, "--sim-anchor", "C2", "--sim-at", "2030-01-01T12:00:00Z")
	if err != nil {
		t.Fatalf("plan error: %v", err)
	}
	for _, want := range []string{"2030-01-01 11:59:00.0", "2030-01-01 12:02:12.0", "voice_prompt", "Corona", "simulation:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSimulationFlagsNeedAnchor(t *testing.T) {
	t.Parallel()
	sp, mp := writeCLIFiles(t)
	if _, err := runCLI(t, "plan", "--script", sp, "--moments", mp, "--sim-in", "2m"); err == nil {
		t.Fatal("plan accepted --sim-in without --sim-anchor")
	}
}

func TestRenderTableAlignsColumns(t *testing.T) {
	t.Parallel()
	out := renderTable([]string{"#", "Kind"}, [][]string{{"1", "take_picture"}, {"10"}}, []columnAlignment{alignRight})
	if !strings.Contains(out, "take_picture") || !strings.Contains(out, "╭") {
		t.Fatalf("unexpected table:\n%s", out)
	}
}
