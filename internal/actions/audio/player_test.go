package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeExecutor struct {
	binary string
	args   []string
}

func (f *fakeExecutor) Run(_ context.Context, binary string, args []string) ([]byte, error) {
	f.binary, f.args = binary, args
	return nil, nil
}

func TestSoundFile(t *testing.T) {
	t.Parallel()
	tests := []struct {
		cue  string
		want string
	}{
		{cue: "C2_IN_20_SECONDS", want: "c2_in_20_seconds.wav"},
		{cue: "max", want: "max.wav"},
		{cue: "C4_IN_10_SECONDS", want: "10.wav"},
		{cue: "FILTERS_ON", want: "filters_on.wav"},
	}
	for _, tt := range tests {
		got, ok := SoundFile(tt.cue)
		if !ok || got != tt.want {
			t.Fatalf("SoundFile(%q) = %q, %v; want %q", tt.cue, got, ok, tt.want)
		}
	}
	if _, ok := SoundFile("C2_IN_7_SECONDS"); ok {
		t.Fatal("unexpected cue match")
	}
}

func TestExecPlayerPlays(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "c2.wav"), []byte("RIFF"), 0o600); err != nil {
		t.Fatalf("write sound: %v", err)
	}
	exec := &fakeExecutor{}
	p, err := NewExecPlayer("aplay -q", dir, WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewExecPlayer error: %v", err)
	}
	if err := p.Play(context.Background(), "C2"); err != nil {
		t.Fatalf("Play error: %v", err)
	}
	if exec.binary != "aplay" || len(exec.args) != 2 || exec.args[0] != "-q" || exec.args[1] != filepath.Join(dir, "c2.wav") {
		t.Fatalf("ran %s %v", exec.binary, exec.args)
	}
}

func TestExecPlayerErrors(t *testing.T) {
	t.Parallel()
	p, err := NewExecPlayer("aplay", t.TempDir(), WithExecutor(&fakeExecutor{}))
	if err != nil {
		t.Fatalf("NewExecPlayer error: %v", err)
	}
	if err := p.Play(context.Background(), "NOPE"); !errors.Is(err, ErrUnknownCue) {
		t.Fatalf("error = %v, want ErrUnknownCue", err)
	}
	if err := p.Play(context.Background(), "C2"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error = %v, want not exist", err)
	}
	if _, err := NewExecPlayer("", "x"); err == nil {
		t.Fatal("expected error for empty player")
	}
}
