package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"sew/pkg/logx"
)

// ErrUnknownCue is returned for a cue id that has no recording.
var ErrUnknownCue = errors.New("unknown sound cue")

// Player announces a cue.
type Player interface {
	Play(ctx context.Context, cue string) error
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

type Option func(*ExecPlayer)

func WithExecutor(exec Executor) Option {
	return func(p *ExecPlayer) {
		if exec != nil {
			p.exec = exec
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(p *ExecPlayer) { p.log = log }
}

// ExecPlayer plays wav files from a sound directory with an external player
// (aplay, paplay, afplay...). Prompts never overlap: a prompt waits for the
// previous one to finish.
type ExecPlayer struct {
	binary string
	args   []string
	dir    string
	exec   Executor
	log    logx.Logger

	mu sync.Mutex
}

// NewExecPlayer builds a player. player is a command line such as "aplay -q";
// the sound file path is appended as the last argument.
func NewExecPlayer(player, soundDir string, opts ...Option) (*ExecPlayer, error) {
	parts := strings.Fields(player)
	if len(parts) == 0 {
		return nil, errors.New("audio player required")
	}
	if strings.TrimSpace(soundDir) == "" {
		return nil, errors.New("sound directory required")
	}
	p := &ExecPlayer{
		binary: parts[0],
		args:   parts[1:],
		dir:    soundDir,
		exec:   commandExecutor{},
		log:    logx.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.log.IsZero() {
		p.log = logx.Nop()
	}
	return p, nil
}

// Path resolves cue to a file under the sound directory.
func (p *ExecPlayer) Path(cue string) (string, error) {
	name, ok := SoundFile(cue)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCue, cue)
	}
	return filepath.Join(p.dir, name), nil
}

func (p *ExecPlayer) Play(ctx context.Context, cue string) error {
	path, err := p.Path(cue)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("sound %s: %w", cue, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	args := append(append([]string(nil), p.args...), path)
	if out, err := p.exec.Run(ctx, p.binary, args); err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("play %s: %w: %s", cue, err, msg)
		}
		return fmt.Errorf("play %s: %w", cue, err)
	}
	p.log.Debug("voice prompt played", logx.String("cue", cue), logx.String("file", path))
	return nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	return exec.CommandContext(ctx, binary, args...).CombinedOutput() //nolint:gosec
}

// Silent logs cues instead of playing them.
type Silent struct {
	Log logx.Logger
}

func (s Silent) Play(ctx context.Context, cue string) error {
	if _, ok := SoundFile(cue); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCue, cue)
	}
	log := s.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log.Info("voice prompt (silent)", logx.String("cue", cue))
	return ctx.Err()
}
