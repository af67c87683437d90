// Package actions binds command kinds to the code that carries them out.
//
// A Registry is built by the caller and handed to the scheduler; there is no
// package level table. Tests pass a registry of recording fakes.
package actions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"sew/internal/actions/audio"
	"sew/internal/actions/camera"
	"sew/internal/script"
)

// ErrNoAction is returned when no action is registered for a command kind.
var ErrNoAction = errors.New("no action registered")

// Action carries out one command. The command is passed through untouched.
type Action func(ctx context.Context, cmd script.Command) error

// ActionInvocationError wraps a failure reported (or a panic raised) by an
// action.
type ActionInvocationError struct {
	Kind  script.Kind
	JobID string
	Err   error
}

func (e *ActionInvocationError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("action %s (job %s): %v", e.Kind, e.JobID, e.Err)
	}
	return fmt.Sprintf("action %s: %v", e.Kind, e.Err)
}

func (e *ActionInvocationError) Unwrap() error { return e.Err }

type Registry struct {
	mu      sync.RWMutex
	actions map[script.Kind]Action
}

func NewRegistry() *Registry {
	return &Registry{actions: map[script.Kind]Action{}}
}

// Register binds fn to kind, replacing any previous binding.
func (r *Registry) Register(kind script.Kind, fn Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil {
		delete(r.actions, kind)
		return
	}
	r.actions[kind] = fn
}

func (r *Registry) Lookup(kind script.Kind) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.actions[kind]
	return fn, ok
}

// Kinds lists the registered kinds, sorted.
func (r *Registry) Kinds() []script.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]script.Kind, 0, len(r.actions))
	for k := range r.actions {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Invoke runs the action bound to cmd.Kind. Failures come back as
// *ActionInvocationError.
func (r *Registry) Invoke(ctx context.Context, jobID string, cmd script.Command) error {
	fn, ok := r.Lookup(cmd.Kind)
	if !ok {
		return &ActionInvocationError{Kind: cmd.Kind, JobID: jobID, Err: ErrNoAction}
	}
	if err := fn(ctx, cmd); err != nil {
		return &ActionInvocationError{Kind: cmd.Kind, JobID: jobID, Err: err}
	}
	return nil
}

// Defaults binds every command kind to cam and player. syncCameras lists the
// bodies sync_cameras sets the clock of.
func Defaults(cam camera.Driver, player audio.Player, syncCameras []string) *Registry {
	r := NewRegistry()
	r.Register(script.KindTakePicture, func(ctx context.Context, cmd script.Command) error {
		return cam.Capture(ctx, cmd.Settings)
	})
	r.Register(script.KindTakeBurst, func(ctx context.Context, cmd script.Command) error {
		return cam.Burst(ctx, cmd.Settings, cmd.Burst)
	})
	r.Register(script.KindTakeBracket, func(ctx context.Context, cmd script.Command) error {
		return cam.Bracket(ctx, cmd.Settings, cmd.Bracket)
	})
	r.Register(script.KindSyncCameras, func(ctx context.Context, _ script.Command) error {
		now := time.Now()
		var errs []error
		for _, c := range syncCameras {
			if err := cam.SyncClock(ctx, c, now); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
	r.Register(script.KindVoicePrompt, func(ctx context.Context, cmd script.Command) error {
		return player.Play(ctx, cmd.Sound)
	})
	return r
}
