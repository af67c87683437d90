package camera

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"sew/internal/script"
	"sew/pkg/logx"
)

// bracketShots is the number of frames of one AEB sequence.
const bracketShots = 5

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

type Option func(*GPhoto2)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(g *GPhoto2) {
		if exec != nil {
			g.exec = exec
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(g *GPhoto2) { g.log = log }
}

// GPhoto2 drives cameras through the gphoto2 command line tool. The camera
// name from the script is passed as --camera, so it must match the model
// string gphoto2 --auto-detect prints.
type GPhoto2 struct {
	binary string
	exec   Executor
	log    logx.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewGPhoto2(binary string, opts ...Option) (*GPhoto2, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("gphoto2 binary required")
	}
	g := &GPhoto2{
		binary: binary,
		exec:   commandExecutor{},
		log:    logx.Nop(),
		locks:  map[string]*sync.Mutex{},
	}
	for _, o := range opts {
		o(g)
	}
	if g.log.IsZero() {
		g.log = logx.Nop()
	}
	return g, nil
}

func (g *GPhoto2) Capture(ctx context.Context, s script.CameraSettings) error {
	args := settingsArgs(s)
	args = append(args, "--capture-image")
	return g.run(ctx, s.Camera, "capture", args)
}

func (g *GPhoto2) Burst(ctx context.Context, s script.CameraSettings, n float64) error {
	if n <= 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return fmt.Errorf("invalid burst length %v", n)
	}
	args := settingsArgs(s)
	switch VendorOf(s.Camera) {
	case VendorCanon:
		hold := time.Duration(n * float64(time.Second)).Truncate(time.Millisecond)
		args = append(args,
			"--set-config", "eosremoterelease=Press Full",
			"--wait-event="+strconv.FormatInt(hold.Milliseconds(), 10)+"ms",
			"--set-config", "eosremoterelease=Release Full",
		)
	case VendorNikon:
		args = append(args,
			"--set-config", "capturemode=Burst",
			"--set-config", "burstnumber="+strconv.Itoa(int(math.Round(n))),
			"--capture-image",
		)
	default:
		return fmt.Errorf("burst not supported for camera %q", s.Camera)
	}
	return g.run(ctx, s.Camera, "burst", args)
}

func (g *GPhoto2) Bracket(ctx context.Context, s script.CameraSettings, step string) error {
	if VendorOf(s.Camera) != VendorCanon {
		return fmt.Errorf("bracketing not supported for camera %q", s.Camera)
	}
	args := settingsArgs(s)
	args = append(args, "--set-config", "aeb="+strings.TrimSpace(step))
	for i := 0; i < bracketShots; i++ {
		args = append(args, "--capture-image")
	}
	args = append(args, "--set-config", "aeb=off")
	return g.run(ctx, s.Camera, "bracket", args)
}

func (g *GPhoto2) SyncClock(ctx context.Context, camera string, now time.Time) error {
	// gphoto2 resolves "now" itself; the timestamp is only logged.
	g.log.Debug("camera clock sync", logx.String("camera", camera), logx.Time("now", now.UTC()))
	err := g.run(ctx, camera, "sync", []string{"--set-config", "datetimeutc=now"})
	if err == nil {
		return nil
	}
	// Older bodies only expose a local "datetime" widget.
	return g.run(ctx, camera, "sync", []string{"--set-config", "datetime=now"})
}

func settingsArgs(s script.CameraSettings) []string {
	var args []string
	if VendorOf(s.Camera) == VendorNikon {
		args = append(args, "--set-config", "autoiso=Off")
	}
	if v := strings.TrimSpace(s.ISO); v != "" {
		args = append(args, "--set-config", "iso="+v)
	}
	if v := strings.TrimSpace(s.Aperture); v != "" {
		switch VendorOf(s.Camera) {
		case VendorCanon:
			args = append(args, "--set-config", "aperture="+v)
		case VendorNikon:
			args = append(args, "--set-config", "f-number="+v)
		}
	}
	if v := strings.TrimSpace(s.ShutterSpeed); v != "" {
		args = append(args, "--set-config", "shutterspeed="+v)
	}
	return args
}

func (g *GPhoto2) lockFor(camera string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[camera]
	if !ok {
		l = &sync.Mutex{}
		g.locks[camera] = l
	}
	return l
}

func (g *GPhoto2) run(ctx context.Context, camera, op string, args []string) error {
	l := g.lockFor(camera)
	l.Lock()
	defer l.Unlock()

	full := args
	if camera = strings.TrimSpace(camera); camera != "" {
		full = append([]string{"--camera", camera}, args...)
	}
	start := time.Now()
	out, err := g.exec.Run(ctx, g.binary, full)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("gphoto2 %s %q: %w: %s", op, camera, err, msg)
		}
		return fmt.Errorf("gphoto2 %s %q: %w", op, camera, err)
	}
	g.log.Debug("gphoto2 done",
		logx.String("op", op),
		logx.String("camera", camera),
		logx.Duration("took", time.Since(start)),
	)
	return nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	return exec.CommandContext(ctx, binary, args...).CombinedOutput() //nolint:gosec
}
