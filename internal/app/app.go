package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"sew/internal/config"
	"sew/internal/eventbus"
	"sew/internal/notifier"
	rtsup "sew/internal/runtime/supervisor"
	"sew/internal/storage"
	"sew/internal/task/engine"
	"sew/internal/task/scheduler"
	"sew/pkg/logx"
)

// ErrLocked is returned by Start when another session holds the lock file.
var ErrLocked = errors.New("another sew session is running")

type Options struct {
	// ConfigPath may be empty; the defaults are used then.
	ConfigPath string
	// Watch keeps the run alive after the last job and reloads the config,
	// script and moments files when they change.
	Watch bool
	// Override is applied to every loaded config, including reloads.
	Override func(*config.Config)
	// Now is the clock used to anchor "simulation.in". Defaults to time.Now.
	Now func() time.Time
}

type App struct {
	opts Options

	cfgm *config.ConfigManager
	cfg  *config.Config

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	lock  *flock.Flock

	engine *engine.Service
	sched  *scheduler.Service
	notif  *notifier.Service

	sup *rtsup.Supervisor

	// planMu serializes plan rebuilds from config and file watchers.
	planMu    sync.Mutex
	planAt    time.Time
	watchStop context.CancelFunc
	watched   []string
}

func NewApp(opts Options) (*App, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	var (
		cfgm *config.ConfigManager
		cfg  *config.Config
	)
	if strings.TrimSpace(opts.ConfigPath) != "" {
		cfgm = config.NewConfigManager(opts.ConfigPath)
		loaded, err := cfgm.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}
	cfg, err := applyOverride(cfg, opts.Override)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.NewService(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	stCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(stCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	closeStore := func() {
		if store != nil {
			_ = store.Close()
		}
	}
	if store != nil {
		log.Info("ledger enabled", logx.String("driver", stCfg.Driver), logx.String("path", stCfg.Path))
	}

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		closeStore()
		return nil, err
	}
	engineSvc := engine.New(engCfg, log.With(logx.String("comp", "taskengine")), bus)

	registry, err := buildRegistry(cfg, log)
	if err != nil {
		closeStore()
		return nil, err
	}

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		closeStore()
		return nil, err
	}
	schedOpts := []scheduler.Option{
		scheduler.WithStatusHook(func(st scheduler.Status) {
			sdNotify(log, "STATUS="+statusLine(st))
		}),
	}
	if store != nil {
		schedOpts = append(schedOpts, scheduler.WithLedger(store))
	}
	schedSvc := scheduler.New(schedCfg, engineSvc, registry, log, bus, schedOpts...)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		closeStore()
		return nil, err
	}
	var sender notifier.Sender
	if ncfg.Enabled {
		sender, err = notifier.NewTelegramSender(ncfg.Token)
		if err != nil {
			closeStore()
			return nil, err
		}
	}
	notifSvc := notifier.New(ncfg, sender, log.With(logx.String("comp", "notifier")), bus, schedSvc.Location())

	var lock *flock.Flock
	if p := strings.TrimSpace(cfg.LockFile); p != "" {
		lock = flock.New(p)
	}

	return &App{
		opts:   opts,
		cfgm:   cfgm,
		cfg:    cfg,
		log:    log,
		logs:   logSvc,
		bus:    bus,
		store:  store,
		lock:   lock,
		engine: engineSvc,
		sched:  schedSvc,
		notif:  notifSvc,
	}, nil
}

func applyOverride(cfg *config.Config, fn func(*config.Config)) (*config.Config, error) {
	if fn == nil {
		return cfg, nil
	}
	cp := *cfg
	fn(&cp)
	if err := cp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cp, nil
}

// Config returns the config the app is running with.
func (a *App) Config() *config.Config {
	a.planMu.Lock()
	defer a.planMu.Unlock()
	return a.cfg
}

func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start takes the session lock, starts the services and loads the plan.
// A plan that fails to build aborts the start.
func (a *App) Start(ctx context.Context) error {
	if a.lock != nil {
		if dir := filepath.Dir(a.lock.Path()); dir != "" {
			if err := ensureDir(dir); err != nil {
				return err
			}
		}
		ok, err := a.lock.TryLock()
		if err != nil {
			return fmt.Errorf("lock %s: %w", a.lock.Path(), err)
		}
		if !ok {
			return fmt.Errorf("%w (lock %s)", ErrLocked, a.lock.Path())
		}
	}

	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.engine.Start(a.sup.Context())
	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}

	a.planAt = a.opts.Now()
	if err := a.replan(a.sup.Context(), a.cfg, "start"); err != nil {
		return err
	}
	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}

	a.startEventLog()
	if a.opts.Watch {
		a.startReload()
	}

	sdNotify(a.log, "READY=1")
	a.log.Info("app started", logx.Bool("watch", a.opts.Watch))
	return nil
}

// Run blocks until ctx is done, the supervisor fails or, without Watch,
// every job has finished.
func (a *App) Run(ctx context.Context) StopReason {
	var idle <-chan struct{}
	if !a.opts.Watch {
		ch := make(chan struct{})
		go func() {
			if a.sched.WaitIdle(a.sup.Context()) == nil {
				close(ch)
			}
		}()
		idle = ch
	}
	select {
	case <-ctx.Done():
		return StopSignal
	case <-a.sup.Context().Done():
		if a.sup.Err() != nil {
			return StopFatalError
		}
		return StopSignal
	case <-idle:
		return StopIdle
	}
}

// replan builds the plan for cfg and loads it. It holds planMu so watcher
// callbacks never load two plans concurrently.
func (a *App) replan(ctx context.Context, cfg *config.Config, why string) error {
	a.planMu.Lock()
	defer a.planMu.Unlock()

	in, err := PlanInputFromConfig(cfg, a.planAt)
	if err != nil {
		return err
	}
	p, err := BuildPlan(in, a.log.With(logx.String("comp", "plan")))
	if err != nil {
		return err
	}
	rep, err := a.sched.Load(ctx, p.Jobs)
	if err != nil {
		return err
	}
	a.cfg = cfg
	fields := []logx.Field{
		logx.String("reason", why),
		logx.String("session", rep.Session),
		logx.Int("commands", len(p.Commands)),
		logx.Int("scheduled", rep.Scheduled),
		logx.Int("late", rep.Late),
		logx.Int("missed", rep.Missed),
		logx.Int("already_fired", rep.AlreadyFired),
		logx.Int("skipped", len(p.Skipped)),
	}
	if p.Shift != 0 {
		fields = append(fields, logx.Duration("shift", p.Shift))
	}
	a.log.Info("plan loaded", fields...)

	if a.opts.Watch && a.sup != nil {
		a.rewatchLocked(in.ScriptPath, in.MomentsPath)
	}
	return nil
}

// startEventLog mirrors the bus at debug level.
func (a *App) startEventLog() {
	events, unsubscribe := a.bus.Subscribe(256)
	a.sup.Go("events.log", func(c context.Context) error {
		defer unsubscribe()
		log := a.log.With(logx.String("comp", "events"))
		for {
			select {
			case <-c.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				if !log.Enabled(logx.LevelDebug) {
					continue
				}
				log.Debug("event", logx.String("type", ev.Type), logx.Any("data", ev.Data))
			}
		}
	})
}

// startReload watches the config file and applies published configs.
func (a *App) startReload() {
	if a.cfgm == nil {
		return
	}
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		ov, err := applyOverride(cfg, a.opts.Override)
		if err != nil {
			return err
		}
		if _, err := mapSchedulerConfig(ov); err != nil {
			return err
		}
		_, err = PlanInputFromConfig(ov, a.opts.Now())
		return err
	})

	updates := a.cfgm.Subscribe(4)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-c.Done():
				return nil
			case cfg, ok := <-updates:
				if !ok {
					return nil
				}
				// coalesce bursts; only the newest config matters
			drain:
				for {
					select {
					case next, ok := <-updates:
						if !ok {
							break drain
						}
						cfg = next
					default:
						break drain
					}
				}
				a.applyConfig(c, cfg)
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
}

func (a *App) applyConfig(ctx context.Context, raw *config.Config) {
	cfg, err := applyOverride(raw, a.opts.Override)
	if err != nil {
		a.log.Warn("config reload rejected", logx.Err(err))
		return
	}
	old := a.Config()
	ch := config.SummarizeConfigChange(old, cfg)
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
	a.log.Info("config reloaded", fields...)

	if containsSection(ch.Sections, "logging") {
		a.logs.Apply(mapLogConfig(cfg))
	}
	if ch.Restart {
		a.log.Warn("some changes apply on the next run", logx.String("changed", strings.Join(ch.Sections, ",")))
	}
	if !ch.Replan {
		a.planMu.Lock()
		a.cfg = cfg
		a.planMu.Unlock()
		return
	}
	if containsSection(ch.Sections, "simulation") {
		a.planMu.Lock()
		a.planAt = a.opts.Now()
		a.planMu.Unlock()
	}
	if err := a.replan(ctx, cfg, "config"); err != nil {
		a.log.Error("replan failed; keeping current plan", logx.Err(err))
	}
}

// rewatchLocked restarts the script and moments watchers when their paths
// change. Callers hold planMu.
func (a *App) rewatchLocked(paths ...string) {
	if equalPaths(a.watched, paths) {
		return
	}
	if a.watchStop != nil {
		a.watchStop()
	}
	ctx, cancel := context.WithCancel(a.sup.Context())
	a.watchStop = cancel
	a.watched = append([]string(nil), paths...)
	for _, p := range paths {
		if p == "" {
			continue
		}
		path := p
		a.sup.Go("watch."+filepath.Base(path), func(context.Context) error {
			err := config.WatchFile(ctx, path, config.DefaultDebounce, a.log.With(logx.String("watch", path)), func() {
				if err := a.replan(ctx, a.Config(), "file changed: "+filepath.Base(path)); err != nil {
					a.log.Error("replan failed; keeping current plan", logx.String("path", path), logx.Err(err))
				}
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}
}

// Stop cancels pending jobs, lets running actions finish and releases the
// session lock. Each step is bounded so one component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		// never started
		if a.store != nil {
			_ = a.store.Close()
		}
		if a.logs != nil {
			_ = a.logs.Close()
		}
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, "STOPPING=1")

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
			go func() {
				err := <-done
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
				}
			}()
		}
	}

	// pending jobs first, so nothing fires while the engine drains
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Shutdown(c); return nil })
	step("taskengine", 10*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	// the notifier outlives the engine so cancellation notices go out
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })

	a.sup.Cancel()
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil {
			a.log.Warn("unlock failed", logx.String("path", a.lock.Path()), logx.Err(err))
		}
	}

	snap := a.sched.Snapshot()
	a.log.Info("stopped",
		logx.Int("completed", snap.Completed),
		logx.Int("failed", snap.Failed),
		logx.Int("missed", snap.Missed),
		logx.Int("cancelled", snap.Cancelled),
	)
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
