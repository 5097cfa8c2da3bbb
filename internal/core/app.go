package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cronbot/internal/config"
	"cronbot/internal/eventbus"
	"cronbot/internal/jobstore"
	"cronbot/internal/scheduler"
	"cronbot/pkg/logx"
)

// App owns the process-level wiring: config, logging, the job store, the
// scheduler, and the bus glue between them.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service

	bus   eventbus.Bus
	store *jobstore.Store
	reg   *ExecutorRegistry
	sched *scheduler.Service

	eventsCfg config.EventsConfig
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	storeCfg := jobstore.Config{}
	if cfg.Store != nil {
		busy, err := config.ParseDurationField("store.busy_timeout", cfg.Store.BusyTimeout)
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		storeCfg = jobstore.Config{
			Driver:      cfg.Store.Driver,
			Path:        cfg.Store.Path,
			BusyTimeout: busy,
		}
	}
	store, err := jobstore.Open(storeCfg, log.With(logx.String("comp", "store")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	stuckAfter, err := config.ParseDurationField("scheduler.stuck_after", cfg.Scheduler.StuckAfter)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			_ = store.Close()
			_ = logSvc.Close()
			return nil, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}

	bus := eventbus.New()
	reg := NewExecutorRegistry(bus, log.With(logx.String("comp", "exec")))
	sched := scheduler.New(scheduler.Config{
		StuckAfter:      stuckAfter,
		DefaultTimezone: strings.TrimSpace(cfg.Scheduler.Timezone),
	}, store, reg.Dispatch(), bus, log.With(logx.String("comp", "scheduler")))

	return &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		reg:       reg,
		sched:     sched,
		eventsCfg: effectiveEvents(cfg),
	}, nil
}

// Scheduler exposes the job API to the host surface (commands, HTTP, agent
// tools).
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Executors lets the host register payload handlers before Start.
func (a *App) Executors() *ExecutorRegistry { return a.reg }

// Bus exposes the in-process event stream.
func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app supervisor context is cancelled (fatal error or
// Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := config.ParseDurationField("scheduler.stuck_after", cfg.Scheduler.StuckAfter); err != nil {
			return err
		}
		if cfg.Store != nil {
			if _, err := config.ParseDurationField("store.busy_timeout", cfg.Store.BusyTimeout); err != nil {
				return err
			}
		}
		if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
			}
		}
		return nil
	})

	cfg := a.cfgm.Get()
	if cfg != nil && cfg.Scheduler.Enabled {
		a.sched.Start()
	} else {
		a.log.Info("scheduler disabled by config; jobs will not fire")
	}

	// rate-limited bus-to-log bridge
	if a.eventsCfg.Enabled {
		events, unsub := a.bus.Subscribe(64)
		elog := newEventLogger(a.log.With(logx.String("comp", "events")), a.eventsCfg.RatePerSec, a.eventsCfg.Burst)
		a.sup.Go0("events.log", func(c context.Context) {
			defer unsub()
			elog.run(c, events)
		})
	}

	// external edits to the job file trigger a reload
	a.sup.Go("store.watch", func(c context.Context) error {
		return watchStore(c, a.store, a.sched, a.log.With(logx.String("comp", "storewatch")))
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

// applyConfig applies a validated hot-reloaded config to the running
// components. Store driver and path changes require a restart and are only
// logged.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.log.Debug("config change summary",
		append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)

	a.logs.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
	})

	var oldEnabled bool
	if oldCfg != nil {
		oldEnabled = oldCfg.Scheduler.Enabled
	}
	if oldEnabled && !newCfg.Scheduler.Enabled {
		a.log.Info("scheduler disabled via config")
		a.sched.Stop()
	} else if !oldEnabled && newCfg.Scheduler.Enabled {
		a.log.Info("scheduler enabled via config")
		a.sched.Start()
	}

	// The validator already vetted this value.
	if stuck, err := config.ParseDurationField("scheduler.stuck_after", newCfg.Scheduler.StuckAfter); err == nil {
		a.sched.Apply(scheduler.Config{
			StuckAfter:      stuck,
			DefaultTimezone: strings.TrimSpace(newCfg.Scheduler.Timezone),
		})
	}

	if storeChanged(oldCfg, newCfg) {
		a.log.Warn("store driver/path changed in config; restart required to take effect")
	}

	a.log.Info("config reloaded", logx.String("changed", strings.Join(sections, ",")))
}

func storeChanged(oldCfg, newCfg *config.Config) bool {
	var o, n config.StoreConfig
	if oldCfg != nil && oldCfg.Store != nil {
		o = *oldCfg.Store
	}
	if newCfg != nil && newCfg.Store != nil {
		n = *newCfg.Store
	}
	return o.Driver != n.Driver || o.Path != n.Path
}

func effectiveEvents(cfg *config.Config) config.EventsConfig {
	out := config.EventsConfig{Enabled: true, RatePerSec: 5, Burst: 10}
	if cfg != nil && cfg.Events != nil {
		out = *cfg.Events
	}
	return out
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run each shutdown step with an upper bound so one component can't stall
	// the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
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
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 2*time.Second, func(context.Context) error { a.sched.Stop(); return nil })
	step("store.flush", 2*time.Second, func(context.Context) error { return a.store.Persist() })
	step("store.close", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}
