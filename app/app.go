// Package app is the composition root: it owns one container, capability
// registry, module registry and action bus per application, loads modules
// in order and tears them down in reverse.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/skekre98/composer/bus"
	"github.com/skekre98/composer/capability"
	"github.com/skekre98/composer/config"
	"github.com/skekre98/composer/core"
	"github.com/skekre98/composer/logging"
	"github.com/skekre98/composer/metrics"
	"github.com/skekre98/composer/module"
)

const defaultShutdownTimeout = 15 * time.Second

// App is one application runtime.
//
// Config is the configuration the app was built with. Apply replaces its
// live-safe parts later on; read those through ModulesConfig.
type App struct {
	Config    config.Root
	Logger    *slog.Logger
	Container *core.Container
	Providers *capability.Registry
	Modules   *module.Registry
	Bus       *bus.Bus
	Metrics   *metrics.Collector

	level *slog.LevelVar
	cfgMu sync.RWMutex

	loaded  []string
	started []capability.Entry
}

// Option configures an App.
type Option func(*App)

// WithBus replaces the app's own bus, e.g. with bus.Default().
func WithBus(b *bus.Bus) Option {
	return func(a *App) { a.Bus = b }
}

// WithLevel hands the app the level var its logger reads, so Apply can
// change the log level at runtime.
func WithLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// New wires a fresh runtime. Metrics are collected only when enabled in cfg.
// A nil logger discards output.
func New(cfg config.Root, logger *slog.Logger, opts ...Option) *App {
	if logger == nil {
		logger = logging.Discard()
	}
	a := &App{
		Config:    cfg,
		Logger:    logger,
		Container: core.NewContainer(),
	}
	if cfg.Observability.Metrics.Enabled {
		a.Metrics = metrics.NewCollector(cfg.Observability.Metrics.Namespace)
	}
	a.Providers = capability.NewRegistry(a.Container, capability.WithLogger(logger))
	a.Modules = module.NewRegistry(a.Container, a.Providers,
		module.WithLogger(logger), module.WithMetrics(a.Metrics))
	a.Bus = bus.New(bus.WithLogger(logger), bus.WithMetrics(a.Metrics))
	for _, o := range opts {
		o(a)
	}
	return a
}

// Provide registers capability providers. A logger provider backed by the
// app logger is added when none is supplied.
func (a *App) Provide(entries ...capability.Entry) error {
	return a.Providers.RegisterMany(entries...)
}

// Load registers defs one after another. Modules listed in
// modules.disabled are skipped. A failing module stops the load unless
// modules.skipFailed is set, in which case it is logged and left out.
func (a *App) Load(ctx context.Context, defs ...module.Definition) error {
	mc := a.ModulesConfig()
	var skipped []error
	for _, def := range defs {
		if slices.Contains(mc.Disabled, def.ID) {
			a.Logger.Info("module disabled", "module", def.ID)
			continue
		}
		a.Logger.Info("loading module", "module", def.ID)
		if _, err := a.Modules.Register(ctx, def); err != nil {
			if !mc.SkipFailed {
				return fmt.Errorf("load module %q: %w", def.ID, err)
			}
			a.Logger.Error("module skipped", "module", def.ID, "error", err, "code", core.CodeOf(err))
			// An init failure leaves the module registered; drop it so it can be retried.
			if rerr := a.Modules.Unregister(ctx, def.ID); rerr != nil {
				skipped = append(skipped, rerr)
			}
			continue
		}
		a.loaded = append(a.loaded, def.ID)
	}
	return errors.Join(skipped...)
}

// Start starts every provider that implements capability.Starter, in
// registration order. Providers started before a failure are stopped again.
func (a *App) Start(ctx context.Context) error {
	for _, e := range a.Providers.Providers() {
		s, ok := e.Provider.(capability.Starter)
		if !ok {
			continue
		}
		a.Logger.Info("starting provider", "provider", e.Name)
		if err := s.Start(ctx); err != nil {
			a.stopProviders(ctx)
			return fmt.Errorf("start provider %q: %w", e.Name, err)
		}
		a.started = append(a.started, e)
	}
	return nil
}

// Shutdown unregisters loaded modules in reverse order, then stops started
// providers in reverse order. It returns the first error it met.
func (a *App) Shutdown(ctx context.Context) error {
	timeout := a.ModulesConfig().ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var firstErr error
	for i := len(a.loaded) - 1; i >= 0; i-- {
		id := a.loaded[i]
		a.Logger.Info("stopping module", "module", id)
		if err := a.Modules.Unregister(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.loaded = nil

	if err := a.stopProviders(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (a *App) stopProviders(ctx context.Context) error {
	var firstErr error
	for i := len(a.started) - 1; i >= 0; i-- {
		e := a.started[i]
		s, ok := e.Provider.(capability.Stopper)
		if !ok {
			continue
		}
		a.Logger.Info("stopping provider", "provider", e.Name)
		if err := s.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop provider %q: %w", e.Name, err)
		}
	}
	a.started = nil
	return firstErr
}

// ModulesConfig returns the current modules section.
func (a *App) ModulesConfig() config.ModulesConfig {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.Config.Modules
}

// Apply takes over the parts of next that can change while running: the
// log level (when the app has a level var) and the modules section, which
// the next Load and Shutdown use. Other changes are logged and wait for a
// restart.
func (a *App) Apply(next config.Root) {
	a.cfgMu.Lock()
	prev := a.Config
	a.Config.Modules = next.Modules
	a.Config.Observability.Logging.Level = next.Observability.Logging.Level
	a.cfgMu.Unlock()

	if a.level != nil && prev.Observability.Logging.Level != next.Observability.Logging.Level {
		a.level.Set(logging.ParseLevel(next.Observability.Logging.Level))
		a.Logger.Info("log level changed", "level", next.Observability.Logging.Level)
	}
	if prev.App != next.App || prev.Server != next.Server || prev.Actuator != next.Actuator ||
		prev.Observability.Metrics != next.Observability.Metrics ||
		prev.Observability.Logging.Format != next.Observability.Logging.Format {
		a.Logger.Warn("config change needs a restart to take effect")
	}
}

// Follow applies every reload of mgr until ctx is done. mgr must manage a
// config.Root.
func (a *App) Follow(ctx context.Context, mgr *config.Manager) {
	events := make(chan config.Event, 1)
	mgr.Subscribe(events)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-events:
				var next *config.Root
				mgr.Read(func(cfg any) {
					if root, ok := cfg.(*config.Root); ok {
						cp := *root
						next = &cp
					}
				})
				if next == nil {
					a.Logger.Error("config reload ignored: not a config.Root")
					continue
				}
				a.Logger.Info("config reloaded", "changed", evt.ChangedKeys)
				a.Apply(*next)
			}
		}
	}()
}

// Run loads defs, starts providers, waits for ctx or SIGINT/SIGTERM and
// shuts everything down.
func (a *App) Run(ctx context.Context, defs ...module.Definition) error {
	if err := a.Load(ctx, defs...); err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)
	select {
	case <-ctx.Done():
	case sig := <-stop:
		a.Logger.Info("signal received", "signal", sig.String())
	}

	// ctx may already be done; shutdown gets its own deadline.
	return a.Shutdown(context.Background())
}
