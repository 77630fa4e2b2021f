package module

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skekre98/composer/capability"
	"github.com/skekre98/composer/core"
	"github.com/skekre98/composer/logging"
	"github.com/skekre98/composer/metrics"
)

// UseCaseKey returns the container key a module's use-case is bound under.
func UseCaseKey(moduleID, key string) string { return moduleID + ":" + key }

// ResolveUseCase resolves a module's use-case from c and asserts it to T.
func ResolveUseCase[T any](c *core.Container, moduleID, key string) (T, error) {
	return core.Resolve[T](c, UseCaseKey(moduleID, key))
}

// Registered is a module that passed validation, with the adapters it was
// given.
type Registered struct {
	Definition
	Adapters capability.Adapters

	loaded atomic.Bool
}

// Loaded reports whether the module's init hook completed.
func (r *Registered) Loaded() bool { return r.loaded.Load() }

// ScreenRef ties a screen to the module that owns it.
type ScreenRef struct {
	ModuleID string
	Screen   Screen
}

// Registry validates modules against the registered capabilities, binds
// their use-cases into the container and runs their lifecycle hooks.
//
// Registration is expected to be driven sequentially by the host.
type Registry struct {
	c         *core.Container
	providers *capability.Registry
	logger    *slog.Logger
	metrics   *metrics.Collector

	mu      sync.RWMutex
	modules map[string]*Registered
	order   []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics reports registrations to m.
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry returns an empty registry binding into c and validating
// against providers.
func NewRegistry(c *core.Container, providers *capability.Registry, opts ...Option) *Registry {
	r := &Registry{
		c:         c,
		providers: providers,
		logger:    logging.Discard(),
		modules:   make(map[string]*Registered),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register validates def, binds its use-cases and runs its init hook.
//
// Validation failures leave the registry untouched. An init failure is
// returned as-is and leaves the module registered but not loaded.
func (r *Registry) Register(ctx context.Context, def Definition) (*Registered, error) {
	l := r.logger.With("module", def.ID)

	if r.Has(def.ID) {
		r.metrics.ModuleRegistered(metrics.OutcomeFailure)
		return nil, core.Validation(core.ErrAlreadyRegistered, "module %q is already registered", def.ID).
			With("module", def.ID)
	}

	available := r.providers.All()
	if missing := available.Missing(def.Requires); len(missing) > 0 {
		r.metrics.ModuleRegistered(metrics.OutcomeFailure)
		l.Warn("module rejected", "missing", missing)
		return nil, core.Validation(core.ErrMissingCapabilities, "module %q requires missing capabilities: %s",
			def.ID, strings.Join(missing, ", ")).With("module", def.ID).With("missing", missing)
	}

	if !def.hasContent() {
		r.metrics.ModuleRegistered(metrics.OutcomeFailure)
		return nil, core.Validation(core.ErrInvalidModuleShape,
			"module %q must have at least one screen or one UseCase", def.ID).With("module", def.ID)
	}

	adapters := available.Narrow(def.Requires)
	for _, uc := range def.UseCases {
		factory := uc.Factory
		r.c.Singleton(UseCaseKey(def.ID, uc.Key), func() (any, error) {
			return factory(adapters)
		})
	}

	mod := &Registered{Definition: def.clone(), Adapters: adapters}
	r.mu.Lock()
	r.modules[def.ID] = mod
	r.order = append(r.order, def.ID)
	r.mu.Unlock()
	l.Debug("module bound", "useCases", len(def.UseCases), "screens", len(def.Screens))

	if def.OnInit != nil {
		start := time.Now()
		if err := runInit(ctx, def, adapters); err != nil {
			r.metrics.ModuleRegistered(metrics.OutcomeFailure)
			l.Error("module init failed", "error", err)
			return nil, err
		}
		r.metrics.ModuleLoaded(time.Since(start))
	} else {
		r.metrics.ModuleLoaded(0)
	}

	mod.loaded.Store(true)
	r.metrics.ModuleRegistered(metrics.OutcomeSuccess)
	l.Info("module loaded")
	return mod, nil
}

func runInit(ctx context.Context, def Definition, adapters capability.Adapters) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = core.Recovered(rec, fmt.Sprintf("module %q: init panicked", def.ID)).With("module", def.ID)
		}
	}()
	return def.OnInit(ctx, adapters)
}

// Unregister runs the module's destroy hook, unbinds its use-cases and
// forgets it. Unknown ids are a no-op.
//
// The destroy hook runs whether or not init completed, while the use-cases
// are still resolvable. Its error is returned after cleanup completes.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	mod, ok := r.Module(id)
	if !ok {
		return nil
	}
	l := r.logger.With("module", id)

	var destroyErr error
	if mod.OnDestroy != nil {
		destroyErr = runDestroy(ctx, mod.Definition)
		if destroyErr != nil {
			l.Error("module destroy failed", "error", destroyErr)
		}
	}

	for _, uc := range mod.UseCases {
		r.c.Remove(UseCaseKey(id, uc.Key))
	}

	r.mu.Lock()
	delete(r.modules, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if mod.Loaded() {
		r.metrics.ModuleUnloaded()
	}
	l.Info("module unregistered")
	return destroyErr
}

func runDestroy(ctx context.Context, def Definition) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = core.Recovered(rec, fmt.Sprintf("module %q: destroy panicked", def.ID)).With("module", def.ID)
		}
	}()
	return def.OnDestroy(ctx)
}

// Module returns the module registered under id.
func (r *Registry) Module(id string) (*Registered, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	return m, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Module(id)
	return ok
}

// Modules returns the registered modules in registration order.
func (r *Registry) Modules() []*Registered {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Registered, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.modules[id])
	}
	return out
}

// Screens flattens every module's screens, by module registration order and
// then declaration order.
func (r *Registry) Screens() []ScreenRef {
	var out []ScreenRef
	for _, m := range r.Modules() {
		for _, s := range m.Screens {
			out = append(out, ScreenRef{ModuleID: m.ID, Screen: s})
		}
	}
	return out
}
