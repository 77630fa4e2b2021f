package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/skekre98/composer/logging"
)

// Manager loads configuration from an ordered list of sources into a
// caller-owned struct and keeps it current.
//
// A reload that fails to load, bind or validate leaves the previous
// configuration in place. All methods are safe for concurrent use.
type Manager struct {
	sources []Source
	target  any
	binder  *Binder
	logger  *slog.Logger

	mu   sync.RWMutex
	subs []chan Event

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options configures a Manager.
type Options struct {
	// AutoReload starts a watcher per source and reloads on every change.
	AutoReload bool

	// Logger receives reload failures from watchers. Defaults to discard.
	Logger *slog.Logger
}

// NewManager binds the merged sources into cfg, a pointer to a struct with
// `config` and `validate` tags. Later sources override earlier ones.
//
//	var cfg config.Root
//	mgr, err := config.NewManager(&cfg, config.Options{},
//	    source.Static(config.Defaults()),
//	    &source.FileSource{BasePath: "configs"},
//	    &source.EnvSource{},
//	    &source.CLISource{},
//	)
func NewManager(cfg any, opts Options, sources ...Source) (*Manager, error) {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("config: target must be a non-nil pointer to a struct, got %T", cfg)
	}

	m := &Manager{
		sources: sources,
		target:  cfg,
		binder:  NewBinder(),
		logger:  opts.Logger,
	}
	if m.logger == nil {
		m.logger = logging.Discard()
	}

	if err := m.Reload(context.Background()); err != nil {
		return nil, err
	}
	if opts.AutoReload {
		m.startWatchers()
	}
	return m, nil
}

// Reload re-reads every source and, if the result binds and validates,
// replaces the configuration in place. Subscribers are notified when any
// top-level field changed.
func (m *Manager) Reload(ctx context.Context) error {
	merged := map[string]any{}
	for _, src := range m.sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		vals, err := src.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load config from %s: %w", src.Name(), err)
		}
		mergeMaps(merged, vals)
	}

	typ := reflect.TypeOf(m.target).Elem()
	next := reflect.New(typ)
	if err := m.binder.Bind(merged, next.Interface()); err != nil {
		return fmt.Errorf("failed to bind config: %w", err)
	}

	m.mu.Lock()
	prev := reflect.New(typ)
	prev.Elem().Set(reflect.ValueOf(m.target).Elem())
	reflect.ValueOf(m.target).Elem().Set(next.Elem())
	m.mu.Unlock()

	if !reflect.DeepEqual(prev.Interface(), next.Interface()) {
		m.notify(diffEvent(prev.Interface(), next.Interface()))
	}
	return nil
}

// Read calls fn with the current configuration under the read lock.
func (m *Manager) Read(fn func(cfg any)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.target)
}

// Subscribe registers ch for change events. Sends never block: a full
// channel misses the event. ch is never closed by the Manager.
func (m *Manager) Subscribe(ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, ch)
}

func (m *Manager) notify(evt Event) {
	m.mu.RLock()
	subs := append([]chan Event(nil), m.subs...)
	m.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Close stops the watchers started by AutoReload and waits for them.
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Manager) startWatchers() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	for _, src := range m.sources {
		ch := make(chan Event, 1)
		m.wg.Add(2)
		go func() {
			defer m.wg.Done()
			if err := src.Watch(ctx, ch); err != nil && ctx.Err() == nil {
				m.logger.Warn("config watch failed", "source", src.Name(), "error", err)
			}
		}()
		go func() {
			defer m.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ch:
					if err := m.Reload(ctx); err != nil {
						m.logger.Error("config reload failed", "source", src.Name(), "error", err)
					}
				}
			}
		}()
	}
}
