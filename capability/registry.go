package capability

import (
	"log/slog"
	"reflect"
	"strings"

	"github.com/skekre98/composer/core"
	"github.com/skekre98/composer/logging"
)

// KeyPrefix namespaces provider entries in the container.
const KeyPrefix = "adapter:"

// Key returns the container key for a provider name or capability.
func Key(name string) string { return KeyPrefix + name }

// Entry pairs a provider with the name it is registered under.
type Entry struct {
	Name     string
	Provider Provider
}

// Registry publishes providers into a container and looks them up again.
type Registry struct {
	c      *core.Container
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registration events. It also backs the
// default logger provider synthesised by RegisterMany.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry returns a Registry backed by c.
func NewRegistry(c *core.Container, opts ...Option) *Registry {
	r := &Registry{
		c:      c,
		logger: logging.Discard(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register validates p and stores it under both adapter:{name} and
// adapter:{p.Capability()}. The capability slot is last-write-wins.
func (r *Registry) Register(name string, p Provider) error {
	if isNil(p) {
		return core.Validation(core.ErrInvalidProvider, "provider %q is nil", name).With("name", name)
	}
	capName := p.Capability()
	if capName == "" {
		return core.Validation(core.ErrInvalidProvider, "provider %q must declare a non-empty capability", name).
			With("name", name)
	}
	if name == "" {
		name = capName
	}

	r.c.Instance(Key(name), p)
	r.c.Instance(Key(capName), p)
	r.logger.Debug("provider registered", "name", name, "capability", capName)
	return nil
}

// RegisterMany registers entries in order, stopping at the first invalid one.
// If none of them provides the logger capability a default one is registered
// first, so a logger is always resolvable downstream.
func (r *Registry) RegisterMany(entries ...Entry) error {
	hasLogger := false
	for _, e := range entries {
		if !isNil(e.Provider) && e.Provider.Capability() == LoggerCapability {
			hasLogger = true
			break
		}
	}
	if !hasLogger {
		if err := r.Register(LoggerCapability, NewLogger(r.logger)); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if err := r.Register(e.Name, e.Provider); err != nil {
			return err
		}
	}
	return nil
}

// Get looks key up as a name first, then as a capability across every
// registered provider. It fails with ErrAdapterNotFound.
func (r *Registry) Get(key string) (Provider, error) {
	if p, ok := core.TryResolve[Provider](r.c, Key(key)); ok {
		return p, nil
	}
	for _, k := range r.c.Keys() {
		if !strings.HasPrefix(k, KeyPrefix) {
			continue
		}
		if p, ok := core.TryResolve[Provider](r.c, k); ok && p.Capability() == key {
			return p, nil
		}
	}
	return nil, core.NotFound(core.ErrAdapterNotFound, "adapter %q not found", key).With("key", key)
}

// Has reports whether Get would succeed for key.
func (r *Registry) Has(key string) bool {
	_, err := r.Get(key)
	return err == nil
}

// All returns every registered provider keyed by capability, plus alias
// names that differ from the capability.
func (r *Registry) All() Adapters {
	out := Adapters{}
	aliases := map[string]Provider{}
	for _, k := range r.c.Keys() {
		name, ok := strings.CutPrefix(k, KeyPrefix)
		if !ok {
			continue
		}
		p, ok := core.TryResolve[Provider](r.c, k)
		if !ok {
			continue
		}
		if p.Capability() == name {
			out[name] = p
			continue
		}
		aliases[name] = p
	}
	for name, p := range aliases {
		if _, taken := out[name]; !taken {
			out[name] = p
		}
	}
	return out
}

// Providers returns each distinct provider once, in registration order.
func (r *Registry) Providers() []Entry {
	var out []Entry
	seen := map[Provider]bool{}
	for _, k := range r.c.Keys() {
		name, ok := strings.CutPrefix(k, KeyPrefix)
		if !ok {
			continue
		}
		p, ok := core.TryResolve[Provider](r.c, k)
		if !ok {
			continue
		}
		if hashable(p) {
			if seen[p] {
				continue
			}
			seen[p] = true
		} else if containsEqual(out, p) {
			continue
		}
		out = append(out, Entry{Name: name, Provider: p})
	}
	return out
}

// Get resolves key through r and asserts the provider to T.
func Get[T any](r *Registry, key string) (T, error) {
	var zero T
	p, err := r.Get(key)
	if err != nil {
		return zero, err
	}
	return As[T](Adapters{key: p}, key)
}

func isNil(p Provider) bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(p)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// hashable checks the dynamic value, so Static[any] holding a slice is not
// used as a map key.
func hashable(p Provider) bool {
	return reflect.ValueOf(p).Comparable()
}

func containsEqual(entries []Entry, p Provider) bool {
	for _, e := range entries {
		if !hashable(e.Provider) && reflect.DeepEqual(e.Provider, p) {
			return true
		}
	}
	return false
}
