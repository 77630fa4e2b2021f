package core

import (
	"fmt"
	"reflect"
	"sync"
)

// Factory produces a value for a container key.
type Factory func() (any, error)

// Lifecycle describes how a container entry produces its value.
type Lifecycle int

const (
	Transient Lifecycle = iota
	Singleton
	Instance
)

func (l Lifecycle) String() string {
	switch l {
	case Transient:
		return "transient"
	case Singleton:
		return "singleton"
	case Instance:
		return "instance"
	default:
		return fmt.Sprintf("lifecycle(%d)", int(l))
	}
}

type entry struct {
	lifecycle Lifecycle
	factory   Factory

	// singleton state; mu serialises the first materialisation.
	mu    sync.Mutex
	built bool
	value any
}

// Container is the string-keyed registry every other component resolves through.
//
// A key maps to exactly one entry. Re-registering a key replaces the entry and
// drops any memoized singleton value.
type Container struct {
	mu    sync.RWMutex
	reg   map[string]*entry
	order []string
}

// NewContainer returns an empty container.
func NewContainer() *Container {
	return &Container{reg: make(map[string]*entry)}
}

// Register stores a transient factory, invoked on every Resolve.
func (c *Container) Register(key string, f Factory) {
	c.put(key, &entry{lifecycle: Transient, factory: f})
}

// Singleton stores a factory that is invoked on the first successful Resolve
// only. A failing factory is not memoized.
func (c *Container) Singleton(key string, f Factory) {
	c.put(key, &entry{lifecycle: Singleton, factory: f})
}

// Instance stores a pre-built value.
func (c *Container) Instance(key string, val any) {
	c.put(key, &entry{lifecycle: Instance, built: true, value: val})
}

func (c *Container) put(key string, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.reg[key]; !exists {
		c.order = append(c.order, key)
	}
	c.reg[key] = e
}

func (c *Container) lookup(key string) (*entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.reg[key]
	return e, ok
}

// Resolve returns the value registered under key.
//
// It fails with ErrDependencyNotRegistered when key is absent. Factory errors
// are wrapped and factory panics are reported as UNKNOWN errors.
func (c *Container) Resolve(key string) (any, error) {
	e, ok := c.lookup(key)
	if !ok {
		return nil, NotFound(ErrDependencyNotRegistered, "container: dependency %q is not registered", key).
			With("key", key)
	}

	switch e.lifecycle {
	case Instance:
		return e.value, nil
	case Singleton:
		// Factories run outside the container lock so they may resolve other keys.
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.built {
			return e.value, nil
		}
		v, err := invoke(key, e.factory)
		if err != nil {
			return nil, err
		}
		e.value, e.built = v, true
		return v, nil
	default:
		return invoke(key, e.factory)
	}
}

func invoke(key string, f Factory) (val any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			val = nil
			err = Recovered(rec, fmt.Sprintf("container: factory for %q panicked", key)).With("key", key)
		}
	}()
	if f == nil {
		return nil, nil
	}
	v, err := f()
	if err != nil {
		return nil, Wrap(err, fmt.Sprintf("container: factory for %q failed", key))
	}
	return v, nil
}

// TryResolve is the non-failing lookup used for optional dependencies.
// It reports false when key is absent or its factory fails.
func (c *Container) TryResolve(key string) (any, bool) {
	if !c.Has(key) {
		return nil, false
	}
	v, err := c.Resolve(key)
	if err != nil {
		return nil, false
	}
	return v, true
}

// MustResolve panics when Resolve fails. Intended for composition roots.
func (c *Container) MustResolve(key string) any {
	v, err := c.Resolve(key)
	if err != nil {
		panic(err)
	}
	return v
}

// Has reports whether key is registered.
func (c *Container) Has(key string) bool {
	_, ok := c.lookup(key)
	return ok
}

// Remove evicts key along with any memoized value. Unknown keys are ignored.
func (c *Container) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.reg[key]; !ok {
		return
	}
	delete(c.reg, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
}

// Clear evicts every entry.
func (c *Container) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reg = make(map[string]*entry)
	c.order = nil
}

// Keys returns the registered keys in first-registration order.
func (c *Container) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// LifecycleOf reports how key was registered.
func (c *Container) LifecycleOf(key string) (Lifecycle, bool) {
	e, ok := c.lookup(key)
	if !ok {
		return 0, false
	}
	return e.lifecycle, true
}

// Helpers for typed lookups

// Resolve resolves key and asserts the result to T.
func Resolve[T any](c *Container, key string) (T, error) {
	var zero T
	raw, err := c.Resolve(key)
	if err != nil {
		return zero, err
	}
	v, ok := raw.(T)
	if !ok {
		return zero, Validation(ErrTypeMismatch, "container: wrong type for %q. have=%T want=%v",
			key, raw, reflect.TypeFor[T]()).With("key", key)
	}
	return v, nil
}

// TryResolve is the typed form of (*Container).TryResolve. A type mismatch reports false.
func TryResolve[T any](c *Container, key string) (T, bool) {
	var zero T
	raw, ok := c.TryResolve(key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// MustResolve is the typed form of (*Container).MustResolve.
func MustResolve[T any](c *Container, key string) T {
	v, err := Resolve[T](c, key)
	if err != nil {
		panic(err)
	}
	return v
}
