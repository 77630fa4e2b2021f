// Package capability holds the provider contract and the registration
// use-cases that publish providers into the container.
//
// A provider is registered under two container keys, "adapter:{name}" and
// "adapter:{capability}", so it can be looked up either by the local alias
// the host chose or by the capability it implements.
package capability

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"slices"

	"github.com/skekre98/composer/core"
	"github.com/skekre98/composer/logging"
)

// Well-known capability identifiers.
const (
	LoggerCapability = "logger"
	HTTPCapability   = "http"
)

// Provider is anything that implements a capability. The capability string
// is its type identity; the rest of its behaviour is opaque to the runtime.
type Provider interface {
	Capability() string
}

// Starter is implemented by providers that own background work.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by providers that release resources on shutdown.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Adapters is the set of providers visible to a module, keyed by capability
// (and by alias name where that differs).
type Adapters map[string]Provider

// Get returns the provider registered for name.
func (a Adapters) Get(name string) (Provider, bool) {
	p, ok := a[name]
	return p, ok
}

// Names returns the keys in sorted order.
func (a Adapters) Names() []string {
	out := make([]string, 0, len(a))
	for k := range a {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Missing returns every name in requires that a does not provide, in order
// and without duplicates.
func (a Adapters) Missing(requires []string) []string {
	var out []string
	for _, name := range requires {
		if _, ok := a[name]; ok || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Narrow returns the subset of a named by requires. Names a does not provide
// are skipped.
func (a Adapters) Narrow(requires []string) Adapters {
	out := make(Adapters, len(requires))
	for _, name := range requires {
		if p, ok := a[name]; ok {
			out[name] = p
		}
	}
	return out
}

// As returns the provider named name asserted to T.
func As[T any](a Adapters, name string) (T, error) {
	var zero T
	p, ok := a[name]
	if !ok {
		return zero, core.NotFound(core.ErrAdapterNotFound, "adapter %q not found", name).With("name", name)
	}
	v, ok := p.(T)
	if !ok {
		return zero, core.Validation(core.ErrInvalidProvider, "adapter %q is %T, not %v",
			name, p, reflect.TypeFor[T]()).With("name", name)
	}
	return v, nil
}

// Logger is the logger capability. It is synthesised by RegisterMany when
// the host does not supply one.
type Logger struct {
	*slog.Logger
}

// NewLogger wraps l as a logger provider. A nil l discards output.
func NewLogger(l *slog.Logger) *Logger {
	if l == nil {
		l = logging.Discard()
	}
	return &Logger{Logger: l}
}

func (*Logger) Capability() string { return LoggerCapability }

// LoggerFrom returns the logger capability from a, or a discarding logger.
func LoggerFrom(a Adapters) *slog.Logger {
	if l, err := As[*Logger](a, LoggerCapability); err == nil && l.Logger != nil {
		return l.Logger
	}
	return NewLogger(nil).Logger
}

// Static adapts an arbitrary value into a provider with a fixed capability.
type Static[T any] struct {
	Name  string
	Value T
}

// Of wraps v as a provider of capability name.
func Of[T any](name string, v T) Static[T] { return Static[T]{Name: name, Value: v} }

func (s Static[T]) Capability() string { return s.Name }

func (s Static[T]) String() string { return fmt.Sprintf("%s(%T)", s.Name, s.Value) }
