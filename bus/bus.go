// Package bus is the action bus modules use to call each other without
// holding direct references.
//
// Every handler registered for an action type runs on dispatch. Handlers run
// concurrently; middlewares run before them, one at a time, in the order
// they were added.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/skekre98/composer/core"
	"github.com/skekre98/composer/logging"
	"github.com/skekre98/composer/metrics"
)

// Action is a typed message. Producers and consumers agree on Type strings
// and payload shapes out of band.
type Action struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Handler reacts to an action and may return a value for query-style use.
type Handler func(ctx context.Context, action Action) (any, error)

// Middleware runs before the handlers of every dispatch. Returning an error
// vetoes the dispatch: no handler runs and the error is reported in Result.
type Middleware func(ctx context.Context, action Action) error

// Result is the outcome of a dispatch.
type Result struct {
	Success bool
	// Data is the value returned by the last registered handler.
	Data any
	Err  error
}

type registration struct {
	handler Handler
}

// Bus is a many-producer, many-consumer dispatcher. The zero value is not
// usable; call New.
type Bus struct {
	logger  *slog.Logger
	metrics *metrics.Collector

	mu          sync.RWMutex
	handlers    map[string][]*registration
	middlewares []Middleware
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMetrics reports dispatches to m.
func WithMetrics(m *metrics.Collector) Option {
	return func(b *Bus) { b.metrics = m }
}

// New returns an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		logger:   logging.Discard(),
		handlers: make(map[string][]*registration),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

var (
	defaultOnce sync.Once
	defaultBus  *Bus
)

// Default returns a process-wide bus for hosts that want one. Prefer passing
// a *Bus explicitly; Clear it between tests if you do use this.
func Default() *Bus {
	defaultOnce.Do(func() { defaultBus = New(WithLogger(slog.Default())) })
	return defaultBus
}

// Register adds h for actionType. The returned func removes exactly this
// registration and is safe to call more than once.
func (b *Bus) Register(actionType string, h Handler) (unregister func()) {
	reg := &registration{handler: h}

	b.mu.Lock()
	b.handlers[actionType] = append(b.handlers[actionType], reg)
	n := len(b.handlers[actionType])
	b.mu.Unlock()
	b.metrics.Handlers(actionType, n)

	return func() {
		b.mu.Lock()
		list := b.handlers[actionType]
		i := slices.Index(list, reg)
		if i < 0 {
			b.mu.Unlock()
			return
		}
		list = slices.Delete(slices.Clone(list), i, i+1)
		if len(list) == 0 {
			delete(b.handlers, actionType)
		} else {
			b.handlers[actionType] = list
		}
		b.mu.Unlock()
		b.metrics.Handlers(actionType, len(list))
	}
}

// Use appends a middleware.
func (b *Bus) Use(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middlewares = append(b.middlewares, mw)
}

// HasHandlers reports whether anything is registered for actionType.
func (b *Bus) HasHandlers(actionType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[actionType]) > 0
}

// Types returns the action types that currently have handlers, sorted.
func (b *Bus) Types() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.handlers))
	for t := range b.handlers {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Clear removes every handler and middleware.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.handlers = make(map[string][]*registration)
	b.middlewares = nil
	b.mu.Unlock()
	b.metrics.ResetHandlers()
}

// Dispatch delivers action to every handler registered for its type.
//
// With no handlers the dispatch succeeds with no data. If any handler fails
// the whole dispatch fails, although the other handlers have already run.
// Dispatch never panics; handler panics are reported as UNKNOWN errors.
func (b *Bus) Dispatch(ctx context.Context, action Action) Result {
	start := time.Now()
	l := b.logger.With("action", action.Type, "dispatch_id", uuid.NewString())

	b.mu.RLock()
	regs := b.handlers[action.Type]
	mws := b.middlewares
	b.mu.RUnlock()

	if len(regs) == 0 {
		l.Warn("no handlers registered for action")
		b.metrics.Dispatched(action.Type, metrics.OutcomeUnhandled, time.Since(start))
		return Result{Success: true}
	}

	for _, mw := range mws {
		if err := runMiddleware(ctx, mw, action); err != nil {
			l.Warn("dispatch vetoed by middleware", "error", err)
			b.metrics.Dispatched(action.Type, metrics.OutcomeVetoed, time.Since(start))
			return Result{Err: err}
		}
	}

	results := make([]any, len(regs))
	var g errgroup.Group
	for i, reg := range regs {
		g.Go(func() error {
			v, err := runHandler(ctx, reg.handler, action)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		l.Error("action handler failed", "error", err, "handlers", len(regs))
		b.metrics.Dispatched(action.Type, metrics.OutcomeFailure, time.Since(start))
		return Result{Err: err}
	}

	l.Debug("action dispatched", "handlers", len(regs))
	b.metrics.Dispatched(action.Type, metrics.OutcomeSuccess, time.Since(start))
	return Result{Success: true, Data: results[len(results)-1]}
}

// Query dispatches action and returns only its data, nil on failure.
func (b *Bus) Query(ctx context.Context, action Action) any {
	return b.Dispatch(ctx, action).Data
}

// QueryAs dispatches action and asserts the returned data to T.
func QueryAs[T any](ctx context.Context, b *Bus, action Action) (T, error) {
	var zero T
	res := b.Dispatch(ctx, action)
	if !res.Success {
		return zero, res.Err
	}
	if res.Data == nil {
		return zero, nil
	}
	v, ok := res.Data.(T)
	if !ok {
		return zero, fmt.Errorf("bus: %s returned %T, not %T", action.Type, res.Data, zero)
	}
	return v, nil
}

func runHandler(ctx context.Context, h Handler, action Action) (v any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = core.Recovered(rec, fmt.Sprintf("bus: handler for %q panicked", action.Type)).
				With("action", action.Type)
		}
	}()
	return h(ctx, action)
}

func runMiddleware(ctx context.Context, mw Middleware, action Action) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = core.Recovered(rec, fmt.Sprintf("bus: middleware for %q panicked", action.Type)).
				With("action", action.Type)
		}
	}()
	return mw(ctx, action)
}
