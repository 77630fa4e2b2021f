package module

import (
	"context"
	"slices"

	"github.com/skekre98/composer/capability"
)

// Builder assembles a Definition. Every step returns a new Builder and leaves
// the receiver untouched, so partially built values can be shared and forked.
//
//	def, err := module.New("auth", "Authentication").
//	    Requires("storage", "navigation").
//	    Screen("login", loginView).
//	    UseCase("logout", newLogout).
//	    Build()
type Builder struct {
	def Definition
}

// New starts a builder for a module with the given id and display name.
func New(id, name string) Builder {
	return Builder{def: Definition{ID: id, Name: name}}
}

// Requires appends capability names the module needs.
func (b Builder) Requires(capabilities ...string) Builder {
	b.def.Requires = append(slices.Clip(b.def.Requires), capabilities...)
	return b
}

// Screen declares a screen. Options may be nil.
func (b Builder) Screen(name string, target any, options ...map[string]any) Builder {
	s := Screen{Name: name, Target: target}
	if len(options) > 0 {
		s.Options = options[0]
	}
	b.def.Screens = append(slices.Clip(b.def.Screens), s)
	return b
}

// UseCase declares a use-case built lazily from the module's adapters.
func (b Builder) UseCase(key string, factory UseCaseFactory) Builder {
	b.def.UseCases = append(slices.Clip(b.def.UseCases), UseCase{Key: key, Factory: factory})
	return b
}

// InitialRoute names the screen the host should open first.
func (b Builder) InitialRoute(screen string) Builder {
	b.def.InitialRoute = screen
	return b
}

// OnInit sets the hook run once the module's use-cases are bound.
func (b Builder) OnInit(fn func(ctx context.Context, adapters capability.Adapters) error) Builder {
	b.def.OnInit = fn
	return b
}

// OnDestroy sets the hook run before the module's use-cases are unbound.
func (b Builder) OnDestroy(fn func(ctx context.Context) error) Builder {
	b.def.OnDestroy = fn
	return b
}

// Build validates the accumulated definition. See Finalize.
func (b Builder) Build() (Definition, error) {
	return Finalize(b.def)
}

// MustBuild panics if Build fails. Intended for package-level module values.
func (b Builder) MustBuild() Definition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// Provide is a typed adapter for UseCase factories that cannot fail.
func Provide[T any](fn func(adapters capability.Adapters) T) UseCaseFactory {
	return func(adapters capability.Adapters) (any, error) {
		return fn(adapters), nil
	}
}
