// Package module defines what a module declares and tracks the modules
// loaded into a runtime.
package module

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/skekre98/composer/capability"
	"github.com/skekre98/composer/core"
)

// Screen describes a screen owned by a module. Target is whatever the host
// renders; the runtime never looks inside it.
type Screen struct {
	Name    string         `validate:"required"`
	Target  any            `validate:"-"`
	Options map[string]any `validate:"-"`
}

// UseCaseFactory builds a use-case from the module's adapters.
type UseCaseFactory func(adapters capability.Adapters) (any, error)

// UseCase is a unit of business logic exposed under {moduleID}:{Key}.
type UseCase struct {
	Key     string         `validate:"required,excludes=:"`
	Factory UseCaseFactory `validate:"required"`
}

// Definition is everything a module declares.
type Definition struct {
	ID           string    `validate:"required,excludes=:"`
	Name         string    `validate:"-"`
	Requires     []string  `validate:"dive,required"`
	Screens      []Screen  `validate:"dive"`
	UseCases     []UseCase `validate:"dive"`
	InitialRoute string    `validate:"-"`

	OnInit    func(ctx context.Context, adapters capability.Adapters) error `validate:"-"`
	OnDestroy func(ctx context.Context) error                               `validate:"-"`
}

// HasScreen reports whether the module declares a screen called name.
func (d Definition) HasScreen(name string) bool {
	return slices.ContainsFunc(d.Screens, func(s Screen) bool { return s.Name == name })
}

func (d Definition) hasContent() bool {
	return len(d.Screens) > 0 || len(d.UseCases) > 0
}

func (d Definition) clone() Definition {
	d.Requires = slices.Clone(d.Requires)
	d.Screens = slices.Clone(d.Screens)
	d.UseCases = slices.Clone(d.UseCases)
	return d
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Finalize validates def and fills in defaults, returning the definition the
// registry accepts.
//
//   - the id is required and may not contain ':'
//   - at least one screen or use-case is declared
//   - screen names and use-case keys are unique
//   - InitialRoute defaults to the first screen and must name a declared one
//   - duplicate requires collapse to their first occurrence
func Finalize(def Definition) (Definition, error) {
	def = def.clone()

	if err := validate.Struct(def); err != nil {
		return Definition{}, shapeError(def.ID, err)
	}
	if !def.hasContent() {
		return Definition{}, core.Validation(core.ErrInvalidModuleShape,
			"module %q must have at least one screen or one UseCase", def.ID).With("module", def.ID)
	}
	if dup := firstDuplicate(def.Screens, func(s Screen) string { return s.Name }); dup != "" {
		return Definition{}, core.Validation(core.ErrInvalidModuleShape,
			"module %q declares screen %q more than once", def.ID, dup).With("module", def.ID)
	}
	if dup := firstDuplicate(def.UseCases, func(u UseCase) string { return u.Key }); dup != "" {
		return Definition{}, core.Validation(core.ErrInvalidModuleShape,
			"module %q declares UseCase %q more than once", def.ID, dup).With("module", def.ID)
	}

	if len(def.Screens) > 0 {
		if def.InitialRoute == "" {
			def.InitialRoute = def.Screens[0].Name
		} else if !def.HasScreen(def.InitialRoute) {
			return Definition{}, core.Validation(core.ErrInvalidModuleShape,
				"module %q initial route %q does not match any screen", def.ID, def.InitialRoute).
				With("module", def.ID)
		}
	}

	if def.Name == "" {
		def.Name = def.ID
	}
	def.Requires = dedupe(def.Requires)
	return def, nil
}

func shapeError(id string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return core.Wrap(err, fmt.Sprintf("module %q: validation failed", id))
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.TrimPrefix(fe.Namespace(), "Definition."), fe.Tag()))
	}
	label := id
	if label == "" {
		label = "<no id>"
	}
	return core.Validation(core.ErrInvalidModuleShape, "module %q is invalid: %s", label, strings.Join(msgs, "; ")).
		With("module", id)
}

func firstDuplicate[T any](items []T, key func(T) string) string {
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		k := key(it)
		if seen[k] {
			return k
		}
		seen[k] = true
	}
	return ""
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
