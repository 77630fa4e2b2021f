package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Bind stages reported in BindError.
const (
	StageDecode   = "decode"
	StageValidate = "validate"
)

// BindError reports which stage of binding failed.
type BindError struct {
	Stage string
	Err   error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("config %s error: %v", e.Stage, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Binder turns merged source maps into typed configuration.
//
// Fields are matched by their `config` tag and checked against their
// `validate` tag. Strings are weakly converted, so "8080" binds to an int,
// "5s" to a time.Duration and "a,b" to a []string.
type Binder struct {
	validator *validator.Validate
}

// NewBinder returns a Binder with the default hooks and validator.
func NewBinder() *Binder {
	return &Binder{validator: validator.New(validator.WithRequiredStructEnabled())}
}

// Bind decodes source into target, which must be a pointer to a struct, and
// validates the result. target may be partially populated on a validate
// failure.
func (b *Binder) Bind(source map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "config",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return &BindError{Stage: StageDecode, Err: err}
	}
	if err := dec.Decode(source); err != nil {
		return &BindError{Stage: StageDecode, Err: err}
	}
	if err := b.validator.Struct(target); err != nil {
		return &BindError{Stage: StageValidate, Err: err}
	}
	return nil
}
