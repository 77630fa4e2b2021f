package source

import (
	"context"

	"github.com/skekre98/composer/config"
)

// StaticSource serves a fixed map, typically config.Defaults().
type StaticSource struct {
	Values map[string]any
}

// Static returns a source that always loads values.
func Static(values map[string]any) *StaticSource { return &StaticSource{Values: values} }

func (s *StaticSource) Name() string { return "static" }

// Load returns a deep copy of the values.
func (s *StaticSource) Load(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := map[string]any{}
	config.Merge(out, s.Values)
	return out, nil
}

func (s *StaticSource) Watch(context.Context, chan<- config.Event) error { return nil }
