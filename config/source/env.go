package source

import (
	"context"
	"os"
	"strings"

	"github.com/skekre98/composer/config"
)

// DefaultEnvPrefix is the prefix EnvSource uses when Prefix is empty.
const DefaultEnvPrefix = "COMPOSER_"

// EnvSource maps prefixed environment variables to nested keys, splitting
// on underscores:
//
//	COMPOSER_SERVER_ADDR=:9090          -> {server: {addr: ":9090"}}
//	COMPOSER_MODULES_DISABLED=a,b       -> {modules: {disabled: "a,b"}}
//
// Values stay strings; the binder converts them. When a leaf and a nested
// key collide (COMPOSER_DB=x and COMPOSER_DB_HOST=y) the first one seen wins.
type EnvSource struct {
	Prefix string

	// environ is swapped in tests.
	environ func() []string
}

func (e *EnvSource) Name() string { return "env" }

func (e *EnvSource) Load(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := e.Prefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	environ := e.environ
	if environ == nil {
		environ = os.Environ
	}

	out := make(map[string]any)
	for _, kv := range environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok || rest == "" {
			continue
		}
		setNestedValue(out, strings.Split(strings.ToLower(rest), "_"), value)
	}
	return out, nil
}

// Watch is a no-op; the environment is fixed for the process lifetime.
func (e *EnvSource) Watch(context.Context, chan<- config.Event) error { return nil }

func setNestedValue(m map[string]any, segments []string, value string) {
	cur := m
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if i == len(segments)-1 {
			if _, exists := cur[seg]; !exists {
				cur[seg] = value
			}
			return
		}
		next, exists := cur[seg]
		if !exists {
			nested := make(map[string]any)
			cur[seg] = nested
			cur = nested
			continue
		}
		nested, ok := next.(map[string]any)
		if !ok {
			return
		}
		cur = nested
	}
}
