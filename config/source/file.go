package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skekre98/composer/config"
)

// FileSource reads application.yaml (or .yml) from BasePath and, when
// Profile is set, deep-merges application.{Profile}.yaml over it.
//
//	configs/
//	  application.yaml
//	  application.prod.yaml
type FileSource struct {
	BasePath string
	Profile  string

	// Optional means a missing base file loads as an empty map instead of
	// failing with os.ErrNotExist.
	Optional bool

	// PollInterval enables Watch. Zero disables it.
	PollInterval time.Duration
}

func (f *FileSource) Name() string { return "file" }

func (f *FileSource) Load(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := findYAMLFile(f.BasePath, "application")
	if base == "" {
		if f.Optional {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("application.yaml in %q: %w", f.BasePath, os.ErrNotExist)
	}

	out := map[string]any{}
	if err := mergeYAML(base, out); err != nil {
		return nil, err
	}
	if f.Profile != "" {
		if overlay := findYAMLFile(f.BasePath, "application."+f.Profile); overlay != "" {
			if err := mergeYAML(overlay, out); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Watch polls the modification times of the files Load reads and sends an
// event when any of them changes.
func (f *FileSource) Watch(ctx context.Context, ch chan<- config.Event) error {
	if f.PollInterval <= 0 {
		return nil
	}
	last := f.stamp()
	t := time.NewTicker(f.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if cur := f.stamp(); cur != last {
				last = cur
				select {
				case ch <- config.Event{}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func (f *FileSource) stamp() string {
	var s string
	for _, name := range []string{"application", "application." + f.Profile} {
		if p := findYAMLFile(f.BasePath, name); p != "" {
			if fi, err := os.Stat(p); err == nil {
				s += fmt.Sprintf("%s:%d:%d;", p, fi.ModTime().UnixNano(), fi.Size())
			}
		}
	}
	return s
}

func findYAMLFile(dir, basename string) string {
	for _, ext := range []string{".yaml", ".yml"} {
		p := filepath.Join(dir, basename+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func mergeYAML(path string, out map[string]any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	config.Merge(out, doc)
	return nil
}
