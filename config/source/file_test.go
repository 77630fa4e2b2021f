package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/skekre98/composer/config"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestFileSource_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "application.yaml", `
app:
  name: composer
server:
  addr: ":8080"
  readTimeout: 10s
`)
	writeFile(t, dir, "application.prod.yml", `
server:
  addr: ":80"
`)

	tests := []struct {
		name    string
		profile string
		want    map[string]any
	}{
		{
			name: "base only",
			want: map[string]any{
				"app":    map[string]any{"name": "composer"},
				"server": map[string]any{"addr": ":8080", "readtimeout": "10s"},
			},
		},
		{
			name:    "profile overlay",
			profile: "prod",
			want: map[string]any{
				"app":    map[string]any{"name": "composer"},
				"server": map[string]any{"addr": ":80", "readtimeout": "10s"},
			},
		},
		{
			name:    "missing profile file is ignored",
			profile: "staging",
			want: map[string]any{
				"app":    map[string]any{"name": "composer"},
				"server": map[string]any{"addr": ":8080", "readtimeout": "10s"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := (&FileSource{BasePath: dir, Profile: tt.profile}).Load(context.Background())
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Load() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFileSource_Missing(t *testing.T) {
	dir := t.TempDir()

	_, err := (&FileSource{BasePath: dir}).Load(context.Background())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error = %v, want os.ErrNotExist", err)
	}

	got, err := (&FileSource{BasePath: dir, Optional: true}).Load(context.Background())
	if err != nil || len(got) != 0 {
		t.Errorf("optional Load() = %v, %v", got, err)
	}
}

func TestFileSource_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "application.yaml", "app: [unterminated")

	if _, err := (&FileSource{BasePath: dir}).Load(context.Background()); err == nil {
		t.Error("Load() should fail on invalid YAML")
	}
}

func TestFileSource_Watch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "application.yaml", "app:\n  name: one\n")

	src := &FileSource{BasePath: dir, PollInterval: 10 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan config.Event, 1)
	done := make(chan error, 1)
	go func() { done <- src.Watch(ctx, ch) }()

	time.Sleep(30 * time.Millisecond)
	writeFile(t, dir, "application.yaml", "app:\n  name: two-longer\n")

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch() did not report the change")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Watch() returned %v after cancel", err)
	}
}

func TestFileSource_WatchDisabled(t *testing.T) {
	if err := (&FileSource{}).Watch(context.Background(), nil); err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}
