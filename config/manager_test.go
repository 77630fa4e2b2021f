package config_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skekre98/composer/config"
)

// mockSource is a test implementation of config.Source.
type mockSource struct {
	name   string
	mu     sync.RWMutex
	data   map[string]any
	errVal error
	events chan struct{}
}

func (m *mockSource) Name() string { return m.name }

func (m *mockSource) Load(ctx context.Context) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.errVal != nil {
		return nil, m.errVal
	}
	out := map[string]any{}
	config.Merge(out, m.data)
	return out, nil
}

func (m *mockSource) Watch(ctx context.Context, ch chan<- config.Event) error {
	if m.events == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.events:
			ch <- config.Event{}
		}
	}
}

func (m *mockSource) set(key string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = v
}

type appConfig struct {
	Name string `config:"name" validate:"required"`
	Port int    `config:"port" validate:"required,min=1,max=65535"`
}

func TestNewManager_Success(t *testing.T) {
	src := &mockSource{name: "test", data: map[string]any{"name": "composer", "port": 8080}}

	var cfg appConfig
	m, err := config.NewManager(&cfg, config.Options{}, src)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if cfg.Name != "composer" || cfg.Port != 8080 {
		t.Errorf("cfg = %+v", cfg)
	}

	m.Read(func(c any) {
		if c.(*appConfig).Port != 8080 {
			t.Errorf("Read() saw %+v", c)
		}
	})
}

func TestNewManager_LaterSourcesWin(t *testing.T) {
	defaults := &mockSource{name: "defaults", data: map[string]any{"name": "composer", "port": 8080}}
	override := &mockSource{name: "override", data: map[string]any{"port": "9090"}}

	var cfg appConfig
	if _, err := config.NewManager(&cfg, config.Options{}, defaults, override); err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if cfg.Name != "composer" || cfg.Port != 9090 {
		t.Errorf("cfg = %+v, want composer:9090", cfg)
	}
}

func TestNewManager_Errors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		target  any
		source  *mockSource
		wantErr string
	}{
		{
			name:    "target not a pointer",
			target:  appConfig{},
			source:  &mockSource{name: "ok", data: map[string]any{}},
			wantErr: "non-nil pointer to a struct",
		},
		{
			name:    "source fails",
			target:  &appConfig{},
			source:  &mockSource{name: "broken", errVal: boom},
			wantErr: "failed to load config from broken",
		},
		{
			name:    "validation fails",
			target:  &appConfig{},
			source:  &mockSource{name: "partial", data: map[string]any{"name": "composer"}},
			wantErr: "failed to bind config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.NewManager(tt.target, config.Options{}, tt.source)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("NewManager() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestManager_Reload_NotifiesSubscribers(t *testing.T) {
	src := &mockSource{name: "test", data: map[string]any{"name": "composer", "port": 8080}}

	var cfg appConfig
	m, err := config.NewManager(&cfg, config.Options{}, src)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	ch := make(chan config.Event, 1)
	m.Subscribe(ch)

	src.set("port", 9090)
	if err := m.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d after reload", cfg.Port)
	}

	select {
	case evt := <-ch:
		if !reflect.DeepEqual(evt.ChangedKeys, []string{"Port"}) {
			t.Errorf("ChangedKeys = %v", evt.ChangedKeys)
		}
		if evt.OldConfig.(*appConfig).Port != 8080 || evt.NewConfig.(*appConfig).Port != 9090 {
			t.Errorf("event configs = %+v -> %+v", evt.OldConfig, evt.NewConfig)
		}
	default:
		t.Fatal("no event after a changing reload")
	}

	if err := m.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event for unchanged reload: %+v", evt)
	default:
	}
}

func TestManager_Reload_KeepsPreviousOnFailure(t *testing.T) {
	src := &mockSource{name: "test", data: map[string]any{"name": "composer", "port": 8080}}

	var cfg appConfig
	m, err := config.NewManager(&cfg, config.Options{}, src)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	src.set("port", 0)
	err = m.Reload(context.Background())
	var bindErr *config.BindError
	if !errors.As(err, &bindErr) || bindErr.Stage != config.StageValidate {
		t.Fatalf("Reload() error = %v, want validate BindError", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, previous value should be kept", cfg.Port)
	}
}

func TestManager_Reload_CanceledContext(t *testing.T) {
	src := &mockSource{name: "test", data: map[string]any{"name": "composer", "port": 8080}}

	var cfg appConfig
	m, err := config.NewManager(&cfg, config.Options{}, src)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Reload(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Reload() error = %v, want context.Canceled", err)
	}
}

func TestManager_AutoReload(t *testing.T) {
	src := &mockSource{
		name:   "watched",
		data:   map[string]any{"name": "composer", "port": 8080},
		events: make(chan struct{}),
	}

	var cfg appConfig
	m, err := config.NewManager(&cfg, config.Options{AutoReload: true}, src)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	ch := make(chan config.Event, 1)
	m.Subscribe(ch)

	src.set("port", 7070)
	src.events <- struct{}{}

	select {
	case evt := <-ch:
		if evt.NewConfig.(*appConfig).Port != 7070 {
			t.Errorf("NewConfig = %+v", evt.NewConfig)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not trigger a reload")
	}

	m.Read(func(c any) {
		if c.(*appConfig).Port != 7070 {
			t.Errorf("Port = %d after auto reload", c.(*appConfig).Port)
		}
	})
}
