package config

import "context"

// Source supplies configuration as a nested string-keyed map.
//
// Sources are merged in order by Manager, later sources winning key by key.
// Load must be safe for concurrent use and must return a map the caller may
// modify. Watch is optional: sources that cannot detect changes return nil
// immediately.
type Source interface {
	// Name identifies the source in errors and logs ("file", "env", "cli").
	Name() string

	// Load returns the source's current values. Implementations should return
	// ctx.Err() if ctx is already done.
	Load(ctx context.Context) (map[string]any, error)

	// Watch sends an Event on ch whenever the source changes, until ctx is
	// done. It must never close ch.
	Watch(ctx context.Context, ch chan<- Event) error
}

// Event describes a configuration change.
type Event struct {
	// ChangedKeys lists the top-level struct fields whose values differ.
	ChangedKeys []string

	// OldConfig and NewConfig are pointers to copies of the configuration
	// struct before and after the change.
	OldConfig any
	NewConfig any
}
