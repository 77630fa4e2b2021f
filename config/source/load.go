package source

import (
	"time"

	"github.com/skekre98/composer/config"
)

// DefaultPollInterval is how often Load's file source checks for edits when
// opts.AutoReload is set.
const DefaultPollInterval = 2 * time.Second

// Load builds a Manager for a config.Root from the standard source chain:
// defaults, then the optional file in dir (with profile overlay), then
// COMPOSER_* environment variables, then command-line flags.
//
// With opts.AutoReload the file is polled and every edit triggers a reload.
func Load(cfg *config.Root, dir, profile string, opts config.Options) (*config.Manager, error) {
	file := &FileSource{BasePath: dir, Profile: profile, Optional: true}
	if opts.AutoReload {
		file.PollInterval = DefaultPollInterval
	}
	return config.NewManager(cfg, opts,
		Static(config.Defaults()),
		file,
		&EnvSource{},
		&CLISource{},
	)
}
