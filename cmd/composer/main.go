package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/skekre98/composer/actuator"
	"github.com/skekre98/composer/app"
	"github.com/skekre98/composer/capability"
	"github.com/skekre98/composer/config"
	"github.com/skekre98/composer/config/source"
	"github.com/skekre98/composer/logging"
	"github.com/skekre98/composer/module"
	"github.com/skekre98/composer/web"
)

func main() {
	// 1) config
	var cfg config.Root
	mgr, err := source.Load(&cfg, envOr("COMPOSER_CONFIG_DIR", "configs"), os.Getenv("APP_PROFILE"),
		config.Options{AutoReload: true, Logger: slog.Default()})
	if err != nil {
		panic(err)
	}
	defer mgr.Close()

	// 2) logging, with a level that follows config reloads
	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.Observability.Logging.Level))
	logger := logging.NewLeveled(os.Stdout, cfg.Observability.Logging.Format, level).With(
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
	)

	// 3) runtime and providers
	a := app.New(cfg, logger, app.WithLevel(level))
	srv := web.New(cfg.Server, logger)
	if err := a.Provide(
		capability.Entry{Name: "logger", Provider: capability.NewLogger(logger)},
		capability.Entry{Name: "web", Provider: srv},
		capability.Entry{Name: "kv", Provider: newMemoryStore()},
	); err != nil {
		logger.Error("provider registration failed", "error", err)
		os.Exit(1)
	}

	// 4) modules
	defs, err := definitions(a)
	if err != nil {
		logger.Error("module definition invalid", "error", err)
		os.Exit(1)
	}

	// 5) run
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Follow(ctx, mgr)
	if err := a.Run(ctx, defs...); err != nil {
		logger.Error("app error", "error", err)
		os.Exit(1)
	}
}

func definitions(a *app.App) ([]module.Definition, error) {
	var defs []module.Definition
	builders := []func() (module.Definition, error){
		func() (module.Definition, error) { return authModule(a.Bus) },
		func() (module.Definition, error) { return profileModule(a.Bus) },
	}
	if a.Config.Actuator.Enabled {
		builders = append(builders, func() (module.Definition, error) {
			return actuator.Module(actuator.Deps{
				Config:    a.Config,
				Modules:   a.Modules,
				Providers: a.Providers,
				Bus:       a.Bus,
				Metrics:   a.Metrics,
			})
		})
	}
	for _, build := range builders {
		def, err := build()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
