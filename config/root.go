package config

import (
	"time"

	"github.com/skekre98/composer/logging"
)

type AppInfo struct {
	Name    string `config:"name" validate:"required"`
	Version string `config:"version" validate:"required"`
}

type LoggingConfig = logging.Config

type MetricsConfig struct {
	Enabled   bool   `config:"enabled"`
	Namespace string `config:"namespace"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `config:"logging"`
	Metrics MetricsConfig `config:"metrics"`
}

type ActuatorConfig struct {
	Enabled  bool   `config:"enabled"`
	BasePath string `config:"basePath" validate:"required,startswith=/"`
}

type ServerConfig struct {
	Addr         string        `config:"addr" validate:"required"`
	ReadTimeout  time.Duration `config:"readTimeout"`
	WriteTimeout time.Duration `config:"writeTimeout"`
	IdleTimeout  time.Duration `config:"idleTimeout"`
}

// ModulesConfig controls how the host loads modules.
type ModulesConfig struct {
	// Disabled lists module ids the host skips.
	Disabled []string `config:"disabled"`
	// SkipFailed keeps loading the remaining modules when one fails to register.
	SkipFailed bool `config:"skipFailed"`
	// ShutdownTimeout bounds module destroy hooks and provider shutdown.
	ShutdownTimeout time.Duration `config:"shutdownTimeout" validate:"gte=0"`
}

type Root struct {
	App           AppInfo             `config:"app"`
	Server        ServerConfig        `config:"server"`
	Observability ObservabilityConfig `config:"observability"`
	Actuator      ActuatorConfig      `config:"actuator"`
	Modules       ModulesConfig       `config:"modules"`
}
