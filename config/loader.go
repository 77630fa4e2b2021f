package config

// Defaults returns the values every Root starts from before files, the
// environment and flags are applied.
func Defaults() map[string]any {
	return map[string]any{
		"app": map[string]any{
			"name":    "composer",
			"version": "dev",
		},
		"server": map[string]any{
			"addr":         ":8080",
			"readTimeout":  "10s",
			"writeTimeout": "10s",
			"idleTimeout":  "60s",
		},
		"observability": map[string]any{
			"logging": map[string]any{
				"level":  "info",
				"format": "text",
			},
			"metrics": map[string]any{
				"enabled":   true,
				"namespace": "composer",
			},
		},
		"actuator": map[string]any{
			"enabled":  true,
			"basePath": "/actuator",
		},
		"modules": map[string]any{
			"skipFailed":      false,
			"shutdownTimeout": "15s",
		},
	}
}
