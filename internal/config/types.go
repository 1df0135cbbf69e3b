package config

import "time"

// Config is the host configuration loaded from warden.yaml.
type Config struct {
	// PluginsDir is the directory scanned for plugin sources.
	PluginsDir string `yaml:"plugins_dir" validate:"required"`

	// RegistryPath is where the plugin registry snapshot is persisted.
	RegistryPath string `yaml:"registry_path" validate:"required"`

	// AutoLoadNew loads newly discovered plugins at startup and reload-all.
	AutoLoadNew bool `yaml:"auto_load_new"`

	// CommandPrefix precedes every chat command.
	CommandPrefix string `yaml:"command_prefix" validate:"required,prefix"`

	// LogLevel is a zerolog level name.
	LogLevel string `yaml:"log_level" validate:"omitempty,log_level"`

	// DiscoveryTimeout bounds one discovery pass.
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout" validate:"omitempty,min=0"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		PluginsDir:       "plugins",
		RegistryPath:     "data/plugin_registry.json",
		AutoLoadNew:      true,
		CommandPrefix:    "!",
		LogLevel:         "info",
		DiscoveryTimeout: 10 * time.Second,
	}
}
