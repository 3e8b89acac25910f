package config

import "time"

type Config interface {
	EnvConfig
	APIConfig
	SyncConfig
}

type EnvConfig interface {
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
	GetLogLevel() string
}

type APIConfig interface {
	GetAPIURL() string
	GetHealthURL() string
	GetHTTPRetries() int
	GetNetworkCheckAddr() string
}

type SyncConfig interface {
	GetProbeTimeout() time.Duration
	GetProbeInterval() time.Duration
	GetReconnectDebounce() time.Duration
	GetReplayRate() float64
}

type mainConfig struct {
	EnvVars
	API
	Sync
}

// New returns the configuration backed by environment variables only.
func New() Config {
	return mainConfig{}
}

// Load returns the configuration backed by environment variables, falling back to
// the YAML profile at path (when it exists) before the built-in defaults.
func Load(path string) (Config, error) {
	p, err := LoadProfile(path)
	if err != nil {
		return nil, err
	}
	setProfile(p)
	return mainConfig{}, nil
}
