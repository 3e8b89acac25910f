package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	yaml "gopkg.in/yaml.v3"
)

var ErrProfileInvalid = errors.New("profile is invalid")

// Profile holds file-based defaults. Environment variables take precedence over it.
type Profile struct {
	AppName          string `yaml:"appName,omitempty"`
	APIRoot          string `yaml:"apiRoot,omitempty"`
	HealthURL        string `yaml:"healthUrl,omitempty"`
	NetworkCheckAddr string `yaml:"networkCheckAddr,omitempty"`
	DataFolder       string `yaml:"dataFolder,omitempty"`
	LogLevel         string `yaml:"logLevel,omitempty"`
}

var (
	profileLock sync.RWMutex
	profile     *Profile
)

// LoadProfile reads a YAML profile. A missing file yields an empty profile.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return &Profile{}, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Profile{}, nil
		}
		return nil, err
	}
	p := &Profile{}
	if err := yaml.Unmarshal(buf, p); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrProfileInvalid, path, err)
	}
	return p, nil
}

func setProfile(p *Profile) {
	profileLock.Lock()
	defer profileLock.Unlock()
	profile = p
}

func profileValue(field func(*Profile) string, defaultValue string) string {
	profileLock.RLock()
	defer profileLock.RUnlock()
	if profile == nil {
		return defaultValue
	}
	if v := field(profile); v != "" {
		return v
	}
	return defaultValue
}
