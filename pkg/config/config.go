/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	configName = "timerflow-config"
	envPrefix  = "TIMERFLOW"
)

// StoreBackend names a timer store implementation.
type StoreBackend string

const (
	MemoryBackend    StoreBackend = "memory"
	PebbleBackend    StoreBackend = "pebble"
	JetStreamBackend StoreBackend = "jetstream"
)

type Config struct {
	Stage       string       `json:"stage"`
	Partitions  int          `json:"partitions"`
	Workers     int          `json:"workers"`
	MetricsPort int          `json:"metricsPort"`
	Store       *StoreConfig `json:"store"`
}

type StoreConfig struct {
	Backend   StoreBackend     `json:"backend"`
	Pebble    *PebbleConfig    `json:"pebble"`
	JetStream *JetStreamConfig `json:"jetstream"`
}

type PebbleConfig struct {
	Path string `json:"path"`
	Sync bool   `json:"sync"`
}

type JetStreamConfig struct {
	URL      string `json:"url"`
	User     string `json:"user"`
	Password string `json:"password"`
	Bucket   string `json:"bucket"`
	Replicas int    `json:"replicas"`
}

// Validate checks the fields needed by the selected store backend.
func (c *Config) Validate() error {
	if c.Stage == "" {
		return fmt.Errorf("stage name is required")
	}
	if c.Partitions <= 0 {
		return fmt.Errorf("partitions must be positive, got %d", c.Partitions)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.Store == nil {
		return fmt.Errorf("store configuration is missing")
	}
	switch c.Store.Backend {
	case MemoryBackend:
	case PebbleBackend:
		if c.Store.Pebble == nil || c.Store.Pebble.Path == "" {
			return fmt.Errorf("pebble store requires a path")
		}
	case JetStreamBackend:
		if c.Store.JetStream == nil || c.Store.JetStream.URL == "" || c.Store.JetStream.Bucket == "" {
			return fmt.Errorf("jetstream store requires a url and a bucket")
		}
	default:
		return fmt.Errorf("unsupported store backend %q", c.Store.Backend)
	}
	return nil
}

type loadOptions struct {
	configFile       string
	onReload         func(*Config)
	onErrorReloading func(error)
}

type LoadOption func(*loadOptions)

// WithConfigFile reads the given file instead of searching /etc/timerflow and the working directory.
func WithConfigFile(path string) LoadOption {
	return func(o *loadOptions) {
		o.configFile = path
	}
}

// WithReload watches the config file and calls onReload with the new configuration on every
// valid change, or onErrorReloading when the changed file cannot be used.
func WithReload(onReload func(*Config), onErrorReloading func(error)) LoadOption {
	return func(o *loadOptions) {
		o.onReload = onReload
		o.onErrorReloading = onErrorReloading
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/timerflow")
	v.AddConfigPath(".")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("stage", "default")
	v.SetDefault("partitions", 64)
	v.SetDefault("workers", 0)
	v.SetDefault("metricsPort", 0)
	v.SetDefault("store.backend", string(MemoryBackend))
	v.SetDefault("store.pebble.path", "")
	v.SetDefault("store.pebble.sync", false)
	v.SetDefault("store.jetstream.url", "")
	v.SetDefault("store.jetstream.user", "")
	v.SetDefault("store.jetstream.password", "")
	v.SetDefault("store.jetstream.bucket", "timerflow-timers")
	v.SetDefault("store.jetstream.replicas", 1)
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	r := &Config{}
	if err := v.Unmarshal(r); err != nil {
		return nil, fmt.Errorf("failed unmarshal configuration file. %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration. %w", err)
	}
	return r, nil
}

// LoadConfig reads timerflow-config.yaml with TIMERFLOW_ prefixed environment overrides. A missing
// config file is not an error when no explicit file is given; defaults and environment apply.
func LoadConfig(opts ...LoadOption) (*Config, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}
	v := newViper()
	if o.configFile != "" {
		v.SetConfigFile(o.configFile)
	}
	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if o.configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to load configuration file. %w", err)
		}
		fileLoaded = false
	}
	r, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	if fileLoaded && o.onReload != nil {
		v.OnConfigChange(func(e fsnotify.Event) {
			reloaded, err := unmarshal(v)
			if err != nil {
				if o.onErrorReloading != nil {
					o.onErrorReloading(err)
				}
				return
			}
			o.onReload(reloaded)
		})
		v.WatchConfig()
	}
	return r, nil
}
