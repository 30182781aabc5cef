package config

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Live holds the current configuration and swaps it atomically when the
// config file changes. Readers always see a complete, validated Config.
type Live struct {
	current atomic.Pointer[Config]
}

// NewLive wraps an already loaded configuration.
func NewLive(cfg *Config) *Live {
	l := &Live{}
	l.current.Store(cfg)
	return l
}

// LoadLive loads the configuration and, when a config file was found,
// reloads it on every change to that file.
func LoadLive() (*Live, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	l := NewLive(cfg)
	if v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			l.reload(v, e.Name)
		})
		v.WatchConfig()
	}
	return l, nil
}

// reload keeps the previous configuration when the new one is invalid.
func (l *Live) reload(v *viper.Viper, source string) {
	cfg, err := decode(v)
	if err != nil {
		slog.Default().Error("configuration reload rejected",
			"file", source,
			"error", err)
		return
	}
	l.current.Store(cfg)
	slog.Default().Info("configuration reloaded", "file", source)
}

// Current returns the configuration in effect.
func (l *Live) Current() *Config {
	return l.current.Load()
}

// Store replaces the configuration in effect.
func (l *Live) Store(cfg *Config) {
	l.current.Store(cfg)
}

// ArtifactTTL returns the lifetime applied to newly created artifacts.
func (l *Live) ArtifactTTL() time.Duration {
	return l.Current().Async.DefaultTTL()
}

// UniqueFilenames reports whether artifact filenames must be unique.
func (l *Live) UniqueFilenames() bool {
	return l.Current().Async.UniqueFilenames
}

// DurableStorage reports whether new operations persist results as artifacts.
func (l *Live) DurableStorage() bool {
	return l.Current().Async.DurableStorage
}
