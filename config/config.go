package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/probekit/reachprobe/probe"

	"github.com/goccy/go-yaml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	commoncfg "github.com/prometheus/common/config"
)

// Config holds the runtime settings of the prober. The probe target is a
// compile-time constant and deliberately has no place here.
type Config struct {
	Probe Probe `yaml:"probe"`
	Auth  Auth  `yaml:"auth"`
}

type Probe struct {
	Timeout float64 `yaml:"timeout"`
	Cache   Cache   `yaml:"cache"`
}

type Cache struct {
	Duration               *float64 `yaml:"duration"`
	CacheOnError           bool     `yaml:"cache_on_error"`
	UseExpiredCacheOnError bool     `yaml:"use_expired_cache_on_error"`
}

type Auth struct {
	Basic  BasicAuth  `yaml:"basic"`
	Bearer BearerAuth `yaml:"bearer"`
}

// Credentials use the Secret type so that a rendered configuration, for
// example on the /config endpoint, shows "<secret>" instead of the value.
type BasicAuth struct {
	Enabled  bool             `yaml:"enabled"`
	Username string           `yaml:"username"`
	Password commoncfg.Secret `yaml:"password"`
}

type BearerAuth struct {
	Enabled       bool             `yaml:"enabled"`
	SigningSecret commoncfg.Secret `yaml:"signing_secret"`
}

func DefaultConfig() *Config {
	return &Config{
		Probe: Probe{
			Timeout: probe.DefaultTimeout,
		},
	}
}

type SafeConfig struct {
	sync.RWMutex
	C                   *Config
	ConfigFile          string
	configReloadSuccess prometheus.Gauge
	configReloadSeconds prometheus.Gauge
}

func NewSafeConfig(reg prometheus.Registerer) *SafeConfig {
	configReloadSuccess := promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Namespace: "reachprobe",
		Name:      "config_last_reload_successful",
		Help:      "Reachability prober config loaded successfully.",
	})

	configReloadSeconds := promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Namespace: "reachprobe",
		Name:      "config_last_reload_success_timestamp_seconds",
		Help:      "Timestamp of the last successful configuration reload.",
	})

	return &SafeConfig{
		C:                   DefaultConfig(),
		ConfigFile:          "",
		configReloadSuccess: configReloadSuccess,
		configReloadSeconds: configReloadSeconds,
	}
}

// ReloadConfig replaces the active configuration with the contents of the
// configured file. When no file is set the defaults are used. Unknown fields
// are rejected, so a stray attempt to configure the probe target fails the
// load instead of being silently ignored.
func (sc *SafeConfig) ReloadConfig(logger *slog.Logger) (err error) {
	defer func() {
		if err != nil {
			sc.configReloadSuccess.Set(0)
		} else {
			sc.configReloadSuccess.Set(1)
			sc.configReloadSeconds.SetToCurrentTime()
		}
	}()

	c := DefaultConfig()

	if sc.ConfigFile != "" {
		yamlReader, err := os.Open(sc.ConfigFile)
		if err != nil {
			return fmt.Errorf("error reading config file %s: %w", sc.ConfigFile, err)
		}
		defer yamlReader.Close()
		decoder := yaml.NewDecoder(yamlReader, yaml.DisallowUnknownField())

		if err = decoder.Decode(c); err != nil {
			return fmt.Errorf("error parsing config file %s: %w", sc.ConfigFile, err)
		}
	}

	sc.Lock()
	sc.C = c
	sc.Unlock()

	if logger != nil {
		logger.Debug("Loaded config", "file", sc.ConfigFile)
	}

	return nil
}
