// Package config loads boot settings from defaults, a boot.yaml file,
// BOOT_* environment variables and command-line flags, in increasing order of
// precedence.
package config

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wippyai/wasm-boot/errors"
	"github.com/wippyai/wasm-boot/source"
)

// EnvPrefix prefixes every environment override, e.g. BOOT_MODULE_LOCATION.
const EnvPrefix = "BOOT"

// Progress modes for the terminal page loader.
const (
	ProgressAuto = "auto"
	ProgressOn   = "on"
	ProgressOff  = "off"
)

// Log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Module describes the module to boot and the WASI environment it sees.
type Module struct {
	// Env holds KEY=VALUE pairs. Keys keep their case.
	Env []string `mapstructure:"env"`
	// Mounts holds host:guest directory pairs.
	Mounts   []string `mapstructure:"mounts"`
	Location string   `mapstructure:"location"`
	Entry    string   `mapstructure:"entry"`
	Args     []string `mapstructure:"args"`
	MaxBytes int64    `mapstructure:"max_bytes"`
	// MemoryLimitPages caps guest memory in 64KiB pages. 0 keeps the engine default.
	MemoryLimitPages uint32 `mapstructure:"memory_limit_pages"`
	WASI             bool   `mapstructure:"wasi"`
}

// Config holds all boot configuration.
type Config struct {
	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`

	Progress string `mapstructure:"progress"`
	// MetricsAddr serves /metrics while a module runs. Empty disables it.
	MetricsAddr string `mapstructure:"metrics_addr"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Module Module `mapstructure:"module"`

	Server struct {
		Host            string        `mapstructure:"host"`
		Dir             string        `mapstructure:"dir"`
		Prefix          string        `mapstructure:"prefix"`
		Index           string        `mapstructure:"index"`
		AllowedOrigins  []string      `mapstructure:"allowed_origins"`
		KeepAlive       time.Duration `mapstructure:"keep_alive"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		Port            int           `mapstructure:"port"`
		Metrics         bool          `mapstructure:"metrics"`
	} `mapstructure:"server"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"location":     "module.location",
	"entry":        "module.entry",
	"wasi":         "module.wasi",
	"memory-limit": "module.memory_limit_pages",
	"max-bytes":    "module.max_bytes",
	"arg":          "module.args",
	"env":          "module.env",
	"mount":        "module.mounts",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"progress":     "progress",
	"metrics-addr": "metrics_addr",
	"host":         "server.host",
	"port":         "server.port",
	"dir":          "server.dir",
	"prefix":       "server.prefix",
	"metrics":      "server.metrics",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("progress", ProgressAuto)
	v.SetDefault("metrics_addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", FormatConsole)

	v.SetDefault("module.location", "pkg/thoth_manager_bg.wasm")
	v.SetDefault("module.entry", "run_app")
	v.SetDefault("module.args", []string{})
	v.SetDefault("module.env", []string{})
	v.SetDefault("module.mounts", []string{})
	v.SetDefault("module.max_bytes", source.DefaultMaxBytes)
	v.SetDefault("module.memory_limit_pages", 0)
	v.SetDefault("module.wasi", true)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.dir", "static")
	v.SetDefault("server.prefix", "")
	v.SetDefault("server.index", "index.html")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.keep_alive", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.metrics", true)
}

// Load reads configuration. file names an explicit config file; when empty,
// boot.yaml is looked up in "." and "./config" and its absence is not an error.
// flags may be nil. Only flags that were set on the command line override
// lower layers.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("boot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !stderrors.As(err, &notFound) {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "read config")
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "bind flag "+name)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "decode config")
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated and ranged settings.
func (c *Config) Validate() error {
	switch c.Progress {
	case ProgressAuto, ProgressOn, ProgressOff:
	default:
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("progress %q: want auto, on or off", c.Progress))
	}
	switch c.Log.Format {
	case FormatConsole, FormatJSON:
	default:
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("log format %q: want console or json", c.Log.Format))
	}
	if strings.TrimSpace(c.Module.Location) == "" {
		return errors.InvalidInput(errors.PhaseConfig, "module location not set")
	}
	if c.Module.MaxBytes <= 0 {
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("module max_bytes %d must be positive", c.Module.MaxBytes))
	}
	if _, err := c.Module.Environ(); err != nil {
		return err
	}
	if _, err := c.Module.MountMap(); err != nil {
		return err
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("server port %d out of range", c.Server.Port))
	}
	return nil
}

// Environ parses Env into a map.
func (m Module) Environ() (map[string]string, error) {
	env := make(map[string]string, len(m.Env))
	for _, kv := range m.Env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("env %q: want KEY=VALUE", kv))
		}
		env[k] = v
	}
	return env, nil
}

// MountMap parses Mounts into a guest path to host directory map. A pair
// without a guest path mounts the host directory at the same path.
func (m Module) MountMap() (map[string]string, error) {
	mounts := make(map[string]string, len(m.Mounts))
	for _, pair := range m.Mounts {
		host, guest, ok := strings.Cut(pair, ":")
		if !ok {
			guest = host
		}
		if host == "" || guest == "" {
			return nil, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("mount %q: want host:guest", pair))
		}
		mounts[guest] = host
	}
	return mounts, nil
}
