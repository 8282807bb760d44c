// Package config loads bpkg's global CLI configuration: the
// `.bpkgrc.yaml` file, `BPKG_*` environment variables, and the global
// flags bound onto them, per spec.md §6's external-interfaces section.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds every setting a bpkg command reads, merged from (in
// increasing priority) built-in defaults, `$HOME/.bpkgrc.yaml`,
// `BPKG_*` environment variables, and command-line flags.
type Config struct {
	// ConfigDir is the configuration directory a command operates
	// against, equivalent to spec.md's implicit "current configuration".
	ConfigDir string `mapstructure:"cfg" yaml:"cfg" validate:"required"`

	// Verbosity is the -v repeat count (0 = warnings only, 1 = info,
	// 2+ = debug), mirroring the donor logger's level escalation.
	Verbosity int `mapstructure:"verbosity" yaml:"verbosity" validate:"gte=0"`

	// PkgProxy is an HTTP/HTTPS proxy URL used for pkg-repository
	// fetches, read from --pkg-proxy or BPKG_PKG_PROXY.
	PkgProxy string `mapstructure:"pkg_proxy" yaml:"pkg_proxy" validate:"omitempty,url"`

	// FetchCachePath is the root of the C5 fetch cache. Defaults to
	// os.UserCacheDir()/bpkg, overridable via --fetch-cache-path or
	// BPKG_FETCH_CACHE_PATH.
	FetchCachePath string `mapstructure:"fetch_cache_path" yaml:"fetch_cache_path" validate:"required"`

	// SharedSrc enables the fetch cache's shared-source hardlink mode
	// (spec.md §4.4).
	SharedSrc bool `mapstructure:"shared_src" yaml:"shared_src"`

	// Offline refuses any network or VCS fetch, serving only cached
	// content.
	Offline bool `mapstructure:"offline" yaml:"offline"`

	// Yes auto-confirms prompts that would otherwise require interactive
	// confirmation (certificate trust, drop-dependents).
	Yes bool `mapstructure:"yes" yaml:"yes"`

	// Driver is the path to the external build-system driver executable
	// (spec.md §9's "build system as external subprocess contract").
	Driver string `mapstructure:"driver" yaml:"driver" validate:"required"`

	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// LogConfig mirrors pkg/logger.Config's fields so viper can populate both
// from the same `log:` section of .bpkgrc.yaml.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	Output     string `mapstructure:"output" yaml:"output"`
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// rcFileName is the per-user configuration file name, read from
// $HOME per spec.md §6.
const rcFileName = ".bpkgrc.yaml"

// Load builds a Config from built-in defaults, `$HOME/.bpkgrc.yaml` (or
// rcPath if non-empty), `BPKG_*` environment variables, and validates the
// result. flagOverrides, if non-nil, is applied last (command-line flags
// take priority over everything else).
func Load(rcPath string, flagOverrides func(*viper.Viper)) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BPKG")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	path := rcPath
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, rcFileName)
		}
	}
	if path != "" {
		if err := loadStrict(path); err != nil {
			return nil, err
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	if flagOverrides != nil {
		flagOverrides(v)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.FetchCachePath == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			cfg.FetchCachePath = filepath.Join(dir, "bpkg")
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadStrict decodes path with yaml.v3 into a throwaway Config and
// rejects unknown top-level keys before viper's looser merge runs,
// giving malformed `.bpkgrc.yaml` files (typo'd keys, wrong value
// shapes) a precise error instead of being silently ignored.
func loadStrict(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	var probe Config
	if err := dec.Decode(&probe); err != nil {
		return fmt.Errorf("config: %s is malformed: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cfg", ".")
	v.SetDefault("verbosity", 0)
	v.SetDefault("pkg_proxy", "")
	v.SetDefault("fetch_cache_path", "")
	v.SetDefault("shared_src", false)
	v.SetDefault("offline", false)
	v.SetDefault("yes", false)
	v.SetDefault("driver", "b")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.filename", "")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)
}

// Validate runs struct-tag validation over c.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: invalid configuration: %w", err)
	}
	return nil
}

// WriteTemplate writes a commented default `.bpkgrc.yaml` to path; no
// `bpkg` command calls it. It marshals with yaml.v3 rather than
// hand-formatting so the emitted file always matches Config's current
// field set.
func WriteTemplate(path string) error {
	cfg := Config{
		ConfigDir:      ".",
		FetchCachePath: "",
		Driver:         "b",
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		},
	}
	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("config: marshal template: %w", err)
	}
	header := "# bpkg per-user configuration; see spec.md §6 for BPKG_* env equivalents.\n"
	if err := os.WriteFile(path, append([]byte(header), out...), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
