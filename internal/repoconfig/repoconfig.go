// Package repoconfig loads a repository's on-disk configuration
// (storage mode, logging level) via viper, the way the
// teacher's CLI loads its own datamon.yaml (spec §2).
package repoconfig

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/oneconcern/ostree-go/internal/objpath"
)

// Config is the on-disk shape of a repository's config file, one
// level below the "repo" [core] stanza the original C source keeps in
// a GKeyFile.
type Config struct {
	Mode     string `mapstructure:"mode" json:"mode,omitempty" yaml:"mode,omitempty"`
	LogLevel string `mapstructure:"log_level" json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// StorageMode parses the config's Mode field, defaulting to bare when
// unset.
func (c Config) StorageMode() (objpath.Mode, error) {
	switch c.Mode {
	case "", "bare":
		return objpath.ModeBare, nil
	case "archive-z2":
		return objpath.ModeArchiveZ2, nil
	default:
		return 0, fmt.Errorf("repoconfig: unknown mode %q", c.Mode)
	}
}

// Load reads a repository config from repoDir/config (yaml/json/toml,
// whichever viper's file-extension sniffing finds), falling back to
// defaults when the file is absent.
func Load(repoDir string) (Config, error) {
	v := viper.New()
	v.SetDefault("mode", "bare")
	v.SetDefault("log_level", "info")
	v.SetConfigName("config")
	v.AddConfigPath(repoDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("repoconfig: reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("repoconfig: unmarshalling config: %w", err)
	}
	return cfg, nil
}

// Write persists cfg to repoDir/config.yaml, creating repoDir if
// necessary — used by repository initialization (ostree.Create).
func Write(repoDir string, cfg Config) error {
	if err := os.MkdirAll(repoDir, 0777); err != nil {
		return fmt.Errorf("repoconfig: creating %s: %w", repoDir, err)
	}
	v := viper.New()
	v.Set("mode", cfg.Mode)
	v.Set("log_level", cfg.LogLevel)
	v.SetConfigType("yaml")
	path := repoDir + "/config.yaml"
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("repoconfig: writing %s: %w", path, err)
	}
	return nil
}
