// Package config builds the explicit configuration value the CLI passes down
// to extraction and scanning.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/praetorian-inc/appalyzer/pkg/extract"
	"github.com/praetorian-inc/appalyzer/pkg/matcher"
	"github.com/praetorian-inc/appalyzer/pkg/scanner"
)

// Section is the config.ini section holding every key.
const Section = "default"

// Keys within Section. INI files conventionally spell them upper case;
// lookups are case-insensitive.
const (
	KeyJadxPath     = "jadx_path"
	KeyILSpyCmdPath = "ilspycmd_path"
	KeyRegexPath    = "regex_path"
	KeyOutDir       = "outdir_path"
	KeyWorkers      = "workers"
	KeyUnitTimeout  = "unit_timeout"
	KeyEngine       = "engine"
	KeyCacheSize    = "cache_size"
	KeyCacheTTL     = "cache_ttl"
	KeyMaxFileSize  = "max_file_size"
)

// EnvPrefix prefixes environment overrides, e.g. APPALYZER_JADX_PATH.
const EnvPrefix = "APPALYZER"

// DefaultOutDir is where artifacts are extracted when OUTDIR_PATH is unset.
const DefaultOutDir = "~/.appalyzer/output"

var keys = []string{
	KeyJadxPath, KeyILSpyCmdPath, KeyRegexPath, KeyOutDir, KeyWorkers,
	KeyUnitTimeout, KeyEngine, KeyCacheSize, KeyCacheTTL, KeyMaxFileSize,
}

// Config is the resolved configuration.
type Config struct {
	JadxPath     string // empty: jadx on PATH
	ILSpyCmdPath string // empty: ilspycmd on PATH
	RegexPath    string // empty: built-in rules
	OutDir       string

	Workers     int
	UnitTimeout time.Duration
	Engine      matcher.Engine
	CacheSize   uint64 // files kept in the shared content cache, 0 disables it
	CacheTTL    time.Duration
	MaxFileSize int64 // bytes, 0 means unlimited

	// File is the config file that was read, empty when none was found.
	File string
}

// Load reads configuration from path, or from config.{ini,yaml,...} in the
// working directory or ~/.appalyzer when path is empty. A missing default file is
// not an error; a missing explicit file is. Environment variables override
// file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for _, key := range keys {
		if err := v.BindEnv(Section+"."+key, EnvPrefix+"_"+strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("binding environment for %s: %w", key, err)
		}
	}

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("expanding %s: %w", path, err)
		}
		v.SetConfigFile(expanded)
		if typ := configType(expanded); typ != "" {
			v.SetConfigType(typ)
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", expanded, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".appalyzer"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	cache := matcher.DefaultCacheConfig()
	v.SetDefault(Section+"."+KeyOutDir, DefaultOutDir)
	v.SetDefault(Section+"."+KeyWorkers, scanner.DefaultWorkers)
	v.SetDefault(Section+"."+KeyUnitTimeout, scanner.DefaultUnitTimeout)
	v.SetDefault(Section+"."+KeyEngine, string(matcher.EngineRegexp2))
	v.SetDefault(Section+"."+KeyCacheSize, cache.Capacity)
	v.SetDefault(Section+"."+KeyCacheTTL, cache.TTL)
	v.SetDefault(Section+"."+KeyMaxFileSize, 0)
}

func fromViper(v *viper.Viper) (*Config, error) {
	get := func(key string) string { return Section + "." + key }

	engine, err := matcher.ParseEngine(v.GetString(get(KeyEngine)))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Workers:     v.GetInt(get(KeyWorkers)),
		UnitTimeout: v.GetDuration(get(KeyUnitTimeout)),
		Engine:      engine,
		CacheSize:   v.GetUint64(get(KeyCacheSize)),
		CacheTTL:    v.GetDuration(get(KeyCacheTTL)),
		MaxFileSize: v.GetInt64(get(KeyMaxFileSize)),
		File:        v.ConfigFileUsed(),
	}

	paths := []struct {
		key string
		dst *string
	}{
		{KeyJadxPath, &cfg.JadxPath},
		{KeyILSpyCmdPath, &cfg.ILSpyCmdPath},
		{KeyRegexPath, &cfg.RegexPath},
		{KeyOutDir, &cfg.OutDir},
	}
	for _, p := range paths {
		expanded, err := homedir.Expand(strings.TrimSpace(v.GetString(get(p.key))))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", strings.ToUpper(p.key), err)
		}
		*p.dst = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", strings.ToUpper(KeyWorkers), c.Workers)
	}
	if c.UnitTimeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", strings.ToUpper(KeyUnitTimeout), c.UnitTimeout)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("%s must not be negative", strings.ToUpper(KeyCacheTTL))
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("%s must not be negative", strings.ToUpper(KeyMaxFileSize))
	}
	if c.OutDir == "" {
		return fmt.Errorf("%s must not be empty", strings.ToUpper(KeyOutDir))
	}
	return nil
}

// Tools returns the decompiler locations for extract.ForArtifact.
func (c *Config) Tools() extract.Tools {
	return extract.Tools{Jadx: c.JadxPath, ILSpyCmd: c.ILSpyCmdPath}
}

// CacheConfig returns the content cache bounds.
func (c *Config) CacheConfig() matcher.CacheConfig {
	cache := matcher.DefaultCacheConfig()
	cache.Capacity = c.CacheSize
	cache.TTL = c.CacheTTL
	return cache
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ini", ".cfg", ".conf":
		return "ini"
	case ".yml", ".yaml":
		return "yaml"
	default:
		return ""
	}
}
