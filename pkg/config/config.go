package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/ritzau/forward-chain/pkg/layout"
	"github.com/ritzau/forward-chain/pkg/records"
)

// DefaultFile is the optional configuration file read from the working directory.
const DefaultFile = "forward-chain.toml"

// EnvPrefix prefixes environment overrides. Nested keys use a double
// underscore: FORWARD_CHAIN_LAYOUT__NODE_RADIUS=40.
const EnvPrefix = "FORWARD_CHAIN_"

// Config holds all configuration for the application
type Config struct {
	Input       string `koanf:"input"`
	Output      string `koanf:"output"`
	Tables      string `koanf:"tables"` // directory for unique_<attr>.json; empty means next to output
	WebMode     bool   `koanf:"web"`
	Port        int    `koanf:"port"`
	Watch       bool   `koanf:"watch"`
	OpenBrowser bool   `koanf:"open"`
	Encode      string `koanf:"encode"`  // write an anonymized copy of the input here and exit
	Mapping     string `koanf:"mapping"` // identifier mapping table used by encode
	Verbosity   string `koanf:"verbosity"`
	VerboseCnt  int    `koanf:"verbose"`
	LogJSON     bool   `koanf:"log_json"`
	Seed        uint64 `koanf:"seed"`
	Merge       string `koanf:"merge"`   // first, last or union
	Ordinal     string `koanf:"ordinal"` // numeric or clamp
	DedupLinks  bool   `koanf:"dedup_links"`

	Fields Fields         `koanf:"fields"`
	Layout layout.Options `koanf:"layout"`
}

// Fields names the survey columns; see records.Fields.
type Fields struct {
	ID         string            `koanf:"id"`
	Group      string            `koanf:"group"`
	Timestamp  string            `koanf:"timestamp"`
	Next       []string          `koanf:"next"`
	NextPrefix string            `koanf:"next_prefix"`
	Lists      []string          `koanf:"lists"`
	Rename     map[string]string `koanf:"rename"`
}

// Records converts to the normalizer's field set.
func (f Fields) Records() records.Fields {
	return records.Fields{
		ID:         f.ID,
		Group:      f.Group,
		Timestamp:  f.Timestamp,
		Next:       f.Next,
		NextPrefix: f.NextPrefix,
		Lists:      f.Lists,
		Rename:     f.Rename,
	}
}

func defaults() map[string]interface{} {
	rf := records.DefaultFields()
	rename := make(map[string]interface{}, len(rf.Rename))
	for k, v := range rf.Rename {
		rename[k] = v
	}

	return map[string]interface{}{
		"input":       "data/survey.csv",
		"output":      "data/network_data.json",
		"tables":      "",
		"web":         false,
		"port":        8080,
		"watch":       false,
		"open":        true,
		"encode":      "",
		"mapping":     "data/mapping.json",
		"verbosity":   "",
		"verbose":     0,
		"log_json":    false,
		"seed":        1,
		"merge":       "first",
		"ordinal":     "numeric",
		"dedup_links": false,
		"fields": map[string]interface{}{
			"id":          rf.ID,
			"group":       rf.Group,
			"timestamp":   rf.Timestamp,
			"next":        rf.Next,
			"next_prefix": rf.NextPrefix,
			"lists":       rf.Lists,
			"rename":      rename,
		},
	}
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(makeMapProvider(defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional only when it is the default one)
	path, explicit := DefaultFile, false
	if f != nil {
		if v, err := f.GetString("config"); err == nil && v != "" {
			path = v
			explicit = f.Changed("config") || v != DefaultFile
		}
	}
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// 3. Environment Variables
	// Prefix: FORWARD_CHAIN_ (e.g., FORWARD_CHAIN_PORT=9090)
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.ProviderWithFlag(f, ".", k, flagKey(f)), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Unmarshal into struct; layout keys overlay the engine defaults
	cfg := Config{Layout: layout.DefaultOptions()}
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if !k.Exists("layout.seed") {
		cfg.Layout.Seed = cfg.Seed
	}

	return &cfg, nil
}

// flagKey maps --dedup-links to dedup_links.
func flagKey(fs *pflag.FlagSet) func(*pflag.Flag) (string, interface{}) {
	return func(fl *pflag.Flag) (string, interface{}) {
		return strings.ReplaceAll(fl.Name, "-", "_"), posflag.FlagVal(fs, fl)
	}
}

// envKey maps FORWARD_CHAIN_LAYOUT__NODE_RADIUS to layout.node_radius.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(
		strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
