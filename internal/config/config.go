// Package config loads runtime configuration for the worker host.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
)

// Config is the merged runtime configuration.
type Config struct {
	Host       string
	Port       int
	Upstream   string
	Mode       string
	Crons      []string
	LogLevel   string
	PrettyLogs bool
	EnableCORS bool
	Bindings   map[string]any

	// Sources lists the files that contributed to this configuration,
	// in load order. The dev watcher watches them for changes.
	Sources []string
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Host:       "127.0.0.1",
		Port:       8787,
		Mode:       "imperative",
		LogLevel:   "INFO",
		EnableCORS: true,
		Bindings:   make(map[string]any),
	}
}

// Load reads configuration from dir, merging sources in priority order:
//
//  1. wrangler.toml ([vars], [triggers], [miniflare] sections)
//  2. miniflare.jsonc / miniflare.json options file
//  3. .env bindings (or the [miniflare] env_path override)
//  4. MINIFLARE_* environment variables
//
// Missing files are skipped; a file that exists but cannot be parsed is
// an error.
func Load(dir string) (*Config, error) {
	cfg := Default()

	envPath := filepath.Join(dir, ".env")
	if p, err := loadWrangler(filepath.Join(dir, "wrangler.toml"), cfg); err != nil {
		return nil, err
	} else if p != "" {
		envPath = filepath.Join(dir, p)
	}

	for _, name := range []string{"miniflare.jsonc", "miniflare.json"} {
		if err := loadOptions(filepath.Join(dir, name), cfg); err != nil {
			return nil, err
		}
	}

	if err := loadDotEnv(envPath, cfg); err != nil {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

// wranglerFile mirrors the subset of wrangler.toml the runtime
// understands.
type wranglerFile struct {
	Vars map[string]any `toml:"vars"`

	Triggers struct {
		Crons []string `toml:"crons"`
	} `toml:"triggers"`
	Miniflare struct {
		Host     string `toml:"host"`
		Port     int    `toml:"port"`
		Upstream string `toml:"upstream"`
		EnvPath  string `toml:"env_path"`
	} `toml:"miniflare"`
}

func loadWrangler(path string, cfg *Config) (envPath string, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var wf wranglerFile
	if err := toml.Unmarshal(data, &wf); err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}

	for k, v := range wf.Vars {
		cfg.Bindings[k] = v
	}
	if len(wf.Triggers.Crons) > 0 {
		cfg.Crons = wf.Triggers.Crons
	}
	if wf.Miniflare.Host != "" {
		cfg.Host = wf.Miniflare.Host
	}
	if wf.Miniflare.Port != 0 {
		cfg.Port = wf.Miniflare.Port
	}
	if wf.Miniflare.Upstream != "" {
		cfg.Upstream = wf.Miniflare.Upstream
	}

	cfg.Sources = append(cfg.Sources, path)
	return wf.Miniflare.EnvPath, nil
}

// optionsFile mirrors the miniflare.jsonc options file. Pointer fields
// distinguish "absent" from zero values.
type optionsFile struct {
	Host       *string        `json:"host"`
	Port       *int           `json:"port"`
	Upstream   *string        `json:"upstream"`
	Mode       *string        `json:"mode"`
	Crons      []string       `json:"crons"`
	LogLevel   *string        `json:"logLevel"`
	PrettyLogs *bool          `json:"prettyLogs"`
	EnableCORS *bool          `json:"cors"`
	Bindings   map[string]any `json:"bindings"`
}

func loadOptions(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var opts optionsFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &opts); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if opts.Host != nil {
		cfg.Host = *opts.Host
	}
	if opts.Port != nil {
		cfg.Port = *opts.Port
	}
	if opts.Upstream != nil {
		cfg.Upstream = *opts.Upstream
	}
	if opts.Mode != nil {
		cfg.Mode = *opts.Mode
	}
	if len(opts.Crons) > 0 {
		cfg.Crons = opts.Crons
	}
	if opts.LogLevel != nil {
		cfg.LogLevel = *opts.LogLevel
	}
	if opts.PrettyLogs != nil {
		cfg.PrettyLogs = *opts.PrettyLogs
	}
	if opts.EnableCORS != nil {
		cfg.EnableCORS = *opts.EnableCORS
	}
	for k, v := range opts.Bindings {
		cfg.Bindings[k] = v
	}

	cfg.Sources = append(cfg.Sources, path)
	return nil
}

func loadDotEnv(path string, cfg *Config) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for k, v := range vars {
		cfg.Bindings[k] = v
	}
	cfg.Sources = append(cfg.Sources, path)
	return nil
}

// applyEnv overlays MINIFLARE_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MINIFLARE_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("MINIFLARE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("MINIFLARE_UPSTREAM"); v != "" {
		cfg.Upstream = v
	}
	if v := os.Getenv("MINIFLARE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
