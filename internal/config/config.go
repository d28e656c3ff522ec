// Package config holds runtime configuration: hard-coded defaults
// overridden by GLUCOMATE_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	GenAI     GenAIConfig
	Translate TranslateConfig
	Search    SearchConfig
	KB        KBConfig
	Reminder  ReminderConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type GenAIConfig struct {
	BaseURL string
}

type TranslateConfig struct {
	BaseURL string
}

type SearchConfig struct {
	BaseURL string
}

type KBConfig struct {
	BaseURL string
}

type ReminderConfig struct {
	Enabled bool
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		GenAI:     GenAIConfig{BaseURL: "http://localhost:8801"},
		Translate: TranslateConfig{BaseURL: "http://localhost:8802"},
		Search:    SearchConfig{BaseURL: "http://localhost:8803"},
		KB:        KBConfig{BaseURL: "http://localhost:8804"},
		Reminder:  ReminderConfig{Enabled: true},
		Log:       LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".glucomate"
	}
	return filepath.Join(home, ".glucomate")
}

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	env   string
	typ   keyType
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		env: "GLUCOMATE_SERVER_PORT", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		env: "GLUCOMATE_API_TOKEN", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
	},
	{
		env: "GLUCOMATE_STORAGE_DATA_DIR", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
	},
	{
		env: "GLUCOMATE_GENAI_BASE_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.GenAI.BaseURL = v.(string) },
	},
	{
		env: "GLUCOMATE_TRANSLATE_BASE_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Translate.BaseURL = v.(string) },
	},
	{
		env: "GLUCOMATE_SEARCH_BASE_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Search.BaseURL = v.(string) },
	},
	{
		env: "GLUCOMATE_KB_BASE_URL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.KB.BaseURL = v.(string) },
	},
	{
		env: "GLUCOMATE_REMINDER_ENABLED", typ: kBool,
		apply: func(cfg *Config, v any) { cfg.Reminder.Enabled = v.(bool) },
	},
	{
		env: "GLUCOMATE_LOG_LEVEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
}

// Load builds the configuration from defaults and GLUCOMATE_* env vars.
func Load() (Config, error) {
	cfg := defaults()
	applyEnvOverrides(&cfg)

	if cfg.Server.APIToken == "" {
		return Config{}, fmt.Errorf("missing required config: API token. Set it via environment variable GLUCOMATE_API_TOKEN")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
