// Package config assembles the worker configuration from defaults, an
// optional YAML file, and PREVIEWD_* environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "90s" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Converter ConverterConfig `yaml:"converter"`
	Worker    WorkerConfig    `yaml:"worker"`
	Tagging   TaggingConfig   `yaml:"tagging"`
	Status    StatusConfig    `yaml:"status"`
	Log       LogConfig       `yaml:"log"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// ServerConfig locates the content repository.
type ServerConfig struct {
	URL        string `yaml:"url"`
	ContentURL string `yaml:"content_url"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
}

// ConverterConfig locates the document conversion service.
type ConverterConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// WorkerConfig tunes the processing loop.
type WorkerConfig struct {
	BaseDir     string   `yaml:"base_dir"`
	Passes      int      `yaml:"passes"`
	Interval    Duration `yaml:"interval"`
	Parallelism int      `yaml:"parallelism"`
	ReclaimOwn  bool     `yaml:"reclaim_own"`

	// PostTimeout bounds each terminal status post back to the store.
	PostTimeout Duration `yaml:"post_timeout"`

	// MimeTypesFile and IgnoreTypesFile override the embedded tables.
	MimeTypesFile   string `yaml:"mime_types_file"`
	IgnoreTypesFile string `yaml:"ignore_types_file"`

	// FirstPageOnlyTypes get a single preview page regardless of length.
	FirstPageOnlyTypes []string `yaml:"first_page_only_types"`

	// RenderTypes are fetched by rendering their pages with wkhtmltopdf.
	RenderTypes []string `yaml:"render_types"`

	// RenderCookieName and RenderCookieValue authenticate rendered-page
	// fetches with the content server. An empty value leaves the fetches
	// anonymous, which only works for public pages.
	RenderCookieName  string `yaml:"render_cookie_name"`
	RenderCookieValue string `yaml:"render_cookie_value"`
}

// TaggingConfig tunes term extraction and auto-tagging.
type TaggingConfig struct {
	Force       bool   `yaml:"force"`
	MaxTags     int    `yaml:"max_tags"`
	LexiconFile string `yaml:"lexicon_file"`
	NotifyFrom  string `yaml:"notify_from"`

	MinTermLength        int `yaml:"min_term_length"`
	MaxTermLength        int `yaml:"max_term_length"`
	SingleStrengthOccurs int `yaml:"single_strength_occurs"`
}

// StatusConfig controls the operator endpoint.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	DataDir string `yaml:"data_dir"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			URL:        "http://localhost:8080",
			ContentURL: "http://localhost:8082",
			User:       "admin",
			Password:   "admin",
		},
		Converter: ConverterConfig{
			Host: "localhost",
			Port: 8100,
		},
		Worker: WorkerConfig{
			BaseDir:          os.TempDir(),
			Passes:           1,
			Interval:         Duration(30 * time.Second),
			Parallelism:      1,
			ReclaimOwn:       true,
			PostTimeout:      Duration(20 * time.Second),
			RenderCookieName: "trusted-authn",
		},
		Tagging: TaggingConfig{
			MaxTags:              10,
			NotifyFrom:           "admin",
			MinTermLength:        2,
			MaxTermLength:        128,
			SingleStrengthOccurs: 4,
		},
		Status: StatusConfig{
			Addr:    "localhost:8474",
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/previewd"
	}
	return os.TempDir() + "/previewd"
}

// Load builds the configuration. path may be empty, in which case only
// defaults and environment overrides apply. A missing file at an explicit
// path is an error; a missing file at the default location is not.
func Load(path string, explicit bool) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
			// Default location, nothing there; run on defaults.
		default:
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.URL == "" {
		return fmt.Errorf("missing required config: server url")
	}
	if cfg.Server.ContentURL == "" {
		return fmt.Errorf("missing required config: content server url")
	}
	if cfg.Server.User == "" || cfg.Server.Password == "" {
		return fmt.Errorf("missing required config: server credentials")
	}
	if cfg.Worker.Passes < 1 {
		return fmt.Errorf("worker passes must be at least 1, got %d", cfg.Worker.Passes)
	}
	return nil
}

// envSpec binds one environment variable to a config field.
type envSpec struct {
	env   string
	apply func(cfg *Config, raw string) error
}

var envSpecs = []envSpec{
	{"PREVIEWD_SERVER_URL", func(c *Config, v string) error { c.Server.URL = v; return nil }},
	{"PREVIEWD_CONTENT_URL", func(c *Config, v string) error { c.Server.ContentURL = v; return nil }},
	{"PREVIEWD_USER", func(c *Config, v string) error { c.Server.User = v; return nil }},
	{"PREVIEWD_PASSWORD", func(c *Config, v string) error { c.Server.Password = v; return nil }},
	{"PREVIEWD_CONVERTER_HOST", func(c *Config, v string) error { c.Converter.Host = v; return nil }},
	{"PREVIEWD_CONVERTER_PORT", func(c *Config, v string) error { return setInt(&c.Converter.Port, v) }},
	{"PREVIEWD_BASE_DIR", func(c *Config, v string) error { c.Worker.BaseDir = v; return nil }},
	{"PREVIEWD_PASSES", func(c *Config, v string) error { return setInt(&c.Worker.Passes, v) }},
	{"PREVIEWD_INTERVAL", func(c *Config, v string) error {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.Worker.Interval = Duration(parsed)
		return nil
	}},
	{"PREVIEWD_POST_TIMEOUT", func(c *Config, v string) error {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.Worker.PostTimeout = Duration(parsed)
		return nil
	}},
	{"PREVIEWD_PARALLELISM", func(c *Config, v string) error { return setInt(&c.Worker.Parallelism, v) }},
	{"PREVIEWD_RECLAIM_OWN", func(c *Config, v string) error { return setBool(&c.Worker.ReclaimOwn, v) }},
	{"PREVIEWD_RENDER_COOKIE_NAME", func(c *Config, v string) error { c.Worker.RenderCookieName = v; return nil }},
	{"PREVIEWD_RENDER_COOKIE_VALUE", func(c *Config, v string) error { c.Worker.RenderCookieValue = v; return nil }},
	{"PREVIEWD_FORCE_TAGGING", func(c *Config, v string) error { return setBool(&c.Tagging.Force, v) }},
	{"PREVIEWD_MAX_TAGS", func(c *Config, v string) error { return setInt(&c.Tagging.MaxTags, v) }},
	{"PREVIEWD_LEXICON_FILE", func(c *Config, v string) error { c.Tagging.LexiconFile = v; return nil }},
	{"PREVIEWD_STATUS_ENABLED", func(c *Config, v string) error { return setBool(&c.Status.Enabled, v) }},
	{"PREVIEWD_STATUS_ADDR", func(c *Config, v string) error { c.Status.Addr = v; return nil }},
	{"PREVIEWD_DATA_DIR", func(c *Config, v string) error { c.Status.DataDir = v; return nil }},
	{"PREVIEWD_LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range envSpecs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		if err := s.apply(cfg, raw); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
		}
	}
}

func setInt(dst *int, raw string) error {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func setBool(dst *bool, raw string) error {
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

