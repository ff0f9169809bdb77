// Package config loads and validates collector configuration from a YAML
// settings file, an optional dotenv credentials file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration tree.
type Config struct {
	Paths       PathsConfig `yaml:"paths"`
	Site        SiteConfig  `yaml:"site"`
	MetricsAddr string      `yaml:"metrics_addr"`
	Verbose     bool        `yaml:"verbose"`
}

// PathsConfig locates the run inputs and outputs.
type PathsConfig struct {
	InputCSV        string `yaml:"input_csv"`
	OutputDir       string `yaml:"output_dir"`
	MessageTemplate string `yaml:"message_template"`
}

// SiteConfig describes the wholesale site and how to talk to it.
type SiteConfig struct {
	BaseURL             string          `yaml:"base_url"`
	LoginURL            string          `yaml:"login_url"`
	Engine              string          `yaml:"engine"` // session or colly
	Selectors           SelectorConfig  `yaml:"selectors"`
	Labels              LabelConfig     `yaml:"labels"`
	LoginForm           LoginFormConfig `yaml:"login_form"`
	RequestDelaySeconds float64         `yaml:"request_delay_seconds"`
	TimeoutSeconds      float64         `yaml:"timeout_seconds"`
	UserAgent           string          `yaml:"user_agent"`
	Username            string          `yaml:"username"`
	Password            string          `yaml:"password"`
}

// SelectorConfig holds the CSS selectors for per-field extraction.
type SelectorConfig struct {
	ProductName  string `yaml:"product_name"`
	Price        string `yaml:"price"`
	DetailImages string `yaml:"detail_images"`
}

// LabelConfig holds the <th> header labels used for table-driven fields.
type LabelConfig struct {
	Brand  string `yaml:"brand"`
	Colors string `yaml:"colors"`
	Sizes  string `yaml:"sizes"`
}

// LoginFormConfig names the login form fields posted on authentication.
type LoginFormConfig struct {
	IDField string `yaml:"id_field"`
	PWField string `yaml:"pw_field"`
}

// Delay is the politeness pause between product fetches.
func (s SiteConfig) Delay() time.Duration {
	return time.Duration(s.RequestDelaySeconds * float64(time.Second))
}

// Timeout is the per-request HTTP timeout.
func (s SiteConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds * float64(time.Second))
}

// Engine names accepted by SiteConfig.Engine.
const (
	EngineSession = "session"
	EngineColly   = "colly"
)

// DefaultConfig returns the baseline configuration before any overlays.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			OutputDir:       "output",
			MessageTemplate: "templates/message_template.txt",
		},
		Site: SiteConfig{
			Engine: EngineSession,
			Labels: LabelConfig{
				Brand:  "브랜드",
				Colors: "색상",
				Sizes:  "사이즈",
			},
			LoginForm: LoginFormConfig{
				IDField: "mb_id",
				PWField: "mb_password",
			},
			RequestDelaySeconds: 1.0,
			TimeoutSeconds:      15.0,
			UserAgent:           "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		},
	}
}

// Load reads the YAML settings file over the defaults. A missing file is
// not an error; the defaults plus environment overrides still apply.
func Load(settingsPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(settingsPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read settings %q: %w", settingsPath, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse settings %q: %w", settingsPath, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadCredentials layers a dotenv secrets file into the process
// environment without clobbering variables already set, then re-applies
// the environment overrides. A missing file is ignored.
func (c *Config) LoadCredentials(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load credentials %q: %w", path, err)
	}
	c.applyEnv()
	return nil
}

func (c *Config) applyEnv() {
	if v, ok := EnvString("WHOLESALE_USERNAME"); ok {
		c.Site.Username = v
	}
	if v, ok := EnvString("WHOLESALE_PASSWORD"); ok {
		c.Site.Password = v
	}
	if v, ok := EnvString("WHOLESALE_INPUT_CSV"); ok {
		c.Paths.InputCSV = v
	}
	if v, ok := EnvString("WHOLESALE_OUTPUT_DIR"); ok {
		c.Paths.OutputDir = v
	}
	if v, ok, err := EnvInt("WHOLESALE_TIMEOUT_SECONDS"); err != nil {
		slog.Warn("ignoring invalid WHOLESALE_TIMEOUT_SECONDS", slog.Any("error", err))
	} else if ok {
		c.Site.TimeoutSeconds = float64(v)
	}
	if v, ok := EnvString("WHOLESALE_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site base URL cannot be empty")
	}
	parsed, err := url.Parse(c.Site.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid site base URL: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("site base URL must include a host")
	}
	if c.Site.Engine != EngineSession && c.Site.Engine != EngineColly {
		return fmt.Errorf("site engine must be %s or %s", EngineSession, EngineColly)
	}
	if c.Site.RequestDelaySeconds < 0 {
		return fmt.Errorf("request delay cannot be negative")
	}
	if c.Site.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Site.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Paths.InputCSV == "" {
		return fmt.Errorf("input CSV path cannot be empty")
	}
	if c.Paths.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	return nil
}

// EnvString returns the named environment variable and whether it is set.
func EnvString(name string) (string, bool) {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses the named environment variable as an integer.
func EnvInt(name string) (int, bool, error) {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", name, err)
	}
	return parsed, true, nil
}
