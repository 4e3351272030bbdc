// Package config loads and validates capture configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. DOMCAPTURE_CAPTURE_THREADS.
const EnvPrefix = "DOMCAPTURE"

var (
	// ErrNoInput is returned when neither a URL nor a URL file was given.
	ErrNoInput = errors.New("input is required: pass a URL or a file of URLs")
	// ErrInvalidViewport is returned for viewports not in WIDTHxHEIGHT form.
	ErrInvalidViewport = errors.New("viewport must be WIDTHxHEIGHT")
)

// Config captures all knobs for a capture run.
type Config struct {
	// Input is a single URL or a path to a newline-delimited URL file.
	Input   string        `mapstructure:"input"`
	Output  OutputConfig  `mapstructure:"output"`
	Capture CaptureConfig `mapstructure:"capture"`
	Browser BrowserConfig `mapstructure:"browser"`
	Probe   ProbeConfig   `mapstructure:"probe"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// OutputConfig controls where run directories are created.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// CaptureConfig governs the worker pool and page timing.
type CaptureConfig struct {
	Threads      int           `mapstructure:"threads"`
	DelaySeconds float64       `mapstructure:"delay_seconds"`
	Politeness   time.Duration `mapstructure:"politeness"`
	PageTimeout  time.Duration `mapstructure:"page_timeout"`
	HostQPS      float64       `mapstructure:"host_qps"`
}

// BrowserConfig configures the headless browser.
type BrowserConfig struct {
	Viewport   string `mapstructure:"viewport"`
	ChromePath string `mapstructure:"chrome_path"`
	UserAgent  string `mapstructure:"user_agent"`
}

// ProbeConfig configures the liveness probe.
type ProbeConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// ServerConfig controls the optional status API.
type ServerConfig struct {
	// Listen is the status API address; empty disables the server.
	Listen string `mapstructure:"listen"`
}

// LoggingConfig toggles zap development features and the log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// Limits enforced by Validate.
const (
	MaxThreads = 64
)

// New returns a Viper instance with defaults and environment binding applied.
// Callers may bind flags onto it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("browser.chrome_path", EnvPrefix+"_BROWSER_CHROME_PATH", "CHROME_PATH")
	setDefaults(v)
	return v
}

// Load reads the optional config file at path into v and decodes a validated
// Config. Precedence is flag > env > file > default.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = New()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Input = strings.TrimSpace(cfg.Input)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("input", "")
	v.SetDefault("output.dir", "screenshots")
	v.SetDefault("capture.threads", 3)
	v.SetDefault("capture.delay_seconds", 3)
	v.SetDefault("capture.politeness", "1s")
	v.SetDefault("capture.page_timeout", "25s")
	v.SetDefault("capture.host_qps", 0)
	v.SetDefault("browser.viewport", "1366x768")
	v.SetDefault("browser.chrome_path", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("probe.timeout", "5s")
	v.SetDefault("server.listen", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.file", "domcapture.log")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Input == "" {
		return ErrNoInput
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return errors.New("output.dir must be set")
	}
	if c.Capture.Threads <= 0 || c.Capture.Threads > MaxThreads {
		return fmt.Errorf("capture.threads must be between 1 and %d", MaxThreads)
	}
	if c.Capture.DelaySeconds < 0 {
		return errors.New("capture.delay_seconds must be >= 0")
	}
	if c.Capture.Politeness < 0 {
		return errors.New("capture.politeness must be >= 0")
	}
	if c.Capture.PageTimeout <= 0 {
		return errors.New("capture.page_timeout must be > 0")
	}
	if c.Capture.HostQPS < 0 {
		return errors.New("capture.host_qps must be >= 0")
	}
	if c.Probe.Timeout <= 0 {
		return errors.New("probe.timeout must be > 0")
	}
	if _, _, err := ParseViewport(c.Browser.Viewport); err != nil {
		return fmt.Errorf("browser.viewport: %w", err)
	}
	return nil
}

// SettleDelay converts the configured delay to a duration.
func (c CaptureConfig) SettleDelay() time.Duration {
	return time.Duration(c.DelaySeconds * float64(time.Second))
}

// Size returns the parsed viewport. It assumes Validate passed.
func (c BrowserConfig) Size() (width, height int) {
	width, height, _ = ParseViewport(c.Viewport)
	return width, height
}

// ParseViewport parses "WIDTHxHEIGHT" into positive dimensions.
func ParseViewport(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidViewport, s)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidViewport, s)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidViewport, s)
	}
	return width, height, nil
}
