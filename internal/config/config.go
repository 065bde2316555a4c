// Application settings for the extractor CLI. Run configs (which platform
// to log into, what to extract) are a separate concern handled in
// runconfig.go; this file covers the operator-tunable knobs.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Config is the root configuration structure for the application.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Store      StoreConfig      `mapstructure:"store"`
}

// ColorConfig defines the color settings for different log levels.
// These are used for console output to make logs more readable.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" json:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" json:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" json:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" json:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" json:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" json:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" json:"fatal" yaml:"fatal"`
}

// LoggerConfig holds all the configuration for the logger. Console output
// always goes to stderr: stdout belongs to the result envelope.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" json:"level" yaml:"level"`
	Format      string      `mapstructure:"format" json:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" json:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" json:"colors" yaml:"colors"`
}

// BrowserConfig holds settings for the automated browser. Headed is the
// default: a human has to see the page to scan the login QR code.
type BrowserConfig struct {
	Headless     bool     `mapstructure:"headless"`
	ExecPath     string   `mapstructure:"exec_path"`
	UserAgent    string   `mapstructure:"user_agent"`
	WindowWidth  int      `mapstructure:"window_width"`
	WindowHeight int      `mapstructure:"window_height"`
	UserDataDir  string   `mapstructure:"user_data_dir"`
	Args         []string `mapstructure:"args"`
}

// ExtractionConfig holds the timing knobs of an extraction run.
type ExtractionConfig struct {
	// LoginTimeout bounds the wait for the human to finish logging in.
	// Zero waits forever.
	LoginTimeout time.Duration `mapstructure:"login_timeout"`
	// PollInterval is how often the login detector re-checks the session.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// SettleDelay is the pause after navigations before reading the page,
	// giving the site's own XHR traffic time to fire.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	// QuietWindow is the network-idle window required before extraction.
	QuietWindow time.Duration `mapstructure:"quiet_window"`
}

// StoreConfig locates the embedded platform-config database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// SetDefaults registers defaults so the binary runs with no config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "amm-extractor")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "red")
	v.SetDefault("logger.colors.panic", "red")
	v.SetDefault("logger.colors.fatal", "red")

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 800)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36")

	v.SetDefault("extraction.login_timeout", 300*time.Second)
	v.SetDefault("extraction.poll_interval", time.Second)
	v.SetDefault("extraction.settle_delay", 3*time.Second)
	v.SetDefault("extraction.quiet_window", 2*time.Second)

	v.SetDefault("store.path", "")
}

// Validate rejects settings the run loop cannot work with.
func (c *Config) Validate() error {
	if c.Extraction.LoginTimeout < 0 {
		return fmt.Errorf("extraction.login_timeout must not be negative")
	}
	if c.Extraction.PollInterval < 0 {
		return fmt.Errorf("extraction.poll_interval must not be negative")
	}
	if c.Browser.WindowWidth < 0 || c.Browser.WindowHeight < 0 {
		return fmt.Errorf("browser window dimensions must not be negative")
	}
	return nil
}

// Load initializes the configuration singleton from Viper.
func Load(v *viper.Viper) error {
	once.Do(func() {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			loadErr = fmt.Errorf("error unmarshaling config: %w", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			loadErr = err
			return
		}
		instance = &cfg
	})
	return loadErr
}

// Set stores a prepared configuration as the singleton. Intended for tests
// and for callers that assemble the config themselves.
func Set(cfg *Config) {
	instance = cfg
}

// Get returns the loaded configuration instance.
func Get() *Config {
	if instance == nil {
		panic("Configuration not initialized. Call config.Load() in the root command.")
	}
	return instance
}
