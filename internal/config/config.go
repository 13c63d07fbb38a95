// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix is the prefix for environment overrides of config keys (AUTOLOGIN_BROWSER_HEADLESS, ...).
const EnvPrefix = "AUTOLOGIN"

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Network  NetworkConfig  `mapstructure:"network" yaml:"network"`
	AtoZ     AtoZConfig     `mapstructure:"atoz" yaml:"atoz"`
	Proton   ProtonConfig   `mapstructure:"proton" yaml:"proton"`
	Gmail    GmailConfig    `mapstructure:"gmail" yaml:"gmail"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	// Color colors the level name of console output.
	Color       bool   `mapstructure:"color" yaml:"color"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the automated browser process.
type BrowserConfig struct {
	// BinaryPath points at a Chromium based browser. Empty means chromedp's lookup.
	BinaryPath      string        `mapstructure:"binary_path" yaml:"binary_path"`
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserDataDir     string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args            []string      `mapstructure:"args" yaml:"args"`
	ElementTimeout  time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	URLTimeout      time.Duration `mapstructure:"url_timeout" yaml:"url_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	StartupTimeout  time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
	Persona         PersonaConfig `mapstructure:"persona" yaml:"persona"`
}

// PersonaConfig overrides what a tab reports about the browser. Empty fields
// keep the browser's own values. Languages only apply together with UserAgent.
type PersonaConfig struct {
	UserAgent     string   `mapstructure:"user_agent" yaml:"user_agent"`
	Languages     []string `mapstructure:"languages" yaml:"languages"`
	Timezone      string   `mapstructure:"timezone" yaml:"timezone"`
	Locale        string   `mapstructure:"locale" yaml:"locale"`
	HideWebdriver bool     `mapstructure:"hide_webdriver" yaml:"hide_webdriver"`
}

// NetworkConfig tunes page loading.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// AtoZConfig configures the AtoZ portal login.
type AtoZConfig struct {
	Username          string        `mapstructure:"username" yaml:"-"`
	Password          string        `mapstructure:"password" yaml:"-"`
	VerificationEmail string        `mapstructure:"verification_email" yaml:"verification_email"`
	CookiesFile       string        `mapstructure:"cookies_file" yaml:"cookies_file"`
	SaveCookies       bool          `mapstructure:"save_cookies" yaml:"save_cookies"`
	CodeSource        string        `mapstructure:"code_source" yaml:"code_source"`
	CodeSender        string        `mapstructure:"code_sender" yaml:"code_sender"`
	CodeTimeout       time.Duration `mapstructure:"code_timeout" yaml:"code_timeout"`
	Selectors         AtoZSelectors `mapstructure:"selectors" yaml:"selectors"`
}

// AtoZSelectors holds the XPaths of the verification step, which are
// overridable because the page markup is not ours.
type AtoZSelectors struct {
	CodeInput    string `mapstructure:"code_input" yaml:"code_input"`
	VerifyButton string `mapstructure:"verify_button" yaml:"verify_button"`
}

// ProtonConfig configures the ProtonMail web client.
type ProtonConfig struct {
	Email       string `mapstructure:"email" yaml:"-"`
	Password    string `mapstructure:"password" yaml:"-"`
	CookiesFile string `mapstructure:"cookies_file" yaml:"cookies_file"`
}

// GmailConfig configures the Gmail API client.
type GmailConfig struct {
	CredentialsFile string   `mapstructure:"credentials_file" yaml:"credentials_file"`
	TokenFile       string   `mapstructure:"token_file" yaml:"token_file"`
	Scopes          []string `mapstructure:"scopes" yaml:"scopes"`
	SaveToken       bool     `mapstructure:"save_token" yaml:"save_token"`
}

// ScheduleConfig configures the login scheduler.
type ScheduleConfig struct {
	RulesFile  string        `mapstructure:"rules_file" yaml:"rules_file"`
	Interval   time.Duration `mapstructure:"interval" yaml:"interval"`
	Services   []string      `mapstructure:"services" yaml:"services"`
	WatchRules bool          `mapstructure:"watch_rules" yaml:"watch_rules"`
}

// DatabaseConfig holds the optional run history database connection.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// Enabled reports whether run history should be recorded.
func (d DatabaseConfig) Enabled() bool { return d.URL != "" }

// Code sources for the AtoZ verification step.
const (
	CodeSourcePrompt = "prompt"
	CodeSourceGmail  = "gmail"
	CodeSourceProton = "proton"
)

// Service names accepted in schedule.services.
const (
	ServiceAtoZ   = "atoz"
	ServiceProton = "proton"
)

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "autologin")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.color", true)

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.element_timeout", "10s")
	v.SetDefault("browser.url_timeout", "10s")
	v.SetDefault("browser.poll_interval", "500ms")
	v.SetDefault("browser.startup_timeout", "30s")
	v.SetDefault("browser.persona.hide_webdriver", true)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "60s")

	// -- AtoZ --
	v.SetDefault("atoz.cookies_file", "~/.config/autologin/atoz_cookies.json")
	v.SetDefault("atoz.save_cookies", true)
	v.SetDefault("atoz.code_source", CodeSourcePrompt)
	v.SetDefault("atoz.code_sender", "no-reply@amazon.com")
	v.SetDefault("atoz.code_timeout", "3m")
	v.SetDefault("atoz.selectors.code_input", `//*[@id="code"]`)
	v.SetDefault("atoz.selectors.verify_button", `//*[@id="buttonVerifyIdentity"]`)

	// -- Proton --
	v.SetDefault("proton.cookies_file", "~/.config/autologin/proton_cookies.json")

	// -- Gmail --
	v.SetDefault("gmail.credentials_file", "credentials.json")
	v.SetDefault("gmail.token_file", "token.json")
	v.SetDefault("gmail.scopes", []string{"https://www.googleapis.com/auth/gmail.readonly"})
	v.SetDefault("gmail.save_token", true)

	// -- Schedule --
	v.SetDefault("schedule.rules_file", "~/.config/autologin/rules.yaml")
	v.SetDefault("schedule.interval", "15m")
	v.SetDefault("schedule.services", []string{ServiceAtoZ})
	v.SetDefault("schedule.watch_rules", true)
}

// BindEnv maps the credential variables used by the login scripts onto config keys.
func BindEnv(v *viper.Viper) {
	_ = v.BindEnv("atoz.username", "AMAZON_USERNAME")
	_ = v.BindEnv("atoz.password", "AMAZON_PASSWORD")
	_ = v.BindEnv("atoz.verification_email", "AMAZON_VERIFICATION_EMAIL")
	_ = v.BindEnv("proton.email", "EMAIL")
	_ = v.BindEnv("proton.password", "PASSWORD")
	_ = v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	BindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewViper returns a viper instance with defaults, env handling and, when
// present, the config file applied.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/autologin")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return v, nil
}

// LoadDotEnv loads KEY=value pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("expand env file path: %w", err)
	}
	if err := gotenv.Load(expanded); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", expanded, err)
	}
	return nil
}

func (c *Config) expandPaths() error {
	paths := []*string{
		&c.Browser.BinaryPath,
		&c.Browser.UserDataDir,
		&c.AtoZ.CookiesFile,
		&c.Proton.CookiesFile,
		&c.Gmail.CredentialsFile,
		&c.Gmail.TokenFile,
		&c.Schedule.RulesFile,
		&c.Logger.LogFile,
	}
	for _, p := range paths {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	var errs []error
	if c.Browser.ElementTimeout <= 0 {
		errs = append(errs, fmt.Errorf("browser.element_timeout must be a positive duration"))
	}
	if c.Browser.URLTimeout <= 0 {
		errs = append(errs, fmt.Errorf("browser.url_timeout must be a positive duration"))
	}
	if c.Browser.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("browser.poll_interval must be a positive duration"))
	}
	switch c.AtoZ.CodeSource {
	case CodeSourcePrompt, CodeSourceGmail, CodeSourceProton:
	default:
		errs = append(errs, fmt.Errorf("atoz.code_source must be one of prompt, gmail, proton (got %q)", c.AtoZ.CodeSource))
	}
	if c.Schedule.Interval <= 0 {
		errs = append(errs, fmt.Errorf("schedule.interval must be a positive duration"))
	}
	for _, s := range c.Schedule.Services {
		if s != ServiceAtoZ && s != ServiceProton {
			errs = append(errs, fmt.Errorf("schedule.services: unknown service %q", s))
		}
	}
	return errors.Join(errs...)
}
