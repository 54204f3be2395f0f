package model

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MailConfig holds the IMAP account and the folders to watch.
type MailConfig struct {
	// Address is the mailbox login, e.g. someone@gmail.com.
	Address string `mapstructure:"address" yaml:"address"`

	// Password is the app password used for IMAP login.
	Password string `mapstructure:"password" yaml:"password"`

	// Addr is the IMAP server host:port.
	Addr string `mapstructure:"addr" yaml:"addr"`

	// TLS selects implicit TLS. When false the connection is plaintext,
	// which is only useful against a local test server.
	TLS bool `mapstructure:"tls" yaml:"tls"`

	// Folders are checked in order on every cycle. Provider-specific
	// names such as "[Gmail]/Spam" belong here rather than in code.
	Folders []string `mapstructure:"folders" yaml:"folders"`
}

// AIConfig holds settings for the summarization endpoint.
type AIConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// TelegramConfig holds the bot credentials and destination chat.
type TelegramConfig struct {
	Token   string `mapstructure:"token" yaml:"token"`
	ChatID  string `mapstructure:"chat_id" yaml:"chat_id"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// PollConfig controls the sleep between mailbox cycles.
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// AppConfig is the top-level application configuration. It is loaded
// once at startup and passed by value to each component.
type AppConfig struct {
	// Senders are case-insensitive substrings matched against From.
	Senders []string `mapstructure:"senders" yaml:"senders"`

	Mail     MailConfig     `mapstructure:"mail" yaml:"mail"`
	AI       AIConfig       `mapstructure:"ai" yaml:"ai"`
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
	Poll     PollConfig     `mapstructure:"poll" yaml:"poll"`

	// StagingDir receives attachment files until they are delivered.
	StagingDir string `mapstructure:"staging_dir" yaml:"staging_dir"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// MetricsAddr enables the Prometheus listener when non-empty.
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// SecretSource looks up a credential by name. It is consulted for
// secrets that neither the environment nor the config file provide.
type SecretSource interface {
	Get(key string) (string, error)
}

// Defaults used when neither the config file nor the environment set a key.
const (
	DefaultIMAPAddr        = "imap.gmail.com:993"
	DefaultAIModel         = "gemini-2.0-flash"
	DefaultAIBaseURL       = "https://generativelanguage.googleapis.com/v1beta"
	DefaultTelegramBaseURL = "https://api.telegram.org"
	DefaultPollInterval    = 10 * time.Minute
	DefaultStagingDir      = "temp_files"
)

// DefaultFolders are the inbox plus Gmail's spam folder.
var DefaultFolders = []string{"INBOX", "[Gmail]/Spam"}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"senders":           "PROFESSORS",
	"mail.address":      "GMAIL_EMAIL",
	"mail.password":     "GMAIL_APP_PASSWORD",
	"mail.addr":         "MAIL_IMAP_ADDR",
	"mail.tls":          "MAIL_TLS",
	"mail.folders":      "MAIL_FOLDERS",
	"ai.api_key":        "GEMINI_API_KEY",
	"ai.model":          "GEMINI_MODEL",
	"ai.base_url":       "GEMINI_BASE_URL",
	"telegram.token":    "TELEGRAM_BOT_TOKEN",
	"telegram.chat_id":  "TELEGRAM_CHAT_ID",
	"telegram.base_url": "TELEGRAM_BASE_URL",
	"poll.interval":     "POLL_INTERVAL",
	"staging_dir":       "STAGING_DIR",
	"log_level":         "LOG_LEVEL",
	"metrics_addr":      "METRICS_ADDR",
}

// ConfigPathEnv names the optional YAML config file.
const ConfigPathEnv = "MAIL_DIGEST_CONFIG"

// ConfigPath returns the config file path from the environment, or "".
func ConfigPath() string {
	return os.Getenv(ConfigPathEnv)
}

// LoadConfig reads configuration from the optional YAML file at path,
// then overlays environment variables. Secrets still empty afterwards
// are looked up in secrets when it is non-nil. A missing required value
// is an error naming every absent environment variable.
func LoadConfig(path string, secrets SecretSource) (*AppConfig, error) {
	v := viper.New()

	v.SetDefault("mail.addr", DefaultIMAPAddr)
	v.SetDefault("mail.tls", true)
	v.SetDefault("mail.folders", DefaultFolders)
	v.SetDefault("ai.model", DefaultAIModel)
	v.SetDefault("ai.base_url", DefaultAIBaseURL)
	v.SetDefault("telegram.base_url", DefaultTelegramBaseURL)
	v.SetDefault("poll.interval", DefaultPollInterval)
	v.SetDefault("staging_dir", DefaultStagingDir)
	v.SetDefault("log_level", "info")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s to %s: %w", key, env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(*os.PathError); !ok {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					return nil, fmt.Errorf("reading config %s: %w", path, err)
				}
			}
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Senders = splitList(cfg.Senders)
	cfg.Mail.Folders = splitList(cfg.Mail.Folders)
	if len(cfg.Mail.Folders) == 0 {
		cfg.Mail.Folders = append([]string(nil), DefaultFolders...)
	}
	if cfg.Poll.Interval <= 0 {
		cfg.Poll.Interval = DefaultPollInterval
	}

	if secrets != nil {
		fillSecret(secrets, "GMAIL_APP_PASSWORD", &cfg.Mail.Password)
		fillSecret(secrets, "GEMINI_API_KEY", &cfg.AI.APIKey)
		fillSecret(secrets, "TELEGRAM_BOT_TOKEN", &cfg.Telegram.Token)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every required setting that is empty.
func (c *AppConfig) Validate() error {
	var missing []string

	if len(c.Senders) == 0 {
		missing = append(missing, "PROFESSORS")
	}
	if c.AI.APIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.Telegram.Token == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.Telegram.ChatID == "" {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if c.Mail.Address == "" {
		missing = append(missing, "GMAIL_EMAIL")
	}
	if c.Mail.Password == "" {
		missing = append(missing, "GMAIL_APP_PASSWORD")
	}

	if len(missing) > 0 {
		return fmt.Errorf(
			"missing required environment variables: %s",
			strings.Join(missing, ", "),
		)
	}
	return nil
}

// fillSecret sets *dst from secrets when it is still empty. Lookup
// failures leave it empty so Validate reports the key.
func fillSecret(secrets SecretSource, key string, dst *string) {
	if *dst != "" {
		return
	}
	if val, err := secrets.Get(key); err == nil {
		*dst = val
	}
}

// splitList flattens comma-separated entries, trims them, and drops
// empties. Viper hands env values over as a single element.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
