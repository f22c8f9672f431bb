package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/go-playground/validator.v9"
	"gopkg.in/yaml.v3"
)

const (
	BackendVeSync        = "vesync"
	BackendHomeAssistant = "homeassistant"
	BackendTuya          = "tuya"
)

type Config struct {
	Backend       string              `yaml:"backend" default:"vesync" validate:"oneof=vesync homeassistant tuya"`
	Plug          PlugConfig          `yaml:"plug"`
	VeSync        VeSyncConfig        `yaml:"vesync"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Tuya          TuyaConfig          `yaml:"tuya"`
	HTTP          HTTPConfig          `yaml:"http"`
	Schedule      []ScheduleEntry     `yaml:"schedule" validate:"dive"`
	Pushover      PushoverConfig      `yaml:"pushover"`
	Retry         RetryConfig         `yaml:"retry"`
	Log           LogConfig           `yaml:"log"`
}

type PlugConfig struct {
	ID string `yaml:"id" validate:"required"`
}

type VeSyncConfig struct {
	Account  string `yaml:"account"`
	Key      string `yaml:"key"`
	BaseURL  string `yaml:"base_url" default:"https://smartapi.vesync.com"`
	TimeZone string `yaml:"time_zone" default:"America/New_York"`
}

type HomeAssistantConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

type TuyaConfig struct {
	ClientID string `yaml:"client_id"`
	Secret   string `yaml:"secret"`
	Region   string `yaml:"region" default:"us" validate:"oneof=us eu cn in"`
	// BaseURL overrides the regional endpoint.
	BaseURL string `yaml:"base_url"`
}

type HTTPConfig struct {
	Addr       string `yaml:"addr" default:":8080"`
	AuthToken  string `yaml:"auth_token"`
	RateLimit  int    `yaml:"rate_limit" default:"30" validate:"min=1"`
	RateWindow string `yaml:"rate_window" default:"1m"`
	// BehindProxy trusts X-Forwarded-For for rate limiting.
	BehindProxy bool `yaml:"behind_proxy"`
}

type ScheduleEntry struct {
	Cron  string `yaml:"cron" validate:"required"`
	Power string `yaml:"power" validate:"oneof=on off"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Enabled bool   `yaml:"enabled"`
}

type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts" default:"3" validate:"min=1,max=10"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references against the environment, then decodes,
// defaults and validates the document.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("setting defaults: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Identity and Secret are the login credentials for the selected backend.
func (c *Config) Identity() string {
	switch c.Backend {
	case BackendHomeAssistant:
		return c.HomeAssistant.BaseURL
	case BackendTuya:
		return c.Tuya.ClientID
	default:
		return c.VeSync.Account
	}
}

func (c *Config) Secret() string {
	switch c.Backend {
	case BackendHomeAssistant:
		return c.HomeAssistant.Token
	case BackendTuya:
		return c.Tuya.Secret
	default:
		return c.VeSync.Key
	}
}

func (c *Config) RateWindow() time.Duration {
	d, err := time.ParseDuration(c.HTTP.RateWindow)
	if err != nil {
		return time.Minute
	}
	return d
}

func (c *Config) validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q", e.Namespace(), e.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Backend {
	case BackendVeSync:
		if c.VeSync.Account == "" || c.VeSync.Key == "" {
			return fmt.Errorf("invalid config: vesync.account and vesync.key are required")
		}
	case BackendHomeAssistant:
		if c.HomeAssistant.BaseURL == "" || c.HomeAssistant.Token == "" {
			return fmt.Errorf("invalid config: homeassistant.base_url and homeassistant.token are required")
		}
	case BackendTuya:
		if c.Tuya.ClientID == "" || c.Tuya.Secret == "" {
			return fmt.Errorf("invalid config: tuya.client_id and tuya.secret are required")
		}
	}

	if c.Pushover.Enabled && (c.Pushover.Token == "" || c.Pushover.UserKey == "") {
		return fmt.Errorf("invalid config: pushover.token and pushover.user_key are required when enabled")
	}

	if _, err := time.ParseDuration(c.HTTP.RateWindow); err != nil {
		return fmt.Errorf("invalid config: http.rate_window: %w", err)
	}

	return nil
}
