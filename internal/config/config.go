package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
// or "2m". Bare integers are taken as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration value %q", value.Value)
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Identify IdentifyConfig `yaml:"identify"`
	Claim    ClaimConfig    `yaml:"claim"`
	Notify   NotifyConfig   `yaml:"notify"`
	Tokens   TokensConfig   `yaml:"tokens"`
	Health   HealthConfig   `yaml:"health"`
}

type GatewayConfig struct {
	URL           string   `yaml:"url"`
	HelloTimeout  Duration `yaml:"hello_timeout"`
	ResumeWindow  Duration `yaml:"resume_window"`
	MaxReconnects int      `yaml:"max_reconnects"`
}

// IdentifyConfig is the client metadata sent with IDENTIFY and, base64-encoded,
// with every REST mutation.
type IdentifyConfig struct {
	OS      string `yaml:"os"`
	Browser string `yaml:"browser"`
	Device  string `yaml:"device"`
}

type ClaimConfig struct {
	APIBase        string   `yaml:"api_base"`
	Targets        []string `yaml:"targets"`
	Rotate         bool     `yaml:"rotate"`
	StopAfterFirst bool     `yaml:"stop_after_first"`
	Retries        int      `yaml:"retries"`
	Cooldown       Duration `yaml:"cooldown"`
	Ignore         []string `yaml:"ignore"`
}

type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

type TokensConfig struct {
	ValidFile   string `yaml:"valid_file"`
	InvalidFile string `yaml:"invalid_file"`
}

type HealthConfig struct {
	ReportInterval Duration `yaml:"report_interval"`
}

func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			URL:           "wss://gateway.discord.gg/?v=9&encoding=json",
			HelloTimeout:  Duration(20 * time.Second),
			ResumeWindow:  Duration(90 * time.Second),
			MaxReconnects: 10,
		},
		Identify: IdentifyConfig{
			OS:      "linux",
			Browser: "chrome",
		},
		Claim: ClaimConfig{
			APIBase:        "https://discord.com/api/v9",
			StopAfterFirst: true,
			Retries:        3,
			Cooldown:       Duration(30 * time.Second),
		},
		Tokens: TokensConfig{
			ValidFile:   "tokens.txt",
			InvalidFile: "tokens_invalid.txt",
		},
		Health: HealthConfig{
			ReportInterval: Duration(time.Minute),
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url must be set")
	}
	if len(c.Claim.Targets) == 0 {
		return fmt.Errorf("claim.targets must list at least one guild")
	}
	if c.Gateway.MaxReconnects < 0 {
		return fmt.Errorf("gateway.max_reconnects must not be negative")
	}
	if c.Claim.Retries < 0 {
		return fmt.Errorf("claim.retries must not be negative")
	}
	if c.Claim.Cooldown < 0 {
		return fmt.Errorf("claim.cooldown must not be negative")
	}
	return nil
}

// Ignored reports whether a guild is configured to never be raced against.
func (c *ClaimConfig) Ignored(guildID string) bool {
	for _, id := range c.Ignore {
		if id == guildID {
			return true
		}
	}
	return false
}
