package config

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Google  GoogleConfig  `yaml:"google" mapstructure:"google"`
	Collect CollectConfig `yaml:"collect" mapstructure:"collect"`
	Assets  AssetsConfig  `yaml:"assets" mapstructure:"assets"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// GoogleConfig holds Google Maps web service credentials and limits.
type GoogleConfig struct {
	APIKey            string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// CollectConfig configures the store fetch pipeline.
type CollectConfig struct {
	Output         string        `yaml:"output" mapstructure:"output"`
	Catalog        string        `yaml:"catalog" mapstructure:"catalog"`
	Queries        []string      `yaml:"queries" mapstructure:"queries"`
	PageTokenDelay time.Duration `yaml:"page_token_delay" mapstructure:"page_token_delay"`
	CityDelay      time.Duration `yaml:"city_delay" mapstructure:"city_delay"`
	StateDelay     time.Duration `yaml:"state_delay" mapstructure:"state_delay"`
	DetailCacheTTL time.Duration `yaml:"detail_cache_ttl" mapstructure:"detail_cache_ttl"`
	Merge          bool          `yaml:"merge" mapstructure:"merge"`
}

// AssetsConfig configures the image-asset stub generator.
type AssetsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultQueries are the text-search templates issued for every city.
var DefaultQueries = []string{
	"thrift store",
	"secondhand store",
	"consignment store",
	"goodwill",
	"salvation army store",
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STORECOLLECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("google.api_key", "STORECOLLECT_GOOGLE_API_KEY", "GOOGLE_API_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind api key")
	}

	// Defaults
	v.SetDefault("google.base_url", "https://maps.googleapis.com")
	v.SetDefault("google.requests_per_second", 10.0)
	v.SetDefault("collect.output", "Resources/stores.json")
	v.SetDefault("collect.catalog", "")
	v.SetDefault("collect.queries", DefaultQueries)
	v.SetDefault("collect.page_token_delay", 2*time.Second)
	v.SetDefault("collect.city_delay", 2*time.Second)
	v.SetDefault("collect.state_delay", 5*time.Second)
	v.SetDefault("collect.detail_cache_ttl", time.Hour)
	v.SetDefault("collect.merge", false)
	v.SetDefault("assets.dir", "Resources/Assets.xcassets/Cities")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// loadDotEnv exports the variables of a dotenv file that are not already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return eris.Wrapf(err, "config: load %s", path)
	}
	return nil
}

// Validate checks the values a command needs before it runs.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "fetch":
		if c.Google.APIKey == "" {
			errs = append(errs, "google.api_key is required (set GOOGLE_API_KEY)")
		}
		if c.Collect.Output == "" {
			errs = append(errs, "collect.output is required")
		}
		if len(c.Collect.Queries) == 0 {
			errs = append(errs, "collect.queries must not be empty")
		}
		if c.Collect.PageTokenDelay < 0 || c.Collect.CityDelay < 0 || c.Collect.StateDelay < 0 {
			errs = append(errs, "collect delays must be >= 0")
		}
	case "probe":
		if c.Google.APIKey == "" {
			errs = append(errs, "google.api_key is required (set GOOGLE_API_KEY)")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Collect.Output == "" {
			errs = append(errs, "collect.output is required")
		}
	case "assets":
		if c.Assets.Dir == "" {
			errs = append(errs, "assets.dir is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// MaskedKey returns the API key with everything but the last 8 characters hidden.
func (g GoogleConfig) MaskedKey() string {
	if g.APIKey == "" {
		return "None"
	}
	if len(g.APIKey) <= 8 {
		return g.APIKey
	}
	return strings.Repeat("*", len(g.APIKey)-8) + g.APIKey[len(g.APIKey)-8:]
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
