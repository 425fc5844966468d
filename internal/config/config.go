// Package config loads the ZodiacBot service configuration. Values are
// layered: built-in defaults, then the YAML file, then a .env file, then the
// process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the config path used when none is given.
const DefaultConfigFile = "zodiacbot.yaml"

// DefaultDotEnvFile is the optional dotenv file read next to the binary.
const DefaultDotEnvFile = ".env"

// EnvPrefix prefixes every structured environment override.
const EnvPrefix = "ZODIAC_"

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Auth      AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	Storage   StorageConfig   `yaml:"storage" envPrefix:"STORAGE_"`
	LLM       LLMConfig       `yaml:"llm" envPrefix:"LLM_"`
	Payment   PaymentConfig   `yaml:"payment" envPrefix:"PAYMENT_"`
	Locale    string          `yaml:"locale" env:"LOCALE"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"OTEL_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// AuthConfig holds the shared secret callers present in X-API-Key.
type AuthConfig struct {
	APIKey string `yaml:"api_key" env:"API_KEY"`
}

// StorageConfig selects and locates the store.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	Path   string `yaml:"path" env:"PATH"`
}

// LLMConfig configures the upstream text generator.
type LLMConfig struct {
	BaseURL      string        `yaml:"base_url" env:"BASE_URL"`
	APIKey       string        `yaml:"api_key" env:"API_KEY"`
	Model        string        `yaml:"model" env:"MODEL"`
	MaxTokens    int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
	GateInterval time.Duration `yaml:"gate_interval" env:"GATE_INTERVAL"`
}

// PaymentConfig configures the payment gateway and plan prices.
type PaymentConfig struct {
	BaseURL      string        `yaml:"base_url" env:"BASE_URL"`
	ShopID       string        `yaml:"shop_id" env:"SHOP_ID"`
	SecretKey    string        `yaml:"secret_key" env:"SECRET_KEY"`
	ReturnURL    string        `yaml:"return_url" env:"RETURN_URL"`
	Currency     string        `yaml:"currency" env:"CURRENCY"`
	MonthlyPrice string        `yaml:"monthly_price" env:"MONTHLY_PRICE"`
	AnnualPrice  string        `yaml:"annual_price" env:"ANNUAL_PRICE"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// LogConfig controls log verbosity.
type LogConfig struct {
	Verbose bool `yaml:"verbose" env:"VERBOSE"`
}

// legacyEnv holds the unprefixed variable names earlier deployments used.
type legacyEnv struct {
	APIKey    string `env:"API_KEY"`
	OpenAIKey string `env:"OPENAI_API_KEY"`
	ShopID    string `env:"YUKASSA_SHOP_ID"`
	SecretKey string `env:"YUKASSA_SECRET_KEY"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Path:   "zodiacbot.db",
		},
		LLM: LLMConfig{
			BaseURL:      "https://api.proxyapi.ru/openai/v1",
			Model:        "gpt-4o",
			MaxTokens:    700,
			Timeout:      30 * time.Second,
			GateInterval: 5 * time.Second,
		},
		Payment: PaymentConfig{
			BaseURL:      "https://api.yookassa.ru",
			ReturnURL:    "https://zodiacbot.example/payment/success",
			Currency:     "RUB",
			MonthlyPrice: "500.00",
			AnnualPrice:  "5000.00",
			Timeout:      15 * time.Second,
		},
		Locale: "ru",
		Telemetry: TelemetryConfig{
			ServiceName: "zodiacbot",
		},
	}
}

// Load reads path (missing file means defaults), the default .env file,
// and the process environment.
func Load(path string) (*Config, error) {
	return LoadFrom(path, DefaultDotEnvFile, environ())
}

// LoadFrom is Load with explicit sources. Variables in environ win over
// those in the dotenv file.
func LoadFrom(path, dotenvPath string, environ map[string]string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	vars := map[string]string{}
	if dotenvPath != "" {
		fromFile, err := godotenv.Read(dotenvPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", dotenvPath, err)
		}
		for k, v := range fromFile {
			vars[k] = v
		}
	}
	for k, v := range environ {
		vars[k] = v
	}

	var legacy legacyEnv
	if err := env.ParseWithOptions(&legacy, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	legacy.apply(cfg)

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix, Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l legacyEnv) apply(cfg *Config) {
	if l.APIKey != "" {
		cfg.Auth.APIKey = l.APIKey
	}
	if l.OpenAIKey != "" {
		cfg.LLM.APIKey = l.OpenAIKey
	}
	if l.ShopID != "" {
		cfg.Payment.ShopID = l.ShopID
	}
	if l.SecretKey != "" {
		cfg.Payment.SecretKey = l.SecretKey
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Auth.APIKey) == "":
		return fmt.Errorf("auth.api_key is required")
	case c.Storage.Driver != DriverSQLite && c.Storage.Driver != DriverMemory:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", DriverSQLite, DriverMemory, c.Storage.Driver)
	case c.Storage.Driver == DriverSQLite && strings.TrimSpace(c.Storage.Path) == "":
		return fmt.Errorf("storage.path is required for the sqlite driver")
	case c.LLM.MaxTokens <= 0:
		return fmt.Errorf("llm.max_tokens must be positive")
	case c.LLM.Timeout <= 0:
		return fmt.Errorf("llm.timeout must be positive")
	case c.LLM.GateInterval < 0:
		return fmt.Errorf("llm.gate_interval must not be negative")
	case c.Payment.Timeout <= 0:
		return fmt.Errorf("payment.timeout must be positive")
	case c.Locale == "":
		return fmt.Errorf("locale is required")
	}
	return nil
}

func environ() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}
