package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	PolicyDrop       = "drop"
	PolicyDisconnect = "disconnect"
)

type Config struct {
	Port    string `yaml:"port"`
	KeyPath string `yaml:"keyPath"`
	Cipher  string `yaml:"cipher"`

	// ExposeKey enables GET /get_key. Demo only.
	ExposeKey bool `yaml:"exposeKey"`

	MaxBodyBytes     int64  `yaml:"maxBodyBytes"`
	MaxChunkBytes    int64  `yaml:"maxChunkBytes"`
	SendQueueSize    int    `yaml:"sendQueueSize"`
	SlowClientPolicy string `yaml:"slowClientPolicy"`

	RateLimit float64 `yaml:"rateLimit"`
	RateBurst int     `yaml:"rateBurst"`

	WriteTimeout time.Duration `yaml:"writeTimeout"`
	PingInterval time.Duration `yaml:"pingInterval"`

	StaticDir      string   `yaml:"staticDir"`
	LogLevel       string   `yaml:"logLevel"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

func Default() *Config {
	return &Config{
		Port:             "3000",
		KeyPath:          "secret.key",
		Cipher:           "aes-256-gcm",
		ExposeKey:        true,
		MaxBodyBytes:     200 << 20,
		MaxChunkBytes:    16 << 20,
		SendQueueSize:    64,
		SlowClientPolicy: PolicyDrop,
		RateLimit:        10,
		RateBurst:        20,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		LogLevel:         "info",
		AllowedOrigins:   []string{"*"},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv is Load without a config file.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv("CONFIG_FILE"))
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.KeyPath = getEnv("KEY_PATH", c.KeyPath)
	c.Cipher = getEnv("CIPHER", c.Cipher)
	c.ExposeKey = getEnvAsBool("EXPOSE_KEY", c.ExposeKey)
	c.MaxBodyBytes = getEnvAsInt64("MAX_BODY_BYTES", c.MaxBodyBytes)
	c.MaxChunkBytes = getEnvAsInt64("MAX_CHUNK_BYTES", c.MaxChunkBytes)
	c.SendQueueSize = getEnvAsInt("SEND_QUEUE_SIZE", c.SendQueueSize)
	c.SlowClientPolicy = getEnv("SLOW_CLIENT_POLICY", c.SlowClientPolicy)
	c.RateLimit = getEnvAsFloat("RATE_LIMIT", c.RateLimit)
	c.RateBurst = getEnvAsInt("RATE_BURST", c.RateBurst)
	c.WriteTimeout = getEnvAsDuration("WRITE_TIMEOUT", c.WriteTimeout)
	c.PingInterval = getEnvAsDuration("PING_INTERVAL", c.PingInterval)
	c.StaticDir = getEnv("STATIC_DIR", c.StaticDir)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.AllowedOrigins = getEnvAsList("ALLOWED_ORIGINS", c.AllowedOrigins)
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port must not be empty")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("port must be numeric, got %q", c.Port)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("send queue size must be positive, got %d", c.SendQueueSize)
	}
	if c.MaxBodyBytes <= 0 || c.MaxChunkBytes <= 0 {
		return fmt.Errorf("body and chunk limits must be positive")
	}
	switch c.SlowClientPolicy {
	case PolicyDrop, PolicyDisconnect:
	default:
		return fmt.Errorf("invalid slow client policy %q (expected drop|disconnect)", c.SlowClientPolicy)
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("rate limit and burst must be positive")
	}
	if c.WriteTimeout <= 0 || c.PingInterval <= 0 {
		return fmt.Errorf("write timeout and ping interval must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
