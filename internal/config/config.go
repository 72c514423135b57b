// Package config loads the relay's configuration with
// flag > env > file > default precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIBase              = "https://api.deepseek.com"
	DefaultReasoningModel       = "deepseek-reasoner"
	DefaultResponseModel        = "deepseek-chat"
	DefaultReasoningTemperature = 0.3
	DefaultResponseTemperature  = 0.7
	DefaultUpstreamTimeout      = 30 * time.Second

	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// Stage configures one upstream service. Values are read-only once loaded
// and may be shared across concurrent relay invocations.
type Stage struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

type Config struct {
	Reasoning Stage `yaml:"reasoning"`
	Response  Stage `yaml:"response"`

	UpstreamTimeout  time.Duration `yaml:"upstream_timeout"`
	UpstreamProxyURL string        `yaml:"upstream_proxy_url"`
	ListenAddr       string        `yaml:"listen_addr"`
	ModelName        string        `yaml:"model_name"`
	LogLevel         string        `yaml:"log_level"`
	// A2A
	A2AEnabled bool   `yaml:"a2a_enabled"`
	A2APort    int    `yaml:"a2a_port"`
	AgentName  string `yaml:"agent_name"`
	AgentDesc  string `yaml:"agent_desc"`
}

// Default returns a Config holding every default value.
func Default() *Config {
	return &Config{
		Reasoning: Stage{
			BaseURL:     DefaultAPIBase,
			Model:       DefaultReasoningModel,
			Temperature: DefaultReasoningTemperature,
		},
		Response: Stage{
			BaseURL:     DefaultAPIBase,
			Model:       DefaultResponseModel,
			Temperature: DefaultResponseTemperature,
		},
		UpstreamTimeout: DefaultUpstreamTimeout,
		ListenAddr:      ":8080",
		ModelName:       "thinkflow",
		LogLevel:        "info",
		A2APort:         8000,
		AgentName:       "thinkflow",
		AgentDesc:       "Two-stage reasoning relay exposed via A2A protocol",
	}
}

// Load builds a Config from a YAML file, environment variables (including a
// .env file in the working directory) and args, then validates it.
// The file is named by --config or THINKFLOW_CONFIG.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := configPath(args); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.parseFlags(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and required fields.
func (c *Config) Validate() error {
	for name, s := range map[string]Stage{"reasoning": c.Reasoning, "response": c.Response} {
		if s.BaseURL == "" {
			return fmt.Errorf("config: %s api base must not be empty", name)
		}
		if s.Model == "" {
			return fmt.Errorf("config: %s model must not be empty", name)
		}
		if s.Temperature < MinTemperature || s.Temperature > MaxTemperature {
			return fmt.Errorf("config: %s temperature %v outside [%v, %v]", name, s.Temperature, MinTemperature, MaxTemperature)
		}
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("config: upstream timeout must be positive, got %s", c.UpstreamTimeout)
	}
	return nil
}

// configPath finds --config ahead of full flag parsing, since the file
// supplies the defaults the flags are declared with.
func configPath(args []string) string {
	path := os.Getenv("THINKFLOW_CONFIG")
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			break
		}
		if v, ok := strings.CutPrefix(args[i], "--config="); ok {
			path = v
		} else if args[i] == "--config" && i+1 < len(args) {
			path = args[i+1]
			i++
		}
	}
	return path
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Reasoning.BaseURL, "REASONING_API_BASE")
	setString(&c.Reasoning.APIKey, "REASONING_API_KEY")
	setString(&c.Reasoning.Model, "REASONING_MODEL")
	setString(&c.Response.BaseURL, "RESPONSE_API_BASE")
	setString(&c.Response.APIKey, "RESPONSE_API_KEY")
	setString(&c.Response.Model, "RESPONSE_MODEL")
	setString(&c.UpstreamProxyURL, "UPSTREAM_PROXY_URL")
	setString(&c.ListenAddr, "LISTEN_ADDR")
	setString(&c.ModelName, "MODEL_NAME")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.AgentName, "AGENT_NAME")
	setString(&c.AgentDesc, "AGENT_DESC")
	c.A2AEnabled = getEnvBool("A2A_ENABLED", c.A2AEnabled)
	c.A2APort = getEnvInt("A2A_PORT", c.A2APort)

	if err := setFloat(&c.Reasoning.Temperature, "REASONING_TEMPERATURE"); err != nil {
		return err
	}
	if err := setFloat(&c.Response.Temperature, "RESPONSE_TEMPERATURE"); err != nil {
		return err
	}
	if v := os.Getenv("UPSTREAM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: UPSTREAM_TIMEOUT: %w", err)
		}
		c.UpstreamTimeout = d
	}
	return nil
}

func (c *Config) parseFlags(args []string) error {
	fs := flag.NewFlagSet("thinkflow", flag.ContinueOnError)
	fs.String("config", "", "YAML config file")

	fs.StringVar(&c.Reasoning.BaseURL, "reasoning-api-base", c.Reasoning.BaseURL, "Reasoning stage API base URL")
	fs.StringVar(&c.Reasoning.APIKey, "reasoning-api-key", c.Reasoning.APIKey, "Reasoning stage API key")
	fs.StringVar(&c.Reasoning.Model, "reasoning-model", c.Reasoning.Model, "Reasoning stage model")
	fs.Float64Var(&c.Reasoning.Temperature, "reasoning-temperature", c.Reasoning.Temperature, "Reasoning stage temperature [0, 2]")

	fs.StringVar(&c.Response.BaseURL, "response-api-base", c.Response.BaseURL, "Response stage API base URL")
	fs.StringVar(&c.Response.APIKey, "response-api-key", c.Response.APIKey, "Response stage API key")
	fs.StringVar(&c.Response.Model, "response-model", c.Response.Model, "Response stage model")
	fs.Float64Var(&c.Response.Temperature, "response-temperature", c.Response.Temperature, "Response stage default temperature [0, 2]")

	fs.DurationVar(&c.UpstreamTimeout, "upstream-timeout", c.UpstreamTimeout, "Upstream wait limit before the first byte and between bytes")
	fs.StringVar(&c.UpstreamProxyURL, "upstream-proxy-url", c.UpstreamProxyURL, "HTTP/HTTPS proxy URL for upstream requests (e.g. http://proxy:8080)")
	fs.StringVar(&c.ListenAddr, "listen-addr", c.ListenAddr, "Proxy listen address")
	fs.StringVar(&c.ModelName, "model-name", c.ModelName, "Model id advertised to callers")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")

	fs.BoolVar(&c.A2AEnabled, "a2a", c.A2AEnabled, "Enable A2A server alongside the proxy")
	fs.IntVar(&c.A2APort, "a2a-port", c.A2APort, "A2A server listen port")
	fs.StringVar(&c.AgentName, "agent-name", c.AgentName, "A2A AgentCard name")
	fs.StringVar(&c.AgentDesc, "agent-desc", c.AgentDesc, "A2A AgentCard description")
	return fs.Parse(args)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = f
	return nil
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	switch v {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
