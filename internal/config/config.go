package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime options for the gateway process.
type Config struct {
	Host               string
	Port               int
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIDefaultModel string
	ModelMapJSON       string
	LogLevel           string
	LogFormat          string
	RequestTimeout     time.Duration
}

// Defaults returns baseline configuration.
func Defaults() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8089,
		OpenAIBaseURL:  "https://api.openai.com/v1",
		LogLevel:       "info",
		LogFormat:      "text",
		RequestTimeout: 120 * time.Second,
	}
}

// ApplyEnv overlays environment variables onto the config before flag
// parsing, per §6.4's configuration table.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAIAPIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.OpenAIBaseURL = v
	}
	if v := os.Getenv("OPENAI_DEFAULT_MODEL"); v != "" {
		c.OpenAIDefaultModel = v
	}
	if v := os.Getenv("MODEL_MAP_JSON"); v != "" {
		c.ModelMapJSON = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = d
		}
	}
}

// Parse builds config from .env + env + flags. Flags override env, which
// override defaults.
func Parse(args []string) (Config, error) {
	cfg := Defaults()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "[gateway] failed to load .env: %v\n", err)
	}

	cfg.ApplyEnv()

	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)

	fs.StringVar(&cfg.Host, "host", cfg.Host, "listen host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "listen port")
	fs.StringVar(&cfg.OpenAIAPIKey, "openai-api-key", cfg.OpenAIAPIKey, "OpenAI API key")
	fs.StringVar(&cfg.OpenAIBaseURL, "openai-base-url", cfg.OpenAIBaseURL, "OpenAI Responses API base URL")
	fs.StringVar(&cfg.OpenAIDefaultModel, "openai-default-model", cfg.OpenAIDefaultModel, "fallback upstream model when the model map misses")
	fs.StringVar(&cfg.ModelMapJSON, "model-map", cfg.ModelMapJSON, "JSON model map, flat or {models: ...} wrapped")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug,info,warn,error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text,json)")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "per-request upstream timeout")

	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("parse flags: %w", err)
	}

	return cfg, nil
}
