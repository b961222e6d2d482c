package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adamwoolhether/deltapipe/stream"
)

// Config is the file form of every subcommand's settings.
type Config struct {
	Server ServerConfig  `yaml:"server"`
	Hub    HubConfig     `yaml:"hub"`
	Stream stream.Config `yaml:"stream"`
	Push   PushConfig    `yaml:"push"`
	Log    LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// AllowedOrigins lists browser origins accepted by the API and the
	// websocket hub.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type HubConfig struct {
	BufferSize   int           `yaml:"buffer_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

type PushConfig struct {
	URL     string        `yaml:"url"`
	RPS     int           `yaml:"rps"`
	Burst   int           `yaml:"burst"`
	Timeout time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig is used as is when no file is given, and as the base a
// file is decoded over.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     5 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		Hub: HubConfig{
			BufferSize:   64,
			WriteTimeout: 10 * time.Second,
			PingInterval: 30 * time.Second,
		},
		Stream: stream.DefaultConfig(),
		Push: PushConfig{
			URL:     "http://localhost:8080",
			RPS:     20,
			Burst:   5,
			Timeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads path over the defaults, then applies environment
// overrides. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if addr := os.Getenv("DELTAPIPE_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if u := os.Getenv("DELTAPIPE_URL"); u != "" {
		cfg.Push.URL = u
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Hub.BufferSize <= 0 {
		return errors.New("hub.buffer_size must be positive")
	}
	if err := c.Stream.Validate(); err != nil {
		return err
	}
	if _, err := url.ParseRequestURI(c.Push.URL); err != nil {
		return fmt.Errorf("push.url: %w", err)
	}
	if c.Push.RPS <= 0 || c.Push.Burst <= 0 {
		return errors.New("push.rps and push.burst must be positive")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}

	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
