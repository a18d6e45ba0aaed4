package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ErrConfiguration marks a missing or invalid setting. It is fatal and is
// raised before the runtime is ever launched.
var ErrConfiguration = errors.New("configuration error")

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Runtime    RuntimeConfig
	Supervisor SupervisorConfig
	Events     EventsConfig
	CORS       CORSConfig
	Logging    LogConfig
	RateLimit  RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// RuntimeConfig locates the R runtime and the Shiny app.
type RuntimeConfig struct {
	RscriptPath    string `envconfig:"RSCRIPT_PATH" required:"true"`
	RHome          string `envconfig:"R_HOME_DIR" required:"true"`
	StartScript    string `envconfig:"START_SHINY_PATH" required:"true"`
	LibPath        string `envconfig:"R_LIB_PATH" required:"true"`
	AppPath        string `envconfig:"SHINY_APP_PATH" required:"true"`
	BaseURL        string `envconfig:"SHINY_URL" default:"http://127.0.0.1"`
	DiagnosticPath string `envconfig:"SHINY_DIAGNOSTIC_PATH"`
}

// SupervisorConfig holds start, readiness and liveness tuning.
type SupervisorConfig struct {
	PortStart      int           `envconfig:"SHINY_PORT_START" default:"3000"`
	PortEnd        int           `envconfig:"SHINY_PORT_END" default:"8000"`
	MaxRetries     int           `envconfig:"SHINY_MAX_RETRIES" default:"4"`
	InitialBackoff time.Duration `envconfig:"SHINY_INITIAL_BACKOFF" default:"1s"`
	ReadyTimeout   time.Duration `envconfig:"SHINY_READY_TIMEOUT" default:"40s"`
	PollInterval   time.Duration `envconfig:"SHINY_POLL_INTERVAL" default:"500ms"`
	ProbeTimeout   time.Duration `envconfig:"SHINY_PROBE_TIMEOUT" default:"1s"`
	HideConsole    bool          `envconfig:"SHINY_HIDE_CONSOLE" default:"true"`
	WatchInterval  time.Duration `envconfig:"SHINY_WATCH_INTERVAL" default:"3s"`
	WatchMaxMissed int           `envconfig:"SHINY_WATCH_MAX_MISSED" default:"3"`
	Autostart      bool          `envconfig:"SHINY_AUTOSTART" default:"false"`
}

// EventsConfig holds event stream configuration.
type EventsConfig struct {
	TopicPrefix string `envconfig:"SHINY_TOPIC_PREFIX" default:"shiny-"`
}

// CORSConfig holds the origins allowed to call the API.
type CORSConfig struct {
	AllowOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables. A required runtime
// path that is unset or empty fails with ErrConfiguration.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot: empty required paths and
// inconsistent ranges.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"RSCRIPT_PATH", c.Runtime.RscriptPath},
		{"R_HOME_DIR", c.Runtime.RHome},
		{"START_SHINY_PATH", c.Runtime.StartScript},
		{"R_LIB_PATH", c.Runtime.LibPath},
		{"SHINY_APP_PATH", c.Runtime.AppPath},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: empty value for %s", ErrConfiguration, strings.Join(missing, ", "))
	}

	s := c.Supervisor
	if s.PortStart <= 0 || s.PortEnd <= s.PortStart || s.PortEnd > 65536 {
		return fmt.Errorf("%w: invalid port range %d-%d", ErrConfiguration, s.PortStart, s.PortEnd)
	}
	if s.MaxRetries <= 0 {
		return fmt.Errorf("%w: SHINY_MAX_RETRIES must be positive, got %d", ErrConfiguration, s.MaxRetries)
	}
	return nil
}

// Default returns default configuration. Runtime paths are left empty, so
// the result only passes Validate once they are filled in.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "127.0.0.1",
		},
		Runtime: RuntimeConfig{
			BaseURL: "http://127.0.0.1",
		},
		Supervisor: SupervisorConfig{
			PortStart:      3000,
			PortEnd:        8000,
			MaxRetries:     4,
			InitialBackoff: time.Second,
			ReadyTimeout:   40 * time.Second,
			PollInterval:   500 * time.Millisecond,
			ProbeTimeout:   time.Second,
			HideConsole:    true,
			WatchInterval:  3 * time.Second,
			WatchMaxMissed: 3,
		},
		Events: EventsConfig{
			TopicPrefix: "shiny-",
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
	}
}
