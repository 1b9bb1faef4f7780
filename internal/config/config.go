package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                     string        `mapstructure:"PORT"`
	Env                      string        `mapstructure:"ENV"`
	LogLevel                 string        `mapstructure:"LOG_LEVEL"`
	BackendURL               string        `mapstructure:"BACKEND_URL"`
	BackendTimeout           time.Duration `mapstructure:"BACKEND_TIMEOUT"`
	BackendActionSeparator   string        `mapstructure:"BACKEND_ACTION_SEPARATOR"`
	CORSOrigins              []string      `mapstructure:"CORS_ORIGINS"`
	AgendaDefaultStart       string        `mapstructure:"AGENDA_DEFAULT_START"`
	AgendaDefaultEnd         string        `mapstructure:"AGENDA_DEFAULT_END"`
	AgendaDefaultSlotMinutes int           `mapstructure:"AGENDA_DEFAULT_SLOT_MINUTES"`
	AgendaLockTerminalStatus bool          `mapstructure:"AGENDA_LOCK_TERMINAL_STATUS"`
	SessionIdleTTL           time.Duration `mapstructure:"SESSION_IDLE_TTL"`
	JournalDatabaseURL       string        `mapstructure:"JOURNAL_DATABASE_URL"`
	DBMaxConns               int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns               int32         `mapstructure:"DB_MIN_CONNS"`
	RequestTimeout           time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit                string        `mapstructure:"BODY_LIMIT"`
	RateLimitRPS             float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst           int           `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BACKEND_TIMEOUT", "20s")
	v.SetDefault("BACKEND_ACTION_SEPARATOR", "_")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("AGENDA_DEFAULT_START", "08:00")
	v.SetDefault("AGENDA_DEFAULT_END", "18:00")
	v.SetDefault("AGENDA_DEFAULT_SLOT_MINUTES", 15)
	v.SetDefault("AGENDA_LOCK_TERMINAL_STATUS", false)
	v.SetDefault("SESSION_IDLE_TTL", "12h")
	v.SetDefault("DB_MAX_CONNS", 5)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "256K")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL",
		"BACKEND_URL", "BACKEND_TIMEOUT", "BACKEND_ACTION_SEPARATOR",
		"CORS_ORIGINS",
		"AGENDA_DEFAULT_START", "AGENDA_DEFAULT_END", "AGENDA_DEFAULT_SLOT_MINUTES",
		"AGENDA_LOCK_TERMINAL_STATUS", "SESSION_IDLE_TTL",
		"JOURNAL_DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"REQUEST_TIMEOUT", "BODY_LIMIT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// JournalEnabled reports whether transition records go to Postgres.
func (c *Config) JournalEnabled() bool {
	return c.JournalDatabaseURL != ""
}

// Validate checks formats. BACKEND_URL is not required here because the
// grid and migrate commands run without a backend; see ValidateBackend.
func (c *Config) Validate() error {
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive, got %s", c.BackendTimeout)
	}
	if c.RequestTimeout > 0 && c.RequestTimeout < c.BackendTimeout {
		return fmt.Errorf("REQUEST_TIMEOUT (%s) must not be shorter than BACKEND_TIMEOUT (%s)", c.RequestTimeout, c.BackendTimeout)
	}
	if c.BackendActionSeparator == "" {
		return fmt.Errorf("BACKEND_ACTION_SEPARATOR must not be empty")
	}
	if !validClock(c.AgendaDefaultStart) {
		return fmt.Errorf("AGENDA_DEFAULT_START must be HH:MM, got %q", c.AgendaDefaultStart)
	}
	if !validClock(c.AgendaDefaultEnd) {
		return fmt.Errorf("AGENDA_DEFAULT_END must be HH:MM, got %q", c.AgendaDefaultEnd)
	}
	if c.AgendaDefaultSlotMinutes <= 0 {
		return fmt.Errorf("AGENDA_DEFAULT_SLOT_MINUTES must be positive, got %d", c.AgendaDefaultSlotMinutes)
	}
	if c.SessionIdleTTL < 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must not be negative, got %s", c.SessionIdleTTL)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.BackendURL != "" {
		if err := validHTTPURL(c.BackendURL); err != nil {
			return fmt.Errorf("BACKEND_URL: %w", err)
		}
	}
	return nil
}

// ValidateBackend is required by every command that talks to the clinic
// backend.
func (c *Config) ValidateBackend() error {
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	return validHTTPURL(c.BackendURL)
}

func validHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is missing")
	}
	return nil
}

// validClock accepts "H:MM" and "HH:MM".
func validClock(s string) bool {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(h) == 0 || len(h) > 2 || len(m) != 2 {
		return false
	}
	var hh, mm int
	if _, err := fmt.Sscanf(h+" "+m, "%d %d", &hh, &mm); err != nil {
		return false
	}
	return hh >= 0 && hh <= 23 && mm >= 0 && mm <= 59
}
