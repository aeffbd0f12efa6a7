package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	defaultSessionSecret = "change-me-session-secret"
)

type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"dev"`
	HTTP     HTTPConfig
	Backend  BackendConfig
	Session  SessionConfig
	Ledger   LedgerConfig
	Log      LogConfig
	CORS     CORSConfig
	Calendar CalendarConfig
	Live     LiveConfig
}

type HTTPConfig struct {
	Addr               string `envconfig:"HTTP_ADDR" default:":5173"`
	LoginRatePerMinute int    `envconfig:"LOGIN_RATE_PER_MINUTE" default:"5"`
}

type BackendConfig struct {
	Origin         string        `envconfig:"BACKEND_ORIGIN" default:"http://localhost:8000"`
	WSPort         string        `envconfig:"BACKEND_WS_PORT" default:"8000"`
	ReconnectDelay time.Duration `envconfig:"BACKEND_RECONNECT_DELAY" default:"3s"`
}

type SessionConfig struct {
	Secret       string        `envconfig:"SESSION_SECRET" default:"change-me-session-secret"`
	TTL          time.Duration `envconfig:"SESSION_TTL" default:"12h"`
	CookieSecure bool          `envconfig:"SESSION_COOKIE_SECURE" default:"false"`
}

type LedgerConfig struct {
	DSN string `envconfig:"LEDGER_DSN" default:"file::memory:?cache=shared"`
}

type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

type CORSConfig struct {
	AllowOrigins []string `envconfig:"CORS_ALLOW_ORIGINS" default:"http://localhost:5173,http://127.0.0.1:5173"`
}

// LiveConfig tunes what open browser tabs are told.
type LiveConfig struct {
	// NewBookingHold keeps refresh frames back after a new_booking toast so
	// the tab does not reload underneath it.
	NewBookingHold time.Duration `envconfig:"LIVE_NEW_BOOKING_HOLD" default:"10s"`
}

type CalendarConfig struct {
	TimeZone string `envconfig:"CALENDAR_TIMEZONE" default:"Local"`
	Title    string `envconfig:"CALENDAR_TITLE" default:"Turno Uñas - Glaze Studio"`
	Details  string `envconfig:"CALENDAR_DETAILS" default:"Reserva confirmada en Glaze Studio."`
	Location string `envconfig:"CALENDAR_LOCATION" default:"Glaze Studio"`
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	// a missing .env is fine, the environment may be set already
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return isProdLike(c.AppEnv)
}

// Zone resolves the calendar time zone.
func (c CalendarConfig) Zone() (*time.Location, error) {
	return time.LoadLocation(c.TimeZone)
}

func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.Backend.Origin) == "" {
		return fmt.Errorf("BACKEND_ORIGIN must not be empty")
	}
	if !strings.HasPrefix(cfg.Backend.Origin, "http://") && !strings.HasPrefix(cfg.Backend.Origin, "https://") {
		return fmt.Errorf("BACKEND_ORIGIN must start with http:// or https://")
	}
	if strings.TrimSpace(cfg.Backend.WSPort) == "" {
		return fmt.Errorf("BACKEND_WS_PORT must not be empty")
	}
	if cfg.Backend.ReconnectDelay <= 0 {
		return fmt.Errorf("BACKEND_RECONNECT_DELAY must be > 0")
	}
	if cfg.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if cfg.HTTP.LoginRatePerMinute <= 0 {
		return fmt.Errorf("LOGIN_RATE_PER_MINUTE must be > 0")
	}
	if strings.TrimSpace(cfg.Ledger.DSN) == "" {
		return fmt.Errorf("LEDGER_DSN must not be empty")
	}
	if _, err := cfg.Calendar.Zone(); err != nil {
		return fmt.Errorf("invalid CALENDAR_TIMEZONE %q: %w", cfg.Calendar.TimeZone, err)
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.Session.Secret, defaultSessionSecret) {
			return fmt.Errorf("in prod/release SESSION_SECRET must be set and not default")
		}
		if !cfg.Session.CookieSecure {
			return fmt.Errorf("in prod/release SESSION_COOKIE_SECURE must be true")
		}
	}

	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}
