// Package config loads slotwatch configuration from a YAML or JSON file,
// an optional .env file, and environment variables.
//
// Environment variables prefixed with SLOTWATCH_ override file values; a
// double underscore separates nested keys, so SLOTWATCH_SCAN__STATION_TIMEOUT
// sets scan.station_timeout. The member credentials are also read from
// TIMES_CARDNUM_1, TIMES_CARDNUM_2 and TIMES_PASSWORD.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/slotwatch/slotwatch/internal/availability"
	"github.com/slotwatch/slotwatch/internal/database"
	"github.com/slotwatch/slotwatch/internal/history"
	"github.com/slotwatch/slotwatch/internal/logging"
	"github.com/slotwatch/slotwatch/internal/telemetry"
	"github.com/slotwatch/slotwatch/internal/timescar"
)

const (
	// DefaultPath is the config file read when no path is given and it exists.
	DefaultPath = "slotwatch.yaml"

	// DefaultTimezone is the provider's local time zone.
	DefaultTimezone = "Asia/Tokyo"

	envPrefix = "SLOTWATCH_"
)

// credentialEnv maps the member credential variables onto config keys.
var credentialEnv = map[string]string{
	"TIMES_CARDNUM_1": "credentials.card_number_1",
	"TIMES_CARDNUM_2": "credentials.card_number_2",
	"TIMES_PASSWORD":  "credentials.password",
}

// Config is the full slotwatch configuration.
type Config struct {
	// Stations are the default station endpoints, visited in this order.
	Stations []string `json:"stations"`

	// Timezone is the IANA zone reservation times are read in.
	Timezone string `json:"timezone"`

	Scan        ScanConfig         `json:"scan"`
	Provider    ProviderConfig     `json:"provider"`
	Credentials CredentialsConfig  `json:"credentials"`
	Log         logging.Config     `json:"log"`
	Telemetry   telemetry.Config   `json:"telemetry"`
	Database    database.Config    `json:"database"`
	History     HistoryConfig      `json:"history"`
	API         APIConfig          `json:"api"`
	PubSub      PubSubConfig       `json:"pubsub"`
	location    *time.Location
}

// ScanConfig bounds a single scan.
type ScanConfig struct {
	MaxDurationMinutes int           `json:"max_duration_minutes"`
	StationTimeout     time.Duration `json:"station_timeout"`
}

// ProviderConfig addresses the car-share member site.
type ProviderConfig struct {
	BaseURL    string        `json:"base_url"`
	LoginURL   string        `json:"login_url"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries uint64        `json:"max_retries"`
	UserAgent  string        `json:"user_agent"`
}

// CredentialsConfig holds the member card number parts and password.
type CredentialsConfig struct {
	CardNumber1 string `json:"card_number_1"`
	CardNumber2 string `json:"card_number_2"`
	Password    string `json:"password"`
}

// HistoryConfig selects where scan results are kept.
type HistoryConfig struct {
	// Store is "memory" or "postgres".
	Store string `json:"store"`
	// Capacity bounds the memory store.
	Capacity int `json:"capacity"`
}

// APIConfig configures the HTTP API.
type APIConfig struct {
	Port          int           `json:"port"`
	JWTSigningKey string        `json:"jwt_signing_key"`
	JWTIssuer     string        `json:"jwt_issuer"`
	JWTAudience   string        `json:"jwt_audience"`
	TokenTTL      time.Duration `json:"token_ttl"`
	RequireTLS    bool          `json:"require_tls"`
}

// PubSubConfig configures the scan job subscription.
type PubSubConfig struct {
	ProjectID    string `json:"project_id"`
	Subscription string `json:"subscription"`

	// Concurrency is the number of windows of one job scanned at once.
	Concurrency            int           `json:"concurrency"`
	ScanTimeout            time.Duration `json:"scan_timeout"`
	MaxOutstandingMessages int           `json:"max_outstanding_messages"`
	MaxExtension           time.Duration `json:"max_extension"`
}

// History store kinds.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Load reads configuration from path (may be empty), a .env file in the
// working directory if present, and the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := k.Load(env.Provider("TIMES_", ".", func(s string) string {
		return credentialEnv[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("load credentials from environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envValue maps SLOTWATCH_SCAN__STATION_TIMEOUT to scan.station_timeout.
// SLOTWATCH_STATIONS is a comma separated list.
func envValue(key, value string) (string, interface{}) {
	key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "__", ".")
	if key != "stations" {
		return key, value
	}
	stations := []string{}
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			stations = append(stations, s)
		}
	}
	return key, stations
}

// Resolve returns path, or DefaultPath when path is empty and that file
// exists, or "" to load from the environment only.
func Resolve(path string) string {
	if path != "" {
		return path
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return ""
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
}

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	c.Scan.SetDefaults()
	c.Provider.SetDefaults()
	c.Log.SetDefaults()
	c.Telemetry.SetDefaults()
	c.Database.SetDefaults()
	if c.History.Store == "" {
		c.History.Store = StoreMemory
	}
	if c.History.Capacity == 0 {
		c.History.Capacity = history.DefaultMemoryCapacity
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.JWTIssuer == "" {
		c.API.JWTIssuer = "slotwatch"
	}
	if c.API.JWTAudience == "" {
		c.API.JWTAudience = "slotwatch-api"
	}
	if c.API.TokenTTL == 0 {
		c.API.TokenTTL = 24 * time.Hour
	}
}

// Validate checks the configuration and resolves the time zone.
func (c *Config) Validate() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	c.location = loc

	if err := c.Scan.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	if c.History.Store != StoreMemory && c.History.Store != StorePostgres {
		return fmt.Errorf("history: unknown store %q", c.History.Store)
	}
	if c.History.Capacity < 0 {
		return errors.New("history: capacity must not be negative")
	}
	if c.History.Store == StorePostgres {
		if err := c.Database.Validate(); err != nil {
			return err
		}
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api: invalid port %d", c.API.Port)
	}
	for i, s := range c.Stations {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("stations[%d] is empty", i)
		}
	}
	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		if loc, err := time.LoadLocation(c.Timezone); err == nil {
			c.location = loc
		} else {
			c.location = time.UTC
		}
	}
	return c.location
}

// StationEndpoints returns the configured stations as endpoints.
func (c *Config) StationEndpoints() []availability.StationEndpoint {
	return Endpoints(c.Stations)
}

// Endpoints converts station codes or URLs to endpoints.
func Endpoints(stations []string) []availability.StationEndpoint {
	out := make([]availability.StationEndpoint, 0, len(stations))
	for _, s := range stations {
		out = append(out, availability.StationEndpoint(strings.TrimSpace(s)))
	}
	return out
}

// SetDefaults applies the provider limits.
func (c *ScanConfig) SetDefaults() {
	if c.MaxDurationMinutes == 0 {
		c.MaxDurationMinutes = availability.DefaultMaxDurationMinutes
	}
	if c.StationTimeout == 0 {
		c.StationTimeout = availability.DefaultStationTimeout
	}
}

// Validate checks the scan bounds.
func (c ScanConfig) Validate() error {
	if c.MaxDurationMinutes <= 0 || c.MaxDurationMinutes%availability.SlotMinutes != 0 {
		return fmt.Errorf("scan: max_duration_minutes must be a positive multiple of %d", availability.SlotMinutes)
	}
	if c.StationTimeout < 0 {
		return errors.New("scan: station_timeout must not be negative")
	}
	return nil
}

// SetDefaults points at the production member site.
func (c *ProviderConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = timescar.DefaultBaseURL
	}
	if c.LoginURL == "" {
		c.LoginURL = timescar.DefaultLoginURL
	}
	if c.Timeout == 0 {
		c.Timeout = 20 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Timescar converts the credentials to the provider client's form.
func (c CredentialsConfig) Timescar() timescar.Credentials {
	return timescar.Credentials{
		CardNumber1: c.CardNumber1,
		CardNumber2: c.CardNumber2,
		Password:    c.Password,
	}
}
