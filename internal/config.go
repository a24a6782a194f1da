package internal

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/notehub/internal/api"
	"github.com/starford/notehub/internal/apperr"
	"github.com/starford/notehub/internal/models"
)

// Auth modes for the local gateway.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Environment variables that override the config file.
const (
	EnvToken   = "NOTEHUB_TOKEN"
	EnvBaseURL = "NOTEHUB_BASE_URL"
)

// DefaultBaseURL is the public NoteHub endpoint.
const DefaultBaseURL = "https://notehub-public.goit.study/api"

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	API     APIConfig         `yaml:"api"`
	Query   QueryConfig       `yaml:"query"`
	Gateway GatewayConfig     `yaml:"gateway"`
}

// ApplyEnv overlays environment variables onto values read from the file.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvToken)); v != "" {
		c.API.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		c.API.BaseURL = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return err
	}
	if err := c.Query.Validate(); err != nil {
		return err
	}
	return c.Gateway.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// APIConfig describes the remote NoteHub service.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate fails fast on a missing token rather than letting the client send
// unauthenticated requests.
func (c *APIConfig) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return &apperr.ConfigError{Field: "api.token", Reason: "is required (set " + EnvToken + ")"}
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	); err != nil {
		return &apperr.ConfigError{Field: "api", Reason: err.Error()}
	}
	return nil
}

// QueryConfig tunes the list view: page size, ordering, debounce window and
// cache freshness.
type QueryConfig struct {
	PerPage   int           `yaml:"per_page"`
	SortBy    string        `yaml:"sort_by"`
	Debounce  time.Duration `yaml:"debounce"`
	StaleTime time.Duration `yaml:"stale_time"`
	Retry     int           `yaml:"retry"`
}

// Validate validates the query configuration.
func (c *QueryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PerPage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.SortBy, validation.In(string(models.SortCreated), string(models.SortUpdated))),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.StaleTime, validation.Min(time.Duration(0))),
		validation.Field(&c.Retry, validation.Min(0), validation.Max(5)),
	)
}

// GatewayConfig holds the local HTTP gateway settings used by `serve`.
type GatewayConfig struct {
	HTTP HTTPConfig `yaml:"http"`
	Auth AuthConfig `yaml:"auth"`
}

// Validate validates the gateway configuration.
func (c *GatewayConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AuthConfig holds gateway authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
//
// This token guards the gateway only; it is never forwarded upstream.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// Gateway returns the guard settings for the gateway router.
func (c *AuthConfig) Gateway() api.AuthConfig {
	return api.AuthConfig{Enabled: c.AuthEnabled(), Token: c.Token}
}

// NewDefaultConfig returns a new Config with sensible default values.
// The API token has no default.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		API: APIConfig{
			BaseURL: DefaultBaseURL,
			Timeout: 15 * time.Second,
		},
		Query: QueryConfig{
			PerPage:   models.DefaultPerPage,
			SortBy:    string(models.SortCreated),
			Debounce:  300 * time.Millisecond,
			StaleTime: 30 * time.Second,
		},
		Gateway: GatewayConfig{
			HTTP: HTTPConfig{
				Port: 8080,
			},
			Auth: AuthConfig{
				Mode: AuthModeDisabled,
			},
		},
	}
}
