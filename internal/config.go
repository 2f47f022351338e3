package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// City modes.
const (
	CityModeDefault = "default"
	CityModeFetch   = "fetch"
)

// Config represents the application configuration. It is built once at
// process start and passed by reference; there is no mutable global state.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Auth      AuthConfig        `yaml:"auth"`
	Storage   StorageConfig     `yaml:"storage"`
	Registry  RegistryConfig    `yaml:"registry"`
	City      CityConfig        `yaml:"city"`
	Providers ProvidersConfig   `yaml:"providers"`
	Render    RenderConfig      `yaml:"render"`
	Prefetch  PrefetchConfig    `yaml:"prefetch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Registry.Validate(); err != nil {
		return err
	}
	if err := c.City.Validate(); err != nil {
		return err
	}
	if err := c.Providers.Validate(); err != nil {
		return err
	}
	if err := c.Render.Validate(); err != nil {
		return err
	}
	return c.Prefetch.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
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

// AuthConfig holds the admin credential. All admin routes require a valid
// Bearer token; there is no disabled mode for the admin surface.
type AuthConfig struct {
	AdminToken string `yaml:"admin_token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.AdminToken, validation.Required, validation.Length(8, 0)),
	)
}

// StorageConfig holds the blob store root directory.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RegistryConfig holds the SQLite device registry path.
type RegistryConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the registry configuration.
func (c *RegistryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// CityConfig controls which city providers fetch for.
//
// Mode:
//   - "default": always the configured Default city.
//   - "fetch": honor the layout's city field when present.
type CityConfig struct {
	Mode    string `yaml:"mode"`
	Default string `yaml:"default"`
}

// Validate validates the city configuration.
func (c *CityConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = CityModeDefault
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(CityModeDefault, CityModeFetch)),
		validation.Field(&c.Default, validation.Required),
	)
}

// ProviderConfig is the shared per-provider policy: enable toggle, cache
// TTL, per-call timeout, and retry budget.
type ProviderConfig struct {
	Enabled        bool `yaml:"enabled"`
	TTLSeconds     int  `yaml:"ttl_seconds"`
	TimeoutSeconds int  `yaml:"timeout_seconds"`
	Retries        int  `yaml:"retries"`
}

// TTL returns the cache TTL.
func (c *ProviderConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Timeout returns the per-call timeout.
func (c *ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate validates a provider policy.
func (c *ProviderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TTLSeconds, validation.Min(1)),
		validation.Field(&c.TimeoutSeconds, validation.Min(1)),
		validation.Field(&c.Retries, validation.Min(0), validation.Max(10)),
	)
}

// WeatherConfig extends the shared policy with OpenWeather credentials.
type WeatherConfig struct {
	ProviderConfig `yaml:",inline"`
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
}

// ForecastConfig extends the shared policy with the outlook depth.
type ForecastConfig struct {
	ProviderConfig `yaml:",inline"`
	Days           int `yaml:"days"`
}

// JokeConfig extends the shared policy with an endpoint override.
type JokeConfig struct {
	ProviderConfig `yaml:",inline"`
	BaseURL        string `yaml:"base_url"`
}

// ProvidersConfig holds the fixed provider table configuration.
type ProvidersConfig struct {
	Weather  WeatherConfig  `yaml:"weather"`
	Forecast ForecastConfig `yaml:"forecast"`
	Joke     JokeConfig     `yaml:"joke"`
}

// Validate validates the providers configuration.
func (c *ProvidersConfig) Validate() error {
	if err := c.Weather.ProviderConfig.Validate(); err != nil {
		return fmt.Errorf("providers.weather: %w", err)
	}
	if c.Weather.Enabled && c.Weather.APIKey == "" {
		return fmt.Errorf("providers.weather: enabled but api_key is empty")
	}
	if err := c.Forecast.ProviderConfig.Validate(); err != nil {
		return fmt.Errorf("providers.forecast: %w", err)
	}
	if err := c.Joke.ProviderConfig.Validate(); err != nil {
		return fmt.Errorf("providers.joke: %w", err)
	}
	return nil
}

// RenderConfig holds frame rendering configuration.
type RenderConfig struct {
	EngineURL            string `yaml:"engine_url"`
	Width                int    `yaml:"width"`
	Height               int    `yaml:"height"`
	EngineTimeoutSeconds int    `yaml:"engine_timeout_seconds"`
	PresetPath           string `yaml:"preset_path"`
}

// EngineTimeout returns the render-engine invocation timeout.
func (c *RenderConfig) EngineTimeout() time.Duration {
	return time.Duration(c.EngineTimeoutSeconds) * time.Second
}

// Validate validates the render configuration.
func (c *RenderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Width, validation.Required, validation.Min(1)),
		validation.Field(&c.Height, validation.Required, validation.Min(1)),
		validation.Field(&c.EngineTimeoutSeconds, validation.Required, validation.Min(1)),
	)
}

// PrefetchConfig holds the art prefetch configuration.
type PrefetchConfig struct {
	Themes              []string `yaml:"themes"`
	PerThemeCount       int      `yaml:"per_theme_count"`
	CacheExpiryDays     int      `yaml:"cache_expiry_days"`
	SourceAPIKey        string   `yaml:"source_api_key"`
	SourceBaseURL       string   `yaml:"source_base_url"`
	FetchTimeoutSeconds int      `yaml:"fetch_timeout_seconds"`
}

// FetchTimeout returns the per-upstream-call timeout for prefetch.
func (c *PrefetchConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// Validate validates the prefetch configuration.
func (c *PrefetchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Themes, validation.Required, validation.Length(1, 0)),
		validation.Field(&c.PerThemeCount, validation.Required, validation.Min(1), validation.Max(80)),
		validation.Field(&c.CacheExpiryDays, validation.Required, validation.Min(1)),
		validation.Field(&c.FetchTimeoutSeconds, validation.Required, validation.Min(1)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			Path: "./data/blobs",
		},
		Registry: RegistryConfig{
			Path: "./data/devices.db",
		},
		City: CityConfig{
			Mode:    CityModeDefault,
			Default: "Darwin",
		},
		Providers: ProvidersConfig{
			Weather: WeatherConfig{
				ProviderConfig: ProviderConfig{Enabled: true, TTLSeconds: 3600, TimeoutSeconds: 8, Retries: 2},
			},
			Forecast: ForecastConfig{
				ProviderConfig: ProviderConfig{Enabled: true, TTLSeconds: 3600, TimeoutSeconds: 10, Retries: 1},
				Days:           2,
			},
			Joke: JokeConfig{
				ProviderConfig: ProviderConfig{Enabled: true, TTLSeconds: 900, TimeoutSeconds: 6, Retries: 1},
			},
		},
		Render: RenderConfig{
			Width:                800,
			Height:               480,
			EngineTimeoutSeconds: 20,
			PresetPath:           "./presets/default.json",
		},
		Prefetch: PrefetchConfig{
			Themes:              []string{"abstract", "geometric", "kids", "photo"},
			PerThemeCount:       8,
			CacheExpiryDays:     7,
			FetchTimeoutSeconds: 10,
		},
	}
}
