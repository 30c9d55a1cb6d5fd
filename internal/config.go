package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/GraysonCAdams/dex-contacts/internal/contacts"
	"github.com/GraysonCAdams/dex-contacts/internal/dex"
	"github.com/GraysonCAdams/dex-contacts/internal/mention"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration. Every field can be set
// from YAML and overridden from the environment.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Vault  VaultConfig       `yaml:"vault"`
	Dex    DexConfig         `yaml:"dex"`
	Memo   MemoConfig        `yaml:"memo"`
	Cache  CacheConfig       `yaml:"cache"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Dex.Validate(); err != nil {
		return fmt.Errorf("dex: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" env:"DEX_LOG_LEVEL"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" env:"DEX_HTTP_PORT"`
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

// VaultConfig locates the Markdown vault.
type VaultConfig struct {
	Path string `yaml:"path" env:"DEX_VAULT_PATH"`
	// Name is used in obsidian:// back-links. Defaults to the base name of Path.
	Name string `yaml:"name" env:"DEX_VAULT_NAME"`
	// Ignore lists folders, relative to Path, that are never scanned.
	Ignore []string `yaml:"ignore" env:"DEX_VAULT_IGNORE" envSeparator:","`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// DexConfig holds Dex API access and mention link settings.
type DexConfig struct {
	APIKey  string `yaml:"api_key" env:"DEX_API_KEY"`
	BaseURL string `yaml:"base_url" env:"DEX_BASE_URL"`
	// ProfileURL prefixes contact ids in direct mention links.
	ProfileURL string `yaml:"profile_url" env:"DEX_PROFILE_URL"`
	// LinkStyle is "direct" for [Name](profile-url) or "internal" for [[Name]].
	LinkStyle string `yaml:"link_style" env:"DEX_LINK_STYLE"`
	// ContactFolder holds one page per contact for internal links.
	ContactFolder string `yaml:"contact_folder" env:"DEX_CONTACT_FOLDER"`
}

// Validate validates the Dex configuration.
func (c *DexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.APIKey, validation.Required),
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.ProfileURL, validation.Required),
		validation.Field(&c.LinkStyle, validation.Required, validation.In(mention.StyleDirect, mention.StyleInternal)),
	)
}

// MemoConfig controls memo rendering.
type MemoConfig struct {
	// Template is the memo body template; empty uses the built-in one.
	Template string `yaml:"template" env:"DEX_MEMO_TEMPLATE"`
}

// CacheConfig controls the contact cache.
type CacheConfig struct {
	TTL      time.Duration `yaml:"ttl" env:"DEX_CACHE_TTL"`
	PageSize int           `yaml:"page_size" env:"DEX_CACHE_PAGE_SIZE"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.PageSize, validation.Required, validation.Min(1), validation.Max(1000)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path" env:"DEX_SQLITE_PATH"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration for the local HTTP API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" env:"DEX_AUTH_MODE"`
	Token string `yaml:"token" env:"DEX_AUTH_TOKEN"`
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8765,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		Dex: DexConfig{
			BaseURL:       dex.DefaultBaseURL,
			ProfileURL:    "https://getdex.com/contacts",
			LinkStyle:     mention.StyleDirect,
			ContactFolder: "People",
		},
		Cache: CacheConfig{
			TTL:      contacts.DefaultTTL,
			PageSize: contacts.DefaultPageSize,
		},
		SQLite: SQLiteConfig{
			Path: "./dex-contacts.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
