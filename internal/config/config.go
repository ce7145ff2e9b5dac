// Package config provides configuration loading and management for the hub server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mouneyrac/moodle-local-hub/internal/model"
)

const (
	// StorageDriverPostgres persists the directory in PostgreSQL
	StorageDriverPostgres = "postgres"

	// StorageDriverMemory keeps the directory in process memory
	StorageDriverMemory = "memory"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Hub          HubConfig          `yaml:"hub"`
	Quota        QuotaConfig        `yaml:"quota,omitempty"`
	Capabilities CapabilitiesConfig `yaml:"capabilities,omitempty"`
	Storage      StorageConfig      `yaml:"storage,omitempty"`
	Database     *DatabaseConfig    `yaml:"database,omitempty"`
	Server       ServerConfig       `yaml:"server,omitempty"`
}

// HubConfig is the descriptor this hub advertises to prospective registrants
type HubConfig struct {
	// Name is the display name of the hub
	Name string `yaml:"name"`

	// Description is a short blurb shown in hub listings
	Description string `yaml:"description"`

	// ContactName and ContactEmail identify the hub operator
	ContactName  string `yaml:"contactName"`
	ContactEmail string `yaml:"contactEmail"`

	// Logo is the URL of the hub logo, if any
	Logo string `yaml:"logo,omitempty"`

	// Privacy is the hub's own listing privacy (notdisplayed, named, linked)
	Privacy string `yaml:"privacy"`

	// Language is the primary language of the hub
	Language string `yaml:"language"`

	// URL is the public base URL of this hub
	URL string `yaml:"url"`
}

// QuotaConfig bounds course publication per site
type QuotaConfig struct {
	// MaxCoursesPerDay is the default number of courses a site may publish
	// per rolling 24-hour window. Omit for no limit; 0 disables publishing
	// for sites without a per-site override.
	MaxCoursesPerDay *int64 `yaml:"maxCoursesPerDay,omitempty"`
}

// CapabilitiesConfig overrides the capability grants. Empty lists fall back
// to the built-in defaults.
type CapabilitiesConfig struct {
	// Anonymous is the capability set of unauthenticated callers
	Anonymous []string `yaml:"anonymous,omitempty"`

	// Site is the capability set of registered sites
	Site []string `yaml:"site,omitempty"`
}

// StorageConfig selects the directory store backend
type StorageConfig struct {
	// Driver is either "postgres" or "memory"
	Driver string `yaml:"driver,omitempty"`
}

// ServerConfig defines the HTTP listener settings
type ServerConfig struct {
	// Address is the listen address, e.g. ":8080"
	Address string `yaml:"address,omitempty"`

	// ReadTimeoutSeconds and WriteTimeoutSeconds bound request handling
	ReadTimeoutSeconds  int `yaml:"readTimeoutSeconds,omitempty"`
	WriteTimeoutSeconds int `yaml:"writeTimeoutSeconds,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// This is the recommended approach for production deployments
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Password is the inline database password. Lowest priority; prefer
	// PasswordFile or the HUB_DB_PASSWORD environment variable.
	Password string `yaml:"password,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MinIdleConns is the minimum number of idle connections in the pool
	MinIdleConns int32 `yaml:"minIdleConns,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from HUB_DB_PASSWORD environment variable
// 3. The inline Password field
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	// Priority 1: Read from file if specified
	if d.PasswordFile != "" {
		// Use filepath.Clean to prevent path traversal attacks
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		// Trim whitespace (including newlines) from file content
		password := strings.TrimSpace(string(data))
		return password, nil
	}

	// Priority 2: Check environment variable
	if envPassword := os.Getenv("HUB_DB_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	// Priority 3: Inline config value
	if d.Password != "" {
		return d.Password, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile, HUB_DB_PASSWORD environment variable, or password",
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	// URL-escape the password to handle special characters
	escapedPassword := url.QueryEscape(password)

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		escapedPassword,
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	// Read the entire file into memory
	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML content
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Validate the config
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetStorageDriver returns the storage driver, defaulting to postgres
func (c *Config) GetStorageDriver() string {
	if c.Storage.Driver == "" {
		return StorageDriverPostgres
	}
	return c.Storage.Driver
}

// GetServerAddress returns the listen address, defaulting to :8080
func (c *Config) GetServerAddress() string {
	if c.Server.Address == "" {
		return ":8080"
	}
	return c.Server.Address
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if c.Hub.Name == "" {
		return fmt.Errorf("hub: name is required")
	}
	if c.Hub.ContactEmail == "" {
		return fmt.Errorf("hub: contactEmail is required")
	}
	if c.Hub.URL == "" {
		return fmt.Errorf("hub: url is required")
	}
	switch c.Hub.Privacy {
	case "", model.SitePrivacyNotPublished, model.SitePrivacyPublished, model.SitePrivacyPublishedLinked:
	default:
		return fmt.Errorf("hub: invalid privacy '%s'", c.Hub.Privacy)
	}

	if c.Quota.MaxCoursesPerDay != nil && *c.Quota.MaxCoursesPerDay < 0 {
		return fmt.Errorf("quota: maxCoursesPerDay must not be negative")
	}

	switch c.GetStorageDriver() {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.Database == nil {
			return fmt.Errorf("storage: postgres driver requires a database section")
		}
		if c.Database.Host == "" {
			return fmt.Errorf("database: host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("database: invalid port %d", c.Database.Port)
		}
		if c.Database.User == "" {
			return fmt.Errorf("database: user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database: database name is required")
		}
	default:
		return fmt.Errorf("storage: unknown driver '%s'", c.Storage.Driver)
	}

	return nil
}
