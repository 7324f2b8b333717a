// Package config provides configuration management for the request service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// ILS mode constants: which system answers patron lookups.
const (
	// ILSFolio resolves patron barcodes through the Okapi gateway.
	ILSFolio = "folio"
	// ILSVoyager resolves patron barcodes through the legacy mirror.
	ILSVoyager = "voyager"
)

// Config holds all configuration for the request service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`

	// ILS selects the patron data source: folio or voyager.
	ILS string `mapstructure:"ils"`
	// Database contains PostgreSQL connection settings for the request log.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Catalog contains the bibliographic search index settings.
	Catalog CatalogConfig `mapstructure:"catalog"`
	// Folio contains the ILS API settings.
	Folio FolioConfig `mapstructure:"folio"`
	// SCSB contains the shared offsite repository API settings.
	SCSB SCSBConfig `mapstructure:"scsb"`
	// Caiasoft contains the Clancy inventory API settings.
	Caiasoft CaiasoftConfig `mapstructure:"caiasoft"`
	// Voyager contains the legacy patron mirror settings.
	Voyager VoyagerConfig `mapstructure:"voyager"`
	// Mail contains the SMTP relay settings.
	Mail MailConfig `mapstructure:"mail"`
	// Endpoints contains the external fulfillment system URLs.
	Endpoints EndpointsConfig `mapstructure:"endpoints"`
	// Locations contains location-code classification settings.
	Locations LocationsConfig `mapstructure:"locations"`
	// CUMCBlock contains the medical-campus redirect settings.
	CUMCBlock CUMCBlockConfig `mapstructure:"cumc_block"`
	// Services lists the configured request services.
	Services []ServiceConfig `mapstructure:"services"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password. Loaded only from the
	// environment.
	Password string `mapstructure:"-"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca,
	// verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open.
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum idle time before a connection closes.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between idle connection checks.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files.
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `mapstructure:"level"`
	// Format is the output format: json or console.
	Format string `mapstructure:"format"`
	// Output is the log destination: stdout or stderr.
	Output string `mapstructure:"output"`
	// TimeFormat is the timestamp format for log entries.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed.
	Enabled bool `mapstructure:"enabled"`
	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`
}

// CatalogConfig holds the bibliographic search index settings.
type CatalogConfig struct {
	// SolrURL is the base URL of the catalog Solr core.
	SolrURL string `mapstructure:"solr_url"`
	// Timeout is the per-lookup timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// FolioConfig holds ILS API settings.
type FolioConfig struct {
	// BaseURL is the Okapi gateway URL.
	BaseURL string `mapstructure:"base_url"`
	// Tenant is the Okapi tenant id.
	Tenant string `mapstructure:"tenant"`
	// Username is the API account login.
	Username string `mapstructure:"username"`
	// Password is loaded only from the environment.
	Password string `mapstructure:"-"`
	// Timeout is the per-call timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// SCSBConfig holds shared offsite repository API settings.
type SCSBConfig struct {
	// BaseURL is the SCSB middleware URL.
	BaseURL string `mapstructure:"base_url"`
	// APIKey is loaded only from the environment.
	APIKey string `mapstructure:"-"`
	// Timeout is the per-call timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// CaiasoftConfig holds Clancy inventory API settings.
type CaiasoftConfig struct {
	// BaseURL is the CaiaSoft API URL.
	BaseURL string `mapstructure:"base_url"`
	// APIKey is loaded only from the environment.
	APIKey string `mapstructure:"-"`
	// Timeout is the per-call timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// VoyagerConfig holds legacy patron mirror settings.
type VoyagerConfig struct {
	// Enabled controls whether the mirror is consulted at all.
	Enabled bool `mapstructure:"enabled"`
	// DSN is the mirror connection string. Loaded only from the
	// environment.
	DSN string `mapstructure:"-"`
}

// MailConfig holds SMTP relay settings.
type MailConfig struct {
	// Addr is the relay host:port.
	Addr string `mapstructure:"addr"`
	// From is the default sender address.
	From string `mapstructure:"from"`
	// Username enables PLAIN auth when set.
	Username string `mapstructure:"username"`
	// Password is loaded only from the environment.
	Password string `mapstructure:"-"`
}

// EndpointsConfig holds the external fulfillment system URLs.
type EndpointsConfig struct {
	// IlliadBaseURL is the document delivery OpenURL base.
	IlliadBaseURL string `mapstructure:"illiad_base_url"`
	// IlliadZCHBaseURL is the medical-campus document delivery base.
	IlliadZCHBaseURL string `mapstructure:"illiad_zch_base_url"`
	// IlliadLoginURL is the document delivery login page.
	IlliadLoginURL string `mapstructure:"illiad_login_url"`
	// EzproxyLoginURL is the proxy prefix put in front of ILLiad URLs.
	EzproxyLoginURL string `mapstructure:"ezproxy_login_url"`
	// ReshareBaseURL is the resource-sharing search base.
	ReshareBaseURL string `mapstructure:"reshare_base_url"`
	// AeonLoginURL is the special collections request system login page.
	AeonLoginURL string `mapstructure:"aeon_login_url"`
	// CatalogBaseURL is the public catalog base, used in email links.
	CatalogBaseURL string `mapstructure:"catalog_base_url"`
	// MyAccountURL is the patron borrowing account page.
	MyAccountURL string `mapstructure:"my_account_url"`
}

// LocationsConfig holds location-code classification settings.
type LocationsConfig struct {
	// ClancyCodes lists the location codes managed by the Clancy
	// inventory system.
	ClancyCodes []string `mapstructure:"clancy_codes"`
}

// CUMCBlockConfig redirects medical-campus patrons to their own request
// system.
type CUMCBlockConfig struct {
	// Affil is the affiliation that triggers the redirect.
	Affil string `mapstructure:"affil"`
	// URL is the redirect target.
	URL string `mapstructure:"url"`
}

// ServiceConfig is the configured shape of one request service.
type ServiceConfig struct {
	// Key is the URL path segment the service answers on.
	Key string `mapstructure:"key"`
	// Label is the patron-facing service name.
	Label string `mapstructure:"label"`
	// Type is form or bounce.
	Type string `mapstructure:"type"`
	// Authenticate requires a logged-in patron.
	Authenticate bool `mapstructure:"authenticate"`
	// PermittedAffils gates the service to these affiliations.
	PermittedAffils []string `mapstructure:"permitted_affils"`
	// StaffEmail receives request emails for form services.
	StaffEmail string `mapstructure:"staff_email"`
	// BarnardEmail overrides StaffEmail for Barnard-held material.
	BarnardEmail string `mapstructure:"barnard_email"`
	// LocationCode restricts the service to one holding location.
	LocationCode string `mapstructure:"location_code"`
	// Locations restricts the service to a set of holding locations.
	Locations []string `mapstructure:"locations"`
	// LocationSites maps location codes to the Aeon site handling them.
	LocationSites map[string]string `mapstructure:"location_sites"`
	// VendorEndpoint is the pass-through target for link resolvers.
	VendorEndpoint string `mapstructure:"vendor_endpoint"`
}

// DSN builds the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("VALET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/valet-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine, env vars and defaults carry it.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment
// variables. These fields use mapstructure:"-" so they can never be read
// from config files.
func loadSecrets(cfg *Config) {
	cfg.Database.Password = os.Getenv("VALET_DATABASE_PASSWORD")
	cfg.Folio.Password = os.Getenv("VALET_FOLIO_PASSWORD")
	cfg.SCSB.APIKey = os.Getenv("VALET_SCSB_API_KEY")
	cfg.Caiasoft.APIKey = os.Getenv("VALET_CAIASOFT_API_KEY")
	cfg.Voyager.DSN = os.Getenv("VALET_VOYAGER_DSN")
	cfg.Mail.Password = os.Getenv("VALET_MAIL_PASSWORD")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "valet")
	v.SetDefault("database.name", "valet_service")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Backend defaults
	v.SetDefault("ils", ILSFolio)
	v.SetDefault("catalog.timeout", "10s")
	v.SetDefault("folio.timeout", "15s")
	v.SetDefault("scsb.timeout", "15s")
	v.SetDefault("caiasoft.timeout", "10s")
	v.SetDefault("voyager.enabled", false)

	// Mail defaults
	v.SetDefault("mail.addr", "localhost:25")
	v.SetDefault("mail.from", "noreply@library.columbia.edu")

	// Endpoint defaults
	v.SetDefault("endpoints.catalog_base_url", "https://clio.columbia.edu")
	v.SetDefault("endpoints.my_account_url", "https://clio.columbia.edu/my_account")
	v.SetDefault("endpoints.aeon_login_url", "https://aeon.cul.columbia.edu")

	// Medical-campus redirect defaults
	v.SetDefault("cumc_block.affil", "cumc")
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.ILS != ILSFolio && c.ILS != ILSVoyager {
		return fmt.Errorf("invalid ils mode: %s", c.ILS)
	}
	if c.ILS == ILSVoyager && !c.Voyager.Enabled {
		return fmt.Errorf("ils mode is voyager but the voyager mirror is not enabled")
	}
	if c.Voyager.Enabled && c.Voyager.DSN == "" {
		return fmt.Errorf("voyager mirror enabled but VALET_VOYAGER_DSN is not set")
	}

	seen := make(map[string]bool, len(c.Services))
	for _, service := range c.Services {
		if service.Key == "" {
			return fmt.Errorf("service with empty key")
		}
		if seen[service.Key] {
			return fmt.Errorf("duplicate service key: %s", service.Key)
		}
		seen[service.Key] = true

		if service.Type != "form" && service.Type != "bounce" {
			return fmt.Errorf("service %s: invalid type %q", service.Key, service.Type)
		}
	}

	return nil
}
