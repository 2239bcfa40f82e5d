package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Database       DatabaseConfig       `yaml:"database"`
	Server         ServerConfig         `yaml:"server"`
	Auth           AuthConfig           `yaml:"auth"`
	Auction        AuctionConfig        `yaml:"auction"`
	Closer         CloserConfig         `yaml:"closer"`
	Broadcast      BroadcastConfig      `yaml:"broadcast"`
	Media          MediaConfig          `yaml:"media"`
	Discord        DiscordConfig        `yaml:"discord"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Driver   string `yaml:"driver"` // "postgres" or "memory"
	// Migrate applies the embedded schema migrations on startup.
	Migrate bool `yaml:"migrate"`
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// AuthConfig holds the settings used to verify identity tokens issued by the
// identity provider.
type AuthConfig struct {
	TokenSecret   string        `yaml:"token_secret"`
	Issuer        string        `yaml:"issuer"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

// AuctionConfig holds bidding rules and store limits.
type AuctionConfig struct {
	// ExtensionWindow is both the "close to the end" threshold and the
	// amount of time an accepted late bid leaves on the clock.
	ExtensionWindow time.Duration `yaml:"extension_window"`
	// StoreTimeout bounds every store call made on behalf of a request.
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

// CloserConfig holds settings for the periodic sweep that closes expired auctions.
type CloserConfig struct {
	Interval      time.Duration `yaml:"interval"`
	RecordTimeout time.Duration `yaml:"record_timeout"`
	Concurrency   int           `yaml:"concurrency"`
	BatchSize     int           `yaml:"batch_size"`
}

// BroadcastConfig holds real-time fan-out settings.
type BroadcastConfig struct {
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	KeepAlive        time.Duration `yaml:"keep_alive"`
	// RedisAddr enables cross-replica fan-out through Redis pub/sub when set.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisChannel  string `yaml:"redis_channel"`
}

// MediaConfig holds media store settings.
type MediaConfig struct {
	CloudinaryURL  string `yaml:"cloudinary_url"`
	Folder         string `yaml:"folder"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// DiscordConfig holds settings for the auction announcer.
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
	// GuildID scopes the slash commands; empty registers them globally.
	GuildID string `yaml:"guild_id"`
}

// Enabled reports whether the announcer should run.
func (d DiscordConfig) Enabled() bool {
	return d.Token != "" && d.ChannelID != ""
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
	LogLevel       string `yaml:"log_level"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
			AllowedOrigins:  []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Driver:  "postgres",
			Migrate: true,
		},
		Auth: AuthConfig{
			Issuer:        "sneakerbid",
			TokenDuration: 30 * 24 * time.Hour,
		},
		Auction: AuctionConfig{
			ExtensionWindow: 30 * time.Second,
			StoreTimeout:    5 * time.Second,
		},
		Closer: CloserConfig{
			Interval:      60 * time.Second,
			RecordTimeout: 10 * time.Second,
			Concurrency:   8,
			BatchSize:     500,
		},
		Broadcast: BroadcastConfig{
			SubscriberBuffer: 16,
			KeepAlive:        15 * time.Second,
			RedisChannel:     "sneakerbid:events",
		},
		Media: MediaConfig{
			Folder:         "sneakerbid",
			MaxUploadBytes: 10 << 20,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "sneakerbid",
			ServiceVersion: "0.1.0",
			LogLevel:       "info",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "sneakerbid-closer",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
	}
}

// Load reads a YAML configuration file from the given path. ${VAR} references
// in the file are expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres", "memory":
		// valid
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q: must be \"postgres\" or \"memory\"", c.Database.Driver))
	}
	if c.Auth.TokenSecret == "" {
		errs = append(errs, errors.New("auth.token_secret is required"))
	}
	if c.Auction.ExtensionWindow <= 0 {
		errs = append(errs, errors.New("auction.extension_window must be positive"))
	}
	if c.Auction.StoreTimeout <= 0 {
		errs = append(errs, errors.New("auction.store_timeout must be positive"))
	}
	if c.Closer.Interval <= 0 {
		errs = append(errs, errors.New("closer.interval must be positive"))
	}
	if c.Closer.RecordTimeout <= 0 {
		errs = append(errs, errors.New("closer.record_timeout must be positive"))
	}
	if c.Closer.Concurrency < 1 {
		errs = append(errs, errors.New("closer.concurrency must be at least 1"))
	}
	return errors.Join(errs...)
}
