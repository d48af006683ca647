package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	// RedisAddr moves session storage to Redis when non-empty.
	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr"`

	JWTSecret      string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer      string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience    string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl" yaml:"access_token_ttl"`
	SessionTTL     time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`

	// SweepInterval bounds how long a closed socket lingers in the registry.
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	// IdentitySource selects who assigns socket identifiers: "server"
	// (default) or "client" (identification handshake required).
	IdentitySource string `mapstructure:"identity_source" yaml:"identity_source"`
	// Endpoints is the closed enumeration of invalidation topics.
	Endpoints []string `mapstructure:"endpoints" yaml:"endpoints"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// Identity source modes.
const (
	IdentityServer = "server"
	IdentityClient = "client"
)

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "pushgate.db",
		JWTIssuer:         "pushgate",
		JWTAudience:       "pushgate",
		AccessTokenTTL:    24 * time.Hour,
		SessionTTL:        14 * 24 * time.Hour,
		SweepInterval:     10 * time.Second,
		IdentitySource:    IdentityServer,
		Endpoints:         []string{},
		LogLevel:          "info",
	}
}
