// Package config provides Viper-based configuration loading for the coordinator.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds WebSocket listener settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP/WebSocket listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP/WebSocket listener.
	Port int `mapstructure:"port"`
	// AllowedOrigins are the origin patterns accepted during the WebSocket
	// handshake. "*" accepts any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// WriteTimeout is the per-event timeout for outbound writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// IdleTimeout is the duration of client inactivity after which the
	// connection is closed.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// ShutdownTimeout bounds graceful HTTP server shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig holds handshake token verification settings.
type AuthConfig struct {
	// Secret is the shared HMAC secret used to verify bearer tokens.
	Secret string `mapstructure:"secret"`
	// Issuer, when non-empty, must match the token's iss claim.
	Issuer string `mapstructure:"issuer"`
	// Leeway is the clock-skew allowance applied to expiry checks.
	Leeway time.Duration `mapstructure:"leeway"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// RoomsConfig holds room state-machine settings.
type RoomsConfig struct {
	// OutboxBuffer is the per-connection outbound event buffer size.
	OutboxBuffer int `mapstructure:"outbox_buffer"`
	// MaxNickname is the maximum accepted nickname length; longer names are truncated.
	MaxNickname int `mapstructure:"max_nickname"`
	// MaxChatMessage is the maximum accepted chat message length.
	MaxChatMessage int `mapstructure:"max_chat_message"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logging LoggingConfig `mapstructure:"logging"`
	Rooms   RoomsConfig   `mapstructure:"rooms"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateAuth(c.Auth); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateRooms(c.Rooms); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if len(s.AllowedOrigins) == 0 {
		errs = append(errs, "server.allowed_origins must not be empty")
	}
	if s.WriteTimeout < 0 {
		errs = append(errs, "server.write_timeout must not be negative")
	}
	if s.IdleTimeout < 0 {
		errs = append(errs, "server.idle_timeout must not be negative")
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdown_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateAuth(a AuthConfig) error {
	var errs []string
	if a.Secret == "" {
		errs = append(errs, "auth.secret must not be empty")
	}
	if a.Leeway < 0 {
		errs = append(errs, "auth.leeway must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateRooms(r RoomsConfig) error {
	var errs []string
	if r.OutboxBuffer < 1 {
		errs = append(errs, fmt.Sprintf("rooms.outbox_buffer must be >= 1, got %d", r.OutboxBuffer))
	}
	if r.MaxNickname < 1 {
		errs = append(errs, fmt.Sprintf("rooms.max_nickname must be >= 1, got %d", r.MaxNickname))
	}
	if r.MaxChatMessage < 1 {
		errs = append(errs, fmt.Sprintf("rooms.max_chat_message must be >= 1, got %d", r.MaxChatMessage))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with PARLOR_ prefix
	v.SetEnvPrefix("PARLOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	if v == nil {
		return Config{}, errors.New("nil viper instance")
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.leeway", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("rooms.outbox_buffer", 64)
	v.SetDefault("rooms.max_nickname", 20)
	v.SetDefault("rooms.max_chat_message", 500)
}
