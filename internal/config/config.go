package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	// DatabasePath is the SQLite presence journal. Empty disables it.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	MaxMessageBytes    int64    `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SendBuffer         int      `mapstructure:"send_buffer" yaml:"send_buffer"`
	CommandBuffer      int      `mapstructure:"command_buffer" yaml:"command_buffer"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	AllowedOrigins     []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	// ChatEcho delivers chat messages back to their sender.
	ChatEcho bool `mapstructure:"chat_echo" yaml:"chat_echo"`
	// UserFanOut is "all" or "first".
	UserFanOut string `mapstructure:"user_fanout" yaml:"user_fanout"`

	// APISecret protects the collaborator REST API. Empty leaves it open.
	APISecret   string `mapstructure:"api_secret" yaml:"api_secret"`
	APIIssuer   string `mapstructure:"api_issuer" yaml:"api_issuer"`
	APIAudience string `mapstructure:"api_audience" yaml:"api_audience"`

	// IdentifySecret verifies identify tokens.
	IdentifySecret   string `mapstructure:"identify_secret" yaml:"identify_secret"`
	IdentifyRequired bool   `mapstructure:"identify_required" yaml:"identify_required"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		DatabasePath:       "wapcast.db",
		MaxMessageBytes:    1 << 20,
		SendBuffer:         64,
		CommandBuffer:      32,
		RateLimitPerMinute: 600,
		AllowedOrigins:     []string{"*"},
		ChatEcho:           true,
		UserFanOut:         "all",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Boolean fields are not merged since their zero value is meaningful.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.SendBuffer != 0 {
		c.SendBuffer = other.SendBuffer
	}
	if other.CommandBuffer != 0 {
		c.CommandBuffer = other.CommandBuffer
	}
	if other.RateLimitPerMinute != 0 {
		c.RateLimitPerMinute = other.RateLimitPerMinute
	}
	if len(other.AllowedOrigins) != 0 {
		c.AllowedOrigins = other.AllowedOrigins
	}
	if other.UserFanOut != "" {
		c.UserFanOut = other.UserFanOut
	}
	if other.APISecret != "" {
		c.APISecret = other.APISecret
	}
	if other.APIIssuer != "" {
		c.APIIssuer = other.APIIssuer
	}
	if other.APIAudience != "" {
		c.APIAudience = other.APIAudience
	}
	if other.IdentifySecret != "" {
		c.IdentifySecret = other.IdentifySecret
	}
}
