// Package config loads the service configuration.
//
// Values are layered, later sources overriding earlier ones:
//
//  1. built-in defaults ([Default])
//  2. a .env file, loaded into the process environment
//  3. the un-prefixed variables of earlier deployments (PORT, AI_API_KEY,
//     GEMINI_API_KEY, DATABASE_URL, LINE_CHANNEL_ACCESS_TOKEN, LINE_CHANNEL_SECRET)
//  4. CHATKEEPER_* variables, e.g. CHATKEEPER_CHAT_RETENTION_LIMIT for
//     chat.retention_limit
package config

import (
	"time"
)

// Config is the root configuration.
type Config struct {
	Server  Server  `koanf:"server"`
	Chat    Chat    `koanf:"chat"`
	Gemini  Gemini  `koanf:"gemini"`
	Storage Storage `koanf:"storage"`
	Line    Line    `koanf:"line"`
	Log     Log     `koanf:"log"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr            string        `koanf:"addr"             validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
	Metrics         bool          `koanf:"metrics"`
}

// Chat configures sessions and turns.
type Chat struct {
	RetentionLimit        int           `koanf:"retention_limit"         validate:"min=1"`
	FormatStrategy        string        `koanf:"format_strategy"         validate:"oneof=inline structured"`
	SystemInstruction     string        `koanf:"system_instruction"      validate:"required"`
	SystemInstructionFile string        `koanf:"system_instruction_file"`
	LazyInit              bool          `koanf:"lazy_init"`
	DefaultSession        string        `koanf:"default_session"         validate:"required"`
	Fallback              string        `koanf:"fallback"`
	Provider              string        `koanf:"provider"                validate:"oneof=gemini scripted"`
	GenerationTimeout     time.Duration `koanf:"generation_timeout"      validate:"gt=0"`
	MaxOutputTokens       int           `koanf:"max_output_tokens"       validate:"min=1"`
	Temperature           float64       `koanf:"temperature"             validate:"gte=0,lte=2"`
}

// Gemini configures the generation capability.
type Gemini struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`
	Model   string `koanf:"model"    validate:"required"`
}

// Storage selects and configures the persistence backend.
type Storage struct {
	Backend        string        `koanf:"backend"         validate:"oneof=memory postgres redis"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" validate:"gt=0"`

	PostgresDSN      string `koanf:"postgres_dsn"       validate:"required_if=Backend postgres"`
	PostgresTable    string `koanf:"postgres_table"     validate:"required"`
	PostgresMaxConns int32  `koanf:"postgres_max_conns" validate:"gte=0"`
	AutoMigrate      bool   `koanf:"auto_migrate"`

	RedisAddr      string        `koanf:"redis_addr"       validate:"required_if=Backend redis"`
	RedisPassword  string        `koanf:"redis_password"`
	RedisDB        int           `koanf:"redis_db"         validate:"gte=0"`
	RedisKeyPrefix string        `koanf:"redis_key_prefix"`
	RedisTTL       time.Duration `koanf:"redis_ttl"        validate:"gte=0"`
}

// Line configures the LINE webhook and reply relay.
type Line struct {
	ChannelToken  string `koanf:"channel_token"`
	ChannelSecret string `koanf:"channel_secret"`
	BaseURL       string `koanf:"base_url" validate:"omitempty,url"`
}

// Log configures the process logger.
type Log struct {
	Level  string `koanf:"level"  validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:            ":4001",
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Metrics:         true,
		},
		Chat: Chat{
			RetentionLimit:    10,
			FormatStrategy:    "structured",
			SystemInstruction: "You are a helpful assistant.",
			LazyInit:          true,
			DefaultSession:    "default",
			Fallback:          "Sorry, I encountered an error while processing your request.",
			Provider:          "gemini",
			GenerationTimeout: 30 * time.Second,
			MaxOutputTokens:   1000,
			Temperature:       0.7,
		},
		Gemini: Gemini{
			Model: "gemini-2.0-flash",
		},
		Storage: Storage{
			Backend:          "memory",
			ConnectTimeout:   30 * time.Second,
			PostgresTable:    "chat_messages",
			PostgresMaxConns: 10,
			AutoMigrate:      true,
			RedisKeyPrefix:   "chatkeeper:session:",
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
}
