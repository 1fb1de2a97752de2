package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every configuration variable.
const EnvPrefix = "CHATKEEPER_"

// DefaultEnvFile is read when Load is given no env file.
const DefaultEnvFile = ".env"

// legacyEnv maps un-prefixed variables to configuration keys. Later entries
// win over earlier ones naming the same key, and prefixed variables take
// precedence over all of them.
var legacyEnv = []struct {
	name  string
	key   string
	value func(string) string
}{
	{name: "PORT", key: "server.addr", value: func(v string) string { return ":" + v }},
	{name: "AI_API_KEY", key: "gemini.api_key"},
	{name: "GEMINI_API_KEY", key: "gemini.api_key"},
	{name: "DATABASE_URL", key: "storage.postgres_dsn"},
	{name: "LINE_CHANNEL_ACCESS_TOKEN", key: "line.channel_token"},
	{name: "LINE_CHANNEL_SECRET", key: "line.channel_secret"},
}

// Load builds the configuration. envFile names the dotenv file to read; an
// empty envFile reads DefaultEnvFile when it exists. A named file that does
// not exist is an error.
func Load(envFile string) (*Config, error) {
	if err := loadDotenv(envFile); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	for _, l := range legacyEnv {
		v := os.Getenv(l.name)
		if v == "" {
			continue
		}
		if l.value != nil {
			v = l.value(v)
		}
		if err := k.Set(l.key, v); err != nil {
			return nil, fmt.Errorf("failed to apply %s: %w", l.name, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return transformEnvKey(strings.TrimPrefix(key, EnvPrefix)), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.resolveInstruction(); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks cfg against its field constraints.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// transformEnvKey maps CHAT_RETENTION_LIMIT to chat.retention_limit: the
// first segment names the section, the rest the field.
func transformEnvKey(s string) string {
	s = strings.ToLower(strings.Trim(s, "_"))
	section, field, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + field
}

func loadDotenv(path string) error {
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// resolveInstruction replaces the system instruction with the content of
// the instruction file when one is configured.
func (c *Config) resolveInstruction() error {
	c.Chat.SystemInstruction = strings.TrimSpace(c.Chat.SystemInstruction)
	if c.Chat.SystemInstructionFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.Chat.SystemInstructionFile)
	if err != nil {
		return fmt.Errorf("failed to read system instruction file: %w", err)
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		c.Chat.SystemInstruction = text
	}
	return nil
}
