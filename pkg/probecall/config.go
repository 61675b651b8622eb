// Package probecall wires configuration for the patient-simulator
// probe: the HTTP server, the telephony provider, the realtime speech
// vendor and the per-call policy knobs.
package probecall

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/probecall/probecall/pkg/configutil"
	"github.com/probecall/probecall/pkg/realtime"
	"github.com/spf13/viper"
)

type Config struct {
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	Server        ServerConfig        `mapstructure:"server"`
	Telnyx        map[string]any      `mapstructure:"telnyx"`
	Realtime      map[string]any      `mapstructure:"realtime"`
	Call          CallConfig          `mapstructure:"call"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	PublicURL   string `mapstructure:"public_url"`
	WebhookPath string `mapstructure:"webhook_path"`
	StreamPath  string `mapstructure:"stream_path"`
}

// TelnyxSettings is the typed form of the telnyx settings map.
type TelnyxSettings struct {
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	ConnectionID string `mapstructure:"connection_id"`
	FromNumber   string `mapstructure:"from_number"`
}

type CallConfig struct {
	TargetNumber   string `mapstructure:"target_number"`
	MaxDurationS   int    `mapstructure:"max_duration_s"`
	TranscriptsDir string `mapstructure:"transcripts_dir"`
}

type ObservabilityConfig struct {
	ArtifactsDir string `mapstructure:"artifacts_dir"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

var telnyxSchema = configutil.Schema{
	Required: []string{"api_key", "connection_id", "from_number"},
	Optional: []string{"base_url"},
}

var realtimeSchema = configutil.Schema{
	Required: []string{"api_key"},
	Optional: []string{
		"model", "base_url", "voice", "audio_format", "transcription_model",
		"vad_threshold", "vad_prefix_padding_ms", "vad_silence_duration_ms",
		"temperature", "seed_opening", "handshake_timeout_ms",
	},
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.webhook_path", "/webhook")
	v.SetDefault("server.stream_path", "/media-stream")
	v.SetDefault("call.max_duration_s", 240)
	v.SetDefault("call.transcripts_dir", "transcripts")
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("privacy.redact_pii", false)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := configutil.RequireString(c.Server.PublicURL, "server.public_url"); err != nil {
		return err
	}
	if err := configutil.RequireString(c.Call.TargetNumber, "call.target_number"); err != nil {
		return err
	}
	if err := configutil.ValidateSettings(c.Telnyx, telnyxSchema); err != nil {
		return fmt.Errorf("telnyx settings: %w", err)
	}
	if err := configutil.ValidateSettings(c.Realtime, realtimeSchema); err != nil {
		return fmt.Errorf("realtime settings: %w", err)
	}
	return nil
}

// TelnyxSettings decodes the telnyx settings map.
func (c *Config) TelnyxSettings() (TelnyxSettings, error) {
	var out TelnyxSettings
	if err := configutil.DecodeSettings(c.Telnyx, &out); err != nil {
		return TelnyxSettings{}, fmt.Errorf("decode telnyx settings: %w", err)
	}
	return out, nil
}

// RealtimeConfig decodes the realtime settings map into the speech
// client configuration.
func (c *Config) RealtimeConfig() (realtime.Config, error) {
	var out realtime.Config
	if err := configutil.DecodeSettings(c.Realtime, &out); err != nil {
		return realtime.Config{}, fmt.Errorf("decode realtime settings: %w", err)
	}
	return out, nil
}

// WebhookURL is the public Call Control webhook endpoint.
func (c *Config) WebhookURL() string {
	return strings.TrimRight(c.Server.PublicURL, "/") + c.Server.WebhookPath
}

// StreamURL is the public media-stream endpoint the provider dials,
// derived from the public URL with the scheme switched to websocket.
func (c *Config) StreamURL() string {
	base := strings.TrimRight(c.Server.PublicURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + c.Server.StreamPath
}

func (c *Config) MaxCallDuration() time.Duration {
	return time.Duration(c.Call.MaxDurationS) * time.Second
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Telnyx = expandSettings(cfg.Telnyx)
	cfg.Realtime = expandSettings(cfg.Realtime)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	}
}
