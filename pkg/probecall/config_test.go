package probecall

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testConfigYAML = `
environment: test
log_format: text
server:
  public_url: https://probe.example
telnyx:
  api_key: ${TEST_TELNYX_KEY}
  connection_id: conn-1
  from_number: "+15550002222"
realtime:
  api_key: sk-test
  voice: verse
  vad_silence_duration_ms: 900
call:
  target_number: "+15550001111"
  max_duration_s: 120
privacy:
  redact_pii: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TEST_TELNYX_KEY", "telnyx-secret")
	cfg, err := LoadConfig(writeConfig(t, testConfigYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Environment != "test" || cfg.LogFormat != "text" {
		t.Fatalf("unexpected top-level config: %+v", cfg)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level, got %q", cfg.LogLevel)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.WebhookPath != "/webhook" {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if !cfg.Privacy.RedactPII {
		t.Fatalf("expected redact_pii enabled")
	}

	tn, err := cfg.TelnyxSettings()
	if err != nil {
		t.Fatalf("telnyx settings: %v", err)
	}
	if tn.APIKey != "telnyx-secret" {
		t.Fatalf("expected env-expanded api key, got %q", tn.APIKey)
	}
	if tn.ConnectionID != "conn-1" || tn.FromNumber != "+15550002222" {
		t.Fatalf("unexpected telnyx settings: %+v", tn)
	}

	rt, err := cfg.RealtimeConfig()
	if err != nil {
		t.Fatalf("realtime config: %v", err)
	}
	if rt.APIKey != "sk-test" || rt.Voice != "verse" {
		t.Fatalf("unexpected realtime config: %+v", rt)
	}
	if rt.VADSilenceDurationMS != 900 {
		t.Fatalf("expected vad silence 900, got %d", rt.VADSilenceDurationMS)
	}
}

func TestDerivedURLs(t *testing.T) {
	cfg := Config{Server: ServerConfig{
		PublicURL:   "https://probe.example/",
		WebhookPath: "/webhook",
		StreamPath:  "/media-stream",
	}}
	if got := cfg.WebhookURL(); got != "https://probe.example/webhook" {
		t.Fatalf("unexpected webhook url: %q", got)
	}
	if got := cfg.StreamURL(); got != "wss://probe.example/media-stream" {
		t.Fatalf("unexpected stream url: %q", got)
	}

	cfg.Server.PublicURL = "http://localhost:8080"
	if got := cfg.StreamURL(); got != "ws://localhost:8080/media-stream" {
		t.Fatalf("unexpected plain stream url: %q", got)
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	t.Setenv("TEST_TELNYX_KEY", "telnyx-secret")

	noTarget := strings.Replace(testConfigYAML, `target_number: "+15550001111"`, "", 1)
	if _, err := LoadConfig(writeConfig(t, noTarget)); err == nil || !strings.Contains(err.Error(), "call.target_number") {
		t.Fatalf("expected target_number error, got %v", err)
	}

	noConn := strings.Replace(testConfigYAML, "connection_id: conn-1", "", 1)
	if _, err := LoadConfig(writeConfig(t, noConn)); err == nil || !strings.Contains(err.Error(), "connection_id") {
		t.Fatalf("expected connection_id error, got %v", err)
	}
}

func TestLoadConfigRejectsUnknownRealtimeKey(t *testing.T) {
	t.Setenv("TEST_TELNYX_KEY", "telnyx-secret")

	bad := strings.Replace(testConfigYAML, "voice: verse", "voices: verse", 1)
	if _, err := LoadConfig(writeConfig(t, bad)); err == nil || !strings.Contains(err.Error(), "unknown") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}
