package config

import (
	"os"
	"path/filepath"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_NoAPIKeys(t *testing.T) {
	cfg := Defaults()
	cfg.Gemini.APIKeys = nil
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty apiKeys")
	}
}

func TestValidate_BlankAPIKey(t *testing.T) {
	cfg := Defaults()
	cfg.Gemini.APIKeys = []string{"key-a", "  "}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for blank key in pool")
	}
}

func TestValidate_RotateEvery(t *testing.T) {
	cfg := Defaults()
	cfg.Gemini.RotateEvery = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for rotateEvery=0")
	}
}

func TestValidate_DiscordEnabledWithoutToken(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Discord.Enabled = true
	cfg.Channels.Discord.Token = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for enabled discord without token")
	}
}

func TestValidate_HistoryCap(t *testing.T) {
	cfg := Defaults()
	cfg.History.MaxTurns = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxTurns=0")
	}

	cfg.History.MaxTurns = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("maxTurns=1 should be valid: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "loud"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestValidate_AuditNeedsPath(t *testing.T) {
	cfg := Defaults()
	cfg.Audit.Enabled = true
	cfg.Audit.DBPath = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for audit without dbPath")
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_Set(t *testing.T) {
	t.Setenv("HRAI_TEST_TOKEN", "tok-123")
	got := ExpandEnvVars(`{"token":"${HRAI_TEST_TOKEN}"}`)
	want := `{"token":"tok-123"}`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	os.Unsetenv("HRAI_TEST_MISSING")
	got := ExpandEnvVars(`${HRAI_TEST_MISSING:-fallback}`)
	if got != "fallback" {
		t.Fatalf("got %q, want fallback", got)
	}
}

func TestExpandEnvVars_UnsetNoDefault(t *testing.T) {
	os.Unsetenv("HRAI_TEST_MISSING")
	got := ExpandEnvVars(`${HRAI_TEST_MISSING}`)
	if got != "${HRAI_TEST_MISSING}" {
		t.Fatalf("unset var without default should stay literal, got %q", got)
	}
}

// --- Load ---

func TestLoad_JSON(t *testing.T) {
	t.Setenv("HRAI_TEST_KEY", "k1")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"gemini": {"apiKeys": ["${HRAI_TEST_KEY}", "k2"], "rotateEvery": 10},
		"channels": {"discord": {"enabled": true, "token": "t"}},
		"history": {"maxTurns": 8}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Gemini.APIKeys) != 2 || cfg.Gemini.APIKeys[0] != "k1" {
		t.Fatalf("env expansion failed: %v", cfg.Gemini.APIKeys)
	}
	if cfg.Gemini.RotateEvery != 10 {
		t.Fatalf("rotateEvery = %d, want 10", cfg.Gemini.RotateEvery)
	}
	if cfg.History.MaxTurns != 8 {
		t.Fatalf("maxTurns = %d, want 8", cfg.History.MaxTurns)
	}
	// Defaults fill fields the file omits.
	if cfg.Chunking.MaxChunkLen != defaultMaxChunkLen {
		t.Fatalf("chunk default not applied: %d", cfg.Chunking.MaxChunkLen)
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "gemini:\n  apiKeys: [\"k1\"]\nchannels:\n  discord:\n    enabled: false\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if len(cfg.Gemini.APIKeys) != 1 || cfg.Gemini.APIKeys[0] != "k1" {
		t.Fatalf("yaml keys = %v", cfg.Gemini.APIKeys)
	}
	if cfg.Channels.Discord.Enabled {
		t.Fatal("discord should be disabled")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Defaults()
	cfg.Gemini.APIKeys = []string{"a", "b", "c"}
	cfg.Access.RequiredRole = "ai-users"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Gemini.APIKeys) != 3 {
		t.Fatalf("keys = %v", loaded.Gemini.APIKeys)
	}
	if loaded.Access.RequiredRole != "ai-users" {
		t.Fatalf("requiredRole = %q", loaded.Access.RequiredRole)
	}
}
