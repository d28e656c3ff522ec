package config

import "testing"

func TestLoadRequiresAPIToken(t *testing.T) {
	t.Setenv("GLUCOMATE_API_TOKEN", "")
	if _, err := Load(); err == nil {
		t.Error("Load() error = nil, want missing-token error")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GLUCOMATE_API_TOKEN", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 4600 {
		t.Errorf("Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.GenAI.BaseURL != "http://localhost:8801" {
		t.Errorf("GenAI.BaseURL = %q", cfg.GenAI.BaseURL)
	}
	if !cfg.Reminder.Enabled {
		t.Error("reminders should default to enabled")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GLUCOMATE_API_TOKEN", "secret")
	t.Setenv("GLUCOMATE_SERVER_PORT", "9999")
	t.Setenv("GLUCOMATE_REMINDER_ENABLED", "false")
	t.Setenv("GLUCOMATE_KB_BASE_URL", "http://kb.internal:80")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Reminder.Enabled {
		t.Error("Reminder.Enabled should be overridden to false")
	}
	if cfg.KB.BaseURL != "http://kb.internal:80" {
		t.Errorf("KB.BaseURL = %q", cfg.KB.BaseURL)
	}
}

func TestLoadBadIntFallsBackToDefault(t *testing.T) {
	t.Setenv("GLUCOMATE_API_TOKEN", "secret")
	t.Setenv("GLUCOMATE_SERVER_PORT", "not-a-port")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 4600 {
		t.Errorf("Port = %d, want default 4600", cfg.Server.Port)
	}
}
