// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Minol: MinolConfig{
			Email:    "user@example.com",
			Password: "secret",
			BaseURL:  "https://webservices.minol.com",
		},
		MQTT: MQTTConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "minol-mqtt-bridge",
		},
		Sync: SyncConfig{
			IntervalHours: 6,
			MonthsBack:    12,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing email",
			mutate:  func(c *Config) { c.Minol.Email = "" },
			wantErr: true,
		},
		{
			name:    "customer number as login",
			mutate:  func(c *Config) { c.Minol.Email = "12345678" },
			wantErr: false,
		},
		{
			name:    "missing password",
			mutate:  func(c *Config) { c.Minol.Password = "" },
			wantErr: true,
		},
		{
			name:    "missing base url",
			mutate:  func(c *Config) { c.Minol.BaseURL = "" },
			wantErr: true,
		},
		{
			name:    "plain http base url",
			mutate:  func(c *Config) { c.Minol.BaseURL = "http://webservices.minol.com" },
			wantErr: true,
		},
		{
			name:    "plain http base url on localhost",
			mutate:  func(c *Config) { c.Minol.BaseURL = "http://localhost:8080" },
			wantErr: false,
		},
		{
			name:    "invalid mqtt port",
			mutate:  func(c *Config) { c.MQTT.Port = 0 },
			wantErr: true,
		},
		{
			name:    "mqtt port out of range",
			mutate:  func(c *Config) { c.MQTT.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "empty mqtt host allows discovery",
			mutate:  func(c *Config) { c.MQTT.Host = "" },
			wantErr: false,
		},
		{
			name:    "zero sync interval",
			mutate:  func(c *Config) { c.Sync.IntervalHours = 0 },
			wantErr: true,
		},
		{
			name:    "sync interval too large",
			mutate:  func(c *Config) { c.Sync.IntervalHours = 200 },
			wantErr: true,
		},
		{
			name:    "months back out of range",
			mutate:  func(c *Config) { c.Sync.MonthsBack = 48 },
			wantErr: true,
		},
		{
			name: "history partially configured",
			mutate: func(c *Config) {
				c.History.URL = "http://localhost:8086"
			},
			wantErr: true,
		},
		{
			name: "history fully configured",
			mutate: func(c *Config) {
				c.History = HistoryConfig{
					URL:          "http://localhost:8086",
					Token:        "test-token",
					Organization: "home",
					Bucket:       "minol",
				}
			},
			wantErr: false,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `minol:
  email: user@example.com
  password: secret
mqtt:
  host: broker.local
  username: mqtt-user
  password: mqtt-pass
sync:
  interval_hours: 12
  months_back: 24
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Minol.Email != "user@example.com" {
		t.Errorf("Email = %q, want %q", cfg.Minol.Email, "user@example.com")
	}
	if cfg.Minol.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %q, want default %q", cfg.Minol.BaseURL, defaultBaseURL)
	}
	if cfg.MQTT.Host != "broker.local" {
		t.Errorf("MQTT.Host = %q, want %q", cfg.MQTT.Host, "broker.local")
	}
	if cfg.MQTT.Port != defaultMQTTPort {
		t.Errorf("MQTT.Port = %d, want default %d", cfg.MQTT.Port, defaultMQTTPort)
	}
	if cfg.Sync.IntervalHours != 12 {
		t.Errorf("IntervalHours = %d, want 12", cfg.Sync.IntervalHours)
	}
	if cfg.Sync.MonthsBack != 24 {
		t.Errorf("MonthsBack = %d, want 24", cfg.Sync.MonthsBack)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MINOL_EMAIL", "env@example.com")
	t.Setenv("MINOL_PASSWORD", "env-secret")
	t.Setenv("MQTT_HOST", "env-broker")
	t.Setenv("MQTT_PORT", "8883")
	t.Setenv("SCAN_INTERVAL_HOURS", "3")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Minol.Email != "env@example.com" {
		t.Errorf("Email = %q, want %q", cfg.Minol.Email, "env@example.com")
	}
	if cfg.MQTT.Host != "env-broker" {
		t.Errorf("MQTT.Host = %q, want %q", cfg.MQTT.Host, "env-broker")
	}
	if cfg.MQTT.Port != 8883 {
		t.Errorf("MQTT.Port = %d, want 8883", cfg.MQTT.Port)
	}
	if cfg.Sync.IntervalHours != 3 {
		t.Errorf("IntervalHours = %d, want 3", cfg.Sync.IntervalHours)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Setenv("MINOL_EMAIL", "")
	t.Setenv("MINOL_PASSWORD", "")

	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Error("Load() expected error for missing credentials, got nil")
	}
}

func TestSyncInterval(t *testing.T) {
	cfg := SyncConfig{IntervalHours: 6}
	if got := cfg.Interval(); got != 6*time.Hour {
		t.Errorf("Interval() = %v, want %v", got, 6*time.Hour)
	}
}

func TestHistoryEnabled(t *testing.T) {
	cfg := validConfig()
	if cfg.HistoryEnabled() {
		t.Error("HistoryEnabled() = true for empty history config")
	}
	cfg.History.URL = "http://localhost:8086"
	if !cfg.HistoryEnabled() {
		t.Error("HistoryEnabled() = false with URL set")
	}
}
