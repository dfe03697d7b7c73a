// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestValidateWithSchema(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{
			name: "valid minimal config",
			content: `minol:
  email: user@example.com
  password: secret
`,
			wantErr: false,
		},
		{
			name: "valid full config",
			content: `minol:
  email: user@example.com
  password: secret
  base_url: https://webservices.minol.com
mqtt:
  host: localhost
  port: 1883
  client_id: minol-mqtt-bridge
sync:
  interval_hours: 6
  months_back: 12
history:
  url: http://localhost:8086
  token: test-token
  organization: home
  bucket: minol
logging:
  level: info
`,
			wantErr: false,
		},
		{
			name: "missing minol section",
			content: `mqtt:
  host: localhost
`,
			wantErr: true,
		},
		{
			name: "empty email",
			content: `minol:
  email: ""
  password: secret
`,
			wantErr: true,
		},
		{
			name: "port as string",
			content: `minol:
  email: user@example.com
  password: secret
mqtt:
  port: not-a-number
`,
			wantErr: true,
		},
		{
			name: "port out of range",
			content: `minol:
  email: user@example.com
  password: secret
mqtt:
  port: 99999
`,
			wantErr: true,
		},
		{
			name: "unknown top-level key",
			content: `minol:
  email: user@example.com
  password: secret
slack:
  webhook: https://hooks.example.com
`,
			wantErr: true,
		},
		{
			name: "invalid log level",
			content: `minol:
  email: user@example.com
  password: secret
logging:
  level: verbose
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			err := ValidateWithSchema(path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateWithSchema() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateWithSchemaMissingFile(t *testing.T) {
	err := ValidateWithSchema(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("ValidateWithSchema() expected error for missing file, got nil")
	}
}

func TestGetSchemaJSON(t *testing.T) {
	schema := GetSchemaJSON()
	if !strings.Contains(schema, "Minol MQTT Bridge Configuration") {
		t.Error("embedded schema is missing its title")
	}
	if !strings.Contains(schema, `"required": ["email", "password"]`) {
		t.Error("embedded schema is missing the credential requirements")
	}
}
