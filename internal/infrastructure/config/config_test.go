package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
instance:
  id: "test-instance"
  config_dir: "/srv/platform"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8099
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Instance.ID != "test-instance" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-instance")
	}
	if cfg.Instance.ConfigDir != "/srv/platform" {
		t.Errorf("Instance.ConfigDir = %q, want %q", cfg.Instance.ConfigDir, "/srv/platform")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	// Unset sections keep their defaults.
	if cfg.WebSocket.Path != "/ws" {
		t.Errorf("WebSocket.Path = %q, want default %q", cfg.WebSocket.Path, "/ws")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
instance:
  id: ""
database:
  path: "/tmp/test.db"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	// Both problems are reported in one pass.
	if !strings.Contains(err.Error(), "instance.id is required") {
		t.Errorf("error %q does not mention instance.id", err)
	}
	if !strings.Contains(err.Error(), "security.jwt.secret is required") {
		t.Errorf("error %q does not mention jwt secret", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Security.JWT.Secret = validJWTSecret
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}, wantErr: false},
		{name: "missing instance ID", mutate: func(c *Config) { c.Instance.ID = "" }, wantErr: true},
		{name: "missing config dir", mutate: func(c *Config) { c.Instance.ConfigDir = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "influxdb enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{name: "missing JWT secret", mutate: func(c *Config) { c.Security.JWT.Secret = "" }, wantErr: true},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("ENTITYMANAGER_CONFIG_DIR", "/srv/ha")
	t.Setenv("ENTITYMANAGER_DATABASE_PATH", "/custom/path.db")
	t.Setenv("ENTITYMANAGER_MQTT_HOST", "mqtt.example.com")
	t.Setenv("ENTITYMANAGER_MQTT_USERNAME", "testuser")
	t.Setenv("ENTITYMANAGER_MQTT_PASSWORD", "testpass")
	t.Setenv("ENTITYMANAGER_API_HOST", "192.168.1.1")
	t.Setenv("ENTITYMANAGER_API_PORT", "9000")
	t.Setenv("ENTITYMANAGER_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("ENTITYMANAGER_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	checks := []struct {
		field string
		got   any
		want  any
	}{
		{"Instance.ConfigDir", cfg.Instance.ConfigDir, "/srv/ha"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"API.Port", cfg.API.Port, 9000},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, "jwt-secret"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.field, c.got, c.want)
		}
	}
}

func TestApplyEnvOverrides_IgnoresBadPort(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("ENTITYMANAGER_API_PORT", "not-a-port")

	applyEnvOverrides(cfg)

	if cfg.API.Port != 8099 {
		t.Errorf("API.Port = %d, want default 8099", cfg.API.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Instance.ID == "" {
		t.Error("defaultConfig should have non-empty Instance.ID")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8099 {
		t.Errorf("defaultConfig API.Port = %d, want 8099", cfg.API.Port)
	}
}
