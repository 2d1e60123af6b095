package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		content     string
		wantErr     bool
		validateFn  func(*testing.T, *Config)
		description string
	}{
		{
			name:     "yaml with all sections",
			filename: "config.yaml",
			content: `
backend:
  base_url: "https://esg.example.com"
  timeout: 90s
  api_token: "tok"
  requests_per_second: 2.5
chat:
  top_k: 12
export:
  filename: "board_pack.pdf"
  wrap_width: 70
  font_file: "/fonts/DejaVuSans.ttf"
log:
  level: debug
  format: json
tracing:
  enabled: true
  service_name: "esg-cli"
display:
  no_color: true
`,
			description: "Should load every section from YAML",
			validateFn: func(t *testing.T, cfg *Config) {
				if cfg.Backend.BaseURL != "https://esg.example.com" {
					t.Errorf("Expected base URL 'https://esg.example.com', got '%s'", cfg.Backend.BaseURL)
				}
				if cfg.Backend.Timeout != 90*time.Second {
					t.Errorf("Expected timeout 90s, got %v", cfg.Backend.Timeout)
				}
				if cfg.Backend.APIToken != "tok" {
					t.Errorf("Expected token 'tok', got '%s'", cfg.Backend.APIToken)
				}
				if cfg.Backend.RequestsPerSecond != 2.5 {
					t.Errorf("Expected 2.5 requests per second, got %v", cfg.Backend.RequestsPerSecond)
				}
				if cfg.Chat.TopK != 12 {
					t.Errorf("Expected top_k 12, got %d", cfg.Chat.TopK)
				}
				if cfg.Export.Filename != "board_pack.pdf" || cfg.Export.WrapWidth != 70 || cfg.Export.FontFile != "/fonts/DejaVuSans.ttf" {
					t.Errorf("Unexpected export config %+v", cfg.Export)
				}
				if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
					t.Errorf("Unexpected log config %+v", cfg.Log)
				}
				if !cfg.Tracing.Enabled || cfg.Tracing.ServiceName != "esg-cli" {
					t.Errorf("Unexpected tracing config %+v", cfg.Tracing)
				}
				if !cfg.Display.NoColor {
					t.Error("Expected no_color to be true")
				}
			},
		},
		{
			name:     "toml by extension",
			filename: "config.toml",
			content: `
[backend]
base_url = "http://10.0.0.5:8000"
timeout = "15s"

[chat]
top_k = 4
`,
			description: "Should parse .toml files as TOML",
			validateFn: func(t *testing.T, cfg *Config) {
				if cfg.Backend.BaseURL != "http://10.0.0.5:8000" {
					t.Errorf("Expected base URL 'http://10.0.0.5:8000', got '%s'", cfg.Backend.BaseURL)
				}
				if cfg.Backend.Timeout != 15*time.Second {
					t.Errorf("Expected timeout 15s, got %v", cfg.Backend.Timeout)
				}
				if cfg.Chat.TopK != 4 {
					t.Errorf("Expected top_k 4, got %d", cfg.Chat.TopK)
				}
				if cfg.Export.Filename != DefaultFilename {
					t.Errorf("Expected default filename, got '%s'", cfg.Export.Filename)
				}
			},
		},
		{
			name:        "empty file gets defaults",
			filename:    "empty.yml",
			content:     ``,
			description: "Should apply defaults to an empty file",
			validateFn: func(t *testing.T, cfg *Config) {
				if cfg.Backend.BaseURL != DefaultBaseURL {
					t.Errorf("Expected default base URL, got '%s'", cfg.Backend.BaseURL)
				}
				if cfg.Backend.Timeout != DefaultTimeout {
					t.Errorf("Expected default timeout, got %v", cfg.Backend.Timeout)
				}
				if cfg.Chat.TopK != DefaultTopK {
					t.Errorf("Expected default top_k, got %d", cfg.Chat.TopK)
				}
				if cfg.Export.WrapWidth != DefaultWrapWidth {
					t.Errorf("Expected default wrap width, got %d", cfg.Export.WrapWidth)
				}
				if cfg.Log.Format != "text" {
					t.Errorf("Expected text log format, got '%s'", cfg.Log.Format)
				}
			},
		},
		{
			name:        "invalid yaml",
			filename:    "bad.yaml",
			content:     "backend: [unclosed",
			wantErr:     true,
			description: "Should error on malformed YAML",
		},
		{
			name:        "invalid toml",
			filename:    "bad.toml",
			content:     "[backend\nbase_url = ",
			wantErr:     true,
			description: "Should error on malformed TOML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configFile := filepath.Join(tmpDir, tt.filename)
			if err := os.WriteFile(configFile, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write test config: %v", err)
			}

			cfg, err := LoadFromFile(configFile)
			if (err != nil) != tt.wantErr {
				t.Errorf("%s: LoadFromFile() error = %v, wantErr %v", tt.description, err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.validateFn != nil {
				tt.validateFn(t, cfg)
			}
		})
	}
}

func TestLoadFromFile_NonExistent(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/to/config.yaml")
	if err == nil {
		t.Error("Expected error when loading non-existent file")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvBackendURL: "http://backend:9000",
		EnvAPIToken:   "from-env",
		EnvTopK:       "3",
		EnvLogLevel:   "info",
		EnvTracing:    "true",
		EnvStateFile:  "/tmp/esg-state.yaml",
	}
	cfg := Default()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Backend.BaseURL != "http://backend:9000" {
		t.Errorf("Expected env base URL, got '%s'", cfg.Backend.BaseURL)
	}
	if cfg.Backend.APIToken != "from-env" {
		t.Errorf("Expected env token, got '%s'", cfg.Backend.APIToken)
	}
	if cfg.Chat.TopK != 3 {
		t.Errorf("Expected top_k 3, got %d", cfg.Chat.TopK)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected level 'info', got '%s'", cfg.Log.Level)
	}
	if !cfg.Tracing.Enabled {
		t.Error("Expected tracing to be enabled")
	}
	if cfg.State.File != "/tmp/esg-state.yaml" {
		t.Errorf("Expected env state file, got '%s'", cfg.State.File)
	}

	for _, key := range []string{EnvTopK, EnvTracing} {
		bad := map[string]string{key: "not-a-value"}
		if err := Default().ApplyEnv(func(k string) string { return bad[k] }); err == nil {
			t.Errorf("Expected error for invalid %s", key)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"relative url", func(c *Config) { c.Backend.BaseURL = "localhost:8000" }, "backend.base_url"},
		{"missing host", func(c *Config) { c.Backend.BaseURL = "http://" }, "backend.base_url"},
		{"negative timeout", func(c *Config) { c.Backend.Timeout = -time.Second }, "backend.timeout"},
		{"zero top_k", func(c *Config) { c.Chat.TopK = 0 }, "chat.top_k"},
		{"negative rate", func(c *Config) { c.Backend.RequestsPerSecond = -1 }, "requests_per_second"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configFile, []byte("chat:\n  top_k: 5\n"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	t.Setenv(EnvTopK, "2")

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Chat.TopK != 2 {
		t.Errorf("Expected env top_k 2, got %d", cfg.Chat.TopK)
	}

	t.Setenv(EnvTopK, "0")
	if _, err := Load(configFile); err == nil {
		t.Error("Expected validation error for top_k 0")
	}
}

func TestClientConfig(t *testing.T) {
	cfg := Default()
	cfg.Backend.APIToken = "abc"
	cc := cfg.ClientConfig()
	if cc.BaseURL != DefaultBaseURL || cc.Token != "abc" || cc.Timeout != DefaultTimeout {
		t.Errorf("Unexpected client config %+v", cc)
	}
}
