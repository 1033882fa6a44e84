package app

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}

	if cfg.API.BaseURL != DefaultConfigAPIBaseURL {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != DefaultConfigAPITimeout {
		t.Errorf("API.Timeout = %v", cfg.API.Timeout)
	}
	if cfg.API.MaxAttempts != DefaultConfigMaxAttempts {
		t.Errorf("API.MaxAttempts = %d", cfg.API.MaxAttempts)
	}
	if cfg.Auth.RefreshMargin != DefaultConfigRefreshMargin {
		t.Errorf("Auth.RefreshMargin = %v", cfg.Auth.RefreshMargin)
	}
	if cfg.Auth.KeySource != KeySourceTypeFile {
		t.Errorf("Auth.KeySource = %q", cfg.Auth.KeySource)
	}
	if cfg.Storage.Dir == "" {
		t.Error("Storage.Dir not auto-detected")
	}
	if cfg.Storage.TokensFile != filepath.Join(cfg.Storage.Dir, "tokens.json") {
		t.Errorf("Storage.TokensFile = %q", cfg.Storage.TokensFile)
	}
	if cfg.Storage.SaltFile != filepath.Join(cfg.Storage.Dir, "salt") {
		t.Errorf("Storage.SaltFile = %q", cfg.Storage.SaltFile)
	}
	if cfg.Storage.SecretFile != filepath.Join(cfg.Storage.Dir, "install_id") {
		t.Errorf("Storage.SecretFile = %q", cfg.Storage.SecretFile)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestApplyDefaultsPreservesSetValues(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			BaseURL:     "https://calendar.example.com",
			Timeout:     10 * time.Second,
			MaxAttempts: 5,
		},
		Storage: StorageConfig{Dir: "/tmp/elsewhere"},
	}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}

	if cfg.API.BaseURL != "https://calendar.example.com" {
		t.Errorf("BaseURL overwritten: %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 10*time.Second {
		t.Errorf("Timeout overwritten: %v", cfg.API.Timeout)
	}
	if cfg.API.MaxAttempts != 5 {
		t.Errorf("MaxAttempts overwritten: %d", cfg.API.MaxAttempts)
	}
	if cfg.Storage.TokensFile != filepath.Join("/tmp/elsewhere", "tokens.json") {
		t.Errorf("TokensFile = %q, want it derived from the set dir", cfg.Storage.TokensFile)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid base URL",
			mutate:  func(c *Config) { c.API.BaseURL = "not a url" },
			wantErr: "url",
		},
		{
			name:    "max attempts too high",
			mutate:  func(c *Config) { c.API.MaxAttempts = 50 },
			wantErr: "max",
		},
		{
			name:    "unknown key source",
			mutate:  func(c *Config) { c.Auth.KeySource = "vault" },
			wantErr: "oneof",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.LogFormat = "yaml" },
			wantErr: "oneof",
		},
		{
			name: "keyring source without user",
			mutate: func(c *Config) {
				c.Auth.KeySource = KeySourceTypeKeyring
				c.Auth.KeyringUser = ""
			},
			wantErr: "keyring_user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Default()
			if err != nil {
				t.Fatalf("Default: %v", err)
			}
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}
