// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.URL != "http://127.0.0.1:8080" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.DefaultModel == "" {
		t.Error("DefaultModel is empty")
	}
	if !cfg.History.Enabled {
		t.Error("history disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFromPath_MissingFile(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFromPath(missing) error = %v", err)
	}
	if cfg.Server.URL != Default().Server.URL {
		t.Error("missing file did not fall back to defaults")
	}
}

func TestLoadFromPath_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
default_model = "llama3:8b"

[server]
url = "http://127.0.0.1:9999"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.DefaultModel != "llama3:8b" {
		t.Errorf("DefaultModel = %q", cfg.DefaultModel)
	}
	if cfg.Server.URL != "http://127.0.0.1:9999" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	// Unset fields keep their defaults.
	if cfg.Server.TimeoutSecs != 30 {
		t.Errorf("Server.TimeoutSecs = %d, want default 30", cfg.Server.TimeoutSecs)
	}
	if cfg.UI.Theme != "dark" {
		t.Errorf("UI.Theme = %q, want default dark", cfg.UI.Theme)
	}
}

func TestLoadFromPath_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("this is { not toml"), 0600)

	if _, err := LoadFromPath(path); err == nil {
		t.Error("LoadFromPath(garbage) succeeded, want error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EMBER_SERVER_URL", "http://127.0.0.1:7777")
	t.Setenv("EMBER_MODEL", "env-model")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.Server.URL != "http://127.0.0.1:7777" {
		t.Errorf("Server.URL = %q, env override lost", cfg.Server.URL)
	}
	if cfg.DefaultModel != "env-model" {
		t.Errorf("DefaultModel = %q, env override lost", cfg.DefaultModel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(*Config) {}, false},
		{"bad url", func(c *Config) { c.Server.URL = "not a url" }, true},
		{"negative timeout", func(c *Config) { c.Server.TimeoutSecs = -1 }, true},
		{"temperature too high", func(c *Config) { c.Server.Temperature = 3 }, true},
		{"bad theme", func(c *Config) { c.UI.Theme = "neon" }, true},
		{"light theme", func(c *Config) { c.UI.Theme = "light" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.DefaultModel = "saved-model"
	cfg.Server.Temperature = 0.7
	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file permissions = %o, want 0600", perm)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if loaded.DefaultModel != "saved-model" {
		t.Errorf("DefaultModel = %q after round trip", loaded.DefaultModel)
	}
	if loaded.Server.Temperature != 0.7 {
		t.Errorf("Temperature = %g after round trip", loaded.Server.Temperature)
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := SaveTo(Default(), path); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var got *Config
	w, err := Watch(path, func(cfg *Config) {
		mu.Lock()
		got = cfg
		mu.Unlock()
	}, nil)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	updated := Default()
	updated.DefaultModel = "reloaded-model"
	if err := SaveTo(updated, path); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		ok := got != nil && got.DefaultModel == "reloaded-model"
		mu.Unlock()
		if ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("watcher did not deliver reloaded config")
}
