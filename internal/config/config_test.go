/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskmesh/internal/compression"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.NodeAddr != "" {
		t.Errorf("expected default NodeAddr empty (listener), got %q", cfg.NodeAddr)
	}
	if cfg.StorePath != "taskmesh.db" {
		t.Errorf("expected default StorePath 'taskmesh.db', got %q", cfg.StorePath)
	}
	if cfg.MDNSService != "_taskmesh._tcp" {
		t.Errorf("expected default MDNSService '_taskmesh._tcp', got %q", cfg.MDNSService)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default LogLevel 'info', got %q", cfg.LogLevel)
	}
	if cfg.LogJSON != false {
		t.Errorf("expected default LogJSON false, got %v", cfg.LogJSON)
	}
	if cfg.Compression != "zstd" {
		t.Errorf("expected default Compression 'zstd', got %q", cfg.Compression)
	}
	if cfg.CompressionMinSize != 256 {
		t.Errorf("expected default CompressionMinSize 256, got %d", cfg.CompressionMinSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{name: "valid default", cfg: DefaultConfig(), wantErr: false},
		{
			name: "valid with node addr",
			cfg: &Config{
				NodeAddr:              "127.0.0.1:7946",
				StorePath:             "test.db",
				HeartbeatInterval:     100 * time.Millisecond,
				ElectionTimeoutBase:   300 * time.Millisecond,
				ElectionTimeoutJitter: 200 * time.Millisecond,
				LogLevel:              "info",
			},
			wantErr: false,
		},
		{
			name: "empty store path",
			cfg: &Config{
				StorePath:           "",
				HeartbeatInterval:   100 * time.Millisecond,
				ElectionTimeoutBase: 300 * time.Millisecond,
				LogLevel:            "info",
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			cfg: &Config{
				StorePath:           "test.db",
				HeartbeatInterval:   100 * time.Millisecond,
				ElectionTimeoutBase: 300 * time.Millisecond,
				LogLevel:            "verbose",
			},
			wantErr: true,
		},
		{
			name: "zero heartbeat",
			cfg: &Config{
				StorePath:           "test.db",
				HeartbeatInterval:   0,
				ElectionTimeoutBase: 300 * time.Millisecond,
				LogLevel:            "info",
			},
			wantErr: true,
		},
		{
			name: "negative jitter",
			cfg: &Config{
				StorePath:             "test.db",
				HeartbeatInterval:     100 * time.Millisecond,
				ElectionTimeoutBase:   300 * time.Millisecond,
				ElectionTimeoutJitter: -time.Millisecond,
				LogLevel:              "info",
			},
			wantErr: true,
		},
		{
			name: "election timeout not above heartbeat",
			cfg: &Config{
				StorePath:           "test.db",
				HeartbeatInterval:   300 * time.Millisecond,
				ElectionTimeoutBase: 100 * time.Millisecond,
				LogLevel:            "info",
			},
			wantErr: true,
		},
		{
			name: "unknown compression algorithm",
			cfg: &Config{
				StorePath:           "test.db",
				HeartbeatInterval:   100 * time.Millisecond,
				ElectionTimeoutBase: 300 * time.Millisecond,
				LogLevel:            "info",
				Compression:         "bogus",
			},
			wantErr: true,
		},
		{
			name: "negative compression min size",
			cfg: &Config{
				StorePath:           "test.db",
				HeartbeatInterval:   100 * time.Millisecond,
				ElectionTimeoutBase: 300 * time.Millisecond,
				LogLevel:            "info",
				CompressionMinSize:  -1,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()

	configContent := `# test configuration
node_addr = "10.0.0.5:7946"
store_path = "/tmp/test.db"
mdns_service = "_taskmesh-test._tcp"
heartbeat_interval = "50ms"
election_timeout_base = "250ms"
election_timeout_jitter = "150ms"
log_level = "debug"
log_json = true
`
	configPath := filepath.Join(tmpDir, "taskmesh.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.NodeAddr != "10.0.0.5:7946" {
		t.Errorf("expected NodeAddr '10.0.0.5:7946', got %q", cfg.NodeAddr)
	}
	if cfg.StorePath != "/tmp/test.db" {
		t.Errorf("expected StorePath '/tmp/test.db', got %q", cfg.StorePath)
	}
	if cfg.HeartbeatInterval != 50*time.Millisecond {
		t.Errorf("expected HeartbeatInterval 50ms, got %v", cfg.HeartbeatInterval)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel 'debug', got %q", cfg.LogLevel)
	}
	if cfg.LogJSON != true {
		t.Errorf("expected LogJSON true, got %v", cfg.LogJSON)
	}
	if cfg.ConfigFile != configPath {
		t.Errorf("expected ConfigFile %q, got %q", configPath, cfg.ConfigFile)
	}
}

func TestLoadFromEnv(t *testing.T) {
	for k, v := range map[string]string{
		EnvNodeAddr: "192.168.1.1:7946",
		EnvLogLevel: "debug",
		EnvLogJSON:  "true",
	} {
		old := os.Getenv(k)
		os.Setenv(k, v)
		t.Cleanup(func() { os.Setenv(k, old) })
	}

	mgr := NewManager()
	mgr.LoadFromEnv()

	cfg := mgr.Get()
	if cfg.NodeAddr != "192.168.1.1:7946" {
		t.Errorf("expected NodeAddr from env, got %q", cfg.NodeAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel from env, got %q", cfg.LogLevel)
	}
	if cfg.LogJSON != true {
		t.Errorf("expected LogJSON true from env, got %v", cfg.LogJSON)
	}
}

func TestConfigPrecedence(t *testing.T) {
	tmpDir := t.TempDir()

	configContent := `node_addr = "10.0.0.1:7946"
store_path = "test.db"
heartbeat_interval = "100ms"
election_timeout_base = "300ms"
log_level = "info"
`
	configPath := filepath.Join(tmpDir, "taskmesh.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	old := os.Getenv(EnvNodeAddr)
	os.Setenv(EnvNodeAddr, "10.0.0.2:7946")
	t.Cleanup(func() { os.Setenv(EnvNodeAddr, old) })

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	mgr.LoadFromEnv()

	cfg := mgr.Get()
	if cfg.NodeAddr != "10.0.0.2:7946" {
		t.Errorf("expected env override '10.0.0.2:7946', got %q", cfg.NodeAddr)
	}
}

func TestToTOML(t *testing.T) {
	cfg := &Config{
		NodeAddr:              "10.0.0.1:7946",
		StorePath:             "/var/lib/taskmesh/data.db",
		MDNSService:           "_taskmesh._tcp",
		HeartbeatInterval:     100 * time.Millisecond,
		ElectionTimeoutBase:   300 * time.Millisecond,
		ElectionTimeoutJitter: 200 * time.Millisecond,
		LogLevel:              "info",
		LogJSON:               false,
	}

	toml := cfg.ToTOML()
	for _, want := range []string{
		`node_addr = "10.0.0.1:7946"`,
		`store_path = "/var/lib/taskmesh/data.db"`,
		`log_level = "info"`,
	} {
		if !strings.Contains(toml, want) {
			t.Errorf("ToTOML() output missing %q, got:\n%s", want, toml)
		}
	}
}

func TestSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.NodeAddr = "127.0.0.1:7946"
	cfg.LogLevel = "debug"

	configPath := filepath.Join(tmpDir, "subdir", "taskmesh.conf")
	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}

	loaded := mgr.Get()
	if loaded.NodeAddr != "127.0.0.1:7946" {
		t.Errorf("expected NodeAddr '127.0.0.1:7946', got %q", loaded.NodeAddr)
	}
	if loaded.LogLevel != "debug" {
		t.Errorf("expected LogLevel 'debug', got %q", loaded.LogLevel)
	}
}

func TestReload(t *testing.T) {
	tmpDir := t.TempDir()

	configContent := `store_path = "test.db"
heartbeat_interval = "100ms"
election_timeout_base = "300ms"
log_level = "info"
`
	configPath := filepath.Join(tmpDir, "taskmesh.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.LogLevel != "info" {
		t.Errorf("expected initial LogLevel 'info', got %q", cfg.LogLevel)
	}

	reloadCalled := false
	mgr.OnReload(func(c *Config) {
		reloadCalled = true
	})

	newContent := `store_path = "test.db"
heartbeat_interval = "100ms"
election_timeout_base = "300ms"
log_level = "debug"
`
	if err := os.WriteFile(configPath, []byte(newContent), 0o644); err != nil {
		t.Fatalf("failed to update config file: %v", err)
	}

	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	cfg = mgr.Get()
	if cfg.LogLevel != "debug" {
		t.Errorf("expected reloaded LogLevel 'debug', got %q", cfg.LogLevel)
	}
	if !reloadCalled {
		t.Error("reload callback was not called")
	}
}

func TestGlobalManager(t *testing.T) {
	mgr := Global()
	if mgr == nil {
		t.Error("Global() returned nil")
	}

	mgr2 := Global()
	if mgr != mgr2 {
		t.Error("Global() returned different instances")
	}
}

func TestCompressionConfig(t *testing.T) {
	cfg := DefaultConfig()
	cc := cfg.CompressionConfig()
	if cc.Algorithm != compression.AlgorithmZstd {
		t.Errorf("expected AlgorithmZstd, got %v", cc.Algorithm)
	}
	if cc.MinSize != 256 {
		t.Errorf("expected MinSize 256, got %d", cc.MinSize)
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	str := cfg.String()

	if !strings.Contains(str, "NodeAddr:") {
		t.Error("String() missing NodeAddr")
	}
	if !strings.Contains(str, "(listener)") {
		t.Error("String() missing listener marker for empty NodeAddr")
	}
	if !strings.Contains(str, "StorePath:") {
		t.Error("String() missing StorePath")
	}
}
