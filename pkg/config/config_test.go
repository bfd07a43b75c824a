package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewDefaultConfig(t *testing.T) {
	path := "/tmp/testdb/pool.dat"
	cfg := NewDefaultConfig(path)

	if cfg.Version != CurrentManifestVersion {
		t.Errorf("expected version %d, got %d", CurrentManifestVersion, cfg.Version)
	}
	if cfg.Path != path {
		t.Errorf("expected path %s, got %s", path, cfg.Path)
	}
	if cfg.Size != 64*1024*1024 {
		t.Errorf("expected default size %d, got %d", 64*1024*1024, cfg.Size)
	}
	if cfg.ForceCreate {
		t.Errorf("expected ForceCreate false by default")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := NewDefaultConfig("/tmp/testdb/pool.dat")

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}

	testCases := []struct {
		name     string
		mutate   func(*Config)
		expected string
	}{
		{
			name: "invalid version",
			mutate: func(c *Config) {
				c.Version = 0
			},
			expected: "invalid configuration: invalid version 0",
		},
		{
			name: "empty path",
			mutate: func(c *Config) {
				c.Path = ""
			},
			expected: "invalid configuration: path not specified",
		},
		{
			name: "size below minimum",
			mutate: func(c *Config) {
				c.Size = 1024
			},
			expected: "invalid configuration: size 1024 below minimum 65537",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig("/tmp/testdb/pool.dat")
			tc.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if err.Error() != tc.expected {
				t.Errorf("expected error %q, got %q", tc.expected, err.Error())
			}
		})
	}
}

func TestConfigManifestSaveLoad(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "config_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	cfg := NewDefaultConfig(filepath.Join(tempDir, "pool.dat"))
	cfg.Size = 16 * 1024 * 1024
	cfg.ForceCreate = true

	if err := cfg.SaveManifest(tempDir); err != nil {
		t.Fatalf("failed to save manifest: %v", err)
	}

	loadedCfg, err := LoadConfigFromManifest(tempDir)
	if err != nil {
		t.Fatalf("failed to load manifest: %v", err)
	}

	if loadedCfg.Size != cfg.Size {
		t.Errorf("expected size %d, got %d", cfg.Size, loadedCfg.Size)
	}
	if loadedCfg.ForceCreate != cfg.ForceCreate {
		t.Errorf("expected ForceCreate %v, got %v", cfg.ForceCreate, loadedCfg.ForceCreate)
	}

	nonExistentDir := filepath.Join(tempDir, "nonexistent")
	_, err = LoadConfigFromManifest(nonExistentDir)
	if err != ErrManifestNotFound {
		t.Errorf("expected ErrManifestNotFound, got %v", err)
	}
}

func TestConfigUpdate(t *testing.T) {
	cfg := NewDefaultConfig("/tmp/testdb/pool.dat")

	cfg.Update(func(c *Config) {
		c.Size = 128 * 1024 * 1024
		c.ForceCreate = true
	})

	if cfg.Size != 128*1024*1024 {
		t.Errorf("expected size %d, got %d", 128*1024*1024, cfg.Size)
	}
	if !cfg.ForceCreate {
		t.Errorf("expected ForceCreate true")
	}
}
