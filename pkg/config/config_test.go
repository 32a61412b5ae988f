package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewDefaultConfig(t *testing.T) {
	dbPath := "/tmp/testdb"
	cfg := NewDefaultConfig(dbPath)

	if cfg.Version != CurrentManifestVersion {
		t.Errorf("expected version %d, got %d", CurrentManifestVersion, cfg.Version)
	}

	if cfg.SSTDir != dbPath {
		t.Errorf("expected SST dir %s, got %s", dbPath, cfg.SSTDir)
	}

	if cfg.MaxMemTables != 2 {
		t.Errorf("expected max memtables 2, got %d", cfg.MaxMemTables)
	}

	if cfg.MemTableKind != MemTableKindLog {
		t.Errorf("expected memtable kind %q, got %q", MemTableKindLog, cfg.MemTableKind)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestHandoffCapacity(t *testing.T) {
	cases := map[int]int{1: 1, 2: 1, 3: 2, 8: 7}
	for maxTables, want := range cases {
		cfg := NewDefaultConfig("/tmp/testdb")
		cfg.MaxMemTables = maxTables
		if got := cfg.HandoffCapacity(); got != want {
			t.Errorf("MaxMemTables=%d: expected capacity %d, got %d", maxTables, want, got)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name     string
		mutate   func(*Config)
		expected string
	}{
		{
			name:     "invalid version",
			mutate:   func(c *Config) { c.Version = 0 },
			expected: "invalid configuration: invalid version 0",
		},
		{
			name:     "empty SST dir",
			mutate:   func(c *Config) { c.SSTDir = "" },
			expected: "invalid configuration: SSTable directory not specified",
		},
		{
			name:     "zero memtable size",
			mutate:   func(c *Config) { c.MemTableSize = 0 },
			expected: "invalid configuration: MemTable size must be positive",
		},
		{
			name:     "zero max memtables",
			mutate:   func(c *Config) { c.MaxMemTables = 0 },
			expected: "invalid configuration: Max MemTables must be positive",
		},
		{
			name:     "unknown kind",
			mutate:   func(c *Config) { c.MemTableKind = "btree" },
			expected: `invalid configuration: unknown MemTable kind "btree"`,
		},
		{
			name:     "zero write buffer",
			mutate:   func(c *Config) { c.WriteBufferSize = 0 },
			expected: "invalid configuration: write buffer size must be positive",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig("/tmp/testdb")
			tc.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if err.Error() != tc.expected {
				t.Errorf("expected error %q, got %q", tc.expected, err.Error())
			}
		})
	}
}

func TestConfigManifestSaveLoad(t *testing.T) {
	tempDir := t.TempDir()

	cfg := NewDefaultConfig(tempDir)
	cfg.MemTableSize = 16 * 1024 * 1024
	cfg.MaxMemTables = 4
	cfg.MemTableKind = MemTableKindSorted

	if err := cfg.SaveManifest(tempDir); err != nil {
		t.Fatalf("failed to save manifest: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, DefaultManifestFileName+".tmp")); !os.IsNotExist(err) {
		t.Errorf("temporary manifest left behind: %v", err)
	}

	loadedCfg, err := LoadConfigFromManifest(tempDir)
	if err != nil {
		t.Fatalf("failed to load manifest: %v", err)
	}

	if loadedCfg.MemTableSize != cfg.MemTableSize {
		t.Errorf("expected memtable size %d, got %d", cfg.MemTableSize, loadedCfg.MemTableSize)
	}
	if loadedCfg.MaxMemTables != 4 {
		t.Errorf("expected max memtables 4, got %d", loadedCfg.MaxMemTables)
	}
	if loadedCfg.MemTableKind != MemTableKindSorted {
		t.Errorf("expected kind %q, got %q", MemTableKindSorted, loadedCfg.MemTableKind)
	}

	_, err = LoadConfigFromManifest(filepath.Join(tempDir, "nonexistent"))
	if err != ErrManifestNotFound {
		t.Errorf("expected ErrManifestNotFound, got %v", err)
	}
}

func TestLoadInvalidManifest(t *testing.T) {
	tempDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tempDir, DefaultManifestFileName), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadConfigFromManifest(tempDir)
	if !errors.Is(err, ErrInvalidManifest) {
		t.Errorf("expected ErrInvalidManifest, got %v", err)
	}
}

func TestConfigUpdateAndClone(t *testing.T) {
	cfg := NewDefaultConfig("/tmp/testdb")

	cfg.Update(func(c *Config) {
		c.MemTableSize = 1024
		c.MaxMemTables = 8
	})

	if cfg.MemTableSize != 1024 {
		t.Errorf("expected memtable size %d, got %d", 1024, cfg.MemTableSize)
	}
	if cfg.MaxMemTables != 8 {
		t.Errorf("expected max memtables %d, got %d", 8, cfg.MaxMemTables)
	}

	clone := cfg.Clone()
	clone.MaxMemTables = 3
	if cfg.MaxMemTables != 8 {
		t.Errorf("clone mutation leaked into original")
	}
}
