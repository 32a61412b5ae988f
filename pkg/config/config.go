package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	DefaultManifestFileName = "OPTIONS"
	CurrentManifestVersion  = 1
)

// MemTable kinds understood by the memtable package.
const (
	MemTableKindLog    = "log"
	MemTableKindSorted = "sorted"
)

var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrManifestNotFound = errors.New("manifest not found")
	ErrInvalidManifest  = errors.New("invalid manifest")
)

type Config struct {
	Version int `json:"version"`

	// MemTable configuration
	MemTableSize int64  `json:"memtable_size"`
	MaxMemTables int    `json:"max_memtables"`
	MemTableKind string `json:"memtable_kind"`

	// SSTable configuration
	SSTDir          string `json:"sst_dir"`
	WriteBufferSize int    `json:"write_buffer_size"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values
func NewDefaultConfig(dbPath string) *Config {
	return &Config{
		Version: CurrentManifestVersion,

		// MemTable defaults
		MemTableSize: 64 * 1024 * 1024, // 64MB
		MaxMemTables: 2,                // one active plus one immutable
		MemTableKind: MemTableKindLog,

		// SSTable defaults
		SSTDir:          dbPath,
		WriteBufferSize: 64 * 1024, // 64KB
	}
}

// HandoffCapacity is the number of frozen memtables that may wait for
// persistence before writers stall.
func (c *Config) HandoffCapacity() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.MaxMemTables-1 < 1 {
		return 1
	}
	return c.MaxMemTables - 1
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validate()
}

func (c *Config) validate() error {
	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	if c.SSTDir == "" {
		return fmt.Errorf("%w: SSTable directory not specified", ErrInvalidConfig)
	}

	if c.MemTableSize <= 0 {
		return fmt.Errorf("%w: MemTable size must be positive", ErrInvalidConfig)
	}

	if c.MaxMemTables <= 0 {
		return fmt.Errorf("%w: Max MemTables must be positive", ErrInvalidConfig)
	}

	switch c.MemTableKind {
	case MemTableKindLog, MemTableKindSorted:
	default:
		return fmt.Errorf("%w: unknown MemTable kind %q", ErrInvalidConfig, c.MemTableKind)
	}

	if c.WriteBufferSize <= 0 {
		return fmt.Errorf("%w: write buffer size must be positive", ErrInvalidConfig)
	}

	return nil
}

// LoadConfigFromManifest loads the configuration stored in dbPath's OPTIONS file
func LoadConfigFromManifest(dbPath string) (*Config, error) {
	manifestPath := filepath.Join(dbPath, DefaultManifestFileName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrManifestNotFound
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	cfg := NewDefaultConfig(dbPath)
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveManifest saves the configuration to dbPath's OPTIONS file
func (c *Config) SaveManifest(dbPath string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	manifestPath := filepath.Join(dbPath, DefaultManifestFileName)
	tempPath := manifestPath + ".tmp"

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := os.Rename(tempPath, manifestPath); err != nil {
		return fmt.Errorf("failed to rename manifest: %w", err)
	}

	return nil
}

// Update applies the given function to modify the configuration
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

// Clone returns a copy that does not share the lock with c.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Version:         c.Version,
		MemTableSize:    c.MemTableSize,
		MaxMemTables:    c.MaxMemTables,
		MemTableKind:    c.MemTableKind,
		SSTDir:          c.SSTDir,
		WriteBufferSize: c.WriteBufferSize,
	}
}
