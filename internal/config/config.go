package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for bmsync.
type Config struct {
	HomeDir    string           `toml:"home_dir"`
	StatePath  string           `toml:"state_path"`
	ScratchDir string           `toml:"scratch_dir"`
	LogDir     string           `toml:"log_dir"`
	Stores     StoresConfig     `toml:"stores"`
	Encryption EncryptionConfig `toml:"encryption"`
	Backup     BackupConfig     `toml:"backup"`
	Watch      WatchConfig      `toml:"watch"`
}

// StoresConfig selects which browser stores participate and where to
// find them when autodetection is not wanted.
type StoresConfig struct {
	// Enabled lists store ids to sync. Empty means every supported
	// store that is detected.
	Enabled []string `toml:"enabled"`
	// Paths overrides the detected location per store id. Used on
	// non-standard installs and in tests.
	Paths map[string]string `toml:"paths,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for encrypted
// backups.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "none"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// BackupConfig controls master backup archives.
type BackupConfig struct {
	OutputDir string `toml:"output_dir"`
	Encrypt   bool   `toml:"encrypt"`
}

// WatchConfig controls the watch command.
type WatchConfig struct {
	IntervalSeconds int `toml:"interval_seconds"` // periodic sync interval
	DebounceSeconds int `toml:"debounce_seconds"` // quiet period after a file event
}

// NewConfig creates a Config with defaults rooted at homeDir.
func NewConfig(homeDir string) *Config {
	return &Config{
		HomeDir:    homeDir,
		StatePath:  filepath.Join(homeDir, "sync_state.json"),
		ScratchDir: filepath.Join(homeDir, "scratch"),
		LogDir:     filepath.Join(homeDir, "log"),
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(homeDir, "keys", "bmsync.pub"),
			PrivateKeyPath: filepath.Join(homeDir, "keys", "bmsync.key"),
		},
		Backup: BackupConfig{
			OutputDir: filepath.Join(homeDir, "backups"),
		},
		Watch: WatchConfig{
			IntervalSeconds: 1800,
			DebounceSeconds: 5,
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the
// provided Config. Refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
