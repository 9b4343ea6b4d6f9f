// Package app is the application layer between the CLI and the sync
// engine. It constructs all dependencies from config and owns the log
// file lifecycle.
package app

import (
	"fmt"
	"os"
	"time"

	"bmsync/internal/backup"
	"bmsync/internal/config"
	"bmsync/internal/encryption"
	"bmsync/internal/safewrite"
	"bmsync/internal/store"
	"bmsync/internal/sync"
)

// App wires config, adapters, engine and backup machinery for one CLI
// invocation. The caller must call Close when done.
type App struct {
	Cfg       *config.Config
	Adapters  []store.Adapter
	Engine    *sync.Engine
	Archiver  *backup.Archiver
	Encryptor encryption.Encryptor

	logger  *slogAdapter
	logFile *os.File
}

// New creates a fully wired App from the given config. operation
// identifies the CLI command being run (e.g. "Sync", "BackupCreate")
// and tags every log line of this invocation.
func New(cfg *config.Config, operation string) (*App, error) {
	opID := fmt.Sprintf("%s-%s", operation, time.Now().UTC().Format("20060102T150405Z"))
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	home, err := os.UserHomeDir()
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	ids, err := enabledStores(cfg.Stores.Enabled)
	if err != nil {
		logFile.Close()
		return nil, err
	}
	overrides, err := pathOverrides(cfg.Stores.Paths)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	env := store.Env{
		Home:      home,
		Scratch:   cfg.ScratchDir,
		Overrides: overrides,
		Logger:    logger,
	}
	adapters, err := store.NewAll(ids, env)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating store adapters: %w", err)
	}

	enc, err := encryption.FromConfig(cfg.Encryption)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	return &App{
		Cfg:       cfg,
		Adapters:  adapters,
		Engine:    sync.NewEngine(adapters, cfg.StatePath, logger, sync.RealClock{}),
		Archiver:  backup.NewArchiver(cfg.Backup.OutputDir, enc, logger, sync.RealClock{}),
		Encryptor: enc,
		logger:    logger,
		logFile:   logFile,
	}, nil
}

// Logger returns the invocation-scoped structured logger.
func (a *App) Logger() safewrite.Logger { return a.logger }

// Close releases the log file.
func (a *App) Close() error {
	if a.logFile != nil {
		return a.logFile.Close()
	}
	return nil
}

func enabledStores(names []string) ([]store.ID, error) {
	if len(names) == 0 {
		return store.AllIDs(), nil
	}
	ids := make([]store.ID, 0, len(names))
	for _, name := range names {
		id, err := store.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("config stores.enabled: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func pathOverrides(paths map[string]string) (map[store.ID]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	overrides := make(map[store.ID]string, len(paths))
	for name, path := range paths {
		id, err := store.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("config stores.paths: %w", err)
		}
		overrides[id] = path
	}
	return overrides, nil
}
