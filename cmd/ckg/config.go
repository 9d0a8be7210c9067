// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aidino/repochat-sub003/pkg/logging"
	"github.com/aidino/repochat-sub003/services/ckg/store"
)

// maxConfigSize caps the config file read. A knowledge graph config is
// a handful of scalars; anything past this is a wrong file.
const maxConfigSize = 1 << 20 // 1 MiB

// defaultConfigFile is loaded when --config is not given. A missing
// default file is not an error; the built-in defaults apply.
const defaultConfigFile = "ckg.yaml"

// Config is the CLI configuration, loaded from YAML with flag
// overrides applied afterwards.
//
// Example ckg.yaml:
//
//	store:
//	  driver: badger
//	  path: ~/.ckg/graph
//	  gc_interval_minutes: 10
//	scan:
//	  max_workers: 8
//	  exclude_dirs: [generated, third_party]
//	log:
//	  level: info
//	  dir: ~/.ckg/logs
type Config struct {
	Store StoreConfig `yaml:"store"`
	Scan  ScanConfig  `yaml:"scan"`
	Log   LogConfig   `yaml:"log"`
}

// StoreConfig selects and configures the graph store driver.
type StoreConfig struct {
	// Driver is "badger" or "memory". Memory is ephemeral: a graph
	// built by scan is gone when the process exits.
	Driver string `yaml:"driver"`

	// Path is the badger database directory. Supports ~ expansion.
	Path string `yaml:"path"`

	// SyncWrites makes every badger write durable before returning.
	SyncWrites bool `yaml:"sync_writes"`

	// GCIntervalMinutes is the badger value log GC cadence. Zero
	// disables GC.
	GCIntervalMinutes int `yaml:"gc_interval_minutes"`
}

// ScanConfig bounds the scan pipeline.
type ScanConfig struct {
	// MaxWorkers caps concurrent language batches. Zero uses the CPU
	// count.
	MaxWorkers int `yaml:"max_workers"`

	// Languages restricts scanning to the named languages. Empty means
	// every registered language.
	Languages []string `yaml:"languages"`

	// ExcludeDirs are directory names skipped during the file walk, in
	// addition to the built-in skip list (.git, vendor, node_modules...).
	ExcludeDirs []string `yaml:"exclude_dirs"`
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Dir enables file logging when set. Supports ~ expansion.
	Dir string `yaml:"dir"`

	// JSON switches stderr output to JSON.
	JSON bool `yaml:"json"`

	// Quiet disables stderr logging.
	Quiet bool `yaml:"quiet"`
}

// defaultCLIConfig returns the configuration used when no file and no
// flags say otherwise: a persistent badger graph under ~/.ckg.
func defaultCLIConfig() Config {
	return Config{
		Store: StoreConfig{
			Driver:            store.DriverBadger,
			Path:              "~/.ckg/graph",
			GCIntervalMinutes: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// loadConfig reads the YAML config at path, layered over the defaults.
//
// When explicit is false (the default path), a missing file is fine.
// When explicit is true (the user passed --config), a missing file is
// a fatal configuration error.
func loadConfig(path string, explicit bool) (Config, error) {
	cfg := defaultCLIConfig()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config file %s: %w", path, err)
	}
	if info.Size() > maxConfigSize {
		return cfg, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// validate rejects configurations that would fail later in a less
// obvious place.
func (c Config) validate() error {
	switch c.Store.Driver {
	case "", store.DriverMemory:
	case store.DriverBadger:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the badger driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q (want memory or badger)", c.Store.Driver)
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level %q (want debug, info, warn, or error)", c.Log.Level)
	}

	if c.Scan.MaxWorkers < 0 {
		return fmt.Errorf("scan.max_workers must be >= 0, got %d", c.Scan.MaxWorkers)
	}
	if c.Store.GCIntervalMinutes < 0 {
		return fmt.Errorf("store.gc_interval_minutes must be >= 0, got %d", c.Store.GCIntervalMinutes)
	}
	return nil
}

// storeConfig translates the CLI config into the store package's form.
func (c Config) storeConfig(logger *slog.Logger) store.Config {
	return store.Config{
		Driver:     c.Store.Driver,
		Path:       expandHome(c.Store.Path),
		SyncWrites: c.Store.SyncWrites,
		GCInterval: time.Duration(c.Store.GCIntervalMinutes) * time.Minute,
		Logger:     logger,
	}
}

// loggerConfig translates the CLI config into the logging package's form.
func (c Config) loggerConfig() logging.Config {
	return logging.Config{
		Level:   logging.ParseLevel(c.Log.Level),
		LogDir:  c.Log.Dir,
		Service: "ckg",
		JSON:    c.Log.JSON,
		Quiet:   c.Log.Quiet,
	}
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
